package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/shiftboard/internal/notify"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, tenantID, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   nil,
		member: member{tenantID: tenantID, userID: userID},
		send:   make(chan []byte, sendBufferSize),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1, 10)
	c2 := mockClient(hub, 1, 10)
	c3 := mockClient(hub, 1, 11)

	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)

	if got := hub.ClientCount(); got != 3 {
		t.Fatalf("expected 3 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients after unregister, got %d", got)
	}

	hub.Unregister(c2)
	hub.Unregister(c3)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, 1, 10)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestSendRoutesToMember(t *testing.T) {
	hub := NewHub(slog.Default())

	phone := mockClient(hub, 1, 10)
	tablet := mockClient(hub, 1, 10)
	other := mockClient(hub, 1, 11)
	otherTenant := mockClient(hub, 2, 10)
	for _, c := range []*Client{phone, tablet, other, otherTenant} {
		hub.Register(c)
	}

	err := hub.Send(context.Background(), notify.Message{TenantID: 1, UserID: 10, Ref: "abc", Text: "New task"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, c := range []*Client{phone, tablet} {
		got := receive(t, c)
		if got.Type != TypeNotification || got.Ref != "abc" || got.Text != "New task" {
			t.Errorf("got %+v", got)
		}
	}
	for _, c := range []*Client{other, otherTenant} {
		select {
		case <-c.send:
			t.Error("message leaked to another member")
		default:
		}
	}
}

func TestEditOrReplace(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, 1, 10)
	hub.Register(c)

	if err := hub.EditOrReplace(context.Background(), notify.Message{TenantID: 1, UserID: 10, Text: "x"}); !errors.Is(err, notify.ErrNoRef) {
		t.Fatalf("err = %v, want ErrNoRef", err)
	}

	hub.EditOrReplace(context.Background(), notify.Message{TenantID: 1, UserID: 10, Ref: "abc", Text: "Done"})
	if got := receive(t, c); got.Type != TypeEdit || got.Ref != "abc" {
		t.Errorf("got %+v, want edit of abc", got)
	}
}

func TestSendNoClients(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	if err := hub.Send(context.Background(), notify.Message{TenantID: 1, UserID: 10, Text: "hi"}); err != nil {
		t.Errorf("send: %v", err)
	}
}

func TestSendFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, 1, 10)
	hub.Register(c)

	msg := notify.Message{TenantID: 1, UserID: 10, Text: "fill"}
	for i := 0; i < sendBufferSize; i++ {
		hub.Send(context.Background(), msg)
	}

	// This should drop the message, not panic or block
	hub.Send(context.Background(), msg)

	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, 1, int64(i%3))
			hub.Register(c)
			hub.Send(context.Background(), notify.Message{TenantID: 1, UserID: int64(i % 3), Text: "x"})
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
