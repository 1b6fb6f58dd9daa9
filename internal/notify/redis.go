package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const (
	OpSend = "send"
	OpEdit = "edit"
)

// defaultMaxLen caps the outbox so an absent consumer cannot grow it forever.
const defaultMaxLen = 10000

// Stream appends messages to a Redis stream. An external front end (a chat
// bot) consumes the stream and renders each entry; "op" tells it whether to
// post a new message or edit the one it previously posted for "ref".
type Stream struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStream(client *redis.Client, stream string) *Stream {
	return &Stream{client: client, stream: stream, maxLen: defaultMaxLen}
}

func (s *Stream) Send(ctx context.Context, msg Message) error {
	return s.add(ctx, OpSend, msg)
}

func (s *Stream) EditOrReplace(ctx context.Context, msg Message) error {
	if msg.Ref == "" {
		return ErrNoRef
	}
	return s.add(ctx, OpEdit, msg)
}

func (s *Stream) add(ctx context.Context, op string, msg Message) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Values: map[string]interface{}{
			"op":        op,
			"tenant_id": strconv.FormatInt(msg.TenantID, 10),
			"user_id":   strconv.FormatInt(msg.UserID, 10),
			"ref":       msg.Ref,
			"text":      msg.Text,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
