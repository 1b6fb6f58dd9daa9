// Package push delivers notifications to members' browsers over Web Push.
package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dukerupert/shiftboard/internal/model"
	"github.com/dukerupert/shiftboard/internal/notify"
	"github.com/dukerupert/shiftboard/internal/store"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

const defaultTitle = "Shiftboard"

// Payload is the JSON sent to the push service. Browsers replace a shown
// notification that has the same Tag.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag,omitempty"`
}

// Config holds VAPID configuration.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

func (c Config) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// Service sends web push notifications to every subscription of a member.
// It satisfies notify.Notifier.
type Service struct {
	cfg    Config
	subs   *store.PushStore
	client webpush.HTTPClient
	logger *slog.Logger
}

var _ notify.Notifier = (*Service)(nil)

// NewService creates a push service. A nil client means http.DefaultClient.
func NewService(cfg Config, subs *store.PushStore, client webpush.HTTPClient, logger *slog.Logger) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Subscriber == "" {
		cfg.Subscriber = "mailto:noreply@shiftboard.local"
	}
	return &Service{cfg: cfg, subs: subs, client: client, logger: logger}
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.cfg.VAPIDPublicKey
}

func (s *Service) Send(ctx context.Context, msg notify.Message) error {
	return s.deliver(ctx, msg)
}

// EditOrReplace resends msg under the same tag so the browser swaps the
// earlier notification for it.
func (s *Service) EditOrReplace(ctx context.Context, msg notify.Message) error {
	if msg.Ref == "" {
		return notify.ErrNoRef
	}
	return s.deliver(ctx, msg)
}

func (s *Service) deliver(ctx context.Context, msg notify.Message) error {
	subs, err := s.subs.ListByUser(ctx, msg.TenantID, msg.UserID)
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}

	payload := Payload{Title: defaultTitle, Body: msg.Text, Tag: msg.Ref}
	var errs []error
	for i := range subs {
		err := s.SendTo(ctx, &subs[i], payload)
		if errors.Is(err, ErrExpired) {
			s.logger.Info("removing expired push subscription", "tenant_id", msg.TenantID, "user_id", msg.UserID)
			if err := s.subs.DeleteByEndpoint(ctx, subs[i].Endpoint); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendTo sends a push notification to a single subscription.
func (s *Service) SendTo(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		Subscriber:      s.cfg.Subscriber,
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return nil
}

// GenerateVAPIDKeys generates a new P-256 key pair for VAPID, encoded as
// unpadded base64url.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate P-256 key: %w", err)
	}

	publicKey = base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes())
	privateKey = base64.RawURLEncoding.EncodeToString(key.Bytes())
	return publicKey, privateKey, nil
}
