// Package notify provides the Twilio SMS notification backend.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// TwilioOpts holds configuration for the Twilio SMS backend.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	ToNumber   string
}

// TwilioOption configures the Twilio backend.
type TwilioOption func(*TwilioOpts)

// WithTwilioCredentials sets the account SID and auth token.
func WithTwilioCredentials(accountSID, authToken string) TwilioOption {
	return func(o *TwilioOpts) {
		o.AccountSID = accountSID
		o.AuthToken = authToken
	}
}

// WithTwilioNumbers sets the sending and receiving phone numbers.
func WithTwilioNumbers(from, to string) TwilioOption {
	return func(o *TwilioOpts) {
		o.FromNumber = from
		o.ToNumber = to
	}
}

// TwilioService delivers prompts as SMS messages. SMS cannot be recalled, so
// Cancel only marks the handle resolved; a late user reply to a canceled
// prompt is dropped by the engine's own state re-check.
type TwilioService struct {
	client *twilio.RestClient
	from   string
	to     string

	mu     sync.Mutex
	nextID int64
	active map[string]models.PromptKind
}

// Compile-time check that TwilioService implements Service.
var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a Twilio SMS notification backend.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio credentials not set")
	}
	if cfg.FromNumber == "" || cfg.ToNumber == "" {
		return nil, fmt.Errorf("twilio phone numbers not set")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	slog.Debug("TwilioService created", "from", cfg.FromNumber)
	return &TwilioService{
		client: client,
		from:   cfg.FromNumber,
		to:     cfg.ToNumber,
		active: make(map[string]models.PromptKind),
	}, nil
}

func (s *TwilioService) Schedule(ctx context.Context, kind models.PromptKind, fenceID, fenceName string, timeout time.Duration) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(s.to)
	params.SetFrom(s.from)
	params.SetBody(promptBody(kind, fenceName, timeout))

	_, err := s.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioService failed to send prompt", "error", err, "kind", kind, "fence", fenceName)
		return "", fmt.Errorf("failed to send prompt SMS: %w", err)
	}

	s.mu.Lock()
	s.nextID++
	handle := fmt.Sprintf("sms_%d", s.nextID)
	s.active[handle] = kind
	s.mu.Unlock()

	slog.Info("TwilioService sent prompt", "handle", handle, "kind", kind, "fence", fenceName)
	return handle, nil
}

func (s *TwilioService) Cancel(handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, handle)
	return nil
}

// Stop clears resolved handles. The underlying HTTP client needs no teardown.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = make(map[string]models.PromptKind)
	return nil
}
