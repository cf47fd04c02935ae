// Package notify provides a local in-process notification backend.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// Notification is a delivered prompt as recorded by the local backend.
type Notification struct {
	Handle    string
	Kind      models.PromptKind
	FenceID   string
	FenceName string
	Body      string
	Timeout   time.Duration
	SentAt    time.Time
}

// LocalService is an in-process notification backend used by tests and the
// demo entry. It records scheduled prompts and removes them on cancel.
type LocalService struct {
	mu     sync.Mutex
	nextID int64
	active map[string]Notification
	// Delivered keeps every prompt ever scheduled, for assertions.
	delivered []Notification
}

// Compile-time check that LocalService implements Service.
var _ Service = (*LocalService)(nil)

// NewLocalService creates an empty local notification backend.
func NewLocalService() *LocalService {
	return &LocalService{active: make(map[string]Notification)}
}

func (s *LocalService) Schedule(ctx context.Context, kind models.PromptKind, fenceID, fenceName string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	handle := fmt.Sprintf("notif_%d", s.nextID)
	n := Notification{
		Handle:    handle,
		Kind:      kind,
		FenceID:   fenceID,
		FenceName: fenceName,
		Body:      promptBody(kind, fenceName, timeout),
		Timeout:   timeout,
		SentAt:    time.Now(),
	}
	s.active[handle] = n
	s.delivered = append(s.delivered, n)
	slog.Debug("LocalService scheduled prompt", "handle", handle, "kind", kind, "fence", fenceName)
	return handle, nil
}

func (s *LocalService) Cancel(handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[handle]; !ok {
		slog.Debug("LocalService cancel: prompt not found", "handle", handle)
		return nil
	}
	delete(s.active, handle)
	slog.Debug("LocalService canceled prompt", "handle", handle)
	return nil
}

// Stop clears all active prompts.
func (s *LocalService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = make(map[string]Notification)
	return nil
}

// Active returns the currently scheduled prompts.
func (s *LocalService) Active() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Notification, 0, len(s.active))
	for _, n := range s.active {
		result = append(result, n)
	}
	return result
}

// Delivered returns every prompt ever scheduled, in order.
func (s *LocalService) Delivered() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Notification, len(s.delivered))
	copy(result, s.delivered)
	return result
}
