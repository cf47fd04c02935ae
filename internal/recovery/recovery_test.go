package recovery

import (
	"context"
	"errors"
	"testing"
)

func TestRecoverAllEmptyIsSuccess(t *testing.T) {
	m := NewManager()
	if err := m.RecoverAll(context.Background()); err != nil {
		t.Errorf("expected success with no components, got %v", err)
	}
}

func TestRecoverAllRunsEveryComponent(t *testing.T) {
	m := NewManager()

	var calls []string
	m.Register(Func(func(ctx context.Context) error {
		calls = append(calls, "first")
		return nil
	}))
	m.Register(Func(func(ctx context.Context) error {
		calls = append(calls, "second")
		return nil
	}))

	if err := m.RecoverAll(context.Background()); err != nil {
		t.Fatalf("RecoverAll failed: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("expected both components recovered in order, got %v", calls)
	}
}

func TestRecoverAllContinuesPastFailure(t *testing.T) {
	m := NewManager()

	ran := false
	m.Register(Func(func(ctx context.Context) error {
		return errors.New("state corrupt")
	}))
	m.Register(Func(func(ctx context.Context) error {
		ran = true
		return nil
	}))

	err := m.RecoverAll(context.Background())
	if err == nil {
		t.Error("expected an error when a component fails")
	}
	if !ran {
		t.Error("expected later components to run after an earlier failure")
	}
}
