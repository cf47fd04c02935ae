package engine

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

func TestRecoverPendingWithNoRecordIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.ready(t, testFence("office", "Office"))

	if err := env.engine.RecoverPending(context.Background()); err != nil {
		t.Fatalf("RecoverPending failed: %v", err)
	}
	status := env.engine.Status()
	if status.Pending != nil || status.Pause != nil {
		t.Error("expected no pending action recovered from an empty store")
	}
}

func TestRecoverPendingRearmsLiveEnterRecord(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	savePendingRecord(t, env, models.PendingEnter, fence, time.Now().Add(3*time.Minute))

	if err := env.engine.RecoverPending(context.Background()); err != nil {
		t.Fatalf("RecoverPending failed: %v", err)
	}

	status := env.engine.Status()
	if status.Pending == nil || status.Pending.Kind != models.PendingEnter {
		t.Fatalf("expected a recovered pending entry, got %+v", status.Pending)
	}
	if env.timer.armed() == 0 {
		t.Error("expected the auto-resolve timer re-armed")
	}
	if len(env.notifier.Active()) == 0 {
		t.Error("expected the entry prompt re-shown")
	}

	// The re-armed timer drives the same auto-resolution as the original.
	env.timer.fireNext(t)
	sess := env.openSession(t)
	if sess == nil || sess.FenceID != fence.ID {
		t.Fatalf("expected the recovered entry to auto-start a session, got %+v", sess)
	}
}

func TestRecoverPendingResolvesExpiredEnterRecord(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	savePendingRecord(t, env, models.PendingEnter, fence, time.Now().Add(-time.Minute))

	if err := env.engine.RecoverPending(context.Background()); err != nil {
		t.Fatalf("RecoverPending failed: %v", err)
	}

	sess := env.openSession(t)
	if sess == nil || sess.FenceID != fence.ID {
		t.Fatalf("expected the expired entry resolved into a session, got %+v", sess)
	}
	if rec, _ := env.store.LoadPending(testUser); rec != nil {
		t.Error("expected the expired record cleared")
	}
	if env.engine.Status().Pending != nil {
		t.Error("expected no live pending action after resolution")
	}
}

func TestRecoverPendingRearmsLivePauseRecord(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	startSession(t, env, fence)
	savePendingRecord(t, env, models.PendingPause, fence, time.Now().Add(10*time.Minute))

	if err := env.engine.RecoverPending(context.Background()); err != nil {
		t.Fatalf("RecoverPending failed: %v", err)
	}

	status := env.engine.Status()
	if status.Pause == nil || status.Pause.Alarm {
		t.Fatalf("expected a recovered pause without alarm, got %+v", status.Pause)
	}
	if env.timer.armed() == 0 {
		t.Error("expected the pause countdown timer re-armed")
	}

	// The recovered countdown still escalates to the alarm on expiry.
	env.timer.fireNext(t)
	status = env.engine.Status()
	if status.Pause == nil || !status.Pause.Alarm {
		t.Errorf("expected the recovered pause to escalate to alarm, got %+v", status.Pause)
	}
}

func TestRecoverPendingRearmsLiveAlarmRecord(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	startSession(t, env, fence)
	savePendingRecord(t, env, models.PendingAlarm, fence, time.Now().Add(time.Minute))
	env.positions.Set(outsidePosition())

	if err := env.engine.RecoverPending(context.Background()); err != nil {
		t.Fatalf("RecoverPending failed: %v", err)
	}

	status := env.engine.Status()
	if status.Pause == nil || !status.Pause.Alarm {
		t.Fatalf("expected a recovered alarm, got %+v", status.Pause)
	}
	if len(env.notifier.Active()) == 0 {
		t.Error("expected the alarm prompt re-shown")
	}

	// Alarm expiry with the device outside closes the session.
	env.timer.fireNext(t)
	if env.openSession(t) != nil {
		t.Error("expected the session closed when the recovered alarm expired outside")
	}
}

func TestRecoverPendingTightensHeartbeatInterval(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	startSession(t, env, fence)
	savePendingRecord(t, env, models.PendingExit, fence, time.Now().Add(3*time.Minute))

	if err := env.engine.RecoverPending(context.Background()); err != nil {
		t.Fatalf("RecoverPending failed: %v", err)
	}

	if got := env.engine.Status().HeartbeatInterval; got != IntervalPendingExit {
		t.Errorf("expected the pending-exit interval after recovery, got %v", got)
	}
}
