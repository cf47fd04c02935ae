package engine

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// savePendingRecord plants a persisted record as if a killed process left it
// behind: the engine has no warm in-memory state for it.
func savePendingRecord(t *testing.T, env *testEnv, kind models.PendingKind, fence models.Fence, deadline time.Time) {
	t.Helper()
	err := env.store.SavePending(models.PendingRecord{
		UserID:    testUser,
		Kind:      kind,
		FenceID:   fence.ID,
		FenceName: fence.Name,
		StartedAt: deadline.Add(-5 * time.Minute),
		Deadline:  deadline,
	})
	if err != nil {
		t.Fatalf("SavePending failed: %v", err)
	}
}

func tick(env *testEnv) {
	env.engine.OnHeartbeatTick(context.Background())
}

func TestHeartbeatResolvesExpiredEnterRecord(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	savePendingRecord(t, env, models.PendingEnter, fence, time.Now().Add(-time.Minute))

	tick(env)

	sess := env.openSession(t)
	if sess == nil || sess.FenceID != fence.ID {
		t.Fatalf("expected the expired entry resolved into a session, got %+v", sess)
	}
	if rec, _ := env.store.LoadPending(testUser); rec != nil {
		t.Error("expected the expired record cleared")
	}
}

func TestHeartbeatExpiredExitInsideKeepsSessionOpen(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	startSession(t, env, fence)
	savePendingRecord(t, env, models.PendingExit, fence, time.Now().Add(-time.Minute))
	env.positions.Set(insidePosition(fence))

	tick(env)

	if env.openSession(t) == nil {
		t.Error("expected the session kept open when the device is still inside")
	}
	if rec, _ := env.store.LoadPending(testUser); rec != nil {
		t.Error("expected the expired record cleared")
	}
}

func TestHeartbeatExpiredExitOutsideClosesSession(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	startSession(t, env, fence)
	savePendingRecord(t, env, models.PendingExit, fence, time.Now().Add(-time.Minute))
	env.positions.Set(outsidePosition())

	tick(env)

	if env.openSession(t) != nil {
		t.Error("expected the session closed for an expired exit with the device outside")
	}
}

func TestHeartbeatExpiredPauseOutsideClosesSession(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	startSession(t, env, fence)
	savePendingRecord(t, env, models.PendingPause, fence, time.Now().Add(-time.Minute))
	env.positions.Set(outsidePosition())

	tick(env)

	if env.openSession(t) != nil {
		t.Error("expected the session closed for an expired pause with the device outside")
	}
}

func TestHeartbeatUnexpiredRecordLeftAlone(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	savePendingRecord(t, env, models.PendingEnter, fence, time.Now().Add(10*time.Minute))

	tick(env)

	if env.openSession(t) != nil {
		t.Error("expected no session for an unexpired record")
	}
	if rec, _ := env.store.LoadPending(testUser); rec == nil {
		t.Error("expected the unexpired record untouched")
	}
}

func TestHeartbeatReconcilesMissedEntry(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	env.positions.Set(insidePosition(fence))

	tick(env)

	sess := env.openSession(t)
	if sess == nil {
		t.Fatal("expected a reconciled session for a missed entry")
	}
	if sess.Kind != models.SessionKindReconciled {
		t.Errorf("expected a reconciled session kind, got %q", sess.Kind)
	}
	if sess.FenceID != fence.ID {
		t.Errorf("expected the session tied to the containing fence, got %q", sess.FenceID)
	}
}

func TestHeartbeatRespectsSkipOnMissedEntry(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	env.positions.Set(insidePosition(fence))
	if err := env.store.AddSkip(testUser, fence.ID, models.DayKey(time.Now())); err != nil {
		t.Fatalf("AddSkip failed: %v", err)
	}

	tick(env)

	if env.openSession(t) != nil {
		t.Error("expected no reconciled session for a skipped fence")
	}
}

func TestHeartbeatReconcilesMissedExit(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	startSession(t, env, fence)
	env.positions.Set(outsidePosition())

	tick(env)

	if env.openSession(t) != nil {
		t.Error("expected the open session closed for a missed exit")
	}
}

func TestHeartbeatSkipsReconciliationWhilePending(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	env.positions.Set(insidePosition(fence))

	env.transition(t, fence.ID, models.TransitionEnter)
	tick(env)

	if env.openSession(t) != nil {
		t.Error("expected no reconciled session while the entry prompt is pending")
	}
	if env.engine.Status().Pending == nil {
		t.Error("expected the pending entry untouched by the heartbeat")
	}
}

func TestHeartbeatLogsSamplePerFence(t *testing.T) {
	fenceA := testFence("a", "Fence A")
	fenceB := testFence("b", "Fence B")
	env := newTestEnv(t)
	env.ready(t, fenceA, fenceB)
	env.positions.Set(outsidePosition())

	tick(env)

	for _, fence := range []models.Fence{fenceA, fenceB} {
		samples, err := env.store.RecentSamples(fence.ID, time.Now().Add(-time.Minute))
		if err != nil {
			t.Fatalf("RecentSamples failed: %v", err)
		}
		if len(samples) != 1 {
			t.Fatalf("expected one heartbeat sample for %s, got %d", fence.ID, len(samples))
		}
		if samples[0].Source != models.SampleSourceHeartbeat {
			t.Errorf("expected heartbeat source, got %q", samples[0].Source)
		}
		if samples[0].IsInside {
			t.Error("expected an outside evaluation")
		}
	}
}

func TestHeartbeatWarnsOnPingPong(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	env.positions.SetUnavailable()

	base := time.Now().Add(-5 * time.Minute)
	kinds := []models.TransitionKind{
		models.TransitionEnter, models.TransitionExit, models.TransitionEnter,
		models.TransitionExit, models.TransitionEnter,
	}
	for i, kind := range kinds {
		err := env.store.AddSample(models.PingPongSample{
			FenceID:   fence.ID,
			Kind:      kind,
			Timestamp: base.Add(time.Duration(i) * 30 * time.Second),
			Source:    models.SampleSourceGeofence,
		})
		if err != nil {
			t.Fatalf("AddSample failed: %v", err)
		}
	}
	env.drainEvents()

	tick(env)

	found := false
	for _, ev := range env.drainEvents() {
		if ev.Kind == models.EventPingPong && ev.FenceID == fence.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected a ping-pong event emitted")
	}

	// Detection only: the open-session state is untouched.
	if env.openSession(t) != nil {
		t.Error("expected no session change from ping-pong detection")
	}
}

func TestHeartbeatSurvivesMissingPosition(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)
	env.positions.SetUnavailable()

	tick(env)

	if env.openSession(t) != nil {
		t.Error("expected no reconciliation without a position")
	}
	if env.engine.Status().HeartbeatInterval != IntervalNormal {
		t.Errorf("expected normal interval, got %v", env.engine.Status().HeartbeatInterval)
	}
}
