package engine

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
	"github.com/BTreeMap/GeoShift/internal/notify"
	"github.com/BTreeMap/GeoShift/internal/position"
	"github.com/BTreeMap/GeoShift/internal/store"
)

const testUser = "user-1"

// fakeTimer records scheduled functions and fires them on demand so tests
// control time deterministically.
type fakeTimer struct {
	mu      sync.Mutex
	nextID  int
	entries map[string]fakeTimerEntry
	order   []string
}

type fakeTimerEntry struct {
	delay time.Duration
	fn    func()
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{entries: make(map[string]fakeTimerEntry)}
}

func (t *fakeTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := "fake_" + strconv.Itoa(t.nextID)
	t.entries[id] = fakeTimerEntry{delay: delay, fn: fn}
	t.order = append(t.order, id)
	return id, nil
}

func (t *fakeTimer) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
	return nil
}

func (t *fakeTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]fakeTimerEntry)
}

func (t *fakeTimer) ListActive() []models.TimerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]models.TimerInfo, 0, len(t.entries))
	for id := range t.entries {
		result = append(result, models.TimerInfo{ID: id})
	}
	return result
}

// fireNext runs the oldest still-armed scheduled function.
func (t *fakeTimer) fireNext(tb testing.TB) {
	tb.Helper()
	t.mu.Lock()
	var fn func()
	for i, id := range t.order {
		if entry, ok := t.entries[id]; ok {
			fn = entry.fn
			delete(t.entries, id)
			t.order = t.order[i+1:]
			break
		}
	}
	t.mu.Unlock()
	if fn == nil {
		tb.Fatal("no armed timer to fire")
	}
	fn()
}

func (t *fakeTimer) armed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// fakeRegistrar records heartbeat task registrations.
type fakeRegistrar struct {
	mu         sync.Mutex
	registered map[string]time.Duration
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{registered: make(map[string]time.Duration)}
}

func (r *fakeRegistrar) Register(name string, interval time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[name] = interval
	return nil
}

func (r *fakeRegistrar) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, name)
	return nil
}

func (r *fakeRegistrar) interval(name string) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.registered[name]
	return d, ok
}

// testEnv bundles an engine with its controllable collaborators.
type testEnv struct {
	engine    *Engine
	store     *store.InMemoryStore
	timer     *fakeTimer
	notifier  *notify.LocalService
	positions *position.FakeSource
	registrar *fakeRegistrar
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     store.NewInMemoryStore(),
		timer:     newFakeTimer(),
		notifier:  notify.NewLocalService(),
		positions: position.NewFakeSource(),
		registrar: newFakeRegistrar(),
	}
	allOpts := append([]Option{WithUserID(testUser)}, opts...)
	env.engine = New(env.store, env.timer, env.notifier, env.positions, env.registrar, nil, allOpts...)
	return env
}

// ready configures the fence set and marks the engine ready. The debounced
// drain timer is fired immediately so later tests see an empty queue.
func (env *testEnv) ready(t *testing.T, fences ...models.Fence) {
	t.Helper()
	if len(fences) > 0 {
		if err := env.engine.ReconfigureFences(context.Background(), fences); err != nil {
			t.Fatalf("ReconfigureFences failed: %v", err)
		}
		env.timer.fireNext(t)
	}
	env.engine.MarkReady(context.Background())
}

// resetDedup clears the dedup table so a repeated transition is treated as a
// new physical event.
func (env *testEnv) resetDedup() {
	env.engine.mu.Lock()
	defer env.engine.mu.Unlock()
	env.engine.dedup.lastSeen = make(map[dedupKey]time.Time)
}

// transition delivers a raw transition observed now.
func (env *testEnv) transition(t *testing.T, fenceID string, kind models.TransitionKind) {
	t.Helper()
	raw := models.RawTransition{FenceID: fenceID, Kind: kind, ObservedAt: time.Now()}
	if err := env.engine.OnGeofenceTransition(context.Background(), raw); err != nil {
		t.Fatalf("OnGeofenceTransition failed: %v", err)
	}
}

// drainEvents consumes all buffered engine events.
func (env *testEnv) drainEvents() []models.EngineEvent {
	var events []models.EngineEvent
	for {
		select {
		case ev := <-env.engine.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func (env *testEnv) openSession(t *testing.T) *models.Session {
	t.Helper()
	sess, err := env.store.GetOpenSession(testUser)
	if err != nil {
		t.Fatalf("GetOpenSession failed: %v", err)
	}
	return sess
}

func testFence(id, name string) models.Fence {
	return models.Fence{ID: id, Name: name, Latitude: 43.66, Longitude: -79.39, RadiusMeters: 100}
}

// insidePosition returns a position at the fence center.
func insidePosition(f models.Fence) models.Position {
	return models.Position{Latitude: f.Latitude, Longitude: f.Longitude, AccuracyMeters: 10, ObservedAt: time.Now()}
}

// outsidePosition returns a position far outside any test fence.
func outsidePosition() models.Position {
	return models.Position{Latitude: 44.5, Longitude: -80.5, AccuracyMeters: 10, ObservedAt: time.Now()}
}

func TestStatusReflectsReadiness(t *testing.T) {
	env := newTestEnv(t)

	status := env.engine.Status()
	if status.MonitoringActive {
		t.Error("expected monitoring inactive before MarkReady")
	}
	if status.HeartbeatInterval != IntervalNormal {
		t.Errorf("expected normal interval, got %v", status.HeartbeatInterval)
	}

	env.ready(t, testFence("office", "Office"))
	status = env.engine.Status()
	if !status.MonitoringActive {
		t.Error("expected monitoring active after MarkReady")
	}
	if status.Pending != nil || status.Pause != nil {
		t.Error("expected no pending action or pause in fresh engine")
	}
}

func TestMarkReadyRegistersHeartbeatTask(t *testing.T) {
	env := newTestEnv(t)
	env.ready(t, testFence("office", "Office"))

	interval, ok := env.registrar.interval(HeartbeatTaskName)
	if !ok {
		t.Fatal("expected heartbeat task registered after MarkReady")
	}
	if interval != IntervalNormal {
		t.Errorf("expected %v registration, got %v", IntervalNormal, interval)
	}
}

func TestIntervalTightensWhilePendingAndRecovers(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)

	env.transition(t, fence.ID, models.TransitionEnter)
	status := env.engine.Status()
	if status.HeartbeatInterval != IntervalPendingEnter {
		t.Errorf("expected pending-enter interval, got %v", status.HeartbeatInterval)
	}
	if got, _ := env.registrar.interval(HeartbeatTaskName); got != IntervalPendingEnter {
		t.Errorf("expected re-registered interval %v, got %v", IntervalPendingEnter, got)
	}

	// Entry timeout resolves the pending action; the interval relaxes.
	env.timer.fireNext(t)
	status = env.engine.Status()
	if status.HeartbeatInterval != IntervalNormal {
		t.Errorf("expected normal interval after resolution, got %v", status.HeartbeatInterval)
	}
}

func TestStopCancelsTimersAndPrompts(t *testing.T) {
	fence := testFence("office", "Office")
	env := newTestEnv(t)
	env.ready(t, fence)

	env.transition(t, fence.ID, models.TransitionEnter)
	if env.timer.armed() == 0 {
		t.Fatal("expected an armed entry timer")
	}

	env.engine.Stop()
	if env.timer.armed() != 0 {
		t.Errorf("expected no armed timers after Stop, got %d", env.timer.armed())
	}
	if len(env.notifier.Active()) != 0 {
		t.Errorf("expected no active prompts after Stop, got %d", len(env.notifier.Active()))
	}
	if _, ok := env.registrar.interval(HeartbeatTaskName); ok {
		t.Error("expected heartbeat task unregistered after Stop")
	}

	// The persisted record survives Stop so a relaunch can resolve it.
	rec, err := env.store.LoadPending(testUser)
	if err != nil {
		t.Fatalf("LoadPending failed: %v", err)
	}
	if rec == nil {
		t.Error("expected persisted pending record to survive Stop")
	}
}
