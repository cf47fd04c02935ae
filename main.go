package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/BTreeMap/GeoShift/internal/engine"
	"github.com/BTreeMap/GeoShift/internal/models"
	"github.com/BTreeMap/GeoShift/internal/notify"
	"github.com/BTreeMap/GeoShift/internal/position"
	"github.com/BTreeMap/GeoShift/internal/scheduler"
	"github.com/BTreeMap/GeoShift/internal/store"
)

// Minimal in-memory demonstration. The real daemon lives in cmd/GeoShift.
func main() {
	ctx := context.Background()

	tasks := scheduler.NewTaskRegistry()
	defer tasks.Stop()

	eng := engine.New(store.NewInMemoryStore(), engine.NewSimpleTimer(),
		notify.NewLocalService(), position.NewFakeSource(), tasks, nil)
	defer eng.Stop()
	tasks.Bind(engine.HeartbeatTaskName, func() { eng.OnHeartbeatTick(context.Background()) })

	fence := models.Fence{ID: "office", Name: "Office", Latitude: 43.66, Longitude: -79.39, RadiusMeters: 100}
	if err := eng.ReconfigureFences(ctx, []models.Fence{fence}); err != nil {
		log.Fatalf("Failed to configure fence: %v", err)
	}
	eng.MarkReady(ctx)

	raw := models.RawTransition{FenceID: fence.ID, Kind: models.TransitionEnter, ObservedAt: time.Now()}
	if err := eng.OnGeofenceTransition(ctx, raw); err != nil {
		log.Fatalf("Failed to deliver transition: %v", err)
	}

	// The fence set settles after the drain debounce; the entry prompt then
	// auto-resolves on its own timer in a long-running process.
	time.Sleep(time.Second)
	status := eng.Status()
	fmt.Printf("monitoring=%v interval=%v pending=%+v\n", status.MonitoringActive, status.HeartbeatInterval, status.Pending)
}
