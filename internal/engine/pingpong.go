// Package engine provides the ping-pong oscillation detector.
package engine

import (
	"log/slog"
	"time"

	"github.com/BTreeMap/GeoShift/internal/geo"
	"github.com/BTreeMap/GeoShift/internal/models"
	"github.com/BTreeMap/GeoShift/internal/store"
)

// pingPongDetector flags rapid enter/exit alternation for a fence over the
// persisted sample log. Detection only: the heartbeat logs a warning and
// emits an event, it does not suppress exits.
type pingPongDetector struct {
	samples   store.SampleRepo
	window    time.Duration
	threshold int
}

func newPingPongDetector(samples store.SampleRepo, window time.Duration, threshold int) *pingPongDetector {
	return &pingPongDetector{samples: samples, window: window, threshold: threshold}
}

// Oscillations counts direction changes between consecutive samples for a
// fence within the rolling window.
func (d *pingPongDetector) Oscillations(fenceID string, now time.Time) (int, error) {
	samples, err := d.samples.RecentSamples(fenceID, now.Add(-d.window))
	if err != nil {
		return 0, err
	}
	alternations := 0
	for i := 1; i < len(samples); i++ {
		if samples[i].Kind != samples[i-1].Kind {
			alternations++
		}
	}
	return alternations, nil
}

// IsPingPonging reports whether the fence's recent samples alternate at or
// above the detector threshold. Sample log read failures are logged and
// reported as not-ping-ponging; audit detection must never block the tick.
func (d *pingPongDetector) IsPingPonging(fenceID string, now time.Time) (bool, int) {
	alternations, err := d.Oscillations(fenceID, now)
	if err != nil {
		slog.Error("PingPongDetector failed to read samples", "error", err, "fenceID", fenceID)
		return false, 0
	}
	return alternations >= d.threshold, alternations
}

// sampleFromEvaluation builds an audit sample from a containment evaluation.
func sampleFromEvaluation(fenceID string, kind models.TransitionKind, source models.SampleSource, ev geo.Evaluation, accuracy float64, at time.Time) models.PingPongSample {
	return models.PingPongSample{
		FenceID:         fenceID,
		Kind:            kind,
		Timestamp:       at,
		DistanceMeters:  ev.DistanceMeters,
		EffectiveRadius: ev.EffectiveRadius,
		MarginMeters:    ev.MarginMeters,
		IsInside:        ev.IsInside,
		Source:          source,
		GPSAccuracy:     accuracy,
	}
}
