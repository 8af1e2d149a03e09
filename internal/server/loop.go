package server

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/kelvas/openscale/internal/scaler"
)

// core is the single AutoScaler instance behind the API and the loop.
var core *scaler.AutoScaler

// SetScaler stores the engine; call this before registering routes or
// starting the loop.
func SetScaler(s *scaler.AutoScaler) {
	core = s
}

// CycleResult summarizes one evaluate-and-apply cycle.
type CycleResult struct {
	Action     scaler.Action `json:"action"`
	Confidence float64       `json:"confidence"`
	Applied    bool          `json:"applied"`
	// Skipped holds the reason when a non-NoAction decision was not applied.
	Skipped   string `json:"skipped,omitempty"`
	Instances int    `json:"instances"`
}

// EvaluateOnce asks the engine for a decision and applies it when the
// confidence gate clears. A low-confidence skip is a normal outcome; a
// provisioner fault is logged and surfaced in Skipped.
func EvaluateOnce(ctx context.Context) CycleResult {
	action, confidence := core.ShouldScale()
	res := CycleResult{
		Action:     action,
		Confidence: confidence,
		Instances:  core.CurrentInstances(),
	}
	if action == scaler.ActionNone {
		return res
	}

	avg, _ := core.Averages()
	from := res.Instances

	err := core.ExecuteScaling(ctx, action, confidence)
	switch {
	case err == nil:
		res.Applied = true
		res.Instances = core.CurrentInstances()
		if DB != nil {
			if dbErr := RecordEvent(action, from, res.Instances, confidence, avg); dbErr != nil {
				log.Printf("[loop] recording scale event: %v", dbErr)
			}
		}
	case errors.Is(err, scaler.ErrLowConfidence):
		res.Skipped = "low confidence"
	default:
		res.Skipped = err.Error()
		log.Printf("[loop] scaling failed: %v", err)
	}
	return res
}

// RunLoop drives the monitoring cycle until ctx is cancelled. When col is
// non-nil the server collects its own samples (sim or host mode); in agent
// mode col is nil and the window is fed solely by the ingest endpoint.
func RunLoop(ctx context.Context, interval time.Duration, col scaler.Collector, source string) {
	hostname, _ := os.Hostname()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[loop] evaluating every %s (collector: %s)", interval, source)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[loop] stopped")
			return
		case <-ticker.C:
		}

		if col != nil {
			snap, err := col.Collect()
			if err != nil {
				log.Printf("[loop] collect error: %v", err)
			} else {
				core.AddMetrics(snap)
				if DB != nil {
					if err := SaveSample(snap, source, hostname); err != nil {
						log.Printf("[loop] saving sample: %v", err)
					}
				}
			}
		}

		res := EvaluateOnce(ctx)
		if res.Action != scaler.ActionNone {
			log.Printf("[loop] decision %s (confidence %.2f) applied=%v instances=%d",
				res.Action, res.Confidence, res.Applied, res.Instances)
		}
	}
}
