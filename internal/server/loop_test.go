package server

import (
	"context"
	"testing"
	"time"

	"github.com/kelvas/openscale/internal/scaler"
)

func feedWindow(t *testing.T, m scaler.SystemMetrics, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		m.Timestamp = time.Now()
		core.AddMetrics(m)
	}
}

func TestEvaluateOnceNoAction(t *testing.T) {
	setupAPI(t)

	res := EvaluateOnce(context.Background())
	if res.Action != scaler.ActionNone {
		t.Errorf("action = %s, want %s with an empty window", res.Action, scaler.ActionNone)
	}
	if res.Applied {
		t.Error("Applied = true, want false")
	}
	if res.Instances != 2 {
		t.Errorf("instances = %d, want 2", res.Instances)
	}
}

func TestEvaluateOnceLowConfidenceSkip(t *testing.T) {
	setupAPI(t)

	// Over the CPU threshold, but confidence 0.4*0.75+0.4*0.30+0.2*0.15 = 0.45.
	feedWindow(t, scaler.SystemMetrics{CPUUsage: 75, MemoryUsage: 30, ResponseTime: 300}, 6)

	res := EvaluateOnce(context.Background())
	if res.Action != scaler.ActionScaleUp {
		t.Fatalf("action = %s, want %s", res.Action, scaler.ActionScaleUp)
	}
	if res.Applied {
		t.Error("Applied = true, want false below the confidence gate")
	}
	if res.Skipped != "low confidence" {
		t.Errorf("Skipped = %q, want \"low confidence\"", res.Skipped)
	}
	if got := core.CurrentInstances(); got != 2 {
		t.Errorf("CurrentInstances = %d, want unchanged 2", got)
	}

	events, err := RecentEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("recorded events = %d, want 0 for a skipped action", len(events))
	}
}

func TestEvaluateOnceAppliesAndRecords(t *testing.T) {
	setupAPI(t)

	// Confidence 0.4*0.95+0.4*0.95+0.2*0.80 = 0.92.
	feedWindow(t, scaler.SystemMetrics{CPUUsage: 95, MemoryUsage: 95, ResponseTime: 1600}, 6)

	res := EvaluateOnce(context.Background())
	if res.Action != scaler.ActionScaleUp {
		t.Fatalf("action = %s, want %s", res.Action, scaler.ActionScaleUp)
	}
	if !res.Applied {
		t.Fatalf("Applied = false, want true (skipped: %s)", res.Skipped)
	}
	if res.Instances != 3 {
		t.Errorf("instances = %d, want 3 (2 * 1.5)", res.Instances)
	}

	events, err := RecentEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("recorded events = %d, want 1", len(events))
	}
	e := events[0]
	if e.Action != string(scaler.ActionScaleUp) {
		t.Errorf("event action = %s, want %s", e.Action, scaler.ActionScaleUp)
	}
	if e.FromInstances != 2 || e.ToInstances != 3 {
		t.Errorf("event transition = %d→%d, want 2→3", e.FromInstances, e.ToInstances)
	}
	if e.AvgCPU != 95 {
		t.Errorf("event AvgCPU = %v, want 95", e.AvgCPU)
	}

	// The cooldown now blocks the next cycle.
	res = EvaluateOnce(context.Background())
	if res.Action != scaler.ActionNone {
		t.Errorf("action = %s immediately after scaling, want %s", res.Action, scaler.ActionNone)
	}
}
