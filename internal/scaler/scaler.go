package scaler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kelvas/openscale/internal/provision"
)

// Action is the control decision for one monitoring cycle.
type Action string

const (
	ActionScaleUp   Action = "scale_up"
	ActionScaleDown Action = "scale_down"
	ActionNone      Action = "no_action"
)

// minSamples is the minimum history length before any decision is made.
const minSamples = 5

// MinConfidence is the gate below which ExecuteScaling refuses to apply a
// decision.
const MinConfidence = 0.7

// ErrLowConfidence is returned by ExecuteScaling when the confidence score
// does not clear MinConfidence. It is a deliberate skip, not a fault.
var ErrLowConfidence = errors.New("confidence below execution threshold")

// Config is the static scaling policy. Immutable after construction.
type Config struct {
	MinInstances       int
	MaxInstances       int
	ScaleUpThreshold   float64 // percent
	ScaleDownThreshold float64 // percent
	CooldownPeriod     time.Duration
	MetricsWindow      time.Duration
	ScaleUpFactor      float64
	ScaleDownFactor    float64
}

// DefaultConfig returns the stock policy.
func DefaultConfig() Config {
	return Config{
		MinInstances:       2,
		MaxInstances:       10,
		ScaleUpThreshold:   70.0,
		ScaleDownThreshold: 30.0,
		CooldownPeriod:     300 * time.Second,
		MetricsWindow:      60 * time.Second,
		ScaleUpFactor:      1.5,
		ScaleDownFactor:    0.7,
	}
}

// Status is a read-only snapshot of the scaler state.
type Status struct {
	CurrentInstances int       `json:"current_instances"`
	MinInstances     int       `json:"min_instances"`
	MaxInstances     int       `json:"max_instances"`
	MetricsCount     int       `json:"metrics_count"`
	LastScalingTime  time.Time `json:"last_scaling_time"`
	// SinceLastScalingSeconds is elapsed wall-clock time since the last
	// applied scaling action.
	SinceLastScalingSeconds float64 `json:"since_last_scaling_seconds"`
}

// AutoScaler owns the metrics history and the instance counter. One mutex
// guards both so every decision sees a consistent snapshot of history and
// cooldown timer.
//
// Invariant: MinInstances <= current <= MaxInstances after every
// successful scaling action.
type AutoScaler struct {
	cfg  Config
	prov provision.Provisioner

	mu          sync.Mutex
	current     int
	history     []SystemMetrics
	lastScaling time.Time // zero until the first applied action

	now func() time.Time
}

// New creates an AutoScaler starting at cfg.MinInstances. Scaling actions
// are applied through prov before the counter is updated.
func New(cfg Config, prov provision.Provisioner) *AutoScaler {
	return &AutoScaler{
		cfg:     cfg,
		prov:    prov,
		current: cfg.MinInstances,
		now:     time.Now,
	}
}

// AddMetrics appends a sample and drops every entry older than the
// configured window relative to the time of the call.
func (s *AutoScaler) AddMetrics(m SystemMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, m)

	cutoff := s.now().Add(-s.cfg.MetricsWindow)
	kept := s.history[:0]
	for _, h := range s.history {
		if !h.Timestamp.Before(cutoff) {
			kept = append(kept, h)
		}
	}
	s.history = kept
}

// ShouldScale evaluates the current window and returns the decision with
// its confidence score. Three phases: insufficient data, cooldown,
// evaluate. Scale-up is checked strictly before scale-down.
func (s *AutoScaler) ShouldScale() (Action, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) < minSamples {
		return ActionNone, 0.0
	}
	if s.now().Sub(s.lastScaling) < s.cfg.CooldownPeriod {
		return ActionNone, 0.0
	}

	avg := s.averagesLocked()

	if s.shouldScaleUp(avg) {
		return ActionScaleUp, scaleUpConfidence(avg)
	}
	if s.shouldScaleDown(avg) {
		return ActionScaleDown, scaleDownConfidence(avg)
	}
	return ActionNone, 0.0
}

// shouldScaleUp: any critical metric over threshold, with headroom left.
func (s *AutoScaler) shouldScaleUp(avg WindowAverages) bool {
	return (avg.CPUUsage > s.cfg.ScaleUpThreshold ||
		avg.MemoryUsage > s.cfg.ScaleUpThreshold ||
		avg.ResponseTime > 1000) &&
		s.current < s.cfg.MaxInstances
}

// shouldScaleDown: all critical metrics under threshold, with room below.
func (s *AutoScaler) shouldScaleDown(avg WindowAverages) bool {
	return avg.CPUUsage < s.cfg.ScaleDownThreshold &&
		avg.MemoryUsage < s.cfg.ScaleDownThreshold &&
		avg.ResponseTime < 200 &&
		s.current > s.cfg.MinInstances
}

// scaleUpConfidence weights how far the hot metrics have climbed:
// 0.4*cpu + 0.4*memory + 0.2*response, each factor normalized and capped.
func scaleUpConfidence(avg WindowAverages) float64 {
	cpu := min1(avg.CPUUsage / 100)
	mem := min1(avg.MemoryUsage / 100)
	rt := min1(avg.ResponseTime / 2000)
	return min1(0.4*cpu + 0.4*mem + 0.2*rt)
}

// scaleDownConfidence weights how idle the system is, same 0.4/0.4/0.2 split.
func scaleDownConfidence(avg WindowAverages) float64 {
	cpu := 1.0 - avg.CPUUsage/100
	mem := 1.0 - avg.MemoryUsage/100
	rt := 1.0 - avg.ResponseTime/1000
	return min1(0.4*cpu + 0.4*mem + 0.2*rt)
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

// ExecuteScaling applies a decision. Below MinConfidence it returns
// ErrLowConfidence and changes nothing. A provisioner fault is returned
// wrapped, also with no state change; the counter update and the cooldown
// timestamp only commit after the provisioner succeeds.
func (s *AutoScaler) ExecuteScaling(ctx context.Context, action Action, confidence float64) error {
	if confidence < MinConfidence {
		log.Printf("[scaler] low confidence (%.2f) for %s, skipping", confidence, action)
		return fmt.Errorf("%.2f for %s: %w", confidence, action, ErrLowConfidence)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var target int
	switch action {
	case ActionScaleUp:
		target = int(float64(s.current) * s.cfg.ScaleUpFactor)
		if target > s.cfg.MaxInstances {
			target = s.cfg.MaxInstances
		}
	case ActionScaleDown:
		target = int(float64(s.current) * s.cfg.ScaleDownFactor)
		if target < s.cfg.MinInstances {
			target = s.cfg.MinInstances
		}
	default:
		return nil
	}

	if delta := target - s.current; delta > 0 {
		if err := s.prov.Provision(ctx, delta); err != nil {
			return fmt.Errorf("provisioning %d instances: %w", delta, err)
		}
	} else if delta < 0 {
		if err := s.prov.Deprovision(ctx, -delta); err != nil {
			return fmt.Errorf("deprovisioning %d instances: %w", -delta, err)
		}
	}

	s.current = target
	s.lastScaling = s.now()
	log.Printf("[scaler] %s to %d instances (confidence %.2f)", action, s.current, confidence)
	return nil
}

// Status returns a consistent snapshot of the scaler state.
func (s *AutoScaler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		CurrentInstances:        s.current,
		MinInstances:            s.cfg.MinInstances,
		MaxInstances:            s.cfg.MaxInstances,
		MetricsCount:            len(s.history),
		LastScalingTime:         s.lastScaling,
		SinceLastScalingSeconds: s.now().Sub(s.lastScaling).Seconds(),
	}
}

// CurrentInstances returns the instance counter.
func (s *AutoScaler) CurrentInstances() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Averages returns the per-field means over the current window and the
// number of samples they cover.
func (s *AutoScaler) Averages() (WindowAverages, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.averagesLocked(), len(s.history)
}

func (s *AutoScaler) averagesLocked() WindowAverages {
	if len(s.history) == 0 {
		return WindowAverages{}
	}
	var sum WindowAverages
	for _, m := range s.history {
		sum.CPUUsage += m.CPUUsage
		sum.MemoryUsage += m.MemoryUsage
		sum.DiskUsage += m.DiskUsage
		sum.NetworkIO += m.NetworkIO
		sum.ActiveConnections += float64(m.ActiveConnections)
		sum.ResponseTime += m.ResponseTime
	}
	n := float64(len(s.history))
	return WindowAverages{
		CPUUsage:          sum.CPUUsage / n,
		MemoryUsage:       sum.MemoryUsage / n,
		DiskUsage:         sum.DiskUsage / n,
		NetworkIO:         sum.NetworkIO / n,
		ActiveConnections: sum.ActiveConnections / n,
		ResponseTime:      sum.ResponseTime / n,
	}
}
