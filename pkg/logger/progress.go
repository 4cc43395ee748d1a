package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker tracks a fixed sequence of named steps within one operation
type ProgressTracker struct {
	logger    Logger
	operation string
	steps     []string
	completed int
	current   string
	stepStart time.Time
	startTime time.Time
	callbacks []func(ProgressStats)
	mutex     sync.Mutex
}

// ProgressStats is a snapshot of a tracker's state
type ProgressStats struct {
	Operation       string        `json:"operation"`
	CurrentStep     string        `json:"current_step"`
	CompletedSteps  int           `json:"completed_steps"`
	TotalSteps      int           `json:"total_steps"`
	PercentComplete float64       `json:"percent_complete"`
	Elapsed         time.Duration `json:"elapsed"`
}

// String returns a human-readable representation of the progress
func (ps ProgressStats) String() string {
	return fmt.Sprintf("[%d/%d] %s (%.1f%% complete)",
		ps.CompletedSteps, ps.TotalSteps, ps.CurrentStep, ps.PercentComplete)
}

// NewProgressTracker creates a tracker for the given steps
func NewProgressTracker(operation string, steps []string, log Logger) *ProgressTracker {
	if log == nil {
		log = GetGlobalLogger()
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:    log.WithComponent("progress"),
		operation: operation,
		steps:     steps,
		startTime: now,
		stepStart: now,
	}

	tracker.logger.WithFields(Fields{
		"operation": operation,
		"steps":     len(steps),
	}).Debug("Starting operation")

	return tracker
}

// OnProgress registers a callback invoked whenever a step starts or finishes
func (p *ProgressTracker) OnProgress(fn func(ProgressStats)) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.callbacks = append(p.callbacks, fn)
}

// Start marks the beginning of a step
func (p *ProgressTracker) Start(step string) {
	p.mutex.Lock()
	p.current = step
	p.stepStart = time.Now()
	stats := p.statsLocked()
	callbacks := p.callbacks
	p.mutex.Unlock()

	p.logger.WithFields(Fields{
		"operation": p.operation,
		"step":      step,
	}).Debug("Step started")

	for _, fn := range callbacks {
		fn(stats)
	}
}

// Done marks the current step as finished
func (p *ProgressTracker) Done() {
	p.mutex.Lock()
	p.completed++
	duration := time.Since(p.stepStart)
	step := p.current
	stats := p.statsLocked()
	callbacks := p.callbacks
	p.mutex.Unlock()

	p.logger.WithFields(Fields{
		"operation": p.operation,
		"step":      step,
		"duration":  duration.String(),
	}).Debug("Step completed")

	for _, fn := range callbacks {
		fn(stats)
	}
}

// Fail logs the current step as failed
func (p *ProgressTracker) Fail(err error) {
	p.mutex.Lock()
	step := p.current
	elapsed := time.Since(p.startTime)
	p.mutex.Unlock()

	p.logger.WithError(err).WithFields(Fields{
		"operation": p.operation,
		"step":      step,
		"elapsed":   elapsed.String(),
	}).Error("Operation failed")
}

// Complete logs the end of the operation
func (p *ProgressTracker) Complete() {
	stats := p.Stats()
	p.logger.WithFields(Fields{
		"operation": p.operation,
		"steps":     stats.CompletedSteps,
		"duration":  stats.Elapsed.String(),
	}).Info("Operation completed")
}

// Stats returns current progress statistics
func (p *ProgressTracker) Stats() ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.statsLocked()
}

func (p *ProgressTracker) statsLocked() ProgressStats {
	var percentage float64
	if len(p.steps) > 0 {
		percentage = float64(p.completed) / float64(len(p.steps)) * 100
	}

	return ProgressStats{
		Operation:       p.operation,
		CurrentStep:     p.current,
		CompletedSteps:  p.completed,
		TotalSteps:      len(p.steps),
		PercentComplete: percentage,
		Elapsed:         time.Since(p.startTime),
	}
}
