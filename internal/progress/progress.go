// Package progress emits staged, timed progress updates for long-running
// analyses.
package progress

import (
	"context"
	"time"
)

// Steps is the number of increments a stage is divided into
const Steps = 10

// Func receives progress updates. percent is in [0,100].
type Func func(stage string, percent float64)

// Stage animates progress from Start to End over Duration
type Stage struct {
	Name     string
	Start    float64
	End      float64
	Duration time.Duration
}

// Reporter forwards updates to a callback, never letting the reported
// percentage go backwards. A Reporter belongs to a single analysis and is not
// safe for concurrent use.
type Reporter struct {
	fn    Func
	sleep func(context.Context, time.Duration) error
	last  float64
}

// New creates a reporter for fn. fn may be nil.
func New(fn Func) *Reporter {
	return &Reporter{fn: fn, sleep: sleepContext, last: -1}
}

// Emit sends a single update
func (r *Reporter) Emit(stage string, percent float64) {
	if percent < r.last {
		percent = r.last
	}
	r.last = percent
	if r.fn != nil {
		r.fn(stage, percent)
	}
}

// Run emits Steps+1 evenly spaced updates from s.Start to s.End, pausing
// s.Duration/Steps after each. It stops early with ctx.Err() when ctx is done.
func (r *Reporter) Run(ctx context.Context, s Stage) error {
	increment := (s.End - s.Start) / Steps
	pause := s.Duration / Steps

	for i := 0; i <= Steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.Emit(s.Name, s.Start+increment*float64(i))
		if err := r.sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
