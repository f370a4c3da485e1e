// Package feigned implements the Feigned-Failure Driver (spec.md §4.6): a
// randomized fail/recover cycle used to exercise recovery paths without an
// actual crash. It is orthogonal to real failure — to peers, a feigning
// node must look exactly like a crashed-and-restarted process.
package feigned

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/distrolab/bully-node/internal/election"
	"github.com/distrolab/bully-node/internal/logger"
)

// Rejoiner mirrors detector.Rejoiner: re-HOWDYs and merges the response.
type Rejoiner interface {
	Rejoin() error
}

// Relistener restarts a listener, possibly on a new port, and wires the
// replacement into the node's serve loop.
type Relistener interface {
	Relisten() error
}

// Windows bounds the randomized fail/recover schedule. Zero-value fields
// fall back to the spec's rand(0,10000ms) fail / rand(1000,4000ms)
// recovery windows.
type Windows struct {
	FailAfterMin, FailAfterMax       time.Duration
	RecoverAfterMin, RecoverAfterMax time.Duration
}

func (w Windows) withDefaults() Windows {
	if w.FailAfterMax == 0 {
		w.FailAfterMax = 10 * time.Second
	}
	if w.RecoverAfterMin == 0 {
		w.RecoverAfterMin = 1 * time.Second
	}
	if w.RecoverAfterMax == 0 {
		w.RecoverAfterMax = 4 * time.Second
	}
	return w
}

// Driver owns the feigning flag couriers and the dispatcher consult, plus
// the scheduling loop that flips it.
type Driver struct {
	feigning atomic.Bool

	engine     *election.Engine
	rejoiner   Rejoiner
	relistener Relistener
	windows    Windows
}

// New creates a Driver with the spec-recommended fail/recover windows.
func New(engine *election.Engine, rejoiner Rejoiner, relistener Relistener) *Driver {
	return NewWithWindows(engine, rejoiner, relistener, Windows{})
}

// NewWithWindows creates a Driver with an explicit fail/recover schedule,
// mainly so tests can exercise a full cycle without waiting out the
// spec's default up-to-14-second window.
func NewWithWindows(engine *election.Engine, rejoiner Rejoiner, relistener Relistener, windows Windows) *Driver {
	return &Driver{
		engine:     engine,
		rejoiner:   rejoiner,
		relistener: relistener,
		windows:    windows.withDefaults(),
	}
}

// Feigning reports whether this node is currently simulating failure. It
// satisfies dispatcher.Feigner and courier's outbound inhibition check.
func (d *Driver) Feigning() bool {
	return d.feigning.Load()
}

// Run schedules fail/recover cycles until ctx is cancelled. It is meant to
// run in its own goroutine, started once at node startup.
func (d *Driver) Run(ctx context.Context) {
	for {
		if !d.sleep(ctx, d.randomDuration(d.windows.FailAfterMin, d.windows.FailAfterMax)) {
			return
		}
		d.fail()

		if !d.sleep(ctx, d.randomDuration(d.windows.RecoverAfterMin, d.windows.RecoverAfterMax)) {
			return
		}
		d.recover()
	}
}

func (d *Driver) sleep(ctx context.Context, dur time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(dur):
		return true
	}
}

func (d *Driver) fail() {
	logger.Get().Warnw("feigned: entering simulated failure")
	d.feigning.Store(true)
}

func (d *Driver) recover() {
	logger.Get().Warnw("feigned: recovering from simulated failure")
	d.feigning.Store(false)

	if d.relistener != nil {
		if err := d.relistener.Relisten(); err != nil {
			logger.Get().Errorw("feigned: relisten failed, staying unreachable rather than re-HOWDY with no listener", "err", err)
			d.feigning.Store(true)
			return
		}
	}
	if d.rejoiner != nil {
		if err := d.rejoiner.Rejoin(); err != nil {
			logger.Get().Errorw("feigned: rejoin failed", "err", err)
		}
	}
	d.engine.StartElection("recovered from feigned failure")
}

func (d *Driver) randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
