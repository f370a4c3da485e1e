// Package detector implements the Failure Detector loop: periodic PROBEs
// of the current leader, re-HOWDY and a fresh election on failure
// (spec.md §4.6).
package detector

import (
	"context"
	"math/rand"
	"time"

	"github.com/distrolab/bully-node/internal/courier"
	"github.com/distrolab/bully-node/internal/election"
	"github.com/distrolab/bully-node/internal/identity"
	"github.com/distrolab/bully-node/internal/logger"
)

// Rejoiner re-runs the HOWDY exchange and merges whatever membership comes
// back, used to refresh this node's view of the group before a PROBE
// failure forces a fresh election.
type Rejoiner interface {
	Rejoin() error
}

// Detector owns the probe-sleep-probe loop. It never probes while this
// node believes itself to be the leader — there is nothing to probe.
type Detector struct {
	table    *identity.Table
	pool     *courier.Pool
	engine   *election.Engine
	rejoiner Rejoiner

	minInterval time.Duration
	maxInterval time.Duration
}

// New creates a Detector. minInterval/maxInterval bound the randomized
// sleep between probes, per spec.md's rand(500ms, 3000ms).
func New(table *identity.Table, pool *courier.Pool, engine *election.Engine, rejoiner Rejoiner, minInterval, maxInterval time.Duration) *Detector {
	return &Detector{
		table:       table,
		pool:        pool,
		engine:      engine,
		rejoiner:    rejoiner,
		minInterval: minInterval,
		maxInterval: maxInterval,
	}
}

// Run loops until ctx is cancelled. It is meant to be started once in its
// own goroutine by the node orchestrator.
func (d *Detector) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.randomInterval()):
		}

		if d.engine.IsLeader() {
			continue
		}
		leader, ok := d.engine.CurrentLeader()
		if !ok {
			continue
		}
		addr, ok := d.table.AddressOf(leader)
		if !ok {
			continue
		}

		d.probe(ctx, addr)
	}
}

func (d *Detector) probe(ctx context.Context, leaderAddr identity.Address) {
	log := logger.Get()
	result := make(chan courier.Exchange, 1)
	d.pool.SendProbe(leaderAddr, func(exch courier.Exchange) {
		select {
		case result <- exch:
		default:
		}
	})

	select {
	case <-ctx.Done():
		return
	case exch := <-result:
		if exch.Outcome == courier.Completed {
			return
		}
	}

	log.Warnw("detector: leader PROBE failed, rejoining and re-electing", "leader", leaderAddr.String())
	if d.rejoiner != nil {
		if err := d.rejoiner.Rejoin(); err != nil {
			log.Errorw("detector: rejoin failed", "err", err)
		}
	}
	d.engine.StartElection("leader probe failed")
}

func (d *Detector) randomInterval() time.Duration {
	span := d.maxInterval - d.minInterval
	if span <= 0 {
		return d.minInterval
	}
	return d.minInterval + time.Duration(rand.Int63n(int64(span)))
}
