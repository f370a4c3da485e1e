// Package election implements the Election Engine: the state machine that
// owns "election in progress", "current leader", and decides when to emit
// I_AM_LEADER (spec.md §4.4). All state transitions in this package execute
// atomically under a single engine lock; socket I/O never happens while
// that lock is held — couriers acquire it only to report results.
package election

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/distrolab/bully-node/internal/courier"
	"github.com/distrolab/bully-node/internal/identity"
	"github.com/distrolab/bully-node/internal/logger"
)

// State is one of the four states an Engine can be in.
type State int

const (
	StateIdle State = iota
	StateElecting
	StateFollower
	StateLeader
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateElecting:
		return "ELECTING"
	case StateFollower:
		return "FOLLOWER"
	case StateLeader:
		return "LEADER"
	default:
		return "UNKNOWN"
	}
}

// Config carries the engine's configurable timeouts (spec.md §4.4).
type Config struct {
	// TBully is how long the initiator waits for any GOT_IT after sending
	// its ELECT wave.
	TBully time.Duration
	// TFollower is how long a FOLLOWER waits for I_AM_LEADER.
	TFollower time.Duration
}

// DefaultConfig returns the spec's recommended timeouts.
func DefaultConfig() Config {
	return Config{
		TBully:    1500 * time.Millisecond,
		TFollower: 3 * 1500 * time.Millisecond,
	}
}

// Engine is the per-node Bully state machine. It is a singleton per
// process, owned explicitly by whatever wires it up (node.Node, which hands
// it to the dispatcher, the detector and the feigned-failure driver), never
// ambient/global state (spec.md §9).
type Engine struct {
	mu sync.Mutex

	table *identity.Table
	pool  *courier.Pool
	cfg   Config

	state         State
	currentLeader *identity.Identity

	round      string // non-empty while an election or follower wait is live
	gotAck     bool   // whether any GOT_IT has landed this round
	outstanding int   // number of ELECTs still awaiting a result this round
	timer      *time.Timer
}

// New creates an Engine in the initial IDLE state.
func New(table *identity.Table, pool *courier.Pool, cfg Config) *Engine {
	return &Engine{
		table: table,
		pool:  pool,
		cfg:   cfg,
		state: StateIdle,
	}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsLeader reports whether this node currently believes it is the leader.
func (e *Engine) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateLeader
}

// CurrentLeader returns the currently-known leader, if any.
func (e *Engine) CurrentLeader() (identity.Identity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentLeader == nil {
		return identity.Identity{}, false
	}
	return *e.currentLeader, true
}

// StartElection triggers start_election() from IDLE, FOLLOWER or LEADER
// (join, PROBE failure, recovery). While an election is already in flight
// it does nothing, so repeated triggers cannot keep resetting the round
// before its deadline fires. reason is for logging only.
func (e *Engine) StartElection(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateElecting {
		return
	}
	e.startElectionLocked(reason)
}

// startElectionLocked implements the IDLE/FOLLOWER/LEADER -> ELECTING (or
// -> LEADER directly) row of spec.md §4.4's transition table. Callers must
// already hold e.mu.
func (e *Engine) startElectionLocked(reason string) {
	_, self := e.table.Self()
	higher := e.table.HigherPeers()

	log := logger.Get()
	log.Infow("election: starting", "reason", reason, "self", self.String(), "higher_peers", len(higher))

	e.stopTimerLocked()
	e.state = StateElecting
	e.gotAck = false
	round := uuid.New().String()
	e.round = round

	if len(higher) == 0 {
		e.becomeLeaderLocked()
		return
	}

	e.outstanding = len(higher)
	members := e.table.Snapshot()
	for peer := range higher {
		p := peer
		e.pool.SendElect(p, members, func(exch courier.Exchange) {
			e.onElectResult(round, exch)
		})
	}

	e.armTimerLocked(e.cfg.TBully, func() { e.onElectionDeadline(round) })
}

// onElectResult handles a courier report for one outbound ELECT. It
// implements "at least one GOT_IT received from some peer in H ->
// FOLLOWER" (spec.md §4.4). Results for a round that has since ended are
// ignored — a slow or already-superseded peer exchange can never affect a
// later round.
func (e *Engine) onElectResult(round string, exch courier.Exchange) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round != round || e.state != StateElecting {
		return
	}

	e.outstanding--
	if exch.Outcome != courier.Completed {
		return
	}
	if e.gotAck {
		return
	}
	e.gotAck = true

	logger.Get().Infow("election: GOT_IT received, yielding to higher peer", "peer", exch.Peer.String())

	e.state = StateFollower
	e.armTimerLocked(e.cfg.TFollower, func() { e.onFollowerTimeout(round) })
}

// onElectionDeadline implements "ELECTING at electionDeadline expires with
// zero GOT_IT received -> LEADER".
func (e *Engine) onElectionDeadline(round string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round != round || e.state != StateElecting {
		return
	}
	logger.Get().Infow("election: deadline expired with no GOT_IT, becoming leader")
	e.becomeLeaderLocked()
}

// onFollowerTimeout implements "FOLLOWER at T_follower expires with no
// I_AM_LEADER -> ELECTING" (restart election).
func (e *Engine) onFollowerTimeout(round string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round != round || e.state != StateFollower {
		return
	}
	logger.Get().Infow("election: no leader announced before follower timeout, restarting election")
	e.startElectionLocked("follower timeout")
}

// becomeLeaderLocked sets this node as leader and broadcasts I_AM_LEADER to
// every other known peer. Broadcasting happens exactly once per election
// won: this is the only call site, and it is reached at most once per
// round (guarded by the round/state checks above).
func (e *Engine) becomeLeaderLocked() {
	_, self := e.table.Self()
	e.stopTimerLocked()
	e.state = StateLeader
	e.currentLeader = &self
	e.round = ""

	logger.Get().Infow("election: became leader", "self", self.String())

	peers := e.table.AllExceptSelf()
	for peer := range peers {
		p := peer
		e.pool.SendLeader(p, self, func(exch courier.Exchange) {
			if exch.Outcome != courier.Completed {
				logger.Get().Debugw("election: I_AM_LEADER delivery failed", "peer", p.String())
			}
		})
	}
}

// OnElectReceived implements on_elect_received(members): merge, and either
// stay ELECTING (re-entrancy rule: never start a second election while one
// is in flight) or start a fresh election from any other state. The caller
// (the dispatcher) is responsible for writing the GOT_IT reply; this
// method performs only the engine-side work.
func (e *Engine) OnElectReceived(members map[identity.Address]identity.Identity) {
	e.mu.Lock()
	defer e.mu.Unlock()

	added := e.table.Merge(members)
	if added > 0 {
		logger.Get().Debugw("election: merged members from ELECT", "added", added)
	}

	if e.state == StateElecting {
		// Re-entrancy rule: an ELECT arriving while we are already
		// electing must not trigger a second election.
		return
	}
	e.startElectionLocked("election message received")
}

// OnLeaderAnnounced implements on_leader_announced(id): adopt id as leader
// from any state, per spec.md's acceptance policy for inconsistent
// announcements (§7 kind 5) — PROBE, not this handler, is what eventually
// heals a bad announcement.
func (e *Engine) OnLeaderAnnounced(id identity.Identity) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTimerLocked()
	e.round = ""
	e.currentLeader = &id

	_, self := e.table.Self()
	if id.Equal(self) {
		e.state = StateLeader
	} else {
		e.state = StateFollower
	}
	logger.Get().Infow("election: leader announced", "leader", id.String())
}

func (e *Engine) armTimerLocked(d time.Duration, fn func()) {
	e.timer = time.AfterFunc(d, fn)
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
