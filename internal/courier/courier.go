// Package courier implements the Outbound Courier Pool: one independent
// worker per outbound send, so a slow or dead peer never stalls any other
// peer exchange or the election engine itself (spec.md §4.5).
package courier

import (
	"time"

	"github.com/distrolab/bully-node/internal/identity"
	"github.com/distrolab/bully-node/internal/logger"
	"github.com/distrolab/bully-node/internal/netconn"
	"github.com/distrolab/bully-node/internal/wire"
)

// Outcome is the terminal state of a single PeerExchange.
type Outcome int

const (
	Completed Outcome = iota
	TimedOut
	ConnectFailed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	default:
		return "connect_failed"
	}
}

// Exchange is the transient record of one outbound send, reported back to
// the election engine when the send settles. It is never aggregated
// persistently — it lives only for the duration of the send.
type Exchange struct {
	Peer      identity.Address
	StartedAt time.Time
	Outcome   Outcome
}

// Feigner reports whether this node is currently feigning failure. While
// true, outbound couriers are inhibited, same as a crashed process.
type Feigner interface {
	Feigning() bool
}

// Pool dispatches ELECT/I_AM_LEADER/PROBE sends, each on its own goroutine.
type Pool struct {
	connectTimeout time.Duration
	replyTimeout   time.Duration
	feigner        Feigner
}

// New creates a courier pool. connectTimeout bounds TCP connect (spec's
// T_connect); replyTimeout bounds waiting for a GOT_IT reply (spec's
// T_bully, used as the read deadline).
func New(connectTimeout, replyTimeout time.Duration) *Pool {
	return &Pool{connectTimeout: connectTimeout, replyTimeout: replyTimeout}
}

// SetFeigner wires the feigned-failure driver in, so sends are inhibited
// while this node is simulating a crash. Optional: a pool with no feigner
// never inhibits.
func (p *Pool) SetFeigner(f Feigner) {
	p.feigner = f
}

// Dispatch sends frame to peer on its own goroutine and invokes onResult
// exactly once when the exchange settles. If awaitReply is true, it reads
// back a GOT_IT frame under the reply timeout before reporting Completed.
// Dispatch returns immediately — callers must never block waiting for
// onResult, which is exactly what lets one unresponsive peer stay
// invisible to every other peer exchange.
func (p *Pool) Dispatch(peer identity.Address, frame []byte, awaitReply bool, onResult func(Exchange)) {
	if p.feigner != nil && p.feigner.Feigning() {
		go onResult(Exchange{Peer: peer, StartedAt: time.Now(), Outcome: ConnectFailed})
		return
	}
	go func() {
		exch := Exchange{Peer: peer, StartedAt: time.Now()}
		exch.Outcome = p.send(peer, frame, awaitReply)
		onResult(exch)
	}()
}

func (p *Pool) send(peer identity.Address, frame []byte, awaitReply bool) Outcome {
	conn, err := netconn.Dial(peer.String(), p.connectTimeout)
	if err != nil {
		logger.Get().Debugw("courier: connect failed", "peer", peer.String(), "err", err)
		return ConnectFailed
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(p.connectTimeout)); err != nil {
		return ConnectFailed
	}
	if err := conn.WriteFrame(frame); err != nil {
		logger.Get().Debugw("courier: write failed", "peer", peer.String(), "err", err)
		return ConnectFailed
	}

	if !awaitReply {
		return Completed
	}

	if err := conn.SetDeadline(time.Now().Add(p.replyTimeout)); err != nil {
		return TimedOut
	}
	reply, err := conn.ReadFrame()
	if err != nil {
		logger.Get().Debugw("courier: read reply failed", "peer", peer.String(), "err", err)
		return TimedOut
	}
	if !wire.DecodeGotIt(reply) {
		return TimedOut
	}
	return Completed
}
