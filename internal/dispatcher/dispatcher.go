// Package dispatcher routes inbound peer frames to the election engine,
// and is the only place that writes the GOT_IT reply (spec.md §4.3). This
// node is never itself a GCD, so a HOWDY addressed to the peer port is
// logged and ignored rather than answered.
package dispatcher

import (
	"time"

	"github.com/distrolab/bully-node/internal/election"
	"github.com/distrolab/bully-node/internal/logger"
	"github.com/distrolab/bully-node/internal/netconn"
	"github.com/distrolab/bully-node/internal/wire"
)

// Feigner reports whether this node is currently feigning failure; while
// true, a PROBE gets no reply, simulating a dead peer.
type Feigner interface {
	Feigning() bool
}

// Dispatcher handles one accepted connection at a time via Handle,
// intended to be passed directly as a netconn.Listener handler.
type Dispatcher struct {
	engine      *election.Engine
	feigner     Feigner
	readTimeout time.Duration
}

// New creates a Dispatcher bound to engine. feigner may be nil if feigned
// failure is disabled.
func New(engine *election.Engine, feigner Feigner, readTimeout time.Duration) *Dispatcher {
	return &Dispatcher{engine: engine, feigner: feigner, readTimeout: readTimeout}
}

// Handle reads a single frame from conn, routes it, and replies if the
// message kind requires one, then closes the connection — one message per
// connection, per the wire contract.
func (d *Dispatcher) Handle(conn *netconn.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(d.readTimeout)); err != nil {
		return
	}
	raw, err := conn.ReadFrame()
	if err != nil {
		logger.Get().Debugw("dispatcher: read failed", "err", err)
		return
	}

	if d.feigner != nil && d.feigner.Feigning() {
		// A feigning node silently drops every inbound frame: it is read
		// and discarded, never routed and never answered. The peer's read
		// fails when the connection closes, so its courier sees no GOT_IT.
		return
	}

	env, err := wire.DecodeEnvelope(raw)
	if err != nil {
		logger.Get().Warnw("dispatcher: malformed frame", "err", err)
		return
	}

	switch env.Name {
	case wire.TagElect:
		d.handleElect(conn, env)
	case wire.TagIAmLeader:
		d.handleLeader(env)
	case wire.TagProbe:
		d.handleProbe(conn)
	case wire.TagHowdy:
		logger.Get().Debugw("dispatcher: ignoring HOWDY, not a GCD")
	default:
		logger.Get().Warnw("dispatcher: unknown tag", "tag", env.Name)
	}
}

func (d *Dispatcher) handleElect(conn *netconn.Conn, env wire.Envelope) {
	var payload wire.ElectPayload
	if err := env.DecodePayload(&payload); err != nil {
		logger.Get().Warnw("dispatcher: bad ELECT payload", "err", err)
		return
	}
	d.reply(conn)
	d.engine.OnElectReceived(payload.Members.ToMembership())
}

func (d *Dispatcher) handleLeader(env wire.Envelope) {
	var payload wire.LeaderPayload
	if err := env.DecodePayload(&payload); err != nil {
		logger.Get().Warnw("dispatcher: bad I_AM_LEADER payload", "err", err)
		return
	}
	d.engine.OnLeaderAnnounced(payload.Identity.ToIdentity())
}

func (d *Dispatcher) handleProbe(conn *netconn.Conn) {
	d.reply(conn)
}

func (d *Dispatcher) reply(conn *netconn.Conn) {
	frame, err := wire.EncodeGotIt()
	if err != nil {
		logger.Get().Errorw("dispatcher: encode GOT_IT failed", "err", err)
		return
	}
	if err := conn.SetDeadline(time.Now().Add(d.readTimeout)); err != nil {
		return
	}
	if err := conn.WriteFrame(frame); err != nil {
		logger.Get().Debugw("dispatcher: write GOT_IT failed", "err", err)
	}
}
