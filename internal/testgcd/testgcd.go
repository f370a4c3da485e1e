// Package testgcd is a minimal in-process GCD test double that answers
// HOWDY with a fixed or programmable membership snapshot, used by gcd and
// node tests. It never runs in production, mirroring the gateway mock
// package's role for its own tests.
package testgcd

import (
	"sync"

	"github.com/distrolab/bully-node/internal/identity"
	"github.com/distrolab/bully-node/internal/netconn"
	"github.com/distrolab/bully-node/internal/wire"
)

// Server is a fake GCD: it accepts HOWDY, records the joiner, adds it to
// its membership, and replies with that membership (seeded by Start,
// replaceable via SetMembers).
type Server struct {
	ln *netconn.Listener

	mu      sync.Mutex
	members map[identity.Address]identity.Identity
	joins   []wire.HowdyRequestPayload
}

// Start binds a fake GCD on an OS-assigned port and begins serving.
func Start(seed map[identity.Address]identity.Identity) (*Server, error) {
	ln, err := netconn.Listen("127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{ln: ln, members: cloneMembers(seed)}
	go func() {
		_ = ln.Serve(s.handle)
	}()
	return s, nil
}

// Addr returns the "host:port" this fake GCD listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops accepting connections.
func (s *Server) Close() {
	_ = s.ln.Close()
}

// Joins returns every HOWDY request received so far, in arrival order.
func (s *Server) Joins() []wire.HowdyRequestPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.HowdyRequestPayload, len(s.joins))
	copy(out, s.joins)
	return out
}

// SetMembers replaces the membership snapshot returned to future HOWDYs.
func (s *Server) SetMembers(members map[identity.Address]identity.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = cloneMembers(members)
}

func (s *Server) handle(conn *netconn.Conn) {
	defer conn.Close()

	raw, err := conn.ReadFrame()
	if err != nil {
		return
	}
	env, err := wire.DecodeEnvelope(raw)
	if err != nil || env.Name != wire.TagHowdy {
		return
	}
	var req wire.HowdyRequestPayload
	if err := env.DecodePayload(&req); err != nil {
		return
	}

	s.mu.Lock()
	s.joins = append(s.joins, req)
	s.members[req.ListenAddr.ToAddress()] = req.Identity.ToIdentity()
	snapshot := cloneMembers(s.members)
	s.mu.Unlock()

	reply, err := wire.EncodeHowdyResponse(wire.ToMembershipDTO(snapshot))
	if err != nil {
		return
	}
	_ = conn.WriteFrame(reply)
}

func cloneMembers(in map[identity.Address]identity.Identity) map[identity.Address]identity.Identity {
	out := make(map[identity.Address]identity.Identity, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
