package courier

import (
	"github.com/distrolab/bully-node/internal/identity"
	"github.com/distrolab/bully-node/internal/logger"
	"github.com/distrolab/bully-node/internal/wire"
)

// SendElect encodes and dispatches an ELECT request to peer, waiting for
// GOT_IT under the reply timeout.
func (p *Pool) SendElect(peer identity.Address, members map[identity.Address]identity.Identity, onResult func(Exchange)) {
	frame, err := wire.EncodeElectRequest(wire.ElectPayload{Members: wire.ToMembershipDTO(members)})
	if err != nil {
		logger.Get().Errorw("courier: encode ELECT failed", "err", err)
		onResult(Exchange{Peer: peer, Outcome: ConnectFailed})
		return
	}
	p.Dispatch(peer, frame, true, onResult)
}

// SendLeader encodes and dispatches an I_AM_LEADER announcement to peer.
// No reply is expected; the frame is still delivered by a fresh worker so
// no single peer can stall the broadcast.
func (p *Pool) SendLeader(peer identity.Address, leader identity.Identity, onResult func(Exchange)) {
	frame, err := wire.EncodeLeaderRequest(wire.LeaderPayload{Identity: wire.ToIdentityDTO(leader)})
	if err != nil {
		logger.Get().Errorw("courier: encode I_AM_LEADER failed", "err", err)
		onResult(Exchange{Peer: peer, Outcome: ConnectFailed})
		return
	}
	p.Dispatch(peer, frame, false, onResult)
}

// SendProbe encodes and dispatches a PROBE to peer, waiting for GOT_IT.
func (p *Pool) SendProbe(peer identity.Address, onResult func(Exchange)) {
	frame, err := wire.EncodeProbeRequest()
	if err != nil {
		logger.Get().Errorw("courier: encode PROBE failed", "err", err)
		onResult(Exchange{Peer: peer, Outcome: ConnectFailed})
		return
	}
	p.Dispatch(peer, frame, true, onResult)
}
