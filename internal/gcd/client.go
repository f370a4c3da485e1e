// Package gcd implements the client side of the HOWDY exchange with the
// Group Coordinator Daemon. The GCD server itself is an external
// collaborator, out of scope for this repo (spec.md §1).
package gcd

import (
	"time"

	"github.com/pkg/errors"

	"github.com/distrolab/bully-node/internal/identity"
	"github.com/distrolab/bully-node/internal/netconn"
	"github.com/distrolab/bully-node/internal/wire"
)

// Client speaks HOWDY to a single GCD address.
type Client struct {
	addr           string
	connectTimeout time.Duration
}

// New creates a GCD client for the given "host:port" address.
func New(addr string, connectTimeout time.Duration) *Client {
	return &Client{addr: addr, connectTimeout: connectTimeout}
}

// Join sends HOWDY(identity, listenAddr) and returns the membership table
// the GCD reports, per spec.md §6. The caller is responsible for ensuring
// self ends up in the returned map (the GCD may or may not include it).
func (c *Client) Join(self identity.Address, selfID identity.Identity) (map[identity.Address]identity.Identity, error) {
	conn, err := netconn.Dial(c.addr, c.connectTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "gcd: connect")
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.connectTimeout)); err != nil {
		return nil, errors.Wrap(err, "gcd: set deadline")
	}

	req := wire.HowdyRequestPayload{
		Identity:   wire.ToIdentityDTO(selfID),
		ListenAddr: wire.ToAddressDTO(self),
	}
	frame, err := wire.EncodeHowdyRequest(req)
	if err != nil {
		return nil, errors.Wrap(err, "gcd: encode HOWDY")
	}
	if err := conn.WriteFrame(frame); err != nil {
		return nil, errors.Wrap(err, "gcd: send HOWDY")
	}

	reply, err := conn.ReadFrame()
	if err != nil {
		return nil, errors.Wrap(err, "gcd: read HOWDY response")
	}
	members, err := wire.DecodeHowdyResponse(reply)
	if err != nil {
		return nil, errors.Wrap(err, "gcd: decode HOWDY response")
	}
	return members.ToMembership(), nil
}
