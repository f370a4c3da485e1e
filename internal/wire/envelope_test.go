package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distrolab/bully-node/internal/identity"
	"github.com/distrolab/bully-node/internal/wire"
)

func TestGotItRoundTrip(t *testing.T) {
	frame, err := wire.EncodeGotIt()
	require.NoError(t, err)
	assert.True(t, wire.DecodeGotIt(frame))
}

func TestDecodeGotItRejectsOtherPayloads(t *testing.T) {
	frame, err := wire.EncodeProbeRequest()
	require.NoError(t, err)
	assert.False(t, wire.DecodeGotIt(frame))
}

func TestElectRequestRoundTrip(t *testing.T) {
	members := wire.ToMembershipDTO(map[identity.Address]identity.Identity{
		{Host: "10.0.0.1", Port: 5000}: {Days: 3, StudentID: 42},
	})
	frame, err := wire.EncodeElectRequest(wire.ElectPayload{Members: members})
	require.NoError(t, err)

	env, err := wire.DecodeEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, wire.TagElect, env.Name)

	var payload wire.ElectPayload
	require.NoError(t, env.DecodePayload(&payload))

	decoded := payload.Members.ToMembership()
	id, ok := decoded[identity.Address{Host: "10.0.0.1", Port: 5000}]
	require.True(t, ok)
	assert.Equal(t, 3, id.Days)
	assert.Equal(t, 42, id.StudentID)
}

func TestLeaderRequestRoundTrip(t *testing.T) {
	frame, err := wire.EncodeLeaderRequest(wire.LeaderPayload{
		Identity: wire.ToIdentityDTO(identity.Identity{Days: 7, StudentID: 8}),
	})
	require.NoError(t, err)

	env, err := wire.DecodeEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, wire.TagIAmLeader, env.Name)

	var payload wire.LeaderPayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, 7, payload.Identity.Days)
}

func TestHowdyResponseRoundTripIsBareMapping(t *testing.T) {
	members := wire.ToMembershipDTO(map[identity.Address]identity.Identity{
		{Host: "127.0.0.1", Port: 1}: {Days: 1, StudentID: 1},
		{Host: "127.0.0.1", Port: 2}: {Days: 2, StudentID: 2},
	})
	frame, err := wire.EncodeHowdyResponse(members)
	require.NoError(t, err)

	// A bare mapping must not parse as a tagged pair.
	_, err = wire.DecodeEnvelope(frame)
	assert.Error(t, err)

	decoded, err := wire.DecodeHowdyResponse(frame)
	require.NoError(t, err)
	assert.Len(t, decoded, 2)
}

func TestAddressKeyRoundTripsHostWithoutColons(t *testing.T) {
	addr := identity.Address{Host: "192.168.1.10", Port: 9090}
	members := wire.ToMembershipDTO(map[identity.Address]identity.Identity{addr: {Days: 1, StudentID: 1}})
	back := members.ToMembership()

	_, ok := back[addr]
	assert.True(t, ok)
}
