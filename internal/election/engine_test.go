package election_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distrolab/bully-node/internal/courier"
	"github.com/distrolab/bully-node/internal/dispatcher"
	"github.com/distrolab/bully-node/internal/election"
	"github.com/distrolab/bully-node/internal/identity"
	"github.com/distrolab/bully-node/internal/netconn"
)

// testPeer wires a real listener, dispatcher, courier pool and election
// engine together, the same shape node.Node uses minus the GCD and
// background loops, so elections exercise the real wire codec and TCP
// framing instead of a mocked transport.
type testPeer struct {
	addr   identity.Address
	table  *identity.Table
	engine *election.Engine
	ln     *netconn.Listener
}

func newTestPeer(t *testing.T, self identity.Identity) *testPeer {
	t.Helper()

	ln, err := netconn.Listen("127.0.0.1:0")
	require.NoError(t, err)

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok)
	addr := identity.Address{Host: "127.0.0.1", Port: tcpAddr.Port}

	table := identity.NewTable(addr, self)
	pool := courier.New(100*time.Millisecond, 150*time.Millisecond)
	engine := election.New(table, pool, election.Config{
		TBully:    200 * time.Millisecond,
		TFollower: 400 * time.Millisecond,
	})
	disp := dispatcher.New(engine, nil, 150*time.Millisecond)

	go func() { _ = ln.Serve(disp.Handle) }()

	return &testPeer{addr: addr, table: table, engine: engine, ln: ln}
}

func (p *testPeer) Close() {
	_ = p.ln.Close()
}

// introduce merges every peer's address/identity into every other peer's
// table, simulating a GCD handing out a shared membership snapshot.
func introduce(peers ...*testPeer) {
	all := make(map[identity.Address]identity.Identity, len(peers))
	for _, p := range peers {
		addr, id := p.table.Self()
		all[addr] = id
	}
	for _, p := range peers {
		p.table.Merge(all)
	}
}

func eventuallyLeader(t *testing.T, p *testPeer, want identity.Identity) {
	t.Helper()
	assert.Eventually(t, func() bool {
		leader, ok := p.engine.CurrentLeader()
		return ok && leader.Equal(want)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestThreeJoinsConvergeOnHighestIdentity(t *testing.T) {
	a := newTestPeer(t, identity.Identity{Days: 10, StudentID: 100})
	b := newTestPeer(t, identity.Identity{Days: 5, StudentID: 200})
	c := newTestPeer(t, identity.Identity{Days: 20, StudentID: 50})
	defer a.Close()
	defer b.Close()
	defer c.Close()

	introduce(a, b, c)

	a.engine.StartElection("join")
	b.engine.StartElection("join")
	c.engine.StartElection("join")

	_, cID := c.table.Self()
	eventuallyLeader(t, a, cID)
	eventuallyLeader(t, b, cID)
	eventuallyLeader(t, c, cID)

	assert.True(t, c.engine.IsLeader())
	assert.False(t, a.engine.IsLeader())
	assert.False(t, b.engine.IsLeader())
}

func TestTieBreakOnStudentID(t *testing.T) {
	a := newTestPeer(t, identity.Identity{Days: 10, StudentID: 100})
	b := newTestPeer(t, identity.Identity{Days: 10, StudentID: 200})
	defer a.Close()
	defer b.Close()

	introduce(a, b)

	a.engine.StartElection("join")
	b.engine.StartElection("join")

	_, bID := b.table.Self()
	eventuallyLeader(t, a, bID)
	eventuallyLeader(t, b, bID)
}

func TestLateJoinerBeatsIncumbent(t *testing.T) {
	a := newTestPeer(t, identity.Identity{Days: 10, StudentID: 100})
	b := newTestPeer(t, identity.Identity{Days: 5, StudentID: 200})
	defer a.Close()
	defer b.Close()

	introduce(a, b)
	a.engine.StartElection("join")
	b.engine.StartElection("join")

	_, aID := a.table.Self()
	eventuallyLeader(t, a, aID)
	eventuallyLeader(t, b, aID)

	// A higher-identity node joins after the group already converged.
	c := newTestPeer(t, identity.Identity{Days: 20, StudentID: 1})
	defer c.Close()

	introduce(a, b, c)
	c.engine.StartElection("join")

	_, cID := c.table.Self()
	eventuallyLeader(t, a, cID)
	eventuallyLeader(t, b, cID)
	eventuallyLeader(t, c, cID)
}

func TestLeaderCrashTriggersReelection(t *testing.T) {
	a := newTestPeer(t, identity.Identity{Days: 10, StudentID: 100})
	b := newTestPeer(t, identity.Identity{Days: 5, StudentID: 200})
	c := newTestPeer(t, identity.Identity{Days: 20, StudentID: 50})
	defer a.Close()
	defer b.Close()

	introduce(a, b, c)
	a.engine.StartElection("join")
	b.engine.StartElection("join")
	c.engine.StartElection("join")

	_, cID := c.table.Self()
	eventuallyLeader(t, a, cID)
	eventuallyLeader(t, b, cID)

	// Crash C: close its listener so every future PROBE/ELECT to it fails.
	c.Close()

	a.engine.StartElection("leader probe failed")
	b.engine.StartElection("leader probe failed")

	_, aID := a.table.Self()
	eventuallyLeader(t, a, aID)
	eventuallyLeader(t, b, aID)
}

func TestConcurrentElectStormConvergesOnOneLeader(t *testing.T) {
	a := newTestPeer(t, identity.Identity{Days: 10, StudentID: 100})
	b := newTestPeer(t, identity.Identity{Days: 10, StudentID: 200})
	c := newTestPeer(t, identity.Identity{Days: 10, StudentID: 300})
	defer a.Close()
	defer b.Close()
	defer c.Close()

	introduce(a, b, c)

	// A and B race into elections; C never initiates one directly but must
	// still converge to LEADER once it receives either ELECT.
	go a.engine.StartElection("join")
	go b.engine.StartElection("join")

	_, cID := c.table.Self()
	eventuallyLeader(t, a, cID)
	eventuallyLeader(t, b, cID)
	eventuallyLeader(t, c, cID)
	assert.True(t, c.engine.IsLeader())
}

func TestElectReceivedWhileElectingDoesNotStartSecondRound(t *testing.T) {
	// self has one higher, unreachable peer so StartElection lands in
	// ELECTING and stays there until the deadline, instead of collapsing
	// straight to LEADER.
	self := newTestPeer(t, identity.Identity{Days: 10, StudentID: 100})
	defer self.Close()

	higherAddr := identity.Address{Host: "127.0.0.1", Port: 1}
	higherID := identity.Identity{Days: 99, StudentID: 1}
	self.table.Merge(map[identity.Address]identity.Identity{higherAddr: higherID})

	self.engine.StartElection("join")
	require.Equal(t, election.StateElecting, self.engine.State())

	// An ELECT arrives mid-round from a third, lower peer. It must merge
	// but must not reset the round (state stays ELECTING, no crash from a
	// duplicate round id).
	thirdAddr := identity.Address{Host: "127.0.0.1", Port: 2}
	thirdID := identity.Identity{Days: 1, StudentID: 1}
	self.engine.OnElectReceived(map[identity.Address]identity.Identity{thirdAddr: thirdID})
	assert.Equal(t, election.StateElecting, self.engine.State())

	_, thirdKnown := self.table.Lookup(thirdAddr)
	assert.True(t, thirdKnown)

	// With the only higher peer unreachable, the deadline fires with zero
	// GOT_IT and self becomes leader exactly once.
	_, selfID := self.table.Self()
	eventuallyLeader(t, self, selfID)
}

func TestLeaderAnnouncementAcceptedFromAnyState(t *testing.T) {
	self := newTestPeer(t, identity.Identity{Days: 10, StudentID: 100})
	defer self.Close()

	announced := identity.Identity{Days: 50, StudentID: 1}
	self.engine.OnLeaderAnnounced(announced)

	leader, ok := self.engine.CurrentLeader()
	require.True(t, ok)
	assert.True(t, leader.Equal(announced))
	assert.Equal(t, election.StateFollower, self.engine.State())
}

func TestSingletonGroupBecomesLeaderWithoutSending(t *testing.T) {
	self := newTestPeer(t, identity.Identity{Days: 1, StudentID: 1})
	defer self.Close()

	self.engine.StartElection("join")

	_, selfID := self.table.Self()
	eventuallyLeader(t, self, selfID)
}
