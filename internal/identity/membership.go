package identity

import "sync"

// Table is the mapping Address -> Identity, including self. It is merged
// by the election engine on ELECT receipt and by node.Node on re-HOWDY;
// it guards itself with its own lock, not the engine lock. Peer entries
// are never removed — a failed peer stays listed, since failure is
// inferred at send time, not recorded here. The only removal is
// RebindSelf moving self's own entry to a new address.
type Table struct {
	mu      sync.RWMutex
	self    Address
	members map[Address]Identity
}

// NewTable creates a table that already contains selfAddr -> selfID.
func NewTable(selfAddr Address, selfID Identity) *Table {
	return &Table{
		self: selfAddr,
		members: map[Address]Identity{
			selfAddr: selfID,
		},
	}
}

// Merge adds every entry of other not already known by address. Existing
// entries are never overwritten — first write wins (see DESIGN.md Open
// Question on overwrite policy). Self is guaranteed to remain present,
// since NewTable seeds it and only RebindSelf removes an entry, re-adding
// self under its new address. It returns the number of newly-added
// entries.
func (t *Table) Merge(other map[Address]Identity) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := 0
	for addr, id := range other {
		if _, exists := t.members[addr]; !exists {
			t.members[addr] = id
			added++
		}
	}
	return added
}

// Snapshot returns a copy of the full table, safe for the caller to read
// without holding any lock.
func (t *Table) Snapshot() map[Address]Identity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Address]Identity, len(t.members))
	for addr, id := range t.members {
		out[addr] = id
	}
	return out
}

// Len reports the number of known members, including self.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.members)
}

// Self returns this node's own address and identity.
func (t *Table) Self() (Address, Identity) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.self, t.members[t.self]
}

// RebindSelf moves self's entry to newAddr. It is called after every
// listener bind (at startup and on each Relisten), since an OS-assigned
// ephemeral port or a fallback bind can differ from the address the
// table was constructed with.
func (t *Table) RebindSelf(newAddr Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.members[t.self]
	delete(t.members, t.self)
	t.self = newAddr
	t.members[newAddr] = id
}

// HigherPeers returns the addresses of every known peer whose identity is
// strictly greater than self's, excluding self.
func (t *Table) HigherPeers() map[Address]Identity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	selfID := t.members[t.self]
	out := make(map[Address]Identity)
	for addr, id := range t.members {
		if addr == t.self {
			continue
		}
		if id.Greater(selfID) {
			out[addr] = id
		}
	}
	return out
}

// AllExceptSelf returns every known peer except self, for broadcast.
func (t *Table) AllExceptSelf() map[Address]Identity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Address]Identity, len(t.members)-1)
	for addr, id := range t.members {
		if addr == t.self {
			continue
		}
		out[addr] = id
	}
	return out
}

// Lookup returns the identity known for addr, if any.
func (t *Table) Lookup(addr Address) (Identity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.members[addr]
	return id, ok
}

// AddressOf returns the address at which leader is reachable, if known.
func (t *Table) AddressOf(leader Identity) (Address, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for addr, id := range t.members {
		if id.Equal(leader) {
			return addr, true
		}
	}
	return Address{}, false
}
