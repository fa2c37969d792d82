// Package store implements component A: the content-addressed datastore of
// Filled, Pending, and Alias slots, and the operations that allocate,
// fulfil, and resolve addresses against it.
package store

import (
	"sync"

	"github.com/kiosk404/hchbench/internal/hchbench/addr"
	"github.com/kiosk404/hchbench/internal/hchbench/errno"
	"github.com/kiosk404/hchbench/internal/hchbench/hypertext"
	"github.com/kiosk404/hchbench/internal/hchbench/logging"
)

// Token identifies a waiter registered against a Pending slot — in practice
// a scheduler wake-up id. Waiter sets are never persisted; on restore the
// scheduler re-registers them by re-awaiting every parked context.
type Token string

// Kind distinguishes the three slot states of spec §3.
type Kind int

const (
	Filled Kind = iota
	Pending
	Alias
)

// Slot is the datastore's per-address record. Exactly one of Content (Filled),
// Waiters (Pending), or Target (Alias) is meaningful for a given Kind.
type Slot struct {
	Kind    Kind
	Content hypertext.Hypertext
	Waiters map[Token]struct{}
	Target  addr.Address
}

// Datastore holds every allocated address. It is shared across sessions
// (the automation cache and the hypertext graph are both process-wide), so
// every operation is guarded by a single mutex — the model is single
// writer at a time, not lock-free.
type Datastore struct {
	mu             sync.Mutex
	slots          map[addr.Address]*Slot
	canonicalIndex map[string]addr.Address
	nextID         uint64
}

// New returns an empty datastore.
func New() *Datastore {
	return &Datastore{
		slots:          make(map[addr.Address]*Slot),
		canonicalIndex: make(map[string]addr.Address),
	}
}

func (d *Datastore) freshAddress() addr.Address {
	d.nextID++
	return addr.New(d.nextID)
}

// innerResolver lets Canonical call back into the datastore while its lock
// is already held, without re-entering the exported (locking) methods.
type innerResolver struct{ d *Datastore }

func (ir innerResolver) Resolve(a addr.Address) addr.Address { return ir.d.resolveLocked(a) }
func (ir innerResolver) Lookup(a addr.Address) (hypertext.Hypertext, bool) {
	return ir.d.lookupLocked(a)
}

// resolveLocked follows an Alias chain to its end, compressing intermediate
// links so future resolutions are O(1). Caller must hold d.mu.
func (d *Datastore) resolveLocked(a addr.Address) addr.Address {
	visited := map[addr.Address]struct{}{}
	cur := a
	for {
		s, ok := d.slots[cur]
		if !ok || s.Kind != Alias {
			break
		}
		if _, seen := visited[cur]; seen {
			// The invariants guarantee alias chains terminate; a cycle here
			// means a scheduler bug elsewhere, not a recoverable user error.
			panic(errno.ErrAliasCycle)
		}
		visited[cur] = struct{}{}
		cur = s.Target
	}
	for v := range visited {
		d.slots[v] = &Slot{Kind: Alias, Target: cur}
	}
	return cur
}

func (d *Datastore) lookupLocked(a addr.Address) (hypertext.Hypertext, bool) {
	ra := d.resolveLocked(a)
	s, ok := d.slots[ra]
	if !ok || s.Kind != Filled {
		return nil, false
	}
	return s.Content, true
}

// Resolve follows alias chains and returns the canonical address for a.
func (d *Datastore) Resolve(a addr.Address) addr.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolveLocked(a)
}

// Lookup returns the content stored at a (after alias resolution), or
// false if the slot is Pending or unknown.
func (d *Datastore) Lookup(a addr.Address) (hypertext.Hypertext, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookupLocked(a)
}

// KindOf reports the current slot kind at a, after alias resolution.
func (d *Datastore) KindOf(a addr.Address) (Kind, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ra := d.resolveLocked(a)
	s, ok := d.slots[ra]
	if !ok {
		return 0, false
	}
	return s.Kind, true
}

// AllocateFilled interns h: if a content-equal address already exists it is
// returned, otherwise a fresh Filled slot is allocated. Canonical form is
// computed fresh against the live resolver, so interning always sees the
// current alias state of every embedded child.
func (d *Datastore) AllocateFilled(h hypertext.Hypertext) addr.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	canon := hypertext.Canonical(h, innerResolver{d})
	if existing, ok := d.canonicalIndex[canon]; ok {
		return existing
	}
	a := d.freshAddress()
	d.slots[a] = &Slot{Kind: Filled, Content: h}
	d.canonicalIndex[canon] = a
	return a
}

// AllocatePromise reserves a fresh Pending address with no waiters yet.
func (d *Datastore) AllocatePromise() addr.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := d.freshAddress()
	d.slots[a] = &Slot{Kind: Pending, Waiters: make(map[Token]struct{})}
	return a
}

// Await registers t as a waiter on a (after alias resolution) and reports
// whether the address is already Filled — in which case the caller should
// treat the wait as satisfied immediately rather than actually parking.
func (d *Datastore) Await(a addr.Address, t Token) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ra := d.resolveLocked(a)
	s, ok := d.slots[ra]
	if !ok {
		return false
	}
	if s.Kind == Filled {
		return true
	}
	s.Waiters[t] = struct{}{}
	return false
}

// Fulfil transitions the Pending slot at a to either Filled or Alias,
// exactly once (the one-way transition invariant of spec §3). It returns
// the set of waiter tokens that are now unblocked and should be rescheduled
// by the caller. If interning discovers h is content-equal to an existing
// address, a becomes an Alias to it instead of a second Filled slot, and
// a's waiters are merged into the target's (or fired immediately if the
// target is already Filled).
func (d *Datastore) Fulfil(a addr.Address, h hypertext.Hypertext) ([]Token, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.slots[a]
	if !ok || s.Kind != Pending {
		return nil, errno.ErrDoubleFulfil
	}
	waiters := s.Waiters
	canon := hypertext.Canonical(h, innerResolver{d})

	if existing, ok := d.canonicalIndex[canon]; ok && existing != a {
		d.slots[a] = &Slot{Kind: Alias, Target: existing}
		target := d.slots[existing]
		if target.Kind == Filled {
			logging.InfoX("store", "fulfil aliased to already-filled target", "addr", a, "target", existing)
			return tokenSlice(waiters), nil
		}
		for t := range waiters {
			target.Waiters[t] = struct{}{}
		}
		logging.InfoX("store", "fulfil aliased to pending target, waiters merged", "addr", a, "target", existing)
		return nil, nil
	}

	d.slots[a] = &Slot{Kind: Filled, Content: h}
	d.canonicalIndex[canon] = a
	return tokenSlice(waiters), nil
}

func tokenSlice(waiters map[Token]struct{}) []Token {
	out := make([]Token, 0, len(waiters))
	for t := range waiters {
		out = append(out, t)
	}
	return out
}

// NextID reports the id of the most recently allocated address (the counter
// freshAddress increments before each allocation); used by persistence to
// restore nextID after a snapshot round-trip.
func (d *Datastore) NextID() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextID
}
