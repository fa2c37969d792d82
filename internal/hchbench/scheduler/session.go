package scheduler

import (
	"github.com/google/uuid"

	"github.com/kiosk404/hchbench/internal/hchbench/addr"
	"github.com/kiosk404/hchbench/internal/hchbench/hctx"
	"github.com/kiosk404/hchbench/internal/hchbench/store"
)

// PendingContext pairs a Context with the promise(s) a Reply issued on it
// would fulfil: the answer promise always, and — for every context except
// the session's root — the sub-workspace promise tied to the Ask that
// created it.
type PendingContext struct {
	Ctx              hctx.Context
	AnswerPromise    addr.Address
	WorkspacePromise addr.Address
}

// ParkedEntry is a context suspended on an Unlock of an unfulfilled
// address, per the bipartite wait-graph of spec §9: the address side is
// tracked by the datastore's waiter sets, the context side here.
type ParkedEntry struct {
	Pending PendingContext
	Awaited addr.Address
}

// Session is a user-facing execution thread bound to a root question: a
// FIFO of ready contexts, a set of parked (context, awaited-address)
// pairs, and the root answer promise.
type Session struct {
	ID         string
	RootAnswer addr.Address

	ready  []PendingContext
	Parked map[store.Token]ParkedEntry

	// restoredPendingChildren holds lazy Ask children decoded by persist
	// for this session, staged here until AdoptRestoredSession re-registers
	// each one with the scheduler's pendingChildren registry.
	restoredPendingChildren []PendingContext
}

// NewSession wraps a freshly constructed root context and its answer
// promise into a new session, FIFO primed with that one context.
func NewSession(rootCtx hctx.Context, rootAnswer addr.Address) *Session {
	return &Session{
		ID:         uuid.New().String(),
		RootAnswer: rootAnswer,
		ready:      []PendingContext{{Ctx: rootCtx, AnswerPromise: rootAnswer}},
		Parked:     make(map[store.Token]ParkedEntry),
	}
}

func (s *Session) pushReady(pc PendingContext) {
	s.ready = append(s.ready, pc)
}

// Ready exposes the current ready queue for snapshotting; callers must not
// mutate the returned slice.
func (s *Session) Ready() []PendingContext { return s.ready }

// RestoreSession rebuilds a session shell from persisted identity fields;
// callers then repopulate it with RestoreReady/RestoreParked before it is
// handed to a Scheduler.
func RestoreSession(id string, rootAnswer addr.Address) *Session {
	return &Session{ID: id, RootAnswer: rootAnswer, Parked: make(map[store.Token]ParkedEntry)}
}

// RestoreReady appends a previously-ready context back onto the FIFO, in
// the order it is called — callers must replay the saved order.
func (s *Session) RestoreReady(pc PendingContext) { s.ready = append(s.ready, pc) }

// RestoreParked reinstates a previously-parked context under its original
// wake-up token. The caller (the scheduler, via persist) must also
// re-register the token as an awaiter of pe.Awaited so a concurrent Fulfil
// can still find it.
func (s *Session) RestoreParked(tok store.Token, pe ParkedEntry) { s.Parked[tok] = pe }

// RestorePendingChild stages a previously-deferred Ask child for this
// session, decoded by persist. AdoptRestoredSession drains this list into
// the scheduler's pendingChildren registry (or pushes it ready immediately
// if its promises were already fulfilled before the snapshot was taken).
func (s *Session) RestorePendingChild(pc PendingContext) {
	s.restoredPendingChildren = append(s.restoredPendingChildren, pc)
}

func (s *Session) popReady() (PendingContext, bool) {
	if len(s.ready) == 0 {
		return PendingContext{}, false
	}
	pc := s.ready[0]
	s.ready = s.ready[1:]
	return pc, true
}

// ReadyLen and ParkedLen support the §4.F "session is blocked" check and
// test assertions without exposing the queue itself.
func (s *Session) ReadyLen() int  { return len(s.ready) }
func (s *Session) ParkedLen() int { return len(s.Parked) }

// Done reports whether the session's root answer has resolved.
func (s *Session) Done(ds *store.Datastore) bool {
	_, ok := ds.Lookup(s.RootAnswer)
	return ok
}
