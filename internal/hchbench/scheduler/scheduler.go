// Package scheduler implements component F: the main loop that presents
// contexts to a driver (human or cache), applies the resulting actions,
// parks contexts on unfulfilled promises, and wakes them on fulfilment.
package scheduler

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/kiosk404/hchbench/internal/hchbench/action"
	"github.com/kiosk404/hchbench/internal/hchbench/addr"
	"github.com/kiosk404/hchbench/internal/hchbench/hctx"
	"github.com/kiosk404/hchbench/internal/hchbench/hypertext"
	"github.com/kiosk404/hchbench/internal/hchbench/logging"
	"github.com/kiosk404/hchbench/internal/hchbench/store"
	"github.com/kiosk404/hchbench/internal/hchbench/workspace"
)

// errUnfilledReply indicates a Reply's own content address wasn't actually
// Filled at apply time — unreachable in practice since action.Parse always
// interns Ask/Reply/Scratch payloads via AllocateFilled before returning.
var errUnfilledReply = errors.New("scheduler: reply content address not filled")

// Driver is the external collaborator of §6: a callable from a context's
// rendering to raw action text. ReportError lets the scheduler surface a
// recoverable ParseError/UnknownPointer without losing the current
// context — the same rendering is re-prompted afterward.
type Driver interface {
	Prompt(rendering string) (string, error)
	ReportError(err error)
}

// AutomationObserver is an optional Driver extension. A driver that
// implements it is notified whenever obtainAction serves a rendering from
// the automation cache instead of calling Prompt, so a terminal driver can
// mention the replay without the scheduler otherwise exposing cache hits.
type AutomationObserver interface {
	NoteAutomationReplay(rendering string)
}

// Scheduler owns the datastore and the process-wide automation cache —
// both shared across every session. State is protected by one mutex,
// matching the single-threaded-cooperative model of spec §5: contention
// here is about safe sharing across Go callers, not real parallelism.
type Scheduler struct {
	DS *store.Datastore

	mu      sync.Mutex
	cache   map[string]action.Action
	visited map[string]bool

	// tokenOwner routes a wake-up token back to the session that parked
	// it, since spec §5 requires promise fulfilment to wake waiters across
	// sessions: session X's Reply may alias session Y's pending answer.
	tokenOwner map[store.Token]*Session

	// pendingChildren holds a child context created by Ask but not yet
	// enqueued ready, keyed by both its sub-answer and sub-workspace
	// promise addresses. Laziness (spec §1/§8 scenario 3) means that
	// context is never consulted at all unless something actually unlocks
	// $a<i> or $w<i> — activateLazyChild moves it into its session's ready
	// queue the first time that happens, and is a no-op otherwise.
	pendingChildren map[addr.Address]lazyChild
}

// lazyChild is a deferred Ask child: which session it belongs to, and the
// context/promise triple it would be enqueued as once observed.
type lazyChild struct {
	sess *Session
	pc   PendingContext
}

// New returns a scheduler over ds with an empty automation cache.
func New(ds *store.Datastore) *Scheduler {
	return &Scheduler{
		DS:              ds,
		cache:           make(map[string]action.Action),
		visited:         make(map[string]bool),
		tokenOwner:      make(map[store.Token]*Session),
		pendingChildren: make(map[addr.Address]lazyChild),
	}
}

// CacheSnapshot and CacheRestore let the persist package round-trip the
// automation cache across a --db restart.
func (s *Scheduler) CacheSnapshot() map[string]action.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]action.Action, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out
}

func (s *Scheduler) CacheRestore(entries map[string]action.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]action.Action, len(entries))
	for k, v := range entries {
		s.cache[k] = v
	}
}

// NewRootSession parses questionText as the root question (using the same
// "[ … ]" / "$<id>" grammar as any other hypertext, with no pointers yet
// visible to reference) and returns a fresh session ready to Run.
func (s *Scheduler) NewRootSession(questionText string) (*Session, error) {
	qAddr, err := hypertext.Parse(questionText, noPointers{}, s.DS)
	if err != nil {
		return nil, err
	}
	scratch := s.DS.AllocateFilled(hypertext.NewRawText(""))
	wsAddr := workspace.New(s.DS, addr.Address{}, qAddr, scratch)
	rootAnswer := s.DS.AllocatePromise()
	rootCtx := hctx.Default(s.DS, wsAddr)
	return NewSession(rootCtx, rootAnswer), nil
}

// AdoptRestoredSession re-registers a session restored by persist.LoadSessions
// with this scheduler: every parked entry's wait token is re-awaited against
// the (already-restored) datastore and re-owned, since waiter sets are
// deliberately excluded from the datastore snapshot itself. A parked address
// that turns out to already be Filled (fulfilled in a previous run just
// before the wake-up was persisted) is pushed ready immediately instead.
func (s *Scheduler) AdoptRestoredSession(sess *Session) {
	for tok, pe := range sess.Parked {
		if s.DS.Await(pe.Awaited, tok) {
			delete(sess.Parked, tok)
			sess.pushReady(pe.Pending)
			continue
		}
		s.mu.Lock()
		s.tokenOwner[tok] = sess
		s.mu.Unlock()
	}
	for _, pc := range sess.restoredPendingChildren {
		s.RestorePendingChild(sess, pc)
	}
	sess.restoredPendingChildren = nil
}

// PendingChildren reports every lazy Ask child still deferred for sess, one
// entry per child regardless of the two addresses it is internally indexed
// under — persist uses this to save pendingChildren alongside the rest of
// sess's queue state.
func (s *Scheduler) PendingChildren(sess *Session) []PendingContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[addr.Address]bool)
	var out []PendingContext
	for _, child := range s.pendingChildren {
		if child.sess != sess || seen[child.pc.AnswerPromise] {
			continue
		}
		seen[child.pc.AnswerPromise] = true
		out = append(out, child.pc)
	}
	return out
}

// RestorePendingChild re-registers a lazy Ask child decoded by persist. If
// either of its promises was already fulfilled before the snapshot was
// taken (a race between the last save and the child's activation), it is
// pushed ready immediately instead of deferred a second time.
func (s *Scheduler) RestorePendingChild(sess *Session, pc PendingContext) {
	if isFilled(s.DS, pc.AnswerPromise) || isFilled(s.DS, pc.WorkspacePromise) {
		sess.pushReady(pc)
		return
	}
	child := lazyChild{sess: sess, pc: pc}
	s.mu.Lock()
	s.pendingChildren[pc.AnswerPromise] = child
	s.pendingChildren[pc.WorkspacePromise] = child
	s.mu.Unlock()
}

func isFilled(ds *store.Datastore, a addr.Address) bool {
	kind, ok := ds.KindOf(a)
	return ok && kind == store.Filled
}

type noPointers struct{}

func (noPointers) ResolveID(string) (addr.Address, bool) { return addr.Address{}, false }

// Run drives sess to completion: pop ready contexts, obtain an action for
// each (from cache or the driver), apply it, and repeat until the ready
// queue drains. It returns once the root answer is Filled, or the ready
// queue is empty with parked entries remaining (a session whose last
// promise can only be fulfilled by another session sharing the datastore).
//
// Loop-prevention state (visited) is scoped to this one top-level call: a
// fresh Run starts with no rendering marked as already-replayed, so an
// earlier independent run sharing the same automation cache can never
// leave behind state that spuriously breaks this run's first replay of an
// identical rendering. Scenario 6's cycle detection only fires for a
// revisit within a single Run.
func (s *Scheduler) Run(driver Driver, sess *Session) error {
	s.mu.Lock()
	s.visited = make(map[string]bool)
	s.mu.Unlock()
	for {
		pc, ok := sess.popReady()
		if !ok {
			return nil
		}
		rendering, ids, err := hctx.RenderWithIDs(s.DS, pc.Ctx)
		if err != nil {
			return err
		}
		act, err := s.obtainAction(driver, rendering, ids)
		if err != nil {
			return err
		}
		if err := s.apply(sess, pc, act); err != nil {
			return err
		}
	}
}

// obtainAction implements §4.F step 2 plus the §4.F/§9 loop-prevention
// rule: a cached rendering is replayed silently unless it has already
// been auto-replayed once since the last real human input, in which case
// the chain is broken and the driver is consulted.
func (s *Scheduler) obtainAction(driver Driver, rendering string, lookup hypertext.PointerLookup) (action.Action, error) {
	s.mu.Lock()
	cached, hit := s.cache[rendering]
	loop := hit && s.visited[rendering]
	if hit && !loop {
		s.visited[rendering] = true
	}
	s.mu.Unlock()

	if hit && !loop {
		if obs, ok := driver.(AutomationObserver); ok {
			obs.NoteAutomationReplay(rendering)
		}
		logging.InfoX("scheduler", "automation replay", "rendering", shorten(rendering))
		return cached, nil
	}
	if loop {
		logging.WarnAutomationLoop(rendering)
	}

	for {
		text, err := driver.Prompt(rendering)
		if err != nil {
			return action.Action{}, err
		}
		act, perr := action.Parse(text, lookup, s.DS)
		if perr != nil {
			driver.ReportError(perr)
			continue
		}
		s.mu.Lock()
		s.cache[rendering] = act
		s.visited = make(map[string]bool)
		s.mu.Unlock()
		return act, nil
	}
}

func shorten(s string) string {
	if len(s) > 40 {
		return s[:40] + "…"
	}
	return s
}

func (s *Scheduler) apply(sess *Session, pc PendingContext, act action.Action) error {
	switch act.Kind {
	case action.Ask:
		return s.applyAsk(sess, pc, act)
	case action.Scratch:
		return s.applyScratch(sess, pc, act)
	case action.Unlock:
		return s.applyUnlock(sess, pc, act)
	case action.Reply:
		return s.applyReply(sess, pc, act)
	default:
		return nil
	}
}

// applyAsk implements 4.D/4.F Ask: a successor workspace gains a trailing
// sub-entry whose sub-answer and sub-workspace are fresh promises, and a
// sibling child context is opened rooted at a new workspace whose question
// is the sub-question and whose predecessor is the *current* workspace.
//
// Per §1/§8 scenario 3, the child is lazy: it is never enqueued here. It is
// only registered as pending, and reaches the ready queue the first time
// something observes it by unlocking $a<i> or $w<i> (see applyUnlock /
// activateLazyChild) — a sub-question asked and never unlocked is never
// run at all.
func (s *Scheduler) applyAsk(sess *Session, pc PendingContext, act action.Action) error {
	subA := s.DS.AllocatePromise()
	subW := s.DS.AllocatePromise()

	successorWS, err := workspace.WithNewSubEntry(s.DS, s.DS, pc.Ctx.Workspace, hypertext.SubEntry{Q: act.Content, A: subA, W: subW})
	if err != nil {
		return err
	}
	childScratch := s.DS.AllocateFilled(hypertext.NewRawText(""))
	childWS := workspace.New(s.DS, pc.Ctx.Workspace, act.Content, childScratch)

	sess.pushReady(PendingContext{
		Ctx:              hctx.Default(s.DS, successorWS),
		AnswerPromise:    pc.AnswerPromise,
		WorkspacePromise: pc.WorkspacePromise,
	})

	child := lazyChild{
		sess: sess,
		pc: PendingContext{
			Ctx:              hctx.Default(s.DS, childWS),
			AnswerPromise:    subA,
			WorkspacePromise: subW,
		},
	}
	s.mu.Lock()
	s.pendingChildren[subA] = child
	s.pendingChildren[subW] = child
	s.mu.Unlock()
	return nil
}

// activateLazyChild enqueues a to its session's ready queue the first time a
// matches a pending child's sub-answer or sub-workspace address, and is a
// no-op otherwise (a is Filled already, or names no deferred child).
func (s *Scheduler) activateLazyChild(a addr.Address) {
	s.mu.Lock()
	child, ok := s.pendingChildren[a]
	if ok {
		delete(s.pendingChildren, child.pc.AnswerPromise)
		delete(s.pendingChildren, child.pc.WorkspacePromise)
	}
	s.mu.Unlock()
	if ok {
		child.sess.pushReady(child.pc)
	}
}

// applyScratch implements 4.D Scratch: a successor workspace with a
// replaced scratchpad address, and a fresh default context over it.
func (s *Scheduler) applyScratch(sess *Session, pc PendingContext, act action.Action) error {
	nextWS, err := workspace.WithScratchpad(s.DS, s.DS, pc.Ctx.Workspace, act.Content)
	if err != nil {
		return err
	}
	sess.pushReady(PendingContext{
		Ctx:              hctx.Default(s.DS, nextWS),
		AnswerPromise:    pc.AnswerPromise,
		WorkspacePromise: pc.WorkspacePromise,
	})
	return nil
}

// applyUnlock implements 4.D/4.F Unlock: the successor context's unlocked
// set gains the named address. If it's already Filled the successor is
// immediately ready; otherwise it parks until an await token fires.
func (s *Scheduler) applyUnlock(sess *Session, pc PendingContext, act action.Action) error {
	next := PendingContext{
		Ctx:              pc.Ctx.Unlock(act.Pointer),
		AnswerPromise:    pc.AnswerPromise,
		WorkspacePromise: pc.WorkspacePromise,
	}
	token := store.Token(uuid.New().String())
	if s.DS.Await(act.Pointer, token) {
		sess.pushReady(next)
		return nil
	}
	s.activateLazyChild(act.Pointer)
	sess.Parked[token] = ParkedEntry{Pending: next, Awaited: act.Pointer}
	s.mu.Lock()
	s.tokenOwner[token] = sess
	s.mu.Unlock()
	logging.InfoX("scheduler", "parked context", "session", sess.ID, "awaiting", act.Pointer)
	return nil
}

// applyReply implements 4.D/4.F Reply: the current context's answer
// promise is fulfilled with the reply content, and — per the §9 design
// decision — its sub-workspace promise (if any) is fulfilled in the same
// step with the replying context's current workspace content. The context
// itself is discarded: nothing is re-enqueued.
func (s *Scheduler) applyReply(sess *Session, pc PendingContext, act action.Action) error {
	content, ok := s.DS.Lookup(act.Content)
	if !ok {
		return errUnfilledReply
	}
	toks, err := s.DS.Fulfil(pc.AnswerPromise, content)
	if err != nil {
		return err
	}
	s.wake(toks)

	if !pc.WorkspacePromise.IsZero() {
		wsContent, ok := s.DS.Lookup(pc.Ctx.Workspace)
		if !ok {
			return errUnfilledReply
		}
		toks, err := s.DS.Fulfil(pc.WorkspacePromise, wsContent)
		if err != nil {
			return err
		}
		s.wake(toks)
	}
	return nil
}

// wake delivers each token to the session that parked it — not
// necessarily the session currently running — and moves its entry from
// parked back to that session's ready queue.
func (s *Scheduler) wake(toks []store.Token) {
	for _, t := range toks {
		s.mu.Lock()
		owner, ok := s.tokenOwner[t]
		if ok {
			delete(s.tokenOwner, t)
		}
		s.mu.Unlock()
		if !ok {
			continue
		}
		entry, ok := owner.Parked[t]
		if !ok {
			continue
		}
		delete(owner.Parked, t)
		owner.pushReady(entry.Pending)
	}
}
