package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiosk404/hchbench/internal/hchbench/action"
	"github.com/kiosk404/hchbench/internal/hchbench/addr"
	"github.com/kiosk404/hchbench/internal/hchbench/hypertext"
	"github.com/kiosk404/hchbench/internal/hchbench/store"
)

// scriptedDriver answers with the next line of a fixed script regardless of
// the rendering it is shown, fails the test if the script runs dry, and
// records every ReportError for the test to inspect.
type scriptedDriver struct {
	t        *testing.T
	script   []string
	i        int
	prompted int
	errors   []error
}

func (d *scriptedDriver) Prompt(rendering string) (string, error) {
	d.prompted++
	require.Less(d.t, d.i, len(d.script), "driver script exhausted, rendering:\n%s", rendering)
	line := d.script[d.i]
	d.i++
	return line, nil
}

func (d *scriptedDriver) ReportError(err error) {
	d.errors = append(d.errors, err)
}

func renderOf(t *testing.T, ds *store.Datastore, a addr.Address) string {
	t.Helper()
	h, ok := ds.Lookup(a)
	require.True(t, ok)
	return hypertext.Render(h, func(ra addr.Address) string { return ra.String() })
}

func TestRunImmediateReply(t *testing.T) {
	ds := store.New()
	s := New(ds)
	sess, err := s.NewRootSession("what is 2+2?")
	require.NoError(t, err)

	d := &scriptedDriver{t: t, script: []string{"reply 4"}}
	require.NoError(t, s.Run(d, sess))

	assert.True(t, sess.Done(ds))
	assert.Equal(t, "4", renderOf(t, ds, sess.RootAnswer))
	assert.Equal(t, 1, d.prompted)
}

func TestRunAskUnlockReplyRoundTrip(t *testing.T) {
	ds := store.New()
	s := New(ds)
	sess, err := s.NewRootSession("what is 2+2?")
	require.NoError(t, err)

	d := &scriptedDriver{t: t, script: []string{
		"ask what is 1+1?",
		"unlock $a1",
		"reply 2",
		"reply 4",
	}}
	require.NoError(t, s.Run(d, sess))

	assert.True(t, sess.Done(ds))
	assert.Equal(t, "4", renderOf(t, ds, sess.RootAnswer))
	assert.Equal(t, 0, sess.ParkedLen())
	assert.Equal(t, 0, sess.ReadyLen())
}

func TestUnlockOnUnfilledAddressParksSession(t *testing.T) {
	ds := store.New()
	s := New(ds)
	sess, err := s.NewRootSession("q?")
	require.NoError(t, err)

	pc, ok := sess.popReady()
	require.True(t, ok)

	shared := ds.AllocatePromise()
	require.NoError(t, s.applyUnlock(sess, pc, action.Action{Kind: action.Unlock, Pointer: shared}))

	assert.False(t, sess.Done(ds))
	assert.Equal(t, 1, sess.ParkedLen())
	assert.Equal(t, 0, sess.ReadyLen())
}

func TestRunReportsParseErrorAndReprompts(t *testing.T) {
	ds := store.New()
	s := New(ds)
	sess, err := s.NewRootSession("q?")
	require.NoError(t, err)

	d := &scriptedDriver{t: t, script: []string{
		"frobnicate nonsense",
		"reply fixed",
	}}
	require.NoError(t, s.Run(d, sess))

	assert.True(t, sess.Done(ds))
	assert.Len(t, d.errors, 1)
	assert.Equal(t, 2, d.prompted)
}

func TestAutomationCacheReplaysIdenticalRendering(t *testing.T) {
	ds := store.New()
	s := New(ds)

	sess1, err := s.NewRootSession("what is 2+2?")
	require.NoError(t, err)
	d1 := &scriptedDriver{t: t, script: []string{"reply 4"}}
	require.NoError(t, s.Run(d1, sess1))
	assert.Equal(t, 1, d1.prompted)

	sess2, err := s.NewRootSession("what is 2+2?")
	require.NoError(t, err)
	d2 := &scriptedDriver{t: t, script: nil}
	require.NoError(t, s.Run(d2, sess2))

	assert.Equal(t, 0, d2.prompted, "identical rendering should be replayed from the automation cache")
	assert.True(t, sess2.Done(ds))
	assert.Equal(t, "4", renderOf(t, ds, sess2.RootAnswer))
}

// observingDriver wraps scriptedDriver and implements AutomationObserver, so
// TestAutomationReplayNotifiesObserver can count how many times the
// scheduler actually reports a cache hit.
type observingDriver struct {
	*scriptedDriver
	replays int
}

func (d *observingDriver) NoteAutomationReplay(rendering string) {
	d.replays++
}

func TestAutomationReplayNotifiesObserver(t *testing.T) {
	ds := store.New()
	s := New(ds)

	sess1, err := s.NewRootSession("what is 2+2?")
	require.NoError(t, err)
	d1 := &observingDriver{scriptedDriver: &scriptedDriver{t: t, script: []string{"reply 4"}}}
	require.NoError(t, s.Run(d1, sess1))
	assert.Equal(t, 0, d1.replays, "a real prompt is not a replay")

	sess2, err := s.NewRootSession("what is 2+2?")
	require.NoError(t, err)
	d2 := &observingDriver{scriptedDriver: &scriptedDriver{t: t, script: nil}}
	require.NoError(t, s.Run(d2, sess2))
	assert.Equal(t, 0, d2.prompted)
	assert.Equal(t, 1, d2.replays, "an AutomationObserver driver must be notified of the cache hit")
}

// TestAutomationReplayNeverBreaksAcrossIndependentRuns confirms visited is
// scoped to one top-level Run: replaying an identical rendering across any
// number of separate, independent Run calls stays silent every time, since
// none of them ever actually revisits the rendering within one Run.
func TestAutomationReplayNeverBreaksAcrossIndependentRuns(t *testing.T) {
	ds := store.New()
	s := New(ds)

	sess1, err := s.NewRootSession("what is 2+2?")
	require.NoError(t, err)
	d1 := &scriptedDriver{t: t, script: []string{"reply 4"}}
	require.NoError(t, s.Run(d1, sess1))

	for i := 0; i < 3; i++ {
		sess, err := s.NewRootSession("what is 2+2?")
		require.NoError(t, err)
		d := &scriptedDriver{t: t, script: nil}
		require.NoError(t, s.Run(d, sess))
		assert.Equal(t, 0, d.prompted, "run %d: a fresh Run must not inherit another Run's visited state", i)
	}
}

// TestObtainActionDetectsAutomationLoopWithinOneRun exercises scenario 6's
// actual failure mode directly: two distinct cached renderings visited in a
// C1 -> C2 -> C1 cycle within a single Run (modeled here across direct
// obtainAction calls sharing one Scheduler, the white-box equivalent of one
// Run). The first visit to each rendering replays silently; revisiting C1 a
// second time before any real driver input breaks the loop.
func TestObtainActionDetectsAutomationLoopWithinOneRun(t *testing.T) {
	ds := store.New()
	s := New(ds)
	s.cache["C1"] = action.Action{Kind: action.Reply, Content: ds.AllocateFilled(hypertext.NewRawText("c1"))}
	s.cache["C2"] = action.Action{Kind: action.Reply, Content: ds.AllocateFilled(hypertext.NewRawText("c2"))}

	d := &scriptedDriver{t: t, script: []string{"reply again"}}

	_, err := s.obtainAction(d, "C1", noPointers{})
	require.NoError(t, err)
	assert.Equal(t, 0, d.prompted, "first visit to C1 replays silently from cache")

	_, err = s.obtainAction(d, "C2", noPointers{})
	require.NoError(t, err)
	assert.Equal(t, 0, d.prompted, "C2 has not been visited yet this run")

	_, err = s.obtainAction(d, "C1", noPointers{})
	require.NoError(t, err)
	assert.Equal(t, 1, d.prompted, "revisiting C1 within the same run must break the automation loop")
}

// TestAskChildIsNeverVisitedUntilUnlocked is scenario 3 ("Laziness"): a
// sub-question that is asked but whose sub-answer/sub-workspace is never
// unlocked must never reach the driver. Here the root asks A, then asks B
// without ever unlocking A's answer; only B's answer is unlocked, so only
// B's child context runs.
func TestAskChildIsNeverVisitedUntilUnlocked(t *testing.T) {
	ds := store.New()
	s := New(ds)
	sess, err := s.NewRootSession("root?")
	require.NoError(t, err)

	d := &scriptedDriver{t: t, script: []string{
		"ask what is 1+1?",
		"ask what is 2+2?",
		"unlock $a2",
		"reply ok",
		"reply done",
	}}
	require.NoError(t, s.Run(d, sess))

	assert.True(t, sess.Done(ds))
	assert.Equal(t, "done", renderOf(t, ds, sess.RootAnswer))
	assert.Equal(t, 5, d.prompted, "child A's context must never be prompted")

	require.Len(t, s.pendingChildren, 2, "child A's answer and workspace promise are still deferred")
	for a := range s.pendingChildren {
		kind, ok := ds.KindOf(a)
		require.True(t, ok)
		assert.Equal(t, store.Pending, kind, "child A was never activated, so its promises are untouched")
	}
}

// TestCrossSessionWakeUp exercises the §5 rule that a promise may be
// fulfilled by a Reply from a session other than the one that parked on
// it: sessA parks on a shared address via applyUnlock, then sessB's
// applyReply fulfils that same address and must wake sessA through the
// scheduler's tokenOwner map, not sessB's own queue.
func TestCrossSessionWakeUp(t *testing.T) {
	ds := store.New()
	s := New(ds)

	sessA, err := s.NewRootSession("what does someone else know?")
	require.NoError(t, err)
	pcA, ok := sessA.popReady()
	require.True(t, ok)

	shared := ds.AllocatePromise()
	require.NoError(t, s.applyUnlock(sessA, pcA, action.Action{Kind: action.Unlock, Pointer: shared}))
	assert.Equal(t, 1, sessA.ParkedLen())
	assert.Equal(t, 0, sessA.ReadyLen())

	sessB, err := s.NewRootSession("a different question entirely")
	require.NoError(t, err)
	pcB, ok := sessB.popReady()
	require.True(t, ok)
	pcB.AnswerPromise = shared

	reply := ds.AllocateFilled(hypertext.NewRawText("42"))
	require.NoError(t, s.applyReply(sessB, pcB, action.Action{Kind: action.Reply, Content: reply}))

	assert.Equal(t, 0, sessA.ParkedLen(), "sessA's wait on the shared address must be cleared")
	require.Equal(t, 1, sessA.ReadyLen(), "sessA, not sessB, must be the one woken")

	woken, ok := sessA.popReady()
	require.True(t, ok)
	assert.True(t, woken.Ctx.Unlocked[shared])
}
