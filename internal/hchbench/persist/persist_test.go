package persist

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiosk404/hchbench/internal/hchbench/addr"
	"github.com/kiosk404/hchbench/internal/hchbench/hypertext"
	"github.com/kiosk404/hchbench/internal/hchbench/scheduler"
	"github.com/kiosk404/hchbench/internal/hchbench/store"
)

// fixedDriver always answers with the same line, for tests that only need
// one prompt/response.
type fixedDriver string

func (d fixedDriver) Prompt(string) (string, error) { return string(d), nil }
func (d fixedDriver) ReportError(error)              {}

var errScriptExhausted = errors.New("persist test: driver script exhausted")

// scriptedDriver answers each successive prompt with the next scripted
// line, then errors out instead of hanging once the script runs dry — used
// here to freeze a session mid-flight, with contexts still parked or
// deferred, so SaveSession/LoadSessions has them to round-trip.
type scriptedDriver struct {
	lines []string
	i     int
}

func (d *scriptedDriver) Prompt(string) (string, error) {
	if d.i >= len(d.lines) {
		return "", errScriptExhausted
	}
	line := d.lines[d.i]
	d.i++
	return line, nil
}

func (d *scriptedDriver) ReportError(error) {}

func TestOpenCreatesBucketsAndParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()
}

func TestDatastoreRoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	defer db.Close()

	ds := store.New()
	a := ds.AllocateFilled(hypertext.NewRawText("hello"))
	p := ds.AllocatePromise()
	require.NoError(t, db.SaveDatastore(ds))

	ds2 := store.New()
	found, err := db.LoadDatastore(ds2)
	require.NoError(t, err)
	assert.True(t, found)

	h, ok := ds2.Lookup(a)
	require.True(t, ok)
	assert.Equal(t, "hello", hypertext.Render(h, func(ra addr.Address) string { return ra.String() }))

	kind, ok := ds2.KindOf(p)
	require.True(t, ok)
	assert.Equal(t, store.Pending, kind)
}

func TestLoadDatastoreReportsFalseWhenNeverSaved(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	defer db.Close()

	found, err := db.LoadDatastore(store.New())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheRoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	defer db.Close()

	ds := store.New()
	sched := scheduler.New(ds)
	sess, err := sched.NewRootSession("what is 2+2?")
	require.NoError(t, err)
	require.NoError(t, sched.Run(fixedDriver("reply 4"), sess))
	require.NoError(t, db.SaveCache(sched))

	sched2 := scheduler.New(ds)
	require.NoError(t, db.LoadCache(sched2))

	restored := sched2.CacheSnapshot()
	assert.Len(t, restored, 1)
}

func TestSessionSaveLoadDeleteRoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	defer db.Close()

	ds := store.New()
	sched := scheduler.New(ds)
	sess, err := sched.NewRootSession("q?")
	require.NoError(t, err)
	require.Len(t, sess.Ready(), 1)

	require.NoError(t, db.SaveSession(sched, sess))

	restored, err := db.LoadSessions()
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Equal(t, sess.ID, restored[0].ID)
	assert.Equal(t, sess.RootAnswer, restored[0].RootAnswer)
	assert.Len(t, restored[0].Ready(), 1)

	require.NoError(t, db.DeleteSession(sess.ID))
	restored2, err := db.LoadSessions()
	require.NoError(t, err)
	assert.Empty(t, restored2)
}

func TestParkedSessionRoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	defer db.Close()

	ds := store.New()
	sched := scheduler.New(ds)
	sess, err := sched.NewRootSession("q?")
	require.NoError(t, err)

	// "ask sub?" leaves a successor ready and defers its child. "unlock
	// $a1" parks the successor on the still-unfulfilled sub-answer, which
	// also activates the deferred child — the script then runs dry trying
	// to prompt it, leaving one parked entry behind.
	d := &scriptedDriver{lines: []string{"ask sub?", "unlock $a1"}}
	err = sched.Run(d, sess)
	require.ErrorIs(t, err, errScriptExhausted)
	require.Equal(t, 1, sess.ParkedLen())

	require.NoError(t, db.SaveSession(sched, sess))
	restored, err := db.LoadSessions()
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Len(t, restored[0].Parked, 1)

	for tok, pe := range sess.Parked {
		rpe, ok := restored[0].Parked[tok]
		require.True(t, ok)
		assert.Equal(t, pe.Awaited, rpe.Awaited)
	}
}

// TestPendingChildRoundTrip covers the deferred-child persistence path: a
// lazy Ask child that was never activated must survive a save/load round
// trip by re-registering with the scheduler that loads it, not just sit
// forgotten as an orphaned pair of Pending promises.
func TestPendingChildRoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	defer db.Close()

	ds := store.New()
	sched := scheduler.New(ds)
	sess, err := sched.NewRootSession("q?")
	require.NoError(t, err)

	// "ask sub?" leaves its child deferred; the script runs dry before
	// anything ever unlocks the sub-answer/sub-workspace to activate it.
	d := &scriptedDriver{lines: []string{"ask sub?"}}
	err = sched.Run(d, sess)
	require.ErrorIs(t, err, errScriptExhausted)
	require.Equal(t, 0, sess.ParkedLen())
	require.Len(t, sched.PendingChildren(sess), 1)

	require.NoError(t, db.SaveSession(sched, sess))
	restored, err := db.LoadSessions()
	require.NoError(t, err)
	require.Len(t, restored, 1)

	sched2 := scheduler.New(ds)
	sched2.AdoptRestoredSession(restored[0])
	assert.Len(t, sched2.PendingChildren(restored[0]), 1, "the deferred child must survive a save/load round trip")
}
