// Package persist implements the §6 persistent state layout contract: on
// startup, if a db path is given and the file exists, the datastore, the
// automation cache, and every session's ready/parked queues are restored
// before the root question is (re-)asked; on clean exit they are written
// back. The on-disk shape is a boltdb store: one bucket per aggregate,
// JSON-encoded records, opened once per process.
package persist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/boltdb/bolt"
	"github.com/bytedance/sonic"

	"github.com/kiosk404/hchbench/internal/hchbench/action"
	"github.com/kiosk404/hchbench/internal/hchbench/addr"
	"github.com/kiosk404/hchbench/internal/hchbench/hctx"
	"github.com/kiosk404/hchbench/internal/hchbench/scheduler"
	"github.com/kiosk404/hchbench/internal/hchbench/store"
)

var (
	bucketDatastore = []byte("datastore")
	bucketCache     = []byte("automation_cache")
	bucketSessions  = []byte("sessions")
)

const (
	keyDatastoreSnapshot = "snapshot"
	keyCacheEntries      = "entries"
)

// DB wraps a BoltDB instance holding one hchbench run's persisted state.
type DB struct {
	db *bolt.DB
}

// Open creates (or reopens) the database file at path, creating its parent
// directory and the three top-level buckets if they do not already exist.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("persist: create directory: %w", err)
		}
	}
	bdb, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("persist: open database: %w", err)
	}
	err = bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketDatastore, bucketCache, bucketSessions} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("persist: create bucket %q: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}
	return &DB{db: bdb}, nil
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error { return d.db.Close() }

// sessionRecord is the JSON shadow of a scheduler.Session's queues; the
// datastore and scheduler hold everything else a restored context needs to
// keep running.
type sessionRecord struct {
	ID              string                  `json:"id"`
	RootAnswer      uint64                  `json:"root_answer"`
	Ready           []pendingRecord         `json:"ready"`
	Parked          map[string]parkedRecord `json:"parked"`
	PendingChildren []pendingRecord         `json:"pending_children"`
}

type pendingRecord struct {
	Workspace        uint64   `json:"workspace"`
	Unlocked         []uint64 `json:"unlocked"`
	AnswerPromise    uint64   `json:"answer_promise"`
	WorkspacePromise uint64   `json:"workspace_promise"`
}

type parkedRecord struct {
	Pending pendingRecord `json:"pending"`
	Awaited uint64        `json:"awaited"`
}

func encodePending(pc scheduler.PendingContext) pendingRecord {
	rec := pendingRecord{
		Workspace:        pc.Ctx.Workspace.ID(),
		AnswerPromise:    pc.AnswerPromise.ID(),
		WorkspacePromise: pc.WorkspacePromise.ID(),
	}
	for a, on := range pc.Ctx.Unlocked {
		if on {
			rec.Unlocked = append(rec.Unlocked, a.ID())
		}
	}
	return rec
}

func decodePending(rec pendingRecord) scheduler.PendingContext {
	unlocked := make(map[addr.Address]bool, len(rec.Unlocked))
	for _, id := range rec.Unlocked {
		unlocked[addr.New(id)] = true
	}
	return scheduler.PendingContext{
		Ctx:              hctx.Context{Workspace: addr.New(rec.Workspace), Unlocked: unlocked},
		AnswerPromise:    addr.New(rec.AnswerPromise),
		WorkspacePromise: addr.New(rec.WorkspacePromise),
	}
}

// SaveSession writes sess's full queue state — including every lazy Ask
// child sched is still deferring for it — into the sessions bucket, keyed
// by session ID.
func (d *DB) SaveSession(sched *scheduler.Scheduler, sess *scheduler.Session) error {
	rec := sessionRecord{
		ID:         sess.ID,
		RootAnswer: sess.RootAnswer.ID(),
		Parked:     make(map[string]parkedRecord, sess.ParkedLen()),
	}
	for _, pc := range sess.Ready() {
		rec.Ready = append(rec.Ready, encodePending(pc))
	}
	for tok, pe := range sess.Parked {
		rec.Parked[string(tok)] = parkedRecord{Pending: encodePending(pe.Pending), Awaited: pe.Awaited.ID()}
	}
	for _, pc := range sched.PendingChildren(sess) {
		rec.PendingChildren = append(rec.PendingChildren, encodePending(pc))
	}
	data, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("persist: marshal session %s: %w", sess.ID, err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Put([]byte(sess.ID), data)
	})
}

// LoadSessions restores every session previously saved with SaveSession.
func (d *DB) LoadSessions() ([]*scheduler.Session, error) {
	var out []*scheduler.Session
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		return b.ForEach(func(k, v []byte) error {
			var rec sessionRecord
			if err := sonic.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("persist: unmarshal session %q: %w", k, err)
			}
			sess := scheduler.RestoreSession(rec.ID, addr.New(rec.RootAnswer))
			for _, pr := range rec.Ready {
				sess.RestoreReady(decodePending(pr))
			}
			for tok, pr := range rec.Parked {
				sess.RestoreParked(store.Token(tok), scheduler.ParkedEntry{
					Pending: decodePending(pr.Pending),
					Awaited: addr.New(pr.Awaited),
				})
			}
			for _, pr := range rec.PendingChildren {
				sess.RestorePendingChild(decodePending(pr))
			}
			out = append(out, sess)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSession removes a finished session's record so it is not restored
// on the next startup.
func (d *DB) DeleteSession(id string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(id))
	})
}

// SaveDatastore writes ds's full export into the datastore bucket.
func (d *DB) SaveDatastore(ds *store.Datastore) error {
	data, err := sonic.Marshal(ds.Export())
	if err != nil {
		return fmt.Errorf("persist: marshal datastore: %w", err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDatastore).Put([]byte(keyDatastoreSnapshot), data)
	})
}

// LoadDatastore restores ds in place from the datastore bucket. It reports
// false if no snapshot has ever been saved (a fresh db file).
func (d *DB) LoadDatastore(ds *store.Datastore) (bool, error) {
	var found bool
	var snap store.Snapshot
	err := d.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDatastore).Get([]byte(keyDatastoreSnapshot))
		if data == nil {
			return nil
		}
		found = true
		return sonic.Unmarshal(data, &snap)
	})
	if err != nil {
		return false, fmt.Errorf("persist: unmarshal datastore: %w", err)
	}
	if found {
		ds.Import(snap)
	}
	return found, nil
}

// SaveCache writes sched's automation cache into the cache bucket.
func (d *DB) SaveCache(sched *scheduler.Scheduler) error {
	data, err := sonic.Marshal(sched.CacheSnapshot())
	if err != nil {
		return fmt.Errorf("persist: marshal automation cache: %w", err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCache).Put([]byte(keyCacheEntries), data)
	})
}

// LoadCache restores sched's automation cache from the cache bucket, if any
// was ever saved.
func (d *DB) LoadCache(sched *scheduler.Scheduler) error {
	var entries map[string]action.Action
	err := d.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCache).Get([]byte(keyCacheEntries))
		if data == nil {
			return nil
		}
		return sonic.Unmarshal(data, &entries)
	})
	if err != nil {
		return fmt.Errorf("persist: unmarshal automation cache: %w", err)
	}
	if entries != nil {
		sched.CacheRestore(entries)
	}
	return nil
}
