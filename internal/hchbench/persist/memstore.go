package persist

import (
	"sync"

	"github.com/bytedance/sonic"

	"github.com/kiosk404/hchbench/internal/hchbench/action"
	"github.com/kiosk404/hchbench/internal/hchbench/addr"
	"github.com/kiosk404/hchbench/internal/hchbench/scheduler"
	"github.com/kiosk404/hchbench/internal/hchbench/store"
)

// MemStore is an in-memory stand-in for DB: the same three-bucket shape
// (datastore snapshot, automation cache, session records) guarded by one
// RWMutex instead of a boltdb file, used by tests; a run without --db
// persists nothing and uses neither. It round-trips through the same JSON encoding DB uses, so a test
// exercising MemStore exercises the real (de)serialization path too.
type MemStore struct {
	mu       sync.RWMutex
	dsBlob   []byte
	cacheBlob []byte
	sessions map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string][]byte)}
}

func (m *MemStore) SaveDatastore(ds *store.Datastore) error {
	data, err := sonic.Marshal(ds.Export())
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dsBlob = data
	return nil
}

func (m *MemStore) LoadDatastore(ds *store.Datastore) (bool, error) {
	m.mu.RLock()
	blob := m.dsBlob
	m.mu.RUnlock()
	if blob == nil {
		return false, nil
	}
	var snap store.Snapshot
	if err := sonic.Unmarshal(blob, &snap); err != nil {
		return false, err
	}
	ds.Import(snap)
	return true, nil
}

func (m *MemStore) SaveCache(sched *scheduler.Scheduler) error {
	data, err := sonic.Marshal(sched.CacheSnapshot())
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheBlob = data
	return nil
}

func (m *MemStore) LoadCache(sched *scheduler.Scheduler) error {
	m.mu.RLock()
	blob := m.cacheBlob
	m.mu.RUnlock()
	if blob == nil {
		return nil
	}
	var entries map[string]action.Action
	if err := sonic.Unmarshal(blob, &entries); err != nil {
		return err
	}
	sched.CacheRestore(entries)
	return nil
}

func (m *MemStore) SaveSession(sched *scheduler.Scheduler, sess *scheduler.Session) error {
	rec := sessionRecord{RootAnswer: sess.RootAnswer.ID(), Parked: make(map[string]parkedRecord, sess.ParkedLen())}
	rec.ID = sess.ID
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
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = data
	return nil
}

func (m *MemStore) LoadSessions() ([]*scheduler.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*scheduler.Session, 0, len(m.sessions))
	for _, data := range m.sessions {
		var rec sessionRecord
		if err := sonic.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		sess := scheduler.RestoreSession(rec.ID, addr.New(rec.RootAnswer))
		for _, pr := range rec.Ready {
			sess.RestoreReady(decodePending(pr))
		}
		for tok, pr := range rec.Parked {
			sess.RestoreParked(store.Token(tok), scheduler.ParkedEntry{Pending: decodePending(pr.Pending), Awaited: addr.New(pr.Awaited)})
		}
		for _, pr := range rec.PendingChildren {
			sess.RestorePendingChild(decodePending(pr))
		}
		out = append(out, sess)
	}
	return out, nil
}

func (m *MemStore) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
