package store

import (
	"github.com/kiosk404/hchbench/internal/hchbench/addr"
	"github.com/kiosk404/hchbench/internal/hchbench/hypertext"
)

// The record types below are the JSON-serializable shadow of a Slot, used
// by the persist package to snapshot and restore a Datastore across a
// process restart. Waiters are deliberately not part of the shadow: they
// are scheduler bookkeeping, rebuilt by re-awaiting every restored parked
// context rather than serialized directly.

type FragmentRecord struct {
	Text    string `json:"text,omitempty"`
	Child   uint64 `json:"child,omitempty"`
	IsChild bool   `json:"is_child,omitempty"`
}

type SubEntryRecord struct {
	Q uint64 `json:"q"`
	A uint64 `json:"a"`
	W uint64 `json:"w"`
}

type HypertextRecord struct {
	Kind        string           `json:"kind"` // "raw" | "workspace"
	Fragments   []FragmentRecord `json:"fragments,omitempty"`
	Predecessor *uint64          `json:"predecessor,omitempty"`
	Question    uint64           `json:"question,omitempty"`
	Scratchpad  uint64           `json:"scratchpad,omitempty"`
	Subs        []SubEntryRecord `json:"subs,omitempty"`
}

type SlotRecord struct {
	Address uint64           `json:"address"`
	Kind    string           `json:"kind"` // "filled" | "pending" | "alias"
	Content *HypertextRecord `json:"content,omitempty"`
	Target  uint64           `json:"target,omitempty"`
}

// Snapshot is the full exported state of a Datastore.
type Snapshot struct {
	NextID uint64       `json:"next_id"`
	Slots  []SlotRecord `json:"slots"`
}

func encodeHypertext(h hypertext.Hypertext) *HypertextRecord {
	switch v := h.(type) {
	case hypertext.Raw:
		frs := make([]FragmentRecord, len(v.Fragments))
		for i, f := range v.Fragments {
			frs[i] = FragmentRecord{Text: f.Text, Child: f.Child.ID(), IsChild: f.IsChild}
		}
		return &HypertextRecord{Kind: "raw", Fragments: frs}
	case hypertext.Workspace:
		rec := &HypertextRecord{Kind: "workspace", Question: v.Question.ID(), Scratchpad: v.Scratchpad.ID()}
		if v.Predecessor != nil {
			id := v.Predecessor.ID()
			rec.Predecessor = &id
		}
		for _, s := range v.Subs {
			rec.Subs = append(rec.Subs, SubEntryRecord{Q: s.Q.ID(), A: s.A.ID(), W: s.W.ID()})
		}
		return rec
	default:
		return nil
	}
}

func decodeHypertext(rec *HypertextRecord) hypertext.Hypertext {
	switch rec.Kind {
	case "raw":
		frs := make([]hypertext.Fragment, len(rec.Fragments))
		for i, f := range rec.Fragments {
			if f.IsChild {
				frs[i] = hypertext.ChildFragment(addr.New(f.Child))
			} else {
				frs[i] = hypertext.TextFragment(f.Text)
			}
		}
		return hypertext.Raw{Fragments: frs}
	case "workspace":
		ws := hypertext.Workspace{
			Question:   addr.New(rec.Question),
			Scratchpad: addr.New(rec.Scratchpad),
		}
		if rec.Predecessor != nil {
			p := addr.New(*rec.Predecessor)
			ws.Predecessor = &p
		}
		for _, s := range rec.Subs {
			ws.Subs = append(ws.Subs, hypertext.SubEntry{Q: addr.New(s.Q), A: addr.New(s.A), W: addr.New(s.W)})
		}
		return ws
	default:
		return nil
	}
}

// Export produces a serializable snapshot of every slot and the address
// counter needed to resume allocating fresh addresses. The canonical index
// is not part of it; Import rebuilds it.
func (d *Datastore) Export() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := Snapshot{NextID: d.nextID}
	for a, s := range d.slots {
		rec := SlotRecord{Address: a.ID()}
		switch s.Kind {
		case Filled:
			rec.Kind = "filled"
			rec.Content = encodeHypertext(s.Content)
		case Pending:
			rec.Kind = "pending"
		case Alias:
			rec.Kind = "alias"
			rec.Target = s.Target.ID()
		}
		snap.Slots = append(snap.Slots, rec)
	}
	return snap
}

// Import replaces the datastore's contents with snap. The canonical index
// is rebuilt from the restored Filled slots. Pending slots come back with
// empty waiter sets; the scheduler is responsible for re-registering them.
func (d *Datastore) Import(snap Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots = make(map[addr.Address]*Slot, len(snap.Slots))
	d.canonicalIndex = make(map[string]addr.Address, len(snap.Slots))
	d.nextID = snap.NextID
	for _, rec := range snap.Slots {
		a := addr.New(rec.Address)
		switch rec.Kind {
		case "filled":
			h := decodeHypertext(rec.Content)
			d.slots[a] = &Slot{Kind: Filled, Content: h}
		case "pending":
			d.slots[a] = &Slot{Kind: Pending, Waiters: make(map[Token]struct{})}
		case "alias":
			d.slots[a] = &Slot{Kind: Alias, Target: addr.New(rec.Target)}
		}
	}
	for a, s := range d.slots {
		if s.Kind == Filled {
			canon := hypertext.Canonical(s.Content, innerResolver{d})
			d.canonicalIndex[canon] = a
		}
	}
}
