// Package hctx implements component D: a Context pairs a workspace address
// with an unlocked set, assigns deterministic per-render pointer ids, and
// renders the §6 text presentation a driver reads from. It is named hctx,
// not context, to keep the standard library's context.Context unshadowed.
package hctx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kiosk404/hchbench/internal/hchbench/addr"
	"github.com/kiosk404/hchbench/internal/hchbench/hypertext"
)

// Context is (workspace_address, unlocked_set) from spec §3: the workspace
// this context is rooted at, and the subset of its structural addresses
// that have been unlocked so far. Unlocking is monotonic — nothing is ever
// removed from Unlocked.
type Context struct {
	Workspace addr.Address
	Unlocked  map[addr.Address]bool
}

// Default builds the default context for a freshly created workspace: the
// question, scratchpad, and every sub-question address start unlocked; the
// sub-answers, sub-workspaces, and predecessor start locked.
func Default(r hypertext.Resolver, ws addr.Address) Context {
	unlocked := map[addr.Address]bool{}
	w, ok := lookupWorkspace(r, ws)
	if ok {
		unlocked[w.Question] = true
		unlocked[w.Scratchpad] = true
		for _, s := range w.Subs {
			unlocked[s.Q] = true
		}
	}
	return Context{Workspace: ws, Unlocked: unlocked}
}

// Unlock returns a successor context with one more address visible. The
// workspace address is unchanged — unlocking never creates new content, it
// only widens what of the existing workspace is rendered in full.
func (c Context) Unlock(a addr.Address) Context {
	next := make(map[addr.Address]bool, len(c.Unlocked)+1)
	for k := range c.Unlocked {
		next[k] = true
	}
	next[a] = true
	return Context{Workspace: c.Workspace, Unlocked: next}
}

func lookupWorkspace(r hypertext.Resolver, a addr.Address) (hypertext.Workspace, bool) {
	h, ok := r.Lookup(a)
	if !ok {
		return hypertext.Workspace{}, false
	}
	w, ok := h.(hypertext.Workspace)
	return w, ok
}

// PointerID is a context-local display identity: either a reserved tag
// (q<i>, a<i>, w<i>, s, p) for one of the workspace's structural fields, or
// a plain sequential number for any other address the rendering surfaces.
type PointerID struct {
	Tag    string
	Index  int
	Number int
}

func (p PointerID) String() string { return "$" + p.token() }

// token is p's id string as a user would type it after "$".
func (p PointerID) token() string {
	if p.Tag == "" {
		return strconv.Itoa(p.Number)
	}
	if p.Index > 0 {
		return p.Tag + strconv.Itoa(p.Index)
	}
	return p.Tag
}

// IDMap is the full pointer-id assignment computed for one render of one
// context. It is rebuilt from scratch every time — pointer-ID assignment
// is a deterministic function of the current workspace and unlocked set,
// never state carried between renders.
type IDMap struct {
	byAddress map[addr.Address]PointerID
	byID      map[string]addr.Address
}

func (m *IDMap) Lookup(a addr.Address) (PointerID, bool) {
	id, ok := m.byAddress[a]
	return id, ok
}

// ResolveID implements hypertext.PointerLookup: it resolves a pointer-id
// token as written by a user ("3", "a1", "s", "p", ...) back to the
// address it currently names in this context's rendering.
func (m *IDMap) ResolveID(id string) (addr.Address, bool) {
	a, ok := m.byID[id]
	return a, ok
}

// Resolve renders a's pointer id. An address BuildIDs never assigned an id
// to gets the placeholder PointerID{Number: -1}, displayed as "$-1"; this
// is the case for fields of an unlocked workspace record ($w<i> or $p) that
// have no id elsewhere in the context, since BuildIDs numbers only the
// children of Raw content.
func (m *IDMap) Resolve(a addr.Address) PointerID {
	if id, ok := m.byAddress[a]; ok {
		return id
	}
	return PointerID{Number: -1}
}

// BuildIDs walks the workspace's structural fields in pre-order (question,
// scratchpad, sub-entries in order, predecessor), assigning reserved tags
// to each except the question, which gets no id of its own, and — for
// whichever of those fields are unlocked, since only their content will
// actually be shown — assigns sequential numeric ids to the child addresses
// found one level into their content when that content is Raw.
func BuildIDs(r hypertext.Resolver, w hypertext.Workspace, unlocked map[addr.Address]bool) *IDMap {
	m := &IDMap{byAddress: map[addr.Address]PointerID{}, byID: map[string]addr.Address{}}
	counter := 1

	set := func(ra addr.Address, id PointerID) {
		m.byAddress[ra] = id
		m.byID[id.token()] = ra
	}
	assignReserved := func(a addr.Address, tag string, idx int) {
		if a.IsZero() {
			return
		}
		ra := r.Resolve(a)
		if _, ok := m.byAddress[ra]; !ok {
			set(ra, PointerID{Tag: tag, Index: idx})
		}
	}
	assignNumeric := func(a addr.Address) {
		ra := r.Resolve(a)
		if _, ok := m.byAddress[ra]; ok {
			return
		}
		set(ra, PointerID{Number: counter})
		counter++
	}
	walkContent := func(a addr.Address) {
		h, ok := r.Lookup(a)
		if !ok {
			return
		}
		raw, ok := h.(hypertext.Raw)
		if !ok {
			return
		}
		for _, f := range raw.Fragments {
			if f.IsChild {
				assignNumeric(f.Child)
			}
		}
	}
	process := func(a addr.Address, tag string, idx int) {
		if a.IsZero() {
			return
		}
		if tag != "" {
			assignReserved(a, tag, idx)
		}
		if unlocked[a] {
			walkContent(a)
		}
	}

	process(w.Question, "", 0)
	process(w.Scratchpad, "s", 0)
	for i, s := range w.Subs {
		process(s.Q, "q", i+1)
		process(s.A, "a", i+1)
		process(s.W, "w", i+1)
	}
	if w.Predecessor != nil {
		process(*w.Predecessor, "p", 0)
	}
	return m
}

// lockedShow renders every child of a single piece of content as a bare
// pointer id, never expanding further — this is the single-level-unlock
// rule of §6: an unlocked field's own content is shown in full, but that
// content's embedded pointers are always shown locked.
func lockedShow(ids *IDMap, r hypertext.Resolver) func(addr.Address) string {
	return func(a addr.Address) string {
		return ids.Resolve(r.Resolve(a)).String()
	}
}

func renderOneLevel(r hypertext.Resolver, ids *IDMap, a addr.Address) string {
	h, ok := r.Lookup(a)
	if !ok {
		return "<pending>"
	}
	return hypertext.Render(h, lockedShow(ids, r))
}

func renderField(r hypertext.Resolver, ids *IDMap, unlocked map[addr.Address]bool, a addr.Address) string {
	if a.IsZero() {
		return ""
	}
	ra := r.Resolve(a)
	id := ids.Resolve(ra)
	if unlocked[a] {
		return fmt.Sprintf("[%s: %s]", id, renderOneLevel(r, ids, a))
	}
	return id.String()
}

// Render produces the §6 text presentation of c: the question and
// scratchpad content inline, one "Sub N." block per sub-entry with its
// question inline and its answer/workspace pointers shown locked or
// unlocked per c.Unlocked, and a trailing predecessor pointer if one
// exists.
func Render(r hypertext.Resolver, c Context) (string, error) {
	s, _, err := RenderWithIDs(r, c)
	return s, err
}

// RenderWithIDs is Render plus the IDMap it built, so callers that go on
// to parse a reply against this exact rendering (the scheduler, mainly)
// can resolve the driver's "$<id>" references without re-deriving ids.
func RenderWithIDs(r hypertext.Resolver, c Context) (string, *IDMap, error) {
	w, ok := lookupWorkspace(r, c.Workspace)
	if !ok {
		return "", nil, fmt.Errorf("hctx: workspace %s has no content", c.Workspace)
	}
	ids := BuildIDs(r, w, c.Unlocked)

	var b strings.Builder
	fmt.Fprintf(&b, "Question:    %s\n", renderOneLevel(r, ids, w.Question))
	fmt.Fprintf(&b, "Scratchpad:  %s\n", renderOneLevel(r, ids, w.Scratchpad))
	for i, s := range w.Subs {
		fmt.Fprintf(&b, "Sub %d. Q: %s\n", i+1, renderOneLevel(r, ids, s.Q))
		fmt.Fprintf(&b, "       A: %s   W: %s\n",
			renderField(r, ids, c.Unlocked, s.A),
			renderField(r, ids, c.Unlocked, s.W))
	}
	if w.Predecessor != nil {
		fmt.Fprintf(&b, "Predecessor: %s\n", renderField(r, ids, c.Unlocked, *w.Predecessor))
	}
	return b.String(), ids, nil
}

// VisiblePointers lists every pointer-id currently shown for c, sorted for
// stable test output and for a driver to echo back "pointers you can
// unlock" help text.
func VisiblePointers(r hypertext.Resolver, c Context) []string {
	w, ok := lookupWorkspace(r, c.Workspace)
	if !ok {
		return nil
	}
	ids := BuildIDs(r, w, c.Unlocked)
	out := make([]string, 0, len(ids.byAddress))
	for _, id := range ids.byAddress {
		out = append(out, id.String())
	}
	sort.Strings(out)
	return out
}
