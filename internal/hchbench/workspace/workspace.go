// Package workspace implements component C: pure constructors over
// hypertext.Workspace. Every constructor interns its result through an
// Allocator, so every update produces a new, content-addressed workspace
// with the previous one recorded as its predecessor — workspaces are
// themselves hypertext, never mutated in place.
package workspace

import (
	"github.com/kiosk404/hchbench/internal/hchbench/addr"
	"github.com/kiosk404/hchbench/internal/hchbench/errno"
	"github.com/kiosk404/hchbench/internal/hchbench/hypertext"
)

var errUnknownWorkspace = errno.ErrUnknownAddress

// Allocator is the subset of the datastore that workspace construction
// needs: intern a piece of content and get back its address.
type Allocator interface {
	AllocateFilled(h hypertext.Hypertext) addr.Address
}

// New interns the initial workspace for a root or child question: the given
// predecessor (none when it is the zero Address, as for a root question),
// the given question and scratchpad addresses, no sub-entries yet.
func New(alloc Allocator, predecessor, question, scratchpad addr.Address) addr.Address {
	ws := hypertext.Workspace{
		Predecessor: hypertext.WithPredecessor(predecessor),
		Question:    question,
		Scratchpad:  scratchpad,
	}
	return alloc.AllocateFilled(ws)
}

// Get fetches the Workspace record at a, resolving through aliases first.
func Get(r hypertext.Resolver, a addr.Address) (hypertext.Workspace, bool) {
	h, ok := r.Lookup(a)
	if !ok {
		return hypertext.Workspace{}, false
	}
	ws, ok := h.(hypertext.Workspace)
	return ws, ok
}

// WithNewSubEntry returns a new workspace address: a copy of the workspace
// at current with one additional trailing sub-entry appended. The new
// workspace's predecessor is current itself, recording the immutable
// update chain.
func WithNewSubEntry(alloc Allocator, r hypertext.Resolver, current addr.Address, entry hypertext.SubEntry) (addr.Address, error) {
	ws, ok := Get(r, current)
	if !ok {
		return addr.Address{}, errUnknownWorkspace
	}
	subs := append(append([]hypertext.SubEntry{}, ws.Subs...), entry)
	next := hypertext.Workspace{
		Predecessor: hypertext.WithPredecessor(current),
		Question:    ws.Question,
		Scratchpad:  ws.Scratchpad,
		Subs:        subs,
	}
	return alloc.AllocateFilled(next), nil
}

// WithScratchpad returns a new workspace address identical to current
// except for a replaced scratchpad address, recording current as the
// predecessor.
func WithScratchpad(alloc Allocator, r hypertext.Resolver, current, scratchpad addr.Address) (addr.Address, error) {
	ws, ok := Get(r, current)
	if !ok {
		return addr.Address{}, errUnknownWorkspace
	}
	next := hypertext.Workspace{
		Predecessor: hypertext.WithPredecessor(current),
		Question:    ws.Question,
		Scratchpad:  scratchpad,
		Subs:        append([]hypertext.SubEntry{}, ws.Subs...),
	}
	return alloc.AllocateFilled(next), nil
}
