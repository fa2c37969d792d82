// Package hypertext implements the tree-of-fragments-and-addresses model
// (component B) and the structured workspace record it carries (component
// C's storage shape). Canonicalisation lives here too, since printing a
// hypertext's canonical form is how the datastore decides whether two
// pieces of content are the same content (interning).
package hypertext

import (
	"strconv"
	"strings"

	"github.com/bytedance/gg/gptr"

	"github.com/kiosk404/hchbench/internal/hchbench/addr"
	"github.com/kiosk404/hchbench/internal/hchbench/errno"
)

// Hypertext is either a Raw fragment tree or a Workspace record. Both are
// stored as slot content in the datastore and both have a canonical form.
type Hypertext interface {
	isHypertext()
}

// Fragment is one piece of a Raw tree: either a literal run of text or a
// reference to a child address.
type Fragment struct {
	Text    string
	Child   addr.Address
	IsChild bool
}

// TextFragment builds a literal fragment.
func TextFragment(s string) Fragment { return Fragment{Text: s} }

// ChildFragment builds a fragment that embeds another address.
func ChildFragment(a addr.Address) Fragment { return Fragment{Child: a, IsChild: true} }

// Raw is an ordered sequence of fragments: the "tree of raw fragments and
// embedded addresses" of the hypertext model.
type Raw struct {
	Fragments []Fragment
}

func (Raw) isHypertext() {}

// NewRawText builds a single-fragment Raw holding literal text.
func NewRawText(s string) Raw {
	return Raw{Fragments: []Fragment{TextFragment(s)}}
}

// SubEntry is one (sub-question, sub-answer, sub-workspace) address triple
// hanging off a Workspace, in the order they were asked.
type SubEntry struct {
	Q, A, W addr.Address
}

// Workspace is the immutable structured hypertext backing component C: an
// optional predecessor, the question and scratchpad addresses, and the
// ordered list of sub-entries opened against this workspace.
type Workspace struct {
	Predecessor *addr.Address
	Question    addr.Address
	Scratchpad  addr.Address
	Subs        []SubEntry
}

func (Workspace) isHypertext() {}

// WithPredecessor returns a copy of the optional-predecessor field helper
// used by the workspace package's constructors, the gptr.Of(...) idiom for
// "maybe present" struct fields.
func WithPredecessor(a addr.Address) *addr.Address {
	if a.IsZero() {
		return nil
	}
	return gptr.Of(a)
}

// Resolver is the datastore's view as seen by hypertext rendering: resolve
// an address through any alias chain to its canonical form, and look up
// the content currently stored there (false if still Pending).
type Resolver interface {
	Resolve(a addr.Address) addr.Address
	Lookup(a addr.Address) (Hypertext, bool)
}

// Render prints h using show to stringify every embedded child address.
// It never recurses past the addresses show itself chooses to expand —
// Raw fragments are substituted one-for-one, and Workspace fields are
// printed as a flat structural encoding. This single function backs both
// Canonical (show always prints a locked, resolved address) and the
// context-level single-level-unlock presentation (show sometimes expands).
func Render(h Hypertext, show func(addr.Address) string) string {
	switch v := h.(type) {
	case Raw:
		return renderRaw(v, show)
	case Workspace:
		return renderWorkspaceFlat(v, show)
	default:
		return ""
	}
}

func renderRaw(r Raw, show func(addr.Address) string) string {
	var b strings.Builder
	for _, f := range r.Fragments {
		if f.IsChild {
			b.WriteString(show(f.Child))
		} else {
			b.WriteString(f.Text)
		}
	}
	return b.String()
}

func renderWorkspaceFlat(w Workspace, show func(addr.Address) string) string {
	var b strings.Builder
	b.WriteString("workspace{pred:")
	if w.Predecessor != nil {
		b.WriteString(show(*w.Predecessor))
	} else {
		b.WriteString("none")
	}
	b.WriteString(" q:")
	b.WriteString(show(w.Question))
	b.WriteString(" s:")
	b.WriteString(show(w.Scratchpad))
	b.WriteString(" subs:[")
	for i, s := range w.Subs {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("{q:")
		b.WriteString(show(s.Q))
		b.WriteString(" a:")
		b.WriteString(show(s.A))
		b.WriteString(" w:")
		b.WriteString(show(s.W))
		b.WriteString("}")
	}
	b.WriteString("]}")
	return b.String()
}

// Canonical computes the printed form used for content equality and
// interning: every embedded address is resolved through r to its current
// canonical address and rendered by its bare global display form, never a
// context-local pointer id. Because this is evaluated fresh on every call
// against the resolver's live alias chains, it always reflects the current
// resolution of every embedded address, not a value cached at insertion
// time. A datastore index keyed by this string keeps the form computed when
// each entry was inserted; it is not recomputed after a later alias.
func Canonical(h Hypertext, r Resolver) string {
	show := func(a addr.Address) string {
		return "$" + strconv.FormatUint(r.Resolve(a).ID(), 10)
	}
	return Render(h, show)
}

// Allocator is the interning half of the datastore, used while parsing
// user-entered hypertext text: every "[ … ]" group is interned the moment
// its content is fully parsed, bottom-up, before the enclosing group sees
// it as a single child address.
type Allocator interface {
	AllocateFilled(h Hypertext) addr.Address
}

// PointerLookup resolves a pointer-id token (as it appears after "$" in
// user-entered text, e.g. "3" or "a1") to the address it names in the
// current context. hctx.IDMap implements this.
type PointerLookup interface {
	ResolveID(id string) (addr.Address, bool)
}

// Parse implements the §6 hypertext text grammar: a string with embedded
// "[ … ]" groups for inline children and "$<id>" references to pointers
// visible in the current context. Groups are parsed and interned
// recursively bottom-up; each "$<id>" token is resolved against lookup and
// embedded as a reference to the existing address, never re-interned.
// An unknown pointer-id fails with ErrUnknownPointer; a "$" not followed by
// an id-shaped token is kept as literal text.
func Parse(s string, lookup PointerLookup, alloc Allocator) (addr.Address, error) {
	p := &parser{src: []rune(s), lookup: lookup, alloc: alloc}
	raw, err := p.parseContent(false)
	if err != nil {
		return addr.Address{}, err
	}
	if p.pos != len(p.src) {
		return addr.Address{}, errno.ErrParse
	}
	return alloc.AllocateFilled(raw), nil
}

type parser struct {
	src    []rune
	pos    int
	lookup PointerLookup
	alloc  Allocator
}

// parseContent reads fragments until end of input (inGroup=false) or a
// closing "]" (inGroup=true, which is consumed by the caller).
func (p *parser) parseContent(inGroup bool) (Raw, error) {
	var frags []Fragment
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			frags = append(frags, TextFragment(text.String()))
			text.Reset()
		}
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case inGroup && c == ']':
			flush()
			return Raw{Fragments: frags}, nil
		case c == '[':
			p.pos++
			child, err := p.parseContent(true)
			if err != nil {
				return Raw{}, err
			}
			if p.pos >= len(p.src) || p.src[p.pos] != ']' {
				return Raw{}, errno.ErrParse
			}
			p.pos++
			flush()
			frags = append(frags, ChildFragment(p.alloc.AllocateFilled(child)))
		case c == '$':
			id, ok := p.readPointerID()
			if !ok {
				text.WriteRune(c)
				p.pos++
				continue
			}
			a, ok := p.lookup.ResolveID(id)
			if !ok {
				return Raw{}, errno.ErrUnknownPointer
			}
			flush()
			frags = append(frags, ChildFragment(a))
		default:
			text.WriteRune(c)
			p.pos++
		}
	}
	if inGroup {
		return Raw{}, errno.ErrParse
	}
	flush()
	return Raw{Fragments: frags}, nil
}

// readPointerID consumes a "$<tag><digits>" or "$<digits>" token starting
// at the current "$" and returns its id string ("a1", "3", ...), or false
// if nothing id-shaped follows (in which case "$" is treated as literal
// text rather than a parse error).
func (p *parser) readPointerID() (string, bool) {
	start := p.pos + 1
	i := start
	for i < len(p.src) && isLower(p.src[i]) {
		i++
	}
	for i < len(p.src) && isDigit(p.src[i]) {
		i++
	}
	if i == start {
		return "", false
	}
	p.pos = i
	return string(p.src[start:i]), true
}

func isLower(r rune) bool { return r >= 'a' && r <= 'z' }
func isDigit(r rune) bool { return r >= '0' && r <= '9' }
