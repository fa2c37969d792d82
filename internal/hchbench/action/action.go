// Package action implements component E: the four inert action variants
// and the §6 action-text grammar that turns a driver's raw text into one
// of them. Actions carry no behaviour of their own — the scheduler is the
// only thing that interprets a Kind.
package action

import (
	"strings"

	"github.com/kiosk404/hchbench/internal/hchbench/addr"
	"github.com/kiosk404/hchbench/internal/hchbench/errno"
	"github.com/kiosk404/hchbench/internal/hchbench/hypertext"
)

// Kind tags which of the four variants an Action carries: a
// Kind-plus-optional-payload shape.
type Kind int

const (
	Ask Kind = iota
	Reply
	Unlock
	Scratch
)

func (k Kind) String() string {
	switch k {
	case Ask:
		return "ask"
	case Reply:
		return "reply"
	case Unlock:
		return "unlock"
	case Scratch:
		return "scratch"
	default:
		return "unknown"
	}
}

// Action is a tagged variant: Content holds the interned hypertext address
// for Ask/Reply/Scratch; Pointer holds the resolved address for Unlock.
type Action struct {
	Kind    Kind
	Content addr.Address
	Pointer addr.Address
}

// Parse implements the §6 action-text grammar: "ask <hypertext>",
// "reply <hypertext>", "unlock <pointer-id>", "scratch <hypertext>". The
// hypertext payload of ask/reply/scratch is parsed and interned via
// hypertext.Parse; unlock's payload is resolved, not interned.
func Parse(text string, lookup hypertext.PointerLookup, alloc hypertext.Allocator) (Action, error) {
	verb, rest, ok := cutVerb(text)
	if !ok {
		return Action{}, errno.ErrParse
	}
	switch verb {
	case "ask":
		a, err := hypertext.Parse(rest, lookup, alloc)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: Ask, Content: a}, nil
	case "reply":
		a, err := hypertext.Parse(rest, lookup, alloc)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: Reply, Content: a}, nil
	case "scratch":
		a, err := hypertext.Parse(rest, lookup, alloc)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: Scratch, Content: a}, nil
	case "unlock":
		id, ok := cutPointerID(rest)
		if !ok {
			return Action{}, errno.ErrParse
		}
		a, ok := lookup.ResolveID(id)
		if !ok {
			return Action{}, errno.ErrUnknownPointer
		}
		return Action{Kind: Unlock, Pointer: a}, nil
	default:
		return Action{}, errno.ErrParse
	}
}

func cutVerb(text string) (verb, rest string, ok bool) {
	trimmed := strings.TrimLeft(text, " \t")
	i := strings.IndexAny(trimmed, " \t")
	if i < 0 {
		return trimmed, "", trimmed != ""
	}
	return trimmed[:i], strings.TrimLeft(trimmed[i+1:], " \t"), true
}

// cutPointerID strips the leading "$" from an unlock payload like "$a1"
// or "$3" and returns the bare id token.
func cutPointerID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "$") || len(s) < 2 {
		return "", false
	}
	return s[1:], true
}
