// Package addr defines the opaque content address used throughout the
// datastore, hypertext, workspace, and context layers. It is split out as
// its own leaf package so those layers can share one address type without
// an import cycle (hypertext needs to embed addresses; the datastore needs
// to hold hypertext as slot content).
package addr

import (
	"strconv"

	"github.com/bytedance/sonic"
)

// Address is an opaque, comparable handle to a datastore slot. The zero
// Address is never allocated by a Datastore and is used as a "no address"
// sentinel for optional fields.
type Address struct {
	id uint64
}

// New wraps a raw slot id. The store and persist packages call this when
// allocating or restoring addresses.
func New(id uint64) Address { return Address{id: id} }

// ID returns the underlying numeric id, mostly for canonical-form rendering.
func (a Address) ID() uint64 { return a.id }

// IsZero reports whether a is the "no address" sentinel.
func (a Address) IsZero() bool { return a.id == 0 }

// String renders the address in its global display form, "$<n>".
func (a Address) String() string {
	return "$" + strconv.FormatUint(a.id, 10)
}

// MarshalJSON and UnmarshalJSON let sonic serialize an Address as its bare
// numeric id — the id field itself is unexported so struct tags alone
// would see nothing to encode.
func (a Address) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(a.id)
}

func (a *Address) UnmarshalJSON(data []byte) error {
	return sonic.Unmarshal(data, &a.id)
}
