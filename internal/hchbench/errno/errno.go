// Package errno defines the sentinel and fatal error kinds of the HCH core.
package errno

import "errors"

var (
	// ErrUnknownAddress is returned when an address has no slot in the datastore.
	ErrUnknownAddress = errors.New("hchbench: unknown address")

	// ErrDoubleFulfil is returned when fulfil is called on a non-Pending slot.
	// Fatal: indicates a scheduler bug.
	ErrDoubleFulfil = errors.New("hchbench: fulfil called on a non-pending slot")

	// ErrAliasCycle is the panic value raised if alias resolution fails to
	// terminate; cmd.Execute maps it to the fatal exit code.
	// Fatal: the datastore invariants guarantee this cannot occur.
	ErrAliasCycle = errors.New("hchbench: alias chain did not terminate")

	// ErrParse is returned for malformed action or hypertext text.
	// Recovered locally: reported to the driver, no state change.
	ErrParse = errors.New("hchbench: parse error")

	// ErrUnknownPointer is returned when a pointer-ID is not visible in the
	// current context. Recovered locally.
	ErrUnknownPointer = errors.New("hchbench: unknown pointer")

	// ErrSessionNotFound is returned by session repositories.
	ErrSessionNotFound = errors.New("hchbench: session not found")

	// ErrNoReadyContext is returned when a session has nothing ready and
	// nothing parked either — it is finished.
	ErrNoReadyContext = errors.New("hchbench: no ready context")
)
