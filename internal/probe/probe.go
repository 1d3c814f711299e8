// Package probe answers whether a device is present on the local network.
package probe

import (
	"context"
	"errors"
	"net/netip"
)

// Result of a single presence probe.
type Result int

const (
	Absent Result = iota
	Present
)

func (r Result) String() string {
	if r == Present {
		return "present"
	}
	return "absent"
}

var (
	// ErrProbeFailed marks "could not probe" as opposed to "probed, not present".
	ErrProbeFailed = errors.New("probe failed")
	// ErrUnsupportedAddress is returned for addresses ARP cannot resolve.
	ErrUnsupportedAddress = errors.New("unsupported address")
)

// Prober tests reachability of a device. A timeout or a missing responder
// yields Absent with a nil error. Any other failure yields Absent and an error
// wrapping ErrProbeFailed. Implementations must not panic across this boundary.
type Prober interface {
	Probe(ctx context.Context, addr netip.Addr) (Result, error)
	Describe() string
}

// Func adapts a function to Prober.
type Func func(ctx context.Context, addr netip.Addr) (Result, error)

func (f Func) Probe(ctx context.Context, addr netip.Addr) (Result, error) { return f(ctx, addr) }
func (f Func) Describe() string                                           { return "func" }
