package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/mdlayher/arp"
)

// resolver is the subset of *arp.Client used by ARPProber.
type resolver interface {
	Resolve(ip netip.Addr) (net.HardwareAddr, error)
	SetDeadline(t time.Time) error
	Close() error
}

// dialFunc opens an ARP client bound to ifi.
type dialFunc func(ifi *net.Interface) (resolver, error)

func dialARP(ifi *net.Interface) (resolver, error) { return arp.Dial(ifi) }

// ARPProber resolves the device address with a broadcast ARP request on the
// link the address belongs to. It needs raw socket privileges (CAP_NET_RAW
// on Linux).
type ARPProber struct {
	// Interface forces the NIC to use. Empty selects the interface whose
	// IPv4 network contains the target.
	Interface string
	Timeout   time.Duration

	dial    dialFunc
	ifaceOf func(name string, addr netip.Addr) (*net.Interface, error)
	now     func() time.Time
}

// NewARPProber returns a prober using the system ARP client.
func NewARPProber(iface string, timeout time.Duration) *ARPProber {
	return &ARPProber{
		Interface: iface,
		Timeout:   timeout,
		dial:      dialARP,
		ifaceOf:   findInterface,
		now:       time.Now,
	}
}

func (p *ARPProber) Describe() string {
	if p.Interface != "" {
		return "arp:" + p.Interface
	}
	return "arp"
}

// Probe sends one ARP request and waits up to Timeout (or the context
// deadline, whichever is sooner) for a reply.
func (p *ARPProber) Probe(ctx context.Context, addr netip.Addr) (Result, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return Absent, fmt.Errorf("%w: %s is not IPv4", ErrUnsupportedAddress, addr)
	}
	if err := ctx.Err(); err != nil {
		return Absent, err
	}
	ifi, err := p.ifaceOf(p.Interface, addr)
	if err != nil {
		return Absent, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	c, err := p.dial(ifi)
	if err != nil {
		return Absent, fmt.Errorf("%w: dial arp on %s: %w", ErrProbeFailed, ifi.Name, err)
	}
	defer func() { _ = c.Close() }()

	deadline := p.now().Add(p.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.SetDeadline(deadline); err != nil {
		return Absent, fmt.Errorf("%w: set deadline: %w", ErrProbeFailed, err)
	}

	// Expire the deadline on cancellation so Resolve returns promptly.
	stop := context.AfterFunc(ctx, func() { _ = c.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if _, err := c.Resolve(addr); err != nil {
		if isTimeout(err) {
			// a context deadline is just the probe timeout; only
			// cancellation is reported
			if cerr := ctx.Err(); errors.Is(cerr, context.Canceled) {
				return Absent, cerr
			}
			return Absent, nil
		}
		return Absent, fmt.Errorf("%w: resolve %s: %w", ErrProbeFailed, addr, err)
	}
	return Present, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
