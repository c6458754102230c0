// Package connectivity supplies the boolean "is the network up" signal
// the fetch coordinator consults before deciding between event-based
// and time-based retry.
package connectivity

import (
	"context"
	"net"
	"time"
)

// Prober answers connectivity queries by dialing a well-known address.
type Prober struct {
	addr    string
	timeout time.Duration
	dialer  *net.Dialer
}

// NewProber creates a prober against addr ("host:port").
func NewProber(addr string, timeout time.Duration) *Prober {
	return &Prober{
		addr:    addr,
		timeout: timeout,
		dialer:  &net.Dialer{},
	}
}

// Connected reports whether a TCP connection to the probe address can be
// established. The connection is closed immediately; only reachability
// matters.
func (p *Prober) Connected(ctx context.Context) bool {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(dialCtx, "tcp", p.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
