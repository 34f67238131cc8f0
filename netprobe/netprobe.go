// Package netprobe reports whether the device currently has network
// connectivity. The sync path asks before paging the remote catalog so that
// an offline period leaves the stale local snapshot intact instead of
// wiping it.
package netprobe

import (
	"context"
	"net"
	"time"
)

// Prober answers "are we online right now". Implementations must be cheap:
// the scheduler may consult the prober on every sync attempt.
type Prober interface {
	Online(ctx context.Context) bool
}

// DialProber probes connectivity by opening a TCP connection to a well-known
// address. No payload is sent; the connection is closed immediately.
type DialProber struct {
	// Addr is the host:port to dial. Default: "1.1.1.1:443".
	Addr string
	// Timeout bounds the dial. Default: 3s.
	Timeout time.Duration
}

// Online reports whether the probe address is reachable.
func (p *DialProber) Online(ctx context.Context) bool {
	addr := p.Addr
	if addr == "" {
		addr = "1.1.1.1:443"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Static is a Prober with a fixed answer, for tests and for deployments
// where connectivity checking is delegated to the platform.
type Static bool

// Online returns the fixed answer.
func (s Static) Online(context.Context) bool { return bool(s) }
