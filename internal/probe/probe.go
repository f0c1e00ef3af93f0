package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/proxyutils/stabcheck/internal/link"
)

const defaultTimeout = 5 * time.Second

// FailureKind classifies why a probe attempt did not complete.
type FailureKind string

const (
	KindNone    FailureKind = ""
	KindTimeout FailureKind = "timeout"
	KindRefused FailureKind = "refused"
	KindDNS     FailureKind = "dns-failure"
	KindOther   FailureKind = "other"
)

// Result is the outcome of a single connectivity attempt. Latency is
// meaningful only when OK is true.
type Result struct {
	OK      bool
	Latency time.Duration
	Kind    FailureKind
	At      time.Time
}

// Dialer performs TCP reachability probes. A probe validates that the
// remote endpoint completes a TCP handshake within the timeout; it
// never speaks the proxy protocol itself. Every network fault becomes
// a failed Result rather than an error.
type Dialer struct {
	Timeout time.Duration
	// BindIP, when set, sources the attempt from that local address so
	// probe traffic can be steered around an active VPN tunnel. A bind
	// failure is reported as a failed probe, not a fatal error.
	BindIP net.IP
}

// Probe runs one connectivity attempt. A nil target is a programming
// error, not a runtime fault.
func (d *Dialer) Probe(ctx context.Context, target *link.Target) Result {
	if target == nil {
		panic("probe: nil target")
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	if d.BindIP != nil {
		dialer.LocalAddr = &net.TCPAddr{IP: d.BindIP}
	}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", target.Addr())
	done := time.Now()
	if err != nil {
		return Result{Kind: Classify(err), At: done}
	}
	_ = conn.Close()
	return Result{OK: true, Latency: done.Sub(start), At: done}
}

// Classify maps a dial error onto a failure kind. Resolution errors
// win over timeouts: a DNS lookup that times out is still a DNS
// failure.
func Classify(err error) FailureKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindRefused
	}
	return KindOther
}
