package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/proxyutils/stabcheck/internal/util"
)

const (
	defaultTimeout = 2 * time.Second
	icmpProtocol   = 1
)

// Checker measures uplink reachability with ICMP echoes against a
// reference host, independent of the probed targets. It distinguishes
// "every target is down" from "this machine has no connectivity",
// which a live view reports as the headline state.
type Checker struct {
	host    string
	timeout time.Duration
	logger  util.Logger

	seq atomic.Uint32
	up  atomic.Bool
	rtt atomic.Int64 // nanoseconds, 0 when down
}

func NewChecker(host string, timeout time.Duration, logger util.Logger) *Checker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Checker{host: host, timeout: timeout, logger: logger}
}

func (c *Checker) Up() bool { return c.up.Load() }

func (c *Checker) RTT() time.Duration { return time.Duration(c.rtt.Load()) }

// Watch pings the reference host once immediately and then at the
// given interval until ctx ends.
func (c *Checker) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	c.refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

func (c *Checker) refresh(ctx context.Context) {
	rtt, err := c.Ping(ctx)
	if err != nil {
		if c.up.Load() {
			c.logger.Warn("uplink check failed", "host", c.host, "error", err)
		}
		c.up.Store(false)
		c.rtt.Store(0)
		return
	}
	c.up.Store(true)
	c.rtt.Store(int64(rtt))
}

// Ping sends one ICMP echo and waits for the matching reply. It tries
// an unprivileged datagram socket first and falls back to a raw socket
// when the platform restricts those.
func (c *Checker) Ping(ctx context.Context) (time.Duration, error) {
	ip, err := resolveIPv4(ctx, c.host)
	if err != nil {
		return 0, err
	}

	network, dst := "udp4", net.Addr(&net.UDPAddr{IP: ip})
	conn, err := icmp.ListenPacket(network, "")
	if err != nil {
		network = "ip4:icmp"
		dst = &net.IPAddr{IP: ip}
		conn, err = icmp.ListenPacket(network, "")
		if err != nil {
			return 0, fmt.Errorf("health: icmp socket: %w", err)
		}
	}
	defer conn.Close()

	seq := int(c.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: seq, Seq: seq, Data: []byte("stabcheck")},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	start := time.Now()
	if _, err := conn.WriteTo(payload, dst); err != nil {
		return 0, err
	}

	buf := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return 0, err
		}
		parsed, err := icmp.ParseMessage(icmpProtocol, buf[:n])
		if err != nil {
			continue
		}
		if parsed.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := parsed.Body.(*icmp.Echo)
		if !ok {
			continue
		}
		// Datagram sockets rewrite the ID, so only the sequence is a
		// reliable match.
		if echo.Seq == seq {
			return time.Since(start), nil
		}
	}
}

func resolveIPv4(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("health: %s is not an IPv4 address", host)
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, errors.New("health: no IPv4 address for reference host")
	}
	return ips[0], nil
}
