package link

import (
	"net"
	"strconv"

	"github.com/google/uuid"
)

// Protocol identifies the scheme a target was parsed from.
type Protocol string

const (
	ProtocolVMess       Protocol = "vmess"
	ProtocolVLess       Protocol = "vless"
	ProtocolTrojan      Protocol = "trojan"
	ProtocolShadowsocks Protocol = "shadowsocks"
)

// Credentials carries the protocol-specific secret material from a
// link. The reachability probe never reads it; it is preserved so that
// exported links stay complete.
type Credentials struct {
	UUID     string
	Password string
	Cipher   string
}

// Target is a single parsed probe endpoint. Immutable after parsing.
type Target struct {
	ID          string
	Index       int
	Protocol    Protocol
	Host        string
	Port        int
	DisplayName string
	RawLink     string
	Credentials Credentials

	// Transport options preserved from the link query or payload.
	Security   string
	Network    string
	Path       string
	HostHeader string
	SNI        string
}

// Addr returns the host:port endpoint the probe dials.
func (t *Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func newTarget(proto Protocol, rawLink string) *Target {
	return &Target{
		ID:       uuid.New().String(),
		Protocol: proto,
		RawLink:  rawLink,
	}
}
