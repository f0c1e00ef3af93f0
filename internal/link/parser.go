package link

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrMalformed           = errors.New("malformed link")
)

// Remarks in shared subscription lists are frequently double or triple
// percent-encoded; decoding iterates until stable, capped so crafted
// input cannot spin the loop.
const maxRemarkDecodes = 5

// Parse decodes one raw connection link into a Target. It never dials
// anything; the returned error is ErrUnsupportedProtocol for unknown
// schemes and wraps ErrMalformed for recognized schemes with broken
// payloads.
func Parse(line string) (*Target, error) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "vmess://"):
		return parseVMess(line)
	case strings.HasPrefix(line, "vless://"):
		return parseURI(line, ProtocolVLess)
	case strings.HasPrefix(line, "trojan://"):
		return parseURI(line, ProtocolTrojan)
	case strings.HasPrefix(line, "ss://"):
		return parseShadowsocks(line)
	}
	scheme := line
	if idx := strings.Index(line, "://"); idx >= 0 {
		scheme = line[:idx]
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, scheme)
}

// ParseAll parses every line, skipping blanks and comment lines
// outright. Targets come back in input order with Index assigned; the
// second return value counts lines that failed to parse.
func ParseAll(lines []string) ([]*Target, int) {
	targets := make([]*Target, 0, len(lines))
	invalid := 0
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		target, err := Parse(line)
		if err != nil {
			invalid++
			continue
		}
		target.Index = len(targets)
		targets = append(targets, target)
	}
	return targets, invalid
}

type vmessPayload struct {
	Add  string   `json:"add"`
	Port flexPort `json:"port"`
	PS   string   `json:"ps"`
	ID   string   `json:"id"`
	Scy  string   `json:"scy"`
	Net  string   `json:"net"`
	Path string   `json:"path"`
	Host string   `json:"host"`
	SNI  string   `json:"sni"`
}

// flexPort tolerates both numeric and quoted port values, which vary
// between vmess link generators.
type flexPort int

func (p *flexPort) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*p = flexPort(n)
	return nil
}

func parseVMess(line string) (*Target, error) {
	decoded, err := decodeBase64Loose(strings.TrimPrefix(line, "vmess://"))
	if err != nil {
		return nil, fmt.Errorf("%w: vmess base64: %v", ErrMalformed, err)
	}
	var payload vmessPayload
	if err := json.Unmarshal([]byte(decoded), &payload); err != nil {
		return nil, fmt.Errorf("%w: vmess payload: %v", ErrMalformed, err)
	}
	if payload.Add == "" {
		return nil, fmt.Errorf("%w: vmess payload missing address", ErrMalformed)
	}
	if payload.Port <= 0 || payload.Port > 65535 {
		return nil, fmt.Errorf("%w: vmess payload port %d", ErrMalformed, payload.Port)
	}
	t := newTarget(ProtocolVMess, line)
	t.Host = payload.Add
	t.Port = int(payload.Port)
	t.Credentials = Credentials{UUID: payload.ID}
	t.Security = defaultString(payload.Scy, "auto")
	t.Network = defaultString(payload.Net, "tcp")
	t.Path = payload.Path
	t.HostHeader = payload.Host
	t.SNI = payload.SNI
	t.DisplayName = displayName(payload.PS, t)
	return t, nil
}

func parseURI(line string, proto Protocol) (*Target, error) {
	rest, frag := splitFragment(line)
	u, err := url.Parse(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrMalformed)
	}
	port := 443
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("%w: invalid port %q", ErrMalformed, p)
		}
	}
	query := u.Query()
	t := newTarget(proto, line)
	t.Host = host
	t.Port = port
	t.Network = defaultString(query.Get("type"), "tcp")
	t.Path = query.Get("path")
	t.HostHeader = query.Get("host")
	t.SNI = query.Get("sni")
	switch proto {
	case ProtocolVLess:
		t.Credentials.UUID = u.User.Username()
		t.Security = defaultString(query.Get("security"), "none")
	case ProtocolTrojan:
		t.Credentials.Password = u.User.Username()
		t.Security = defaultString(query.Get("security"), "tls")
	}
	t.DisplayName = displayName(frag, t)
	return t, nil
}

func parseShadowsocks(line string) (*Target, error) {
	body, frag := splitFragment(strings.TrimPrefix(line, "ss://"))
	if i := strings.Index(body, "?"); i >= 0 {
		// Plugin options are not needed for reachability.
		body = body[:i]
	}
	if !strings.Contains(body, "@") {
		// Legacy form: the whole body is base64(method:password@host:port).
		decoded, err := decodeBase64Loose(body)
		if err != nil {
			return nil, fmt.Errorf("%w: ss body: %v", ErrMalformed, err)
		}
		body = decoded
	}
	at := strings.LastIndex(body, "@")
	if at < 0 {
		return nil, fmt.Errorf("%w: ss link missing endpoint", ErrMalformed)
	}
	userinfo, hostport := body[:at], body[at+1:]
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, fmt.Errorf("%w: ss endpoint: %v", ErrMalformed, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: invalid port %q", ErrMalformed, portStr)
	}
	t := newTarget(ProtocolShadowsocks, line)
	t.Host = host
	t.Port = port
	t.Network = "tcp"
	t.Credentials = shadowsocksCredentials(userinfo)
	t.DisplayName = displayName(frag, t)
	return t, nil
}

// shadowsocksCredentials splits a user-info segment that is either
// base64(method:password), a plain method:password pair, or an opaque
// password. Opaque values are kept raw rather than rejected.
func shadowsocksCredentials(userinfo string) Credentials {
	if unescaped, err := url.PathUnescape(userinfo); err == nil {
		userinfo = unescaped
	}
	if decoded, err := decodeBase64Loose(userinfo); err == nil {
		if cipher, password, ok := strings.Cut(decoded, ":"); ok {
			return Credentials{Cipher: cipher, Password: password}
		}
	}
	if cipher, password, ok := strings.Cut(userinfo, ":"); ok {
		return Credentials{Cipher: cipher, Password: password}
	}
	return Credentials{Password: userinfo}
}

// splitFragment separates the remark fragment by hand so that invalid
// percent escapes in a remark never fail the whole link.
func splitFragment(s string) (rest, frag string) {
	if i := strings.Index(s, "#"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// decodeRemark percent-decodes until the value stops changing, bounded
// by maxRemarkDecodes. A failed round keeps the last good value.
func decodeRemark(remark string) string {
	current := remark
	for i := 0; i < maxRemarkDecodes; i++ {
		decoded, err := url.PathUnescape(current)
		if err != nil || decoded == current {
			break
		}
		current = decoded
	}
	return strings.TrimSpace(current)
}

func displayName(remark string, t *Target) string {
	if name := decodeRemark(remark); name != "" {
		return name
	}
	return t.Addr()
}

func decodeBase64Loose(s string) (string, error) {
	s = strings.TrimSpace(s)
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(s)
	}
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
