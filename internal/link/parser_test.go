package link

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestParseVLess(t *testing.T) {
	target, err := Parse("vless://7f9c81ad-64a2-4b7e-a259-3f2c8c1fe481@example.com:8443?security=tls&type=ws&path=%2Ftunnel&sni=cdn.example.com#My%20Server")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Protocol != ProtocolVLess {
		t.Fatalf("protocol = %q, want vless", target.Protocol)
	}
	if target.Host != "example.com" || target.Port != 8443 {
		t.Fatalf("endpoint = %s:%d, want example.com:8443", target.Host, target.Port)
	}
	if target.Credentials.UUID != "7f9c81ad-64a2-4b7e-a259-3f2c8c1fe481" {
		t.Fatalf("uuid = %q", target.Credentials.UUID)
	}
	if target.DisplayName != "My Server" {
		t.Fatalf("display name = %q, want %q", target.DisplayName, "My Server")
	}
	if target.Security != "tls" || target.Network != "ws" || target.Path != "/tunnel" || target.SNI != "cdn.example.com" {
		t.Fatalf("transport options not preserved: %+v", target)
	}
}

func TestParseVLessDefaults(t *testing.T) {
	target, err := Parse("vless://u@1.1.1.1#A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Port != 443 {
		t.Fatalf("port = %d, want default 443", target.Port)
	}
	if target.Security != "none" || target.Network != "tcp" {
		t.Fatalf("defaults = %q/%q, want none/tcp", target.Security, target.Network)
	}
}

func TestParseRemarkNestedEncoding(t *testing.T) {
	// %2540 decodes to %40, which decodes to @.
	target, err := Parse("vless://u@example.com:443#srv%2540home")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.DisplayName != "srv@home" {
		t.Fatalf("display name = %q, want %q", target.DisplayName, "srv@home")
	}
}

func TestParseRemarkBadEscapeKeepsLastGood(t *testing.T) {
	target, err := Parse("vless://u@example.com:443#bad%zzremark")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.DisplayName != "bad%zzremark" {
		t.Fatalf("display name = %q, want raw remark", target.DisplayName)
	}
}

func TestParseEmptyRemarkFallsBackToEndpoint(t *testing.T) {
	target, err := Parse("trojan://secret@example.com:443")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.DisplayName != "example.com:443" {
		t.Fatalf("display name = %q, want host:port fallback", target.DisplayName)
	}
	if target.Credentials.Password != "secret" {
		t.Fatalf("password = %q", target.Credentials.Password)
	}
	if target.Security != "tls" {
		t.Fatalf("trojan security default = %q, want tls", target.Security)
	}
}

func TestParseVMess(t *testing.T) {
	payload := `{"add":"vm.example.com","port":"2053","ps":"VM%20One","id":"0a1b2c3d","scy":"auto","net":"ws","path":"/vm","host":"front.example.com"}`
	raw := "vmess://" + strings.TrimRight(base64.StdEncoding.EncodeToString([]byte(payload)), "=")
	target, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Host != "vm.example.com" || target.Port != 2053 {
		t.Fatalf("endpoint = %s:%d", target.Host, target.Port)
	}
	if target.Credentials.UUID != "0a1b2c3d" {
		t.Fatalf("uuid = %q", target.Credentials.UUID)
	}
	if target.DisplayName != "VM One" {
		t.Fatalf("display name = %q", target.DisplayName)
	}
	if target.Network != "ws" || target.HostHeader != "front.example.com" {
		t.Fatalf("transport options not preserved: %+v", target)
	}
}

func TestParseVMessMalformed(t *testing.T) {
	for name, raw := range map[string]string{
		"bad base64":   "vmess://!!!!",
		"bad json":     "vmess://" + base64.StdEncoding.EncodeToString([]byte("not json")),
		"missing addr": "vmess://" + base64.StdEncoding.EncodeToString([]byte(`{"port":443}`)),
		"bad port":     "vmess://" + base64.StdEncoding.EncodeToString([]byte(`{"add":"x","port":"huge"}`)),
	} {
		if _, err := Parse(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: err = %v, want ErrMalformed", name, err)
		}
	}
}

func TestParseShadowsocksUserInfoForms(t *testing.T) {
	enc := base64.URLEncoding.EncodeToString([]byte("aes-256-gcm:hunter2"))
	target, err := Parse("ss://" + enc + "@ss.example.com:8388#SS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Protocol != ProtocolShadowsocks {
		t.Fatalf("protocol = %q", target.Protocol)
	}
	if target.Credentials.Cipher != "aes-256-gcm" || target.Credentials.Password != "hunter2" {
		t.Fatalf("credentials = %+v", target.Credentials)
	}
	if target.Host != "ss.example.com" || target.Port != 8388 {
		t.Fatalf("endpoint = %s:%d", target.Host, target.Port)
	}

	plain, err := Parse("ss://chacha20-ietf-poly1305:pw@10.0.0.2:443#P")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plain.Credentials.Cipher != "chacha20-ietf-poly1305" || plain.Credentials.Password != "pw" {
		t.Fatalf("credentials = %+v", plain.Credentials)
	}
}

func TestParseShadowsocksLegacyBase64(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString([]byte("rc4-md5:pass@1.2.3.4:8388"))
	target, err := Parse("ss://" + enc + "#Legacy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Host != "1.2.3.4" || target.Port != 8388 {
		t.Fatalf("endpoint = %s:%d", target.Host, target.Port)
	}
	if target.Credentials.Cipher != "rc4-md5" || target.Credentials.Password != "pass" {
		t.Fatalf("credentials = %+v", target.Credentials)
	}
	if target.DisplayName != "Legacy" {
		t.Fatalf("display name = %q", target.DisplayName)
	}
}

func TestParseUnsupportedScheme(t *testing.T) {
	for _, raw := range []string{"bogus://x", "http://example.com", "just text"} {
		if _, err := Parse(raw); !errors.Is(err, ErrUnsupportedProtocol) {
			t.Fatalf("%q: err = %v, want ErrUnsupportedProtocol", raw, err)
		}
	}
}

func TestParseAll(t *testing.T) {
	lines := []string{
		"",
		"# subscription header",
		"vless://u@1.1.1.1:443#A",
		"// another comment",
		"bogus://x",
		"  trojan://p@2.2.2.2:443#B  ",
	}
	targets, invalid := ParseAll(lines)
	if len(targets) != 2 {
		t.Fatalf("parsed %d targets, want 2", len(targets))
	}
	if invalid != 1 {
		t.Fatalf("invalid = %d, want 1", invalid)
	}
	if targets[0].Index != 0 || targets[1].Index != 1 {
		t.Fatalf("indices = %d,%d, want 0,1", targets[0].Index, targets[1].Index)
	}
	if targets[0].DisplayName != "A" || targets[1].DisplayName != "B" {
		t.Fatalf("display names = %q,%q", targets[0].DisplayName, targets[1].DisplayName)
	}
	if targets[0].ID == targets[1].ID || targets[0].ID == "" {
		t.Fatalf("target IDs must be unique and non-empty")
	}
}

func TestParseIPv6Endpoint(t *testing.T) {
	target, err := Parse("vless://u@[2001:db8::1]:443#v6")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Host != "2001:db8::1" || target.Port != 443 {
		t.Fatalf("endpoint = %q:%d", target.Host, target.Port)
	}
	if target.Addr() != "[2001:db8::1]:443" {
		t.Fatalf("addr = %q", target.Addr())
	}
}
