package ppool

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Protocol identifies the wire protocol a proxy speaks.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolHTTP
	ProtocolHTTPS
	ProtocolSOCKS4
	ProtocolSOCKS5
)

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http"
	case ProtocolHTTPS:
		return "https"
	case ProtocolSOCKS4:
		return "socks4"
	case ProtocolSOCKS5:
		return "socks5"
	default:
		return "unknown"
	}
}

// ParseProtocol maps a case-insensitive name to a Protocol. Returns
// ProtocolUnknown (and false) if the name isn't recognized.
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToLower(s) {
	case "http":
		return ProtocolHTTP, true
	case "https":
		return ProtocolHTTPS, true
	case "socks4":
		return ProtocolSOCKS4, true
	case "socks5":
		return ProtocolSOCKS5, true
	default:
		return ProtocolUnknown, false
	}
}

// MarshalJSON renders Protocol as its lowercase name so snapshots and
// durable-store payloads stay human-readable.
func (p Protocol) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Protocol) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseProtocol(s)
	if !ok {
		return fmt.Errorf("unknown protocol %q", s)
	}
	*p = parsed
	return nil
}

// Identity is the immutable primary key of a Proxy Record: (host, port,
// protocol) is globally unique across the core. It's a plain comparable
// value so it can be used directly as a map key.
type Identity struct {
	Host     string
	Port     int
	Protocol Protocol
}

func (id Identity) String() string {
	return fmt.Sprintf("%s://%s:%d", id.Protocol, id.Host, id.Port)
}

// Valid reports whether the identity has a non-empty host, a port in
// 1..65535 and a known protocol. It does not resolve Host or check its
// syntax.
func (id Identity) Valid() bool {
	return id.Host != "" && id.Port > 0 && id.Port <= 65535 && id.Protocol != ProtocolUnknown
}
