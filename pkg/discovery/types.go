package discovery

import (
	"errors"
	"fmt"
	"time"
)

// mDNS service constants.
const (
	// ServiceType is the service type advertised by servers.
	ServiceType = "_wsbase._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// ProtocolVersion is the wire protocol version announced in TXT
	// records. Browsers skip entries announcing a different version.
	ProtocolVersion = 1
)

// TXT record keys.
const (
	TXTKeyVersion = "pv"   // protocol version
	TXTKeyTLS     = "tls"  // "1" when the endpoint expects wss
	TXTKeyPath    = "path" // websocket path (optional, defaults to /ws)
	TXTKeyName    = "name" // human-readable service name (optional)
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// BrowseTimeout is the default timeout for one-shot lookups.
	BrowseTimeout = 10 * time.Second
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required TXT field")
	ErrVersionMismatch     = errors.New("protocol version mismatch")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
)

// Announcement describes a service as advertised over mDNS.
type Announcement struct {
	// InstanceName is the mDNS instance label.
	InstanceName string

	// Port the server listens on.
	Port uint16

	// TLS reports whether the endpoint expects wss.
	TLS bool

	// Path is the websocket path, defaulting to "/ws".
	Path string

	// Name is an optional human-readable service name.
	Name string
}

// Service is a discovered server.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string
	TLS          bool
	Path         string
	Name         string
}

// URL returns the websocket URL for connecting to addr, one of the
// service's discovered addresses.
func (s *Service) URL(addr string) string {
	scheme := "ws"
	if s.TLS {
		scheme = "wss"
	}
	path := s.Path
	if path == "" {
		path = "/ws"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, addr, s.Port, path)
}

// ValidateInstanceName checks that a name fits in a DNS label.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
