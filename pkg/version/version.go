// Package version identifies the wire protocol revision.
//
// Versions are "major.minor" strings. Two endpoints interoperate when
// their major components match; the minor component only signals
// additive capabilities. The major version is also embedded in the ALPN
// protocol identifier offered during TLS negotiation ("wsbase/N"), so
// incompatible peers part ways before the websocket upgrade.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the protocol version implemented by this library.
const Current = "1.0"

// alpnPrefix precedes the major version in ALPN identifiers.
const alpnPrefix = "wsbase/"

// ProtocolVersion is a parsed "major.minor" pair.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// Parse splits a "major.minor" string into its components. Both
// components must be decimal and fit in 16 bits.
func Parse(s string) (ProtocolVersion, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	maj, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	min, err := strconv.ParseUint(minor, 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return ProtocolVersion{Major: uint16(maj), Minor: uint16(min)}, nil
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether two versions can talk to each other, which
// requires equal major components.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// ALPNProtocol returns the ALPN identifier for a major version.
func ALPNProtocol(major uint16) string {
	return alpnPrefix + strconv.FormatUint(uint64(major), 10)
}

// MajorFromALPN recovers the major version from an ALPN identifier
// produced by ALPNProtocol.
func MajorFromALPN(alpn string) (uint16, error) {
	suffix, ok := strings.CutPrefix(alpn, alpnPrefix)
	if !ok {
		return 0, fmt.Errorf("not a wsbase ALPN protocol: %q", alpn)
	}
	major, err := strconv.ParseUint(suffix, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid major version in ALPN %q: %w", alpn, err)
	}
	return uint16(major), nil
}

// SupportedALPNProtocols lists the ALPN identifiers this library
// accepts. Currently only the major version of Current.
func SupportedALPNProtocols() []string {
	current, _ := Parse(Current)
	return []string{ALPNProtocol(current.Major)}
}
