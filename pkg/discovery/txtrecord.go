package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates TXT records for a service announcement.
func EncodeTXT(ann *Announcement) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyVersion] = strconv.Itoa(ProtocolVersion)
	if ann.TLS {
		txt[TXTKeyTLS] = "1"
	} else {
		txt[TXTKeyTLS] = "0"
	}

	if ann.Path != "" && ann.Path != "/ws" {
		txt[TXTKeyPath] = ann.Path
	}
	if ann.Name != "" {
		txt[TXTKeyName] = ann.Name
	}

	return txt
}

// DecodeTXT parses TXT records from a discovered service. Entries with
// a different protocol version are rejected with ErrVersionMismatch.
func DecodeTXT(txt TXTRecordMap) (*Announcement, error) {
	vStr, ok := txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	v, err := strconv.Atoi(vStr)
	if err != nil {
		return nil, fmt.Errorf("%w: bad version %q", ErrInvalidTXTRecord, vStr)
	}
	if v != ProtocolVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, v, ProtocolVersion)
	}

	ann := &Announcement{
		TLS:  txt[TXTKeyTLS] == "1",
		Path: txt[TXTKeyPath],
		Name: txt[TXTKeyName],
	}
	return ann, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings as
// used by mDNS libraries.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			txt[parts[0]] = ""
		}
	}
	return txt
}
