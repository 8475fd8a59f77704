package discovery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTXT(t *testing.T) {
	t.Run("Minimal", func(t *testing.T) {
		txt := EncodeTXT(&Announcement{Port: 8380})
		assert.Equal(t, "1", txt[TXTKeyVersion])
		assert.Equal(t, "0", txt[TXTKeyTLS])
		assert.NotContains(t, txt, TXTKeyPath)
		assert.NotContains(t, txt, TXTKeyName)
	})

	t.Run("Full", func(t *testing.T) {
		txt := EncodeTXT(&Announcement{
			Port: 8443,
			TLS:  true,
			Path: "/custom",
			Name: "Living Room",
		})
		assert.Equal(t, "1", txt[TXTKeyTLS])
		assert.Equal(t, "/custom", txt[TXTKeyPath])
		assert.Equal(t, "Living Room", txt[TXTKeyName])
	})

	t.Run("DefaultPathOmitted", func(t *testing.T) {
		txt := EncodeTXT(&Announcement{Path: "/ws"})
		assert.NotContains(t, txt, TXTKeyPath)
	})
}

func TestDecodeTXT(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		want := &Announcement{TLS: true, Path: "/custom", Name: "Garage"}
		got, err := DecodeTXT(EncodeTXT(want))
		require.NoError(t, err)
		assert.True(t, got.TLS)
		assert.Equal(t, "/custom", got.Path)
		assert.Equal(t, "Garage", got.Name)
	})

	t.Run("MissingVersion", func(t *testing.T) {
		_, err := DecodeTXT(TXTRecordMap{TXTKeyTLS: "0"})
		assert.ErrorIs(t, err, ErrMissingRequired)
	})

	t.Run("BadVersion", func(t *testing.T) {
		_, err := DecodeTXT(TXTRecordMap{TXTKeyVersion: "abc"})
		assert.ErrorIs(t, err, ErrInvalidTXTRecord)
	})

	t.Run("VersionMismatch", func(t *testing.T) {
		_, err := DecodeTXT(TXTRecordMap{TXTKeyVersion: "99"})
		assert.ErrorIs(t, err, ErrVersionMismatch)
	})
}

func TestTXTStringConversion(t *testing.T) {
	txt := TXTRecordMap{"pv": "1", "tls": "0", "flag": ""}
	strs := TXTRecordsToStrings(txt)
	assert.Len(t, strs, 3)

	back := StringsToTXTRecords(strs)
	assert.Equal(t, "1", back["pv"])
	assert.Equal(t, "0", back["tls"])

	// Value containing '=' survives the split.
	back = StringsToTXTRecords([]string{"k=a=b"})
	assert.Equal(t, "a=b", back["k"])
}

func TestServiceURL(t *testing.T) {
	svc := &Service{Port: 8380}
	assert.Equal(t, "ws://192.168.1.5:8380/ws", svc.URL("192.168.1.5"))

	svc = &Service{Port: 8443, TLS: true, Path: "/custom"}
	assert.Equal(t, "wss://host.local:8443/custom", svc.URL("host.local"))
}

func TestValidateInstanceName(t *testing.T) {
	assert.NoError(t, ValidateInstanceName("wsbase-server"))
	assert.Error(t, ValidateInstanceName(""))
	assert.ErrorIs(t, ValidateInstanceName(strings.Repeat("x", 64)), ErrInstanceNameTooLong)
}
