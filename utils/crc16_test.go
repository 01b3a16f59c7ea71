package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumRoundTrip(t *testing.T) {
	payload := []byte("chunk snapshot body")

	framed := AppendChecksum(payload)
	require.Len(t, framed, len(payload)+2)

	body, err := VerifyChecksum(framed)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestChecksumDetectsCorruption(t *testing.T) {
	framed := AppendChecksum([]byte("chunk snapshot body"))
	framed[3] ^= 0x01

	_, err := VerifyChecksum(framed)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestChecksumTooShort(t *testing.T) {
	_, err := VerifyChecksum([]byte{0x01})
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestSplitHostPort(t *testing.T) {
	host, port, err := SplitHostPort("alpha:5100")
	require.NoError(t, err)
	assert.Equal(t, "alpha", host)
	assert.Equal(t, 5100, port)

	for _, bad := range []string{"alpha", "alpha:notaport", "alpha:99999"} {
		_, _, err := SplitHostPort(bad)
		assert.Error(t, err, bad)
	}
}
