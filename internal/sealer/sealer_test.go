package sealer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newSealer(t *testing.T, key []byte) *Sealer {
	s, err := New(key)
	require.NoError(t, err)
	return s
}

func TestSealRoundTrip(t *testing.T) {
	s := newSealer(t, testKey)

	sealed, err := s.Seal("011000015")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, "011000015")

	again, err := s.Seal("011000015")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "each seal uses a fresh nonce")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "011000015", plain)
}

func TestSealEmptyAndNil(t *testing.T) {
	s := newSealer(t, testKey)

	sealed, err := s.Seal("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	plain, err := s.Open("")
	require.NoError(t, err)
	assert.Empty(t, plain)

	ptr, err := s.SealPtr(nil)
	require.NoError(t, err)
	assert.Nil(t, ptr)

	ptr, err = s.OpenPtr(nil)
	require.NoError(t, err)
	assert.Nil(t, ptr)
}

func TestOpenRejectsForeignValues(t *testing.T) {
	s := newSealer(t, testKey)

	_, err := s.Open("011000015")
	assert.ErrorIs(t, err, ErrNotSealed)

	sealed, err := s.Seal("123456789")
	require.NoError(t, err)

	other := newSealer(t, []byte("fedcba9876543210fedcba9876543210"))
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrTamperedValue)

	flipped := []byte(sealed)
	i := len(sealedPrefix) + 4
	if flipped[i] == 'A' {
		flipped[i] = 'B'
	} else {
		flipped[i] = 'A'
	}
	_, err = s.Open(string(flipped))
	assert.ErrorIs(t, err, ErrTamperedValue)
}

func TestFingerprint(t *testing.T) {
	s := newSealer(t, testKey)
	key := "011000015|123456789|1042|125.00"

	fp := s.Fingerprint(key)
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, s.Fingerprint(key))
	assert.NotEqual(t, fp, s.Fingerprint("011000015|123456789|1042|125.01"))
	assert.NotContains(t, fp, "011000015")

	other := newSealer(t, []byte("fedcba9876543210fedcba9876543210"))
	assert.NotEqual(t, fp, other.Fingerprint(key))
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	for _, bad := range []string{"", "zz", "0001020304"} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}

	_, err = New([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}
