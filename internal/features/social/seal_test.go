package social

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	s := testSealer(t)

	sealed, err := s.Seal("access-token", "42")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "access-token")

	plain, err := s.Open(sealed, "42")
	require.NoError(t, err)
	assert.Equal(t, "access-token", plain)
}

func TestSealer_RandomNonce(t *testing.T) {
	s := testSealer(t)

	a, err := s.Seal("same", "42")
	require.NoError(t, err)
	b, err := s.Seal("same", "42")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealer_WrongAssociatedData(t *testing.T) {
	s := testSealer(t)

	sealed, err := s.Seal("token", "42")
	require.NoError(t, err)

	_, err = s.Open(sealed, "43")
	assert.ErrorIs(t, err, ErrSealedCorrupt)
}

func TestSealer_WrongKey(t *testing.T) {
	sealed, err := testSealer(t).Seal("token", "42")
	require.NoError(t, err)

	other, err := NewSealer(bytes.Repeat([]byte{8}, 32))
	require.NoError(t, err)
	_, err = other.Open(sealed, "42")
	assert.ErrorIs(t, err, ErrSealedCorrupt)
}

func TestSealer_EmptyAndShort(t *testing.T) {
	s := testSealer(t)

	sealed, err := s.Seal("", "42")
	require.NoError(t, err)
	assert.Nil(t, sealed)

	plain, err := s.Open(nil, "42")
	require.NoError(t, err)
	assert.Empty(t, plain)

	_, err = s.Open([]byte{1, 2, 3}, "42")
	assert.ErrorIs(t, err, ErrSealedCorrupt)
}

func TestNewSealer_BadKey(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.Error(t, err)
}
