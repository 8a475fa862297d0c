package blob

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), maxBytes)
	require.NoError(t, err)
	return s
}

// TestWriteReadRoundTrip uploads bytes and reads them back by digest
func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t, 1<<20)
	payload := []byte("workshop blob payload")

	digest, size, err := s.Write(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), size)
	assert.True(t, ValidDigest(digest))

	rc, err := s.Open(digest)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

// TestWriteIdempotent verifies uploading the same content twice returns the same digest
func TestWriteIdempotent(t *testing.T) {
	s := newTestStore(t, 1<<20)
	payload := []byte("same bytes")

	d1, _, err := s.Write(bytes.NewReader(payload))
	require.NoError(t, err)
	d2, _, err := s.Write(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

// TestWriteTooLarge rejects uploads past the configured maximum
func TestWriteTooLarge(t *testing.T) {
	s := newTestStore(t, 16)

	_, _, err := s.Write(strings.NewReader(strings.Repeat("x", 17)))
	assert.ErrorIs(t, err, ErrTooLarge)

	// Exactly at the limit is accepted
	_, _, err = s.Write(strings.NewReader(strings.Repeat("x", 16)))
	assert.NoError(t, err)
}

// TestOpenBadDigest rejects malformed digests before touching the filesystem
func TestOpenBadDigest(t *testing.T) {
	s := newTestStore(t, 1<<20)

	tests := []struct {
		name   string
		digest string
	}{
		{name: "path traversal", digest: "sha256:../../etc/passwd"},
		{name: "uppercase hex", digest: "sha256:" + strings.Repeat("A", 64)},
		{name: "short hex", digest: "sha256:" + strings.Repeat("a", 63)},
		{name: "wrong algorithm", digest: "md5:" + strings.Repeat("a", 32)},
		{name: "empty", digest: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Open(tt.digest)
			assert.ErrorIs(t, err, ErrBadDigest)
		})
	}
}

// TestOpenMissing returns ErrNotFound for a well-formed but absent digest
func TestOpenMissing(t *testing.T) {
	s := newTestStore(t, 1<<20)

	_, err := s.Open("sha256:" + strings.Repeat("0", 64))
	assert.ErrorIs(t, err, ErrNotFound)
}
