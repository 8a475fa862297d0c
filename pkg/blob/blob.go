package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// digestPattern is the only accepted blob identifier shape. It is checked
// before any filesystem access.
var digestPattern = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

var (
	// ErrNotFound is returned when no blob exists for a digest
	ErrNotFound = errors.New("blob not found")
	// ErrBadDigest is returned for malformed digest strings
	ErrBadDigest = errors.New("invalid hash format")
	// ErrTooLarge is returned when an upload exceeds the configured maximum
	ErrTooLarge = errors.New("payload too large")
)

// Store is a write-once content-addressed file store. Each blob lives in
// dir under a filename equal to its digest string. Blobs are never deleted.
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore creates the blob directory if needed and returns a Store
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// MaxBytes returns the configured upload size limit
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// ValidDigest reports whether digest matches sha256:<64 lowercase hex>
func ValidDigest(digest string) bool {
	return digestPattern.MatchString(digest)
}

// Write stores the bytes read from r and returns (digest, size). Storing
// the same content twice returns the same digest without error. An upload
// longer than maxBytes is rejected.
func (s *Store) Write(r io.Reader) (string, int64, error) {
	// Read one byte past the cap so oversize uploads are detected without
	// buffering the whole stream.
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", 0, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", 0, ErrTooLarge
	}

	sum := sha256.Sum256(data)
	digest := "sha256:" + hex.EncodeToString(sum[:])
	path := filepath.Join(s.dir, digest)

	if _, err := os.Stat(path); err == nil {
		// Write-once: identical content is already on disk.
		return digest, int64(len(data)), nil
	}

	// Write through a temp file so a crashed upload never leaves a
	// partial blob under its final name.
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, fmt.Errorf("failed to store blob: %w", err)
	}

	return digest, int64(len(data)), nil
}

// Open returns a reader over the blob for digest. The digest is validated
// before any filesystem access, and the resolved path must stay inside the
// blob directory.
func (s *Store) Open(digest string) (io.ReadCloser, error) {
	path, err := s.path(digest)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// path validates the digest and builds the canonical blob path
func (s *Store) path(digest string) (string, error) {
	if !ValidDigest(digest) {
		return "", ErrBadDigest
	}

	path := filepath.Join(s.dir, digest)

	// The pattern check above already excludes separators; this guards the
	// invariant even if the pattern ever loosens.
	absDir, err := filepath.Abs(s.dir)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absPath, absDir+string(os.PathSeparator)) {
		return "", ErrBadDigest
	}

	return path, nil
}
