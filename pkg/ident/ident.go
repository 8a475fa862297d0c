package ident

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// entropy is shared so identifiers minted within the same millisecond are
// strictly increasing. The locked reader makes it safe from any goroutine.
var entropy = ulid.LockedMonotonicReader{
	MonotonicReader: ulid.Monotonic(rand.Reader, 0),
}

// New mints a 26-character lexicographically sortable identifier. The first
// 10 characters encode the wall-clock millisecond, the remaining 16 carry
// 80 bits of entropy. Within one process, later identifiers always sort
// after earlier ones, even inside a single millisecond.
func New() string {
	return NewAt(time.Now())
}

// NewAt mints an identifier for the given wall-clock instant
func NewAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), &entropy).String()
}

// Millis extracts the generation millisecond from an identifier
func Millis(id string) (uint64, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier %q: %w", id, err)
	}
	return u.Time(), nil
}

// Valid reports whether id is a well-formed identifier
func Valid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}
