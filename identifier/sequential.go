// Package identifier generates the sequential, time-ordered identifiers used for aggregates,
// entities, events and commands.
//
// Identifiers are 128-bit UUIDs in the version 7 layout: the leading 48 bits hold the Unix
// timestamp in milliseconds and the trailing bits are random. Identifiers generated later
// sort after identifiers generated earlier, also within the same millisecond, which keeps
// B-tree indexes on id columns append-mostly.
package identifier

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotTimeOrdered is returned when an identifier does not carry a timestamp.
var ErrNotTimeOrdered = errors.New("identifier is not a time-ordered (version 7) uuid")

// Generator produces new identifiers. Components take a Generator so that tests can
// supply a deterministic sequence.
type Generator func() uuid.UUID

// New returns a new time-ordered identifier. It is safe for concurrent use.
//
// uuid.NewV7 only fails when the system random source fails, which leaves the process
// unable to produce unique ids at all, so New panics in that case.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Default is the Generator backed by New.
var Default Generator = New

// Parse parses the canonical string form of an identifier.
func Parse(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// MustParse is like Parse but panics on malformed input. Meant for tests and constants.
func MustParse(s string) uuid.UUID {
	return uuid.MustParse(s)
}

// Timestamp extracts the creation time embedded in a time-ordered identifier,
// truncated to milliseconds.
func Timestamp(id uuid.UUID) (time.Time, error) {
	if id.Version() != 7 {
		return time.Time{}, ErrNotTimeOrdered
	}

	millis := int64(binary.BigEndian.Uint64(id[0:8]) >> 16) //nolint:gosec // 48-bit value

	return time.UnixMilli(millis).UTC(), nil
}

// Compare orders two identifiers by their byte representation, which for version 7
// identifiers is creation order. It returns -1, 0 or +1.
func Compare(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// Sequence returns a Generator that hands out the given identifiers in order and
// then falls back to New. Meant for tests that need predictable ids.
func Sequence(ids ...uuid.UUID) Generator {
	next := 0

	return func() uuid.UUID {
		if next < len(ids) {
			id := ids[next]
			next++

			return id
		}

		return New()
	}
}
