package model

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// maxIDMillis is the largest timestamp a UUIDv7 can carry (48 bits).
const maxIDMillis = 1<<48 - 1

// NewID generates a time-ordered record identifier. The canonical lowercase
// form of a UUIDv7 sorts lexically in creation order, which is what the
// identity column relies on.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuidv7: %w", err)
	}
	return id.String(), nil
}

// IDFromTime synthesizes the smallest identifier that can be assigned at t.
// Every record created at or after t (to the millisecond) compares greater
// than or equal to it.
func IDFromTime(t time.Time) (string, error) {
	if t.IsZero() {
		return "", fmt.Errorf("%w: zero time", ErrInvalidID)
	}
	ms := t.UnixMilli()
	if ms < 0 || ms > maxIDMillis {
		return "", fmt.Errorf("%w: time %s out of range", ErrInvalidID, t.Format(time.RFC3339))
	}

	var id uuid.UUID
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(ms))
	copy(id[0:6], ts[2:8])
	id[6] = 0x70 // version 7
	id[8] = 0x80 // RFC 9562 variant
	return id.String(), nil
}

// ParseID parses a string as a UUIDv7 record identifier.
func ParseID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.UUID{}, fmt.Errorf("%w: empty id", ErrInvalidID)
	}

	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: %q: %v", ErrInvalidID, s, err)
	}

	if id.Version() != 7 {
		return uuid.UUID{}, fmt.Errorf("%w: %q is not UUIDv7", ErrInvalidID, s)
	}

	return id, nil
}

// IDTime returns the creation instant embedded in a UUIDv7 identifier.
func IDTime(id uuid.UUID) time.Time {
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec).UTC()
}
