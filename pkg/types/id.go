package types

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID returns a time-ordered identifier, a version 7 UUID in its canonical
// string form. IDs issued by one process sort in issue order, so rows
// appended with generated keys stay ordered by key.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// IDDefault is a Column.DefaultFunc that fills keys with NewID.
func IDDefault() any {
	return NewID()
}

// IDTime returns the creation time, at millisecond precision, of an id
// issued by NewID.
func IDTime(id string) (time.Time, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidID, id, err)
	}
	if u.Version() != 7 {
		return time.Time{}, fmt.Errorf("%w %q: version %d, want 7", ErrInvalidID, id, u.Version())
	}
	ms := binary.BigEndian.Uint64(u[:8]) >> 16
	return time.UnixMilli(int64(ms)), nil
}
