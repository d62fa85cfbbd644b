package domain

import (
	"github.com/google/uuid"
)

// UserID is the opaque identity handed to us by the authentication collaborator.
type UserID string

// CallID is chosen by the caller before the record exists, or by the store
// when the record is created without one.
type CallID string

func NewCallID() CallID {
	return CallID(uuid.New().String())
}

func (id UserID) String() string {
	return string(id)
}

func (id CallID) String() string {
	return string(id)
}

// NewInsertionKey returns a key whose lexical order follows creation order.
// UUIDv7 carries a millisecond timestamp and a monotonic sequence in its high bits.
func NewInsertionKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

type User struct {
	ID   UserID
	Name string
}
