package session

import (
	"time"

	"github.com/google/uuid"
)

// Store abstracts session CRUD for a payload type T.
type Store[T any] interface {
	// Create stores payload under a freshly generated token and returns the token.
	Create(payload T) (string, error)
	// Get returns the payload for token. Returns false if the token is
	// unknown, was invalidated, or has exceeded the idle timeout.
	Get(token string) (T, bool)
	// Lookup is like Get but returns the full session record.
	Lookup(token string) (Session[T], bool)
	// Invalidate removes the session. Invalidating an unknown token is a no-op.
	Invalidate(token string)
	// Len reports the number of live sessions.
	Len() int
}

// Session holds the server-side state for one authenticated client.
type Session[T any] struct {
	Token          string
	Payload        T
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// NewToken returns a new opaque session token.
func NewToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
