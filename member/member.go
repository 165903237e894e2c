// Package member holds registered members, the identity they expose to
// sessions, and the credential check used at login.
package member

import (
	"context"
	"errors"
	"time"

	"github.com/jmcleod/sessiongate/internal/util"
)

var (
	// ErrNotFound is returned when no member matches the lookup.
	ErrNotFound = errors.New("member not found")
	// ErrDuplicateLoginID is returned when registering a login id that is taken.
	ErrDuplicateLoginID = errors.New("login id already registered")
	// ErrInvalidInput is returned when a registration field is missing.
	ErrInvalidInput = errors.New("invalid member input")
)

// Principal is the authenticated identity stored in a session. It never
// carries credential material.
type Principal struct {
	ID      string `json:"id"`
	LoginID string `json:"login_id"`
	Name    string `json:"name"`
}

// Member is a stored member record.
type Member struct {
	ID           string              `json:"id"`
	LoginID      string              `json:"login_id"`
	Name         string              `json:"name"`
	PasswordHash []byte              `json:"password_hash"`
	PasswordSalt []byte              `json:"password_salt"`
	KDFParams    util.Argon2idParams `json:"kdf_params"`
	CreatedAt    time.Time           `json:"created_at"`
}

// Principal projects the public identity of m.
func (m Member) Principal() Principal {
	return Principal{ID: m.ID, LoginID: m.LoginID, Name: m.Name}
}

// Repository is the principal store.
type Repository interface {
	FindByID(ctx context.Context, id string) (Member, error)
	FindByLoginID(ctx context.Context, loginID string) (Member, error)
	// Save stores a new member. It fails with ErrDuplicateLoginID if the
	// login id is already taken.
	Save(ctx context.Context, m Member) error
	List(ctx context.Context) ([]Member, error)
}

// Verifier checks login credentials.
type Verifier interface {
	// Verify returns the matching principal and true, or false when the
	// credentials do not match. The error is reserved for infrastructure
	// failures.
	Verify(ctx context.Context, loginID, password string) (Principal, bool, error)
}
