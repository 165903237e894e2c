package member

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmcleod/sessiongate/internal/logging"
	"github.com/jmcleod/sessiongate/internal/util"
)

const saltLen = 16

// RegisterRequest carries the fields needed to create a member.
type RegisterRequest struct {
	LoginID  string
	Name     string
	Password string
}

// Service registers members and verifies their credentials.
type Service struct {
	repo   Repository
	params util.Argon2idParams
	now    func() time.Time
	logger *slog.Logger

	// dummySalt is used to spend the same KDF cost on unknown login ids.
	dummySalt []byte
}

var _ Verifier = (*Service)(nil)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithKDFParams overrides the argon2id cost used for new passwords.
func WithKDFParams(p util.Argon2idParams) ServiceOption {
	return func(s *Service) { s.params = p }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService returns a Service backed by repo.
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:      repo,
		params:    util.DefaultArgon2idParams(),
		now:       time.Now,
		logger:    logging.Discard(),
		dummySalt: make([]byte, saltLen),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "member")
	return s
}

// Register validates req, hashes the password, and stores a new member.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Member, error) {
	loginID := util.Normalize(req.LoginID)
	name := strings.TrimSpace(req.Name)
	switch {
	case loginID == "":
		return Member{}, fmt.Errorf("%w: login id is required", ErrInvalidInput)
	case name == "":
		return Member{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	case req.Password == "":
		return Member{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if err := s.params.Validate(); err != nil {
		return Member{}, fmt.Errorf("kdf params: %w", err)
	}

	now := s.now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return Member{}, fmt.Errorf("generating member id: %w", err)
	}
	salt, err := util.RandomBytes(saltLen)
	if err != nil {
		return Member{}, fmt.Errorf("generating salt: %w", err)
	}
	hash, err := util.DeriveArgon2idKey(req.Password, salt, s.params)
	if err != nil {
		return Member{}, fmt.Errorf("hashing password: %w", err)
	}

	m := Member{
		ID:           id.String(),
		LoginID:      loginID,
		Name:         name,
		PasswordHash: hash,
		PasswordSalt: salt,
		KDFParams:    s.params,
		CreatedAt:    now,
	}
	if err := s.repo.Save(ctx, m); err != nil {
		return Member{}, err
	}
	s.logger.Debug("member registered", "member_id", m.ID)
	return m, nil
}

// Verify implements Verifier.
func (s *Service) Verify(ctx context.Context, loginID, password string) (Principal, bool, error) {
	loginID = util.Normalize(loginID)
	if loginID == "" || password == "" {
		return Principal{}, false, nil
	}

	m, err := s.repo.FindByLoginID(ctx, loginID)
	if errors.Is(err, ErrNotFound) {
		// Burn the same work as a real comparison.
		if key, derr := util.DeriveArgon2idKey(password, s.dummySalt, s.params); derr == nil {
			util.WipeBytes(key)
		}
		return Principal{}, false, nil
	}
	if err != nil {
		return Principal{}, false, fmt.Errorf("looking up member: %w", err)
	}

	ok, err := util.CompareArgon2idKey(password, m.PasswordSalt, m.KDFParams, m.PasswordHash)
	if err != nil {
		return Principal{}, false, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return Principal{}, false, nil
	}
	return m.Principal(), true, nil
}

// Seed registers req unless its login id already exists. It reports
// whether a member was created.
func (s *Service) Seed(ctx context.Context, req RegisterRequest) (bool, error) {
	_, err := s.Register(ctx, req)
	if errors.Is(err, ErrDuplicateLoginID) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
