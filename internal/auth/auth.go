// Package auth registers users, checks credentials and signs sessions.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/TobiSchelling/NewsAI/internal/apperr"
	"github.com/TobiSchelling/NewsAI/internal/database"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// MaxPasswordBytes is the longest password bcrypt can hash.
const MaxPasswordBytes = 72

// ErrInvalidCredentials is returned by SignIn for an unknown name and for
// a wrong password alike.
var ErrInvalidCredentials = apperr.E(apperr.Unauthorized, "invalid name or password")

// Store is the credential store used by Service.
type Store interface {
	CreateUser(ctx context.Context, id, name, passwordHash string) (*database.User, error)
	GetUserByName(ctx context.Context, name string) (*database.User, error)
}

// Credentials is a name/password pair as submitted by a client.
type Credentials struct {
	Name     string `json:"name" form:"name" validate:"required"`
	Password string `json:"password" form:"password" validate:"required,min=6"`
}

// Service implements registration and sign-in.
type Service struct {
	store    Store
	sessions *Sessions
	validate *validator.Validate
	log      *slog.Logger
}

// NewService creates an auth service.
func NewService(store Store, sessions *Sessions, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// Sessions returns the session signer used by the service.
func (s *Service) Sessions() *Sessions { return s.sessions }

// Register creates a user. The name is trimmed before storage.
func (s *Service) Register(ctx context.Context, c Credentials) (*database.User, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := s.check(c); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByName(ctx, c.Name); err == nil {
		return nil, apperr.E(apperr.Conflict, "user with this name already exists")
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, apperr.Wrap(apperr.Internal, "failed to register user", err)
	}

	hash, err := HashPassword(c.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to register user", err)
	}

	user, err := s.store.CreateUser(ctx, uuid.NewString(), c.Name, hash)
	if err != nil {
		// Lost a race with a concurrent registration of the same name.
		if errors.Is(err, database.ErrDuplicate) {
			return nil, apperr.Wrap(apperr.Conflict, "user with this name already exists", err)
		}
		return nil, apperr.Wrap(apperr.Internal, "failed to register user", err)
	}

	s.log.InfoContext(ctx, "User registered", "userID", user.ID, "name", user.Name)
	return user, nil
}

// SignIn checks credentials and returns the user with a fresh session token.
func (s *Service) SignIn(ctx context.Context, c Credentials) (*database.User, string, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" || c.Password == "" {
		return nil, "", apperr.E(apperr.BadRequest, "name and password are required")
	}

	user, err := s.store.GetUserByName(ctx, c.Name)
	if errors.Is(err, database.ErrNotFound) {
		// Spend the same bcrypt time as a wrong password would.
		_, _ = CheckPassword(dummyHash(), c.Password)
		s.log.InfoContext(ctx, "Sign-in rejected", "name", c.Name, "reason", "unknown user")
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Internal, "failed to sign in", err)
	}

	ok, err := CheckPassword(user.PasswordHash, c.Password)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Internal, "failed to sign in", err)
	}
	if !ok {
		s.log.InfoContext(ctx, "Sign-in rejected", "name", c.Name, "reason", "wrong password")
		return nil, "", ErrInvalidCredentials
	}

	token, _, err := s.sessions.Issue(Identity{ID: user.ID, Name: user.Name})
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Internal, "failed to sign in", err)
	}
	return user, token, nil
}

// Authenticate resolves a session token to an identity.
func (s *Service) Authenticate(token string) (*Identity, error) {
	id, err := s.sessions.Parse(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized, "invalid session", err)
	}
	return id, nil
}

func (s *Service) check(c Credentials) error {
	err := s.validate.Struct(c)
	if err == nil {
		if len(c.Password) > MaxPasswordBytes {
			return apperr.Errorf(apperr.BadRequest, "password should be at most %d bytes long", MaxPasswordBytes)
		}
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.Internal, "failed to validate credentials", err)
	}
	for _, fe := range verrs {
		if fe.Tag() == "min" {
			return apperr.Errorf(apperr.BadRequest, "password should be at least %d characters long", MinPasswordLength)
		}
	}
	return apperr.E(apperr.BadRequest, "name and password are required")
}
