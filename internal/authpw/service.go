// Package authpw provides signup validation and email/password checks.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"deepthoughts/api/internal/store"
	"deepthoughts/api/internal/util"
	"golang.org/x/crypto/bcrypt"
)

const (
	MaxUsernameLength = 64
	MinPasswordLength = 5
	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)

var emailPattern = regexp.MustCompile(`.+@.+\..+`)

// ErrInvalidCredentials is returned for an unknown email and a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ValidationError carries one message per rejected field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Fields[key])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
}

type Service struct {
	store   UserStore
	cost    int
	compare func(hash, password []byte) error

	dummyOnce sync.Once
	dummyHash []byte
}

func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost, compare: bcrypt.CompareHashAndPassword}
}

type SignUpRequest struct {
	Username string
	Email    string
	Password string
}

// SignUp validates the request, hashes the password and creates the user.
// Uniqueness is left to the store, which reports it as *store.ConstraintError.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	username, email, err := ValidateSignUp(req)
	if err != nil {
		return store.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, err
	}
	return user, nil
}

// ValidateSignUp returns the normalized username and email.
func ValidateSignUp(req SignUpRequest) (string, string, error) {
	fields := map[string]string{}

	username := strings.TrimSpace(req.Username)
	switch {
	case username == "":
		fields["username"] = "username is required"
	case utf8.RuneCountInString(username) > MaxUsernameLength:
		fields["username"] = fmt.Sprintf("username must be at most %d characters", MaxUsernameLength)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailPattern.MatchString(email) {
		fields["email"] = "must match an email address"
	}

	switch {
	case utf8.RuneCountInString(req.Password) < MinPasswordLength:
		fields["password"] = fmt.Sprintf("password must be at least %d characters", MinPasswordLength)
	case len(req.Password) > MaxPasswordBytes:
		fields["password"] = fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes)
	}

	if len(fields) > 0 {
		return "", "", &ValidationError{Fields: fields}
	}
	return username, email, nil
}

type SignInRequest struct {
	Email    string
	Password string
}

func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if store.IsNotFound(err) {
			// Unknown emails pay the same bcrypt cost as wrong passwords.
			_ = s.compare(s.unknownUserHash(), []byte(req.Password))
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := s.compare([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) unknownUserHash() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("deepthoughts-unknown-user"), s.cost)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
