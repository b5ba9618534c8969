package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/transport/rest"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Authenticator is the part of the API that issues tokens.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (string, error)
	Login(ctx context.Context, username, password string) (string, error)
}

// Service provides authentication operations.
type Service struct {
	api     Authenticator
	session *Session
}

// NewService creates a new authentication service.
func NewService(api Authenticator, session *Session) *Service {
	return &Service{
		api:     api,
		session: session,
	}
}

// Register creates an account and stores its token.
func (s *Service) Register(ctx context.Context, username, password string) (core.Member, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return core.Member{}, ErrInvalidUsername
	}
	if len(password) < 6 {
		return core.Member{}, ErrInvalidPassword
	}

	token, err := s.api.Register(ctx, username, password)
	if err != nil {
		if rest.StatusOf(err) == http.StatusConflict {
			return core.Member{}, ErrUserExists
		}
		return core.Member{}, fmt.Errorf("register: %w", err)
	}
	return s.store(token)
}

// Login validates credentials against the backend and stores the token.
func (s *Service) Login(ctx context.Context, username, password string) (core.Member, error) {
	token, err := s.api.Login(ctx, strings.TrimSpace(username), password)
	if err != nil {
		if rest.StatusOf(err) == http.StatusUnauthorized {
			return core.Member{}, ErrInvalidCredentials
		}
		return core.Member{}, fmt.Errorf("login: %w", err)
	}
	return s.store(token)
}

// Logout forgets the stored token.
func (s *Service) Logout() error {
	return s.session.Clear()
}

// Current returns the logged-in user.
func (s *Service) Current() (core.Member, error) {
	return s.session.User()
}

func (s *Service) store(token string) (core.Member, error) {
	claims, err := ParseClaims(token, time.Now())
	if err != nil {
		return core.Member{}, fmt.Errorf("issued token: %w", err)
	}
	if err := s.session.Save(token); err != nil {
		return core.Member{}, err
	}
	return core.Member{ID: claims.UserID, Name: claims.Username}, nil
}
