package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

var (
	// ErrNoSession is returned when no token is stored.
	ErrNoSession = errors.New("not logged in")
	// ErrSessionExpired is returned when the stored token is past its expiry.
	ErrSessionExpired = errors.New("session expired")
)

// Session keeps the bearer token in a file between runs.
type Session struct {
	path string

	mu    sync.RWMutex
	token string
}

// OpenSession reads the token file at path. A missing file yields an empty session.
func OpenSession(path string) (*Session, error) {
	s := &Session{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}
	s.token = strings.TrimSpace(string(raw))
	return s, nil
}

// Token returns the stored token, or "".
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Save stores token in memory and on disk.
func (s *Session) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	s.token = token
	return nil
}

// Clear forgets the token.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// User returns the session user encoded in the token.
func (s *Session) User() (core.Member, error) {
	token := s.Token()
	if token == "" {
		return core.Member{}, ErrNoSession
	}
	claims, err := ParseClaims(token, time.Now())
	if err != nil {
		return core.Member{}, err
	}
	return core.Member{ID: claims.UserID, Name: claims.Username}, nil
}
