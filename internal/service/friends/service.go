package friends

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/transport/rest"
)

// Common errors for friend operations.
var (
	ErrCannotFriendSelf     = errors.New("cannot send friend request to yourself")
	ErrAlreadyFriends       = errors.New("already friends")
	ErrRequestAlreadyExists = errors.New("friend request already exists")
	ErrRequestNotFound      = errors.New("friend request not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotBlocked           = errors.New("user is not blocked")
	ErrQueryTooShort        = errors.New("search query must be at least 3 characters")
)

// Directory is the part of the REST API that manages people.
type Directory interface {
	SearchUsers(ctx context.Context, query string) ([]proto.User, error)
	SendFriendRequest(ctx context.Context, userID string) (*proto.Friend, error)
	ListFriends(ctx context.Context) ([]proto.Friend, error)
	IncomingRequests(ctx context.Context) ([]proto.Friend, error)
	AcceptFriend(ctx context.Context, userID string) error
	RejectFriend(ctx context.Context, userID string) error
	BlockUser(ctx context.Context, userID string) error
	UnblockUser(ctx context.Context, userID string) error
}

// Service provides friend management for the session user.
type Service struct {
	api    Directory
	selfID string

	mu      sync.RWMutex
	friends map[string]proto.Friend // keyed by the other user's id
}

// New creates a new friends service.
func New(api Directory, selfID string) *Service {
	return &Service{
		api:     api,
		selfID:  selfID,
		friends: make(map[string]proto.Friend),
	}
}

// Search finds users whose name contains query.
func (s *Service) Search(ctx context.Context, query string) ([]proto.User, error) {
	query = strings.TrimSpace(query)
	if len(query) < 3 {
		return nil, ErrQueryTooShort
	}
	users, err := s.api.SearchUsers(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

// SendRequest sends a friend request to another user.
func (s *Service) SendRequest(ctx context.Context, toUserID string) (*proto.Friend, error) {
	if toUserID == s.selfID {
		return nil, ErrCannotFriendSelf
	}
	friend, err := s.api.SendFriendRequest(ctx, toUserID)
	if err != nil {
		return nil, mapError(err, "send friend request")
	}
	return friend, nil
}

// AcceptRequest accepts a pending friend request from fromUserID.
func (s *Service) AcceptRequest(ctx context.Context, fromUserID string) error {
	if err := s.api.AcceptFriend(ctx, fromUserID); err != nil {
		if rest.StatusOf(err) == http.StatusNotFound {
			return ErrRequestNotFound
		}
		return fmt.Errorf("accept request: %w", err)
	}
	return nil
}

// RejectRequest rejects a pending friend request from fromUserID.
func (s *Service) RejectRequest(ctx context.Context, fromUserID string) error {
	if err := s.api.RejectFriend(ctx, fromUserID); err != nil {
		if rest.StatusOf(err) == http.StatusNotFound {
			return ErrRequestNotFound
		}
		return fmt.Errorf("reject request: %w", err)
	}
	return nil
}

// BlockUser blocks another user and drops any friendship with them.
func (s *Service) BlockUser(ctx context.Context, targetUserID string) error {
	if targetUserID == s.selfID {
		return ErrCannotFriendSelf
	}
	if err := s.api.BlockUser(ctx, targetUserID); err != nil {
		return mapError(err, "block user")
	}

	s.mu.Lock()
	delete(s.friends, targetUserID)
	s.mu.Unlock()
	return nil
}

// UnblockUser unblocks a previously blocked user.
func (s *Service) UnblockUser(ctx context.Context, targetUserID string) error {
	if err := s.api.UnblockUser(ctx, targetUserID); err != nil {
		if rest.StatusOf(err) == http.StatusNotFound {
			return ErrNotBlocked
		}
		return fmt.Errorf("unblock user: %w", err)
	}
	return nil
}

// ListFriends returns all accepted friends and refreshes the local set.
func (s *Service) ListFriends(ctx context.Context) ([]proto.Friend, error) {
	friends, err := s.api.ListFriends(ctx)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}

	set := make(map[string]proto.Friend, len(friends))
	for _, f := range friends {
		set[s.Peer(f)] = f
	}
	s.mu.Lock()
	s.friends = set
	s.mu.Unlock()
	return friends, nil
}

// ListPendingRequests returns incoming pending friend requests.
func (s *Service) ListPendingRequests(ctx context.Context) ([]proto.Friend, error) {
	all, err := s.api.IncomingRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}

	// Filter to only incoming requests (friend_id = self)
	incoming := make([]proto.Friend, 0, len(all))
	for _, f := range all {
		if f.FriendID == s.selfID {
			incoming = append(incoming, f)
		}
	}
	return incoming, nil
}

// IsFriend reports whether userID was a friend at the last ListFriends.
func (s *Service) IsFriend(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.friends[userID]
	return ok
}

// Peer returns the user on the other side of a friendship record.
func (s *Service) Peer(f proto.Friend) string {
	if f.UserID == s.selfID {
		return f.FriendID
	}
	return f.UserID
}

func mapError(err error, op string) error {
	var apiErr *rest.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch {
	case apiErr.Status == http.StatusNotFound:
		return ErrUserNotFound
	case apiErr.Status == http.StatusConflict && strings.Contains(apiErr.Message, "already friends"):
		return ErrAlreadyFriends
	case apiErr.Status == http.StatusConflict:
		return ErrRequestAlreadyExists
	case apiErr.Status == http.StatusBadRequest && strings.Contains(apiErr.Message, "yourself"):
		return ErrCannotFriendSelf
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
