package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// Register creates an account and returns its token.
// POST /register
func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	var resp proto.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/register", proto.CredentialsRequest{Username: username, Password: password}, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Login exchanges credentials for a token.
// POST /login
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp proto.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/login", proto.CredentialsRequest{Username: username, Password: password}, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// SearchUsers finds users by name prefix.
// GET /users/search?q=query
func (c *Client) SearchUsers(ctx context.Context, query string) ([]proto.User, error) {
	var resp []proto.User
	if err := c.do(ctx, http.MethodGet, "/users/search?q="+url.QueryEscape(query), nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SendFriendRequest asks userID to become a friend.
// POST /friends/requests
func (c *Client) SendFriendRequest(ctx context.Context, userID string) (*proto.Friend, error) {
	var resp proto.Friend
	if err := c.do(ctx, http.MethodPost, "/friends/requests", proto.FriendRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListFriends returns accepted friendships.
// GET /friends
func (c *Client) ListFriends(ctx context.Context) ([]proto.Friend, error) {
	var resp []proto.Friend
	if err := c.do(ctx, http.MethodGet, "/friends", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// IncomingRequests returns pending requests addressed to the session user.
// GET /friends/requests/incoming
func (c *Client) IncomingRequests(ctx context.Context) ([]proto.Friend, error) {
	var resp []proto.Friend
	if err := c.do(ctx, http.MethodGet, "/friends/requests/incoming", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// AcceptFriend accepts a pending request from userID.
// POST /friends/:userId/accept
func (c *Client) AcceptFriend(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/friends/"+url.PathEscape(userID)+"/accept", nil, nil)
}

// RejectFriend declines a pending request from userID.
// DELETE /friends/:userId/reject
func (c *Client) RejectFriend(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/friends/"+url.PathEscape(userID)+"/reject", nil, nil)
}

// BlockUser blocks userID.
// POST /friends/:userId/block
func (c *Client) BlockUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/friends/"+url.PathEscape(userID)+"/block", nil, nil)
}

// UnblockUser lifts a block.
// DELETE /friends/:userId/unblock
func (c *Client) UnblockUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/friends/"+url.PathEscape(userID)+"/unblock", nil, nil)
}

// StartDirectCall rings another user.
// POST /calls/direct
func (c *Client) StartDirectCall(ctx context.Context, toUserID string) (*proto.Call, error) {
	var resp proto.Call
	if err := c.do(ctx, http.MethodPost, "/calls/direct", proto.DirectCallRequest{ToUserID: toUserID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JoinCall fetches media credentials for a call.
// GET /calls/:id/join
func (c *Client) JoinCall(ctx context.Context, callID string) (*proto.JoinInfo, error) {
	var resp proto.JoinInfo
	if err := c.do(ctx, http.MethodGet, "/calls/"+url.PathEscape(callID)+"/join", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EndCall hangs up.
// PUT /calls/:id/end
func (c *Client) EndCall(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodPut, "/calls/"+url.PathEscape(callID)+"/end", nil, nil)
}
