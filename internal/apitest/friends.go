package apitest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/wirechat-client/internal/proto"
)

const (
	friendPending  = "pending"
	friendAccepted = "accepted"
	friendBlocked  = "blocked"
)

// friendshipLocked finds the record between two users in either direction.
func (b *Backend) friendshipLocked(a, c string) (int, *proto.Friend) {
	for i, f := range b.friends {
		if (f.UserID == a && f.FriendID == c) || (f.UserID == c && f.FriendID == a) {
			return i, f
		}
	}
	return -1, nil
}

func (b *Backend) friendView(f *proto.Friend, uid string) proto.Friend {
	out := *f
	other := f.FriendID
	if other == uid {
		other = f.UserID
	}
	if u, ok := b.users[other]; ok {
		out.FriendUsername = u.username
	}
	return out
}

// POST /api/friends/requests
func (b *Backend) sendFriendRequest(c *gin.Context) {
	uid := currentUser(c)
	var req proto.FriendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == uid {
		fail(c, http.StatusBadRequest, "cannot send friend request to yourself")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.users[req.UserID]; !ok {
		fail(c, http.StatusNotFound, "user not found")
		return
	}
	if _, existing := b.friendshipLocked(uid, req.UserID); existing != nil {
		switch existing.Status {
		case friendAccepted:
			fail(c, http.StatusConflict, "already friends")
		default:
			fail(c, http.StatusConflict, "friend request already exists")
		}
		return
	}
	f := &proto.Friend{
		ID:        b.nextID("f"),
		UserID:    uid,
		FriendID:  req.UserID,
		Status:    friendPending,
		CreatedAt: time.Now().UTC(),
	}
	b.friends = append(b.friends, f)
	c.JSON(http.StatusCreated, b.friendView(f, uid))
}

// GET /api/friends
func (b *Backend) listFriends(c *gin.Context) {
	b.listByStatus(c, friendAccepted, false)
}

// GET /api/friends/requests/incoming
func (b *Backend) incomingRequests(c *gin.Context) {
	b.listByStatus(c, friendPending, true)
}

func (b *Backend) listByStatus(c *gin.Context, status string, incomingOnly bool) {
	uid := currentUser(c)

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]proto.Friend, 0)
	for _, f := range b.friends {
		if f.Status != status {
			continue
		}
		if incomingOnly && f.FriendID != uid {
			continue
		}
		if f.UserID != uid && f.FriendID != uid {
			continue
		}
		out = append(out, b.friendView(f, uid))
	}
	c.JSON(http.StatusOK, out)
}

// POST /api/friends/:id/accept
func (b *Backend) acceptFriend(c *gin.Context) {
	uid := currentUser(c)

	b.mu.Lock()
	defer b.mu.Unlock()

	_, f := b.friendshipLocked(uid, c.Param("id"))
	if f == nil || f.Status != friendPending || f.FriendID != uid {
		fail(c, http.StatusNotFound, "friend request not found")
		return
	}
	f.Status = friendAccepted
	c.Status(http.StatusNoContent)
}

// DELETE /api/friends/:id/reject
func (b *Backend) rejectFriend(c *gin.Context) {
	uid := currentUser(c)

	b.mu.Lock()
	defer b.mu.Unlock()

	i, f := b.friendshipLocked(uid, c.Param("id"))
	if f == nil || f.Status != friendPending || f.FriendID != uid {
		fail(c, http.StatusNotFound, "friend request not found")
		return
	}
	b.friends = append(b.friends[:i], b.friends[i+1:]...)
	c.Status(http.StatusNoContent)
}

// POST /api/friends/:id/block
func (b *Backend) blockUser(c *gin.Context) {
	uid := currentUser(c)
	target := c.Param("id")
	if target == uid {
		fail(c, http.StatusBadRequest, "cannot block yourself")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.users[target]; !ok {
		fail(c, http.StatusNotFound, "user not found")
		return
	}
	if i, f := b.friendshipLocked(uid, target); f != nil {
		b.friends = append(b.friends[:i], b.friends[i+1:]...)
	}
	b.friends = append(b.friends, &proto.Friend{
		ID:        b.nextID("f"),
		UserID:    uid,
		FriendID:  target,
		Status:    friendBlocked,
		CreatedAt: time.Now().UTC(),
	})
	c.Status(http.StatusNoContent)
}

// DELETE /api/friends/:id/unblock
func (b *Backend) unblockUser(c *gin.Context) {
	uid := currentUser(c)

	b.mu.Lock()
	defer b.mu.Unlock()

	i, f := b.friendshipLocked(uid, c.Param("id"))
	if f == nil || f.Status != friendBlocked || f.UserID != uid {
		fail(c, http.StatusNotFound, "user is not blocked")
		return
	}
	b.friends = append(b.friends[:i], b.friends[i+1:]...)
	c.Status(http.StatusNoContent)
}
