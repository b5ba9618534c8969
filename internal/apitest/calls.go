package apitest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	lkauth "github.com/livekit/protocol/auth"

	"github.com/vovakirdan/wirechat-client/internal/proto"
)

const (
	callRinging = "ringing"
	callEnded   = "ended"
)

type call struct {
	rec          proto.Call
	room         string
	participants []string
}

func (c *call) has(uid string) bool {
	for _, p := range c.participants {
		if p == uid {
			return true
		}
	}
	return false
}

// POST /api/calls/direct
func (b *Backend) startDirectCall(c *gin.Context) {
	uid := currentUser(c)
	var req proto.DirectCallRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ToUserID == "" {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ToUserID == uid {
		fail(c, http.StatusBadRequest, "cannot call yourself")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.users[req.ToUserID]; !ok {
		fail(c, http.StatusNotFound, "user not found")
		return
	}
	id := uuid.New().String()
	cl := &call{
		rec: proto.Call{
			ID:              id,
			Type:            "direct",
			InitiatorUserID: uid,
			Status:          callRinging,
		},
		// Room name format: wirechat-{type}-{callID}
		room:         fmt.Sprintf("wirechat-direct-%s", id),
		participants: []string{uid, req.ToUserID},
	}
	b.calls[id] = cl

	b.pushLocked([]string{req.ToUserID}, proto.EventCallIncoming, proto.EventCallData{
		CallID:       id,
		CallType:     "direct",
		FromUserID:   uid,
		FromUsername: c.GetString(ContextKeyUsername),
	})
	c.JSON(http.StatusCreated, cl.rec)
}

// GET /api/calls/:id/join
func (b *Backend) joinCall(c *gin.Context) {
	uid := currentUser(c)

	b.mu.Lock()
	cl, ok := b.calls[c.Param("id")]
	if ok && cl.rec.Status == callRinging && uid != cl.rec.InitiatorUserID {
		cl.rec.Status = "active"
		b.pushLocked([]string{cl.rec.InitiatorUserID}, proto.EventCallAccepted, proto.EventCallData{CallID: cl.rec.ID})
	}
	b.mu.Unlock()

	switch {
	case !ok:
		fail(c, http.StatusNotFound, "call not found")
		return
	case !cl.has(uid):
		fail(c, http.StatusForbidden, "not a participant in this call")
		return
	case cl.rec.Status == callEnded:
		fail(c, http.StatusGone, "call has ended")
		return
	}

	identity := "user-" + uid
	at := lkauth.NewAccessToken(b.media.key, b.media.secret)
	at.AddGrant(&lkauth.VideoGrant{
		RoomJoin: true,
		Room:     cl.room,
	}).
		SetIdentity(identity).
		SetName(c.GetString(ContextKeyUsername)).
		SetValidFor(time.Hour)

	token, err := at.ToJWT()
	if err != nil {
		b.log.Error().Err(err).Msg("generate join token")
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	c.JSON(http.StatusOK, proto.JoinInfo{
		URL:      b.media.url,
		Token:    token,
		RoomName: cl.room,
		Identity: identity,
	})
}

// PUT /api/calls/:id/end
func (b *Backend) endCall(c *gin.Context) {
	uid := currentUser(c)

	b.mu.Lock()
	defer b.mu.Unlock()

	cl, ok := b.calls[c.Param("id")]
	if !ok {
		fail(c, http.StatusNotFound, "call not found")
		return
	}
	if !cl.has(uid) {
		fail(c, http.StatusForbidden, "not a participant in this call")
		return
	}
	if cl.rec.Status != callEnded {
		cl.rec.Status = callEnded
		b.pushLocked(cl.participants, proto.EventCallEnded, proto.EventCallData{CallID: cl.rec.ID, Reason: "hangup"})
	}
	c.Status(http.StatusNoContent)
}

// MediaSecret returns the key pair join tokens are signed with.
func (b *Backend) MediaSecret() (key, secret string) {
	return b.media.key, b.media.secret
}
