package apitest

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// register handles user registration.
// POST /api/register
func (b *Backend) register(c *gin.Context) {
	var req proto.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if len(username) < 3 || len(username) > 32 || len(req.Password) < 6 {
		fail(c, http.StatusBadRequest, "invalid username or password")
		return
	}

	b.mu.Lock()
	id, err := b.createUserLocked(username, req.Password)
	b.mu.Unlock()
	if err != nil {
		fail(c, http.StatusConflict, "user already exists")
		return
	}

	token, err := auth.GenerateToken(b.jwt, id, username, false)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	c.JSON(http.StatusCreated, proto.TokenResponse{Token: token})
}

// login handles user login.
// POST /api/login
func (b *Backend) login(c *gin.Context) {
	var req proto.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	b.mu.Lock()
	var u *user
	if id, ok := b.byName[req.Username]; ok {
		u = b.users[id]
	}
	b.mu.Unlock()

	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(req.Password)) != nil {
		fail(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := auth.GenerateToken(b.jwt, u.id, u.username, false)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}
	c.JSON(http.StatusOK, proto.TokenResponse{Token: token})
}

// GET /api/chats
func (b *Backend) listChats(c *gin.Context) {
	uid := currentUser(c)

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]proto.Conversation, 0)
	for _, ch := range b.chats {
		if _, member := ch.members[uid]; !member {
			continue
		}
		conv := ch.conv
		thread := b.messages[conv.ID]
		if len(thread) > 0 {
			last := *thread[len(thread)-1]
			conv.LastMessage = &last
			conv.LastActivity = last.CreatedAt
		}
		for _, m := range thread {
			if m.SenderID != uid && m.Status != "seen" {
				conv.Unread++
			}
		}
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	c.JSON(http.StatusOK, out)
}

// POST /api/chats
func (b *Backend) createChat(c *gin.Context) {
	uid := currentUser(c)
	var req proto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type != "direct" && req.Type != "group" {
		fail(c, http.StatusBadRequest, "type must be direct or group")
		return
	}
	if req.Type == "group" && strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, "group name is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	members := append([]string{uid}, req.Participants...)
	for _, id := range members {
		if _, ok := b.users[id]; !ok {
			fail(c, http.StatusNotFound, "user not found")
			return
		}
	}
	if req.Type == "direct" {
		if len(req.Participants) != 1 {
			fail(c, http.StatusBadRequest, "direct chat needs exactly one participant")
			return
		}
		for _, ch := range b.chats {
			_, hasSelf := ch.members[uid]
			_, hasPeer := ch.members[req.Participants[0]]
			if ch.conv.Type == "direct" && hasSelf && hasPeer {
				c.JSON(http.StatusOK, ch.conv)
				return
			}
		}
	}

	ch := b.createChatLocked(req.Type, req.Name, members)
	ch.conv.Description = req.Description
	b.pushLocked(ch.others(uid), proto.EventConversation, ch.conv)
	c.JSON(http.StatusCreated, ch.conv)
}

func (ch *chat) others(uid string) []string {
	out := make([]string, 0, len(ch.members))
	for id := range ch.members {
		if id != uid {
			out = append(out, id)
		}
	}
	return out
}

func (ch *chat) all() []string {
	return ch.others("")
}

// memberChat returns the chat if uid belongs to it. Called with mu held.
func (b *Backend) memberChat(c *gin.Context, chatID, uid string) (*chat, bool) {
	ch, ok := b.chats[chatID]
	if !ok {
		fail(c, http.StatusNotFound, "chat not found")
		return nil, false
	}
	if _, member := ch.members[uid]; !member {
		fail(c, http.StatusForbidden, "not a member of this chat")
		return nil, false
	}
	return ch, true
}

// findMessage locates a message by id. Called with mu held.
func (b *Backend) findMessage(id string) (string, int, bool) {
	for chatID, thread := range b.messages {
		for i, m := range thread {
			if m.ID == id {
				return chatID, i, true
			}
		}
	}
	return "", 0, false
}

// GET /api/messages/:id
func (b *Backend) listMessages(c *gin.Context) {
	uid := currentUser(c)

	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.memberChat(c, c.Param("id"), uid)
	if !ok {
		return
	}
	out := make([]proto.Message, 0, len(b.messages[ch.conv.ID]))
	for _, m := range b.messages[ch.conv.ID] {
		out = append(out, *m)
	}
	c.JSON(http.StatusOK, out)
}

// POST /api/messages/:id
func (b *Backend) sendMessage(c *gin.Context) {
	uid := currentUser(c)
	var req proto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		fail(c, http.StatusBadRequest, "message is empty")
		return
	}

	b.mu.Lock()
	delay, failing := b.sendDelay, b.failSends
	b.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			return
		}
	}
	if failing {
		fail(c, http.StatusInternalServerError, "internal server error")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.memberChat(c, c.Param("id"), uid)
	if !ok {
		return
	}
	typ := req.Type
	if typ == "" {
		typ = "text"
	}
	msg := &proto.Message{
		ID:             b.nextID("m"),
		ConversationID: ch.conv.ID,
		SenderID:       uid,
		SenderName:     c.GetString(ContextKeyUsername),
		Type:           typ,
		Text:           req.Text,
		Attachments:    req.Attachments,
		ReplyTo:        req.ReplyTo,
		Status:         "sent",
		CreatedAt:      time.Now().UTC(),
	}
	b.messages[ch.conv.ID] = append(b.messages[ch.conv.ID], msg)
	b.pushLocked(ch.all(), proto.EventMessage, msg)
	c.JSON(http.StatusCreated, msg)
}

// DELETE /api/messages/:id
func (b *Backend) deleteMessage(c *gin.Context) {
	uid := currentUser(c)

	b.mu.Lock()
	defer b.mu.Unlock()

	chatID, idx, ok := b.findMessage(c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, "message not found")
		return
	}
	thread := b.messages[chatID]
	if thread[idx].SenderID != uid {
		fail(c, http.StatusForbidden, "only the sender can delete a message")
		return
	}
	b.messages[chatID] = append(thread[:idx], thread[idx+1:]...)
	b.pushLocked(b.chats[chatID].all(), proto.EventMessageDeleted, proto.EventMessageDeletedData{ConversationID: chatID, MessageID: c.Param("id")})
	c.Status(http.StatusNoContent)
}

// POST /api/messages/read
func (b *Backend) markRead(c *gin.Context) {
	uid := currentUser(c)
	var req proto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range req.MessageIDs {
		chatID, idx, ok := b.findMessage(id)
		if !ok {
			continue
		}
		if m := b.messages[chatID][idx]; m.SenderID != uid {
			m.Status = "seen"
		}
	}
	c.Status(http.StatusNoContent)
}

// POST /api/messages/:id/reactions
func (b *Backend) addReaction(c *gin.Context) {
	var req proto.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Emoji == "" {
		fail(c, http.StatusBadRequest, "emoji is required")
		return
	}
	b.react(c, c.Param("id"), req.Emoji, true)
}

// DELETE /api/messages/:id/reactions/:emoji
func (b *Backend) removeReaction(c *gin.Context) {
	b.react(c, c.Param("id"), c.Param("emoji"), false)
}

func (b *Backend) react(c *gin.Context, messageID, emoji string, add bool) {
	uid := currentUser(c)

	b.mu.Lock()
	defer b.mu.Unlock()

	chatID, idx, ok := b.findMessage(messageID)
	if !ok {
		fail(c, http.StatusNotFound, "message not found")
		return
	}
	ch := b.chats[chatID]
	if _, member := ch.members[uid]; !member {
		fail(c, http.StatusForbidden, "not a member of this chat")
		return
	}

	m := b.messages[chatID][idx]
	m.Reactions = toggleReactor(m.Reactions, emoji, uid, add)
	b.pushLocked(ch.all(), proto.EventReaction, proto.EventReactionData{
		ConversationID: chatID,
		MessageID:      messageID,
		Emoji:          emoji,
		UserID:         uid,
		Add:            add,
	})
	c.Status(http.StatusNoContent)
}

func toggleReactor(reactions []proto.Reaction, emoji, uid string, add bool) []proto.Reaction {
	for i := range reactions {
		if reactions[i].Emoji != emoji {
			continue
		}
		users := reactions[i].Users[:0]
		for _, u := range reactions[i].Users {
			if u != uid {
				users = append(users, u)
			}
		}
		if add {
			users = append(users, uid)
		}
		if len(users) == 0 {
			return append(reactions[:i], reactions[i+1:]...)
		}
		reactions[i].Users = users
		return reactions
	}
	if add {
		reactions = append(reactions, proto.Reaction{Emoji: emoji, Users: []string{uid}})
	}
	return reactions
}

// GET /api/users/search?q=query
func (b *Backend) searchUsers(c *gin.Context) {
	uid := currentUser(c)
	query := strings.ToLower(strings.TrimSpace(c.Query("q")))
	if len(query) < 3 {
		fail(c, http.StatusBadRequest, "search query must be at least 3 characters")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	online := b.onlineLocked()
	out := make([]proto.User, 0)
	for _, u := range b.users {
		if u.id == uid || !strings.Contains(strings.ToLower(u.username), query) {
			continue
		}
		_, isOnline := online[u.id]
		out = append(out, proto.User{ID: u.id, Username: u.username, Online: isOnline})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	c.JSON(http.StatusOK, out)
}
