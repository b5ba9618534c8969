// Package apitest is an in-process WireChat backend for tests: the REST API
// and the push socket, backed by memory.
package apitest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyUsername is the context key for storing username.
	ContextKeyUsername = "username"
)

type user struct {
	id           string
	username     string
	passwordHash string
}

type chat struct {
	conv    proto.Conversation
	members map[string]struct{}
}

// Backend holds all server-side state.
type Backend struct {
	jwt    *auth.JWTConfig
	log    *zerolog.Logger
	media  mediaConfig
	engine *gin.Engine

	mu        sync.Mutex
	seq       int
	users     map[string]*user
	byName    map[string]string
	chats     map[string]*chat
	messages  map[string][]*proto.Message
	friends   []*proto.Friend
	calls     map[string]*call
	conns     map[*pushConn]struct{}
	failSends bool
	sendDelay time.Duration
}

type mediaConfig struct {
	url, key, secret string
}

// New builds a backend with an empty state.
func New(logger *zerolog.Logger) *Backend {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	b := &Backend{
		jwt: &auth.JWTConfig{
			Secret:   []byte("apitest-secret"),
			Issuer:   "wirechat",
			Audience: "wirechat",
			TTL:      time.Hour,
		},
		log:      logger,
		media:    mediaConfig{url: "ws://media.test", key: "devkey", secret: "devsecret-devsecret-devsecret-00"},
		users:    make(map[string]*user),
		byName:   make(map[string]string),
		chats:    make(map[string]*chat),
		messages: make(map[string][]*proto.Message),
		calls:    make(map[string]*call),
		conns:    make(map[*pushConn]struct{}),
	}
	b.engine = b.routes()
	return b
}

// Start serves a new backend on an httptest server closed with t.
func Start(t testing.TB) (*Backend, *httptest.Server) {
	t.Helper()

	b := New(nil)
	ts := httptest.NewServer(b.Handler())
	t.Cleanup(ts.Close)
	return b, ts
}

// APIURL returns the REST root of a server started with Start.
func APIURL(ts *httptest.Server) string {
	return ts.URL + "/api"
}

// WSURL returns the push endpoint of a server started with Start.
func WSURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
}

// Handler exposes the router.
func (b *Backend) Handler() http.Handler {
	return b.engine
}

func (b *Backend) routes() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(b.log))

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/ws", b.servePush)

	api := r.Group("/api")
	api.POST("/register", b.register)
	api.POST("/login", b.login)

	authed := api.Group("")
	authed.Use(AuthMiddleware(b.jwt, b.log))

	authed.GET("/chats", b.listChats)
	authed.POST("/chats", b.createChat)

	authed.GET("/messages/:id", b.listMessages)
	authed.POST("/messages/:id", b.sendMessage)
	authed.DELETE("/messages/:id", b.deleteMessage)
	authed.POST("/messages/read", b.markRead)
	authed.POST("/messages/:id/reactions", b.addReaction)
	authed.DELETE("/messages/:id/reactions/:emoji", b.removeReaction)

	authed.GET("/users/search", b.searchUsers)

	authed.POST("/friends/requests", b.sendFriendRequest)
	authed.GET("/friends", b.listFriends)
	authed.GET("/friends/requests/incoming", b.incomingRequests)
	authed.POST("/friends/:id/accept", b.acceptFriend)
	authed.DELETE("/friends/:id/reject", b.rejectFriend)
	authed.POST("/friends/:id/block", b.blockUser)
	authed.DELETE("/friends/:id/unblock", b.unblockUser)

	authed.POST("/calls/direct", b.startDirectCall)
	authed.GET("/calls/:id/join", b.joinCall)
	authed.PUT("/calls/:id/end", b.endCall)

	return r
}

func (b *Backend) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s%d", prefix, b.seq)
}

// CreateUser registers an account directly and returns its id.
func (b *Backend) CreateUser(username, password string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createUserLocked(username, password)
}

func (b *Backend) createUserLocked(username, password string) (string, error) {
	if _, exists := b.byName[username]; exists {
		return "", auth.ErrUserExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	u := &user{id: b.nextID("u"), username: username, passwordHash: string(hash)}
	b.users[u.id] = u
	b.byName[username] = u.id
	return u.id, nil
}

// Token issues a session token for an existing user.
func (b *Backend) Token(userID string) (string, error) {
	b.mu.Lock()
	u, ok := b.users[userID]
	b.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown user %s", userID)
	}
	return auth.GenerateToken(b.jwt, u.id, u.username, false)
}

// CreateChat creates a conversation between members directly and returns its id.
func (b *Backend) CreateChat(kind, name string, memberIDs ...string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createChatLocked(kind, name, memberIDs).conv.ID
}

func (b *Backend) createChatLocked(kind, name string, memberIDs []string) *chat {
	ch := &chat{
		conv: proto.Conversation{
			ID:           b.nextID("c"),
			Type:         kind,
			Name:         name,
			LastActivity: time.Now().UTC(),
		},
		members: make(map[string]struct{}, len(memberIDs)),
	}
	for _, id := range memberIDs {
		if _, dup := ch.members[id]; dup {
			continue
		}
		ch.members[id] = struct{}{}
		username := id
		if u, ok := b.users[id]; ok {
			username = u.username
		}
		ch.conv.Members = append(ch.conv.Members, proto.Member{ID: id, Username: username})
	}
	b.chats[ch.conv.ID] = ch
	return ch
}

// SetFailSends makes POST /messages/:id answer 500.
func (b *Backend) SetFailSends(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failSends = fail
}

// SetSendDelay holds every POST /messages/:id for d before answering.
func (b *Backend) SetSendDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendDelay = d
}

// Messages returns the stored history of a chat.
func (b *Backend) Messages(chatID string) []proto.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]proto.Message, 0, len(b.messages[chatID]))
	for _, m := range b.messages[chatID] {
		out = append(out, *m)
	}
	return out
}
