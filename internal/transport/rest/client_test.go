package rest_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/vovakirdan/wirechat-client/internal/apitest"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/transport/rest"
)

type memTokens struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (m *memTokens) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *memTokens) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.cleared++
	return nil
}

type fixture struct {
	backend *apitest.Backend
	client  *rest.Client
	tokens  *memTokens
	alice   string
	bob     string
	chat    string
}

func setup(t *testing.T) *fixture {
	t.Helper()

	backend, ts := apitest.Start(t)
	alice, err := backend.CreateUser("alice", "password1")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := backend.CreateUser("bob", "password2")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	token, err := backend.Token(alice)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	tokens := &memTokens{token: token}
	return &fixture{
		backend: backend,
		client:  rest.New(apitest.APIURL(ts), tokens, nil),
		tokens:  tokens,
		alice:   alice,
		bob:     bob,
		chat:    backend.CreateChat("direct", "", alice, bob),
	}
}

func TestSendAndFetchMessages(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	msg, err := f.client.SendMessage(ctx, core.SendRequest{
		ConversationID: f.chat,
		Type:           core.MessageTypeText,
		Text:           "hello",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID == "" || msg.Provisional() {
		t.Fatalf("expected durable id, got %q", msg.ID)
	}
	if msg.State != core.StateSent || msg.SenderID != f.alice {
		t.Fatalf("unexpected message %+v", msg)
	}

	history, err := f.client.FetchMessages(ctx, f.chat)
	if err != nil {
		t.Fatalf("FetchMessages: %v", err)
	}
	if len(history) != 1 || history[0].ID != msg.ID || history[0].Text != "hello" {
		t.Fatalf("unexpected history %+v", history)
	}

	convs, err := f.client.FetchConversations(ctx)
	if err != nil {
		t.Fatalf("FetchConversations: %v", err)
	}
	if len(convs) != 1 || convs[0].LastMessage == nil || convs[0].LastMessage.MessageID != msg.ID {
		t.Fatalf("expected summary of %s, got %+v", msg.ID, convs)
	}
}

func TestErrorMapping(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.client.FetchMessages(ctx, "missing")
	if core.ErrorCode(err) != core.ErrCodeNotFound || !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}

	_, err = f.client.SendMessage(ctx, core.SendRequest{ConversationID: f.chat, Text: "  "})
	if core.ErrorCode(err) != core.ErrCodeBadRequest || rest.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected bad_request, got %v", err)
	}

	f.backend.SetFailSends(true)
	_, err = f.client.SendMessage(ctx, core.SendRequest{ConversationID: f.chat, Text: "boom"})
	if core.ErrorCode(err) != core.ErrCodeNetworkFailure || !errors.Is(err, core.ErrNetworkFailure) {
		t.Fatalf("expected network_failure, got %v", err)
	}
}

func TestUnauthorizedClearsToken(t *testing.T) {
	f := setup(t)
	f.tokens.token = "garbage"

	_, err := f.client.FetchConversations(context.Background())
	if core.ErrorCode(err) != core.ErrCodeUnauthorized || !errors.Is(err, rest.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if f.tokens.cleared != 1 || f.tokens.Token() != "" {
		t.Fatalf("expected token cleared once, cleared=%d", f.tokens.cleared)
	}
}

func TestBadLoginKeepsToken(t *testing.T) {
	f := setup(t)
	before := f.tokens.Token()

	_, err := f.client.Login(context.Background(), "alice", "wrong-password")
	if rest.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if f.tokens.cleared != 0 || f.tokens.Token() != before {
		t.Fatal("bad credentials must not clear the session")
	}
}

func TestTransportFailure(t *testing.T) {
	client := rest.New("http://127.0.0.1:1/api", nil, nil)

	_, err := client.FetchConversations(context.Background())
	if core.ErrorCode(err) != core.ErrCodeNetworkFailure {
		t.Fatalf("expected network_failure, got %v", err)
	}
}

func TestReactionsAndDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	msg, err := f.client.SendMessage(ctx, core.SendRequest{ConversationID: f.chat, Text: "react to me"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := f.client.AddReaction(ctx, msg.ID, "👍"); err != nil {
		t.Fatalf("AddReaction: %v", err)
	}
	stored := f.backend.Messages(f.chat)
	if len(stored[0].Reactions) != 1 || stored[0].Reactions[0].Users[0] != f.alice {
		t.Fatalf("reaction not stored: %+v", stored[0].Reactions)
	}
	if err := f.client.RemoveReaction(ctx, msg.ID, "👍"); err != nil {
		t.Fatalf("RemoveReaction: %v", err)
	}
	if stored := f.backend.Messages(f.chat); len(stored[0].Reactions) != 0 {
		t.Fatalf("reaction not removed: %+v", stored[0].Reactions)
	}

	if err := f.client.MarkRead(ctx, []string{msg.ID}); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := f.client.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if stored := f.backend.Messages(f.chat); len(stored) != 0 {
		t.Fatalf("expected empty history, got %d", len(stored))
	}
	if err := f.client.DeleteMessage(ctx, msg.ID); core.ErrorCode(err) != core.ErrCodeNotFound {
		t.Fatalf("expected not_found on second delete, got %v", err)
	}
}

func TestCreateConversation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	conv, err := f.client.CreateConversation(ctx, core.CreateConversationRequest{
		Kind:      core.KindGroup,
		Name:      "team",
		MemberIDs: []string{f.bob},
	})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.Kind != core.KindGroup || conv.Name != "team" || len(conv.Members) != 2 {
		t.Fatalf("unexpected conversation %+v", conv)
	}

	direct, err := f.client.CreateConversation(ctx, core.CreateConversationRequest{
		Kind:      core.KindDirect,
		MemberIDs: []string{f.bob},
	})
	if err != nil {
		t.Fatalf("CreateConversation direct: %v", err)
	}
	if direct.ID != f.chat {
		t.Fatalf("expected existing direct chat %s, got %s", f.chat, direct.ID)
	}
}

func TestUsersAndCalls(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	users, err := f.client.SearchUsers(ctx, "bob")
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(users) != 1 || users[0].ID != f.bob {
		t.Fatalf("unexpected search result %+v", users)
	}

	call, err := f.client.StartDirectCall(ctx, f.bob)
	if err != nil {
		t.Fatalf("StartDirectCall: %v", err)
	}
	info, err := f.client.JoinCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("JoinCall: %v", err)
	}
	if info.Token == "" || info.RoomName == "" || info.Identity != "user-"+f.alice {
		t.Fatalf("unexpected join info %+v", info)
	}
	if err := f.client.EndCall(ctx, call.ID); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	if _, err := f.client.JoinCall(ctx, call.ID); rest.StatusOf(err) != http.StatusGone {
		t.Fatalf("expected 410 after end, got %v", err)
	}
}
