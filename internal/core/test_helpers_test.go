package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func mustUpdate(t *testing.T, ch <-chan Update, kind UpdateKind, conversationID string) Update {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case u := <-ch:
			if u.Kind == kind && (conversationID == "" || u.ConversationID == conversationID) {
				return u
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected update kind %v for %q not received", kind, conversationID)
	return Update{}
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", what)
}

var errBackendDown = errors.New("backend down")

// fakeAPI answers from memory. Sends block on release when gate is set.
type fakeAPI struct {
	mu            sync.Mutex
	conversations []*Conversation
	history       map[string][]*Message
	seq           int
	failSend      bool
	failReact     bool
	gate          chan struct{}
	sent          []SendRequest
	deleted       []string
	reactions     []string
	read          []string
	now           time.Time
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history: make(map[string][]*Message),
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeAPI) FetchConversations(context.Context) ([]*Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Conversation, 0, len(f.conversations))
	for _, c := range f.conversations {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (f *fakeAPI) FetchMessages(_ context.Context, conversationID string) ([]*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Message, 0, len(f.history[conversationID]))
	for _, m := range f.history[conversationID] {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, req SendRequest) (*Message, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.failSend {
		return nil, errBackendDown
	}
	f.seq++
	return &Message{
		ID:             fmt.Sprintf("m%d", f.seq),
		ConversationID: req.ConversationID,
		SenderID:       "alice",
		SenderName:     "Alice",
		Type:           req.Type,
		Text:           req.Text,
		Attachments:    req.Attachments,
		ReplyTo:        req.ReplyTo,
		CreatedAt:      f.now.Add(time.Duration(f.seq) * time.Second),
		State:          StateSent,
	}, nil
}

func (f *fakeAPI) CreateConversation(_ context.Context, req CreateConversationRequest) (*Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	conv := &Conversation{ID: fmt.Sprintf("c%d", f.seq), Kind: req.Kind, Name: req.Name, LastActivity: f.now}
	for _, id := range req.MemberIDs {
		conv.Members = append(conv.Members, Member{ID: id})
	}
	f.conversations = append(f.conversations, conv)
	return conv.Clone(), nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeAPI) AddReaction(_ context.Context, messageID, emoji string) error {
	return f.react("+" + messageID + emoji)
}

func (f *fakeAPI) RemoveReaction(_ context.Context, messageID, emoji string) error {
	return f.react("-" + messageID + emoji)
}

func (f *fakeAPI) react(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReact {
		return errBackendDown
	}
	f.reactions = append(f.reactions, op)
	return nil
}

func (f *fakeAPI) MarkRead(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, ids...)
	return nil
}

func (f *fakeAPI) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeEmitter struct {
	mu   sync.Mutex
	cmds []*Command
	// hold stalls Emit until closed, like a socket that stopped draining.
	hold chan struct{}
}

func (e *fakeEmitter) Emit(_ context.Context, cmd *Command) error {
	e.mu.Lock()
	hold := e.hold
	e.mu.Unlock()
	if hold != nil {
		<-hold
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmds = append(e.cmds, cmd)
	return nil
}

func (e *fakeEmitter) kinds() []CommandKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]CommandKind, 0, len(e.cmds))
	for _, c := range e.cmds {
		out = append(out, c.Kind)
	}
	return out
}

func (e *fakeEmitter) count(kind CommandKind) int {
	n := 0
	for _, k := range e.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []*Message
}

func (n *fakeNotifier) NotifyMessage(_ *Conversation, msg *Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, msg)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

type fakeCalls struct {
	mu     sync.Mutex
	events []*CallEvent
}

func (c *fakeCalls) HandleCall(ev *CallEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

type testEnv struct {
	api      *fakeAPI
	emitter  *fakeEmitter
	notifier *fakeNotifier
	calls    *fakeCalls
	syncer   *Syncer
}

func newTestEnv(t *testing.T, tweak func(*Options)) *testEnv {
	t.Helper()

	env := &testEnv{
		api:      newFakeAPI(),
		emitter:  &fakeEmitter{},
		notifier: &fakeNotifier{},
		calls:    &fakeCalls{},
	}
	env.api.conversations = []*Conversation{
		{ID: "general", Kind: KindGroup, Name: "General", LastActivity: env.api.now.Add(-time.Hour)},
		{ID: "bob", Kind: KindDirect, Name: "Bob", LastActivity: env.api.now.Add(-2 * time.Hour)},
		{ID: "carol", Kind: KindDirect, Name: "Carol", LastActivity: env.api.now.Add(-3 * time.Hour)},
	}

	opts := DefaultOptions(Member{ID: "alice", Name: "Alice"})
	opts.Notifier = env.notifier
	opts.Calls = env.calls
	opts.UpdateBuffer = 256
	if tweak != nil {
		tweak(&opts)
	}
	env.syncer = NewSyncer(env.api, env.emitter, nil, opts)
	t.Cleanup(env.syncer.Shutdown)

	if err := env.syncer.LoadConversations(context.Background()); err != nil {
		t.Fatalf("load conversations: %v", err)
	}
	return env
}

func pushed(id, conversationID, sender, text string, at time.Time) *Event {
	return &Event{
		Kind:           EventMessageReceived,
		ConversationID: conversationID,
		Message: &Message{
			ID:             id,
			ConversationID: conversationID,
			SenderID:       sender,
			Text:           text,
			Type:           MessageTypeText,
			CreatedAt:      at,
			State:          StateSent,
		},
	}
}

func ids(msgs []*Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func conversationIDs(convs []*Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}
