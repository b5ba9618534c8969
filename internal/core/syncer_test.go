package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

func TestSendAppearsPendingThenSettles(t *testing.T) {
	env := newTestEnv(t, nil)
	env.api.gate = make(chan struct{})
	s := env.syncer

	id, err := s.Send(context.Background(), "bob", Draft{Text: "  hello  "})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	mustUpdate(t, s.Updates(), UpdateMessages, "bob")

	msgs := s.Messages("bob")
	if len(msgs) != 1 || msgs[0].ID != id || msgs[0].State != StatePending || msgs[0].Text != "hello" {
		t.Fatalf("unexpected optimistic entry: %+v", msgs)
	}
	if !IsProvisionalID(id) {
		t.Fatalf("expected provisional id, got %q", id)
	}

	close(env.api.gate)
	s.Wait()

	msgs = s.Messages("bob")
	if len(msgs) != 1 || msgs[0].ID != "m1" || msgs[0].State != StateSent {
		t.Fatalf("unexpected settled entry: %+v", msgs)
	}
	conv, _ := s.Conversation("bob")
	if conv.LastMessage == nil || conv.LastMessage.MessageID != "m1" {
		t.Fatalf("summary not updated: %+v", conv.LastMessage)
	}
	if env.emitter.count(CommandMessageSent) != 1 {
		t.Fatalf("expected one message-sent emit, got %v", env.emitter.kinds())
	}
}

func TestSendRejectsEmptyDraft(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.syncer.Send(context.Background(), "bob", Draft{Text: "   "})
	if !errors.Is(err, ErrEmptyMessage) || ErrorCode(err) != ErrCodeBadRequest {
		t.Fatalf("expected empty message bad_request, got %v", err)
	}
	if len(env.syncer.Messages("bob")) != 0 || env.api.sentCount() != 0 {
		t.Fatalf("nothing should be stored or sent")
	}
}

func TestSendAttachmentOnly(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.syncer.Send(context.Background(), "bob", Draft{Attachments: []Attachment{{URL: "https://cdn/x.png"}}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	env.syncer.Wait()

	msgs := env.syncer.Messages("bob")
	if len(msgs) != 1 || msgs[0].Type != MessageTypeFile {
		t.Fatalf("unexpected message: %+v", msgs)
	}
}

func TestSendFailureKeepsEntryAsFailed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.api.failSend = true
	s := env.syncer

	id, _ := s.Send(context.Background(), "bob", Draft{Text: "hi"})
	s.Wait()

	m, ok := s.Message("bob", id)
	if !ok || m.State != StateFailed {
		t.Fatalf("expected failed entry, got %+v", m)
	}
	if env.emitter.count(CommandMessageSent) != 0 {
		t.Fatalf("failed send must not be fanned out")
	}
}

func TestSendTimeoutCountsAsFailure(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.SendTimeout = 50 * time.Millisecond })
	env.api.gate = make(chan struct{})
	defer close(env.api.gate)

	id, _ := env.syncer.Send(context.Background(), "bob", Draft{Text: "hi"})
	env.syncer.Wait()

	if m, _ := env.syncer.Message("bob", id); m.State != StateFailed {
		t.Fatalf("expected failed after timeout, got %s", m.State)
	}
}

func TestResendReplacesFailedEntry(t *testing.T) {
	env := newTestEnv(t, nil)
	env.api.failSend = true
	s := env.syncer

	failed, _ := s.Send(context.Background(), "bob", Draft{Text: "retry me"})
	s.Wait()

	if _, err := s.Resend(context.Background(), "bob", "m404"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	env.api.mu.Lock()
	env.api.failSend = false
	env.api.mu.Unlock()

	if _, err := s.Resend(context.Background(), "bob", failed); err != nil {
		t.Fatalf("resend: %v", err)
	}
	s.Wait()

	msgs := s.Messages("bob")
	if len(msgs) != 1 || msgs[0].ID != "m1" || msgs[0].Text != "retry me" {
		t.Fatalf("unexpected thread after resend: %+v", msgs)
	}
}

func TestDeleteProvisionalRequiresFailed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.api.gate = make(chan struct{})
	s := env.syncer

	id, _ := s.Send(context.Background(), "bob", Draft{Text: "hi"})
	if err := s.Delete(context.Background(), "bob", id); !errors.Is(err, ErrNotFailed) {
		t.Fatalf("expected ErrNotFailed, got %v", err)
	}

	env.api.mu.Lock()
	env.api.failSend = true
	env.api.mu.Unlock()
	close(env.api.gate)
	s.Wait()

	if err := s.Delete(context.Background(), "bob", id); err != nil {
		t.Fatalf("delete failed entry: %v", err)
	}
	if len(s.Messages("bob")) != 0 {
		t.Fatalf("failed entry should be gone")
	}
	if len(env.api.deleted) != 0 {
		t.Fatalf("local delete must not reach the backend")
	}
}

func TestEchoBeforeResponseYieldsSingleMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.api.gate = make(chan struct{})
	s := env.syncer

	id, _ := s.Send(context.Background(), "bob", Draft{Text: "hi"})
	s.Apply(pushed("m1", "bob", "alice", "hi", env.api.now))

	if got := ids(s.Messages("bob")); !reflect.DeepEqual(got, []string{id}) {
		t.Fatalf("echo should wait for the response, got %v", got)
	}

	close(env.api.gate)
	s.Wait()

	if got := ids(s.Messages("bob")); !reflect.DeepEqual(got, []string{"m1"}) {
		t.Fatalf("expected exactly m1, got %v", got)
	}
}

func TestEchoAfterResponseIsMergedInPlace(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.syncer

	_, _ = s.Send(context.Background(), "bob", Draft{Text: "hi"})
	s.Wait()

	echo := pushed("m1", "bob", "alice", "hi", env.api.now)
	echo.Message.State = StateDelivered
	s.Apply(echo)
	s.Apply(pushed("m1", "bob", "alice", "hi", env.api.now))

	msgs := s.Messages("bob")
	if len(msgs) != 1 || msgs[0].State != StateDelivered {
		t.Fatalf("expected single delivered message, got %+v", msgs)
	}
}

func TestEchoRescuesFailedRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	env.api.gate = make(chan struct{})
	env.api.failSend = true
	s := env.syncer

	_, _ = s.Send(context.Background(), "bob", Draft{Text: "hi"})
	s.Apply(pushed("m7", "bob", "alice", "hi", env.api.now))
	close(env.api.gate)
	s.Wait()

	msgs := s.Messages("bob")
	if len(msgs) != 1 || msgs[0].ID != "m7" || msgs[0].State != StateSent {
		t.Fatalf("expected echo to settle the message, got %+v", msgs)
	}
}

func TestEchoAfterFailureKeepsFailedEntry(t *testing.T) {
	env := newTestEnv(t, nil)
	env.api.failSend = true
	s := env.syncer

	_, _ = s.Send(context.Background(), "bob", Draft{Text: "hi"})
	s.Wait()
	s.Apply(pushed("m7", "bob", "alice", "hi", env.api.now))

	msgs := s.Messages("bob")
	if len(msgs) != 2 {
		t.Fatalf("expected failed entry next to the pushed message, got %v", ids(msgs))
	}
	if !msgs[0].Provisional() || msgs[0].State != StateFailed {
		t.Fatalf("failed entry changed: %+v", msgs[0])
	}
	if msgs[1].ID != "m7" || msgs[1].State != StateSent {
		t.Fatalf("pushed message not stored: %+v", msgs[1])
	}
}

func TestEchoFromAnotherDeviceSurvivesSend(t *testing.T) {
	env := newTestEnv(t, nil)
	env.api.gate = make(chan struct{})
	s := env.syncer

	_, _ = s.Send(context.Background(), "bob", Draft{Text: "hi"})
	// Same text from the user's phone; the REST reply will carry m1.
	s.Apply(pushed("phone-1", "bob", "alice", "hi", env.api.now))
	close(env.api.gate)
	s.Wait()

	if got := ids(s.Messages("bob")); !reflect.DeepEqual(got, []string{"m1", "phone-1"}) {
		t.Fatalf("expected both messages, got %v", got)
	}
	if c, _ := s.Conversation("bob"); c.LastMessage == nil {
		t.Fatalf("conversation summary missing")
	}
}

func TestSendAndPushInterleavings(t *testing.T) {
	texts := []string{"hi", "ok", "hi there"}
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			env := newTestEnv(t, nil)
			env.api.gate = make(chan struct{})
			env.api.failSend = seed%4 == 0
			s := env.syncer

			var (
				sends  int
				pushes []string
				events = make(map[string]*Event)
			)
			for i := 0; i < 30; i++ {
				text := texts[rng.Intn(len(texts))]
				switch rng.Intn(4) {
				case 0:
					if _, err := s.Send(context.Background(), "bob", Draft{Text: text}); err != nil {
						t.Fatalf("send: %v", err)
					}
					sends++
				case 1:
					id := fmt.Sprintf("dev-%d", i)
					events[id] = pushed(id, "bob", "alice", text, env.api.now)
					s.Apply(events[id])
					pushes = append(pushes, id)
				case 2:
					id := fmt.Sprintf("bob-%d", i)
					events[id] = pushed(id, "bob", "bob", text, env.api.now)
					s.Apply(events[id])
					pushes = append(pushes, id)
				default:
					// Redelivery of an earlier push.
					if len(pushes) > 0 {
						s.Apply(events[pushes[rng.Intn(len(pushes))]])
					}
				}
			}
			close(env.api.gate)
			s.Wait()

			// Late echoes of everything settled must not duplicate anything.
			for _, m := range s.Messages("bob") {
				if !m.Provisional() {
					s.Apply(pushed(m.ID, "bob", m.SenderID, m.Text, m.CreatedAt))
				}
			}

			msgs := s.Messages("bob")
			seen := make(map[string]bool, len(msgs))
			for _, m := range msgs {
				if seen[m.ID] {
					t.Fatalf("duplicate id %s in %v", m.ID, ids(msgs))
				}
				seen[m.ID] = true
				if m.State == StatePending {
					t.Fatalf("entry %s still pending", m.ID)
				}
				if m.Provisional() && m.State != StateFailed {
					t.Fatalf("provisional entry %s in state %s", m.ID, m.State)
				}
			}
			distinct := make(map[string]bool)
			for _, id := range pushes {
				distinct[id] = true
				if !seen[id] {
					t.Fatalf("pushed message %s lost, have %v", id, ids(msgs))
				}
			}
			if !env.api.failSend && len(msgs) != sends+len(distinct) {
				t.Fatalf("expected %d messages, got %v", sends+len(distinct), ids(msgs))
			}
		})
	}
}

func TestConcurrentSendsKeepOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	env.api.gate = make(chan struct{})
	s := env.syncer

	for _, text := range []string{"one", "two", "three"} {
		if _, err := s.Send(context.Background(), "bob", Draft{Text: text}); err != nil {
			t.Fatalf("send %s: %v", text, err)
		}
	}
	close(env.api.gate)
	s.Wait()

	var texts []string
	for _, m := range s.Messages("bob") {
		if m.Provisional() {
			t.Fatalf("entry %s not settled", m.ID)
		}
		texts = append(texts, m.Text)
	}
	if !reflect.DeepEqual(texts, []string{"one", "two", "three"}) {
		t.Fatalf("order = %v", texts)
	}
}

func TestSendSurvivesNavigation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.api.gate = make(chan struct{})
	s := env.syncer

	ctx, cancel := context.WithCancel(context.Background())
	s.Open(ctx, "bob")
	_, _ = s.Send(ctx, "bob", Draft{Text: "hi"})
	cancel()
	s.Open(context.Background(), "general")
	s.Close()

	close(env.api.gate)
	s.Wait()

	msgs := s.Messages("bob")
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("send should complete after navigation, got %+v", msgs)
	}
	kinds := env.emitter.kinds()
	if env.emitter.count(CommandJoin) != 2 || env.emitter.count(CommandLeave) != 2 {
		t.Fatalf("unexpected join/leave emits: %v", kinds)
	}
}

func TestPushedMessageOrdersListAndCountsUnread(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.syncer
	s.Open(context.Background(), "general")

	s.Apply(pushed("m1", "carol", "carol", "hey", env.api.now))
	s.Apply(pushed("m2", "general", "bob", "hi all", env.api.now))

	if got, want := conversationIDs(s.Conversations()), []string{"general", "carol", "bob"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	carol, _ := s.Conversation("carol")
	general, _ := s.Conversation("general")
	if carol.Unread != 1 || general.Unread != 0 {
		t.Fatalf("unread carol=%d general=%d", carol.Unread, general.Unread)
	}
	if env.notifier.count() != 1 {
		t.Fatalf("expected one notification, got %d", env.notifier.count())
	}
}

func TestMutedConversationIsNotNotified(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.syncer.SetMuted("carol", true); err != nil {
		t.Fatalf("mute: %v", err)
	}
	env.syncer.Apply(pushed("m1", "carol", "carol", "hey", env.api.now))

	if env.notifier.count() != 0 {
		t.Fatalf("muted conversation notified")
	}
	if c, _ := env.syncer.Conversation("carol"); c.Unread != 1 {
		t.Fatalf("unread still counts when muted, got %d", c.Unread)
	}
}

func TestOpenMarksUnseenAsRead(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.syncer
	s.Apply(pushed("m1", "carol", "carol", "hey", env.api.now))

	s.Open(context.Background(), "carol")
	s.Wait()

	if !reflect.DeepEqual(env.api.read, []string{"m1"}) {
		t.Fatalf("mark read = %v", env.api.read)
	}
	if c, _ := s.Conversation("carol"); c.Unread != 0 {
		t.Fatalf("unread = %d after open", c.Unread)
	}
}

func TestTypingFlagLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.syncer

	s.Apply(&Event{Kind: EventTypingStarted, ConversationID: "general", UserID: "bob"})
	s.Apply(&Event{Kind: EventTypingStarted, ConversationID: "general", UserID: "bob"})
	if c, _ := s.Conversation("general"); !c.Typing || len(c.TypingUsers) != 1 {
		t.Fatalf("expected bob typing once, got %+v", c)
	}

	s.Apply(pushed("m1", "general", "bob", "done", env.api.now))
	if c, _ := s.Conversation("general"); c.Typing {
		t.Fatalf("message should clear the sender's typing flag")
	}

	s.Apply(&Event{Kind: EventTypingStopped, ConversationID: "general", UserID: "carol"})
	s.Apply(&Event{Kind: EventTypingStarted, ConversationID: "general", UserID: "alice"})
	if c, _ := s.Conversation("general"); c.Typing {
		t.Fatalf("own typing echo and unmatched stop must be ignored")
	}
}

func TestRemoteTypingExpires(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.RemoteTypingTTL = 50 * time.Millisecond })
	s := env.syncer

	s.Apply(&Event{Kind: EventTypingStarted, ConversationID: "bob", UserID: "bob"})
	eventually(t, "typing flag expires", func() bool {
		c, _ := s.Conversation("bob")
		return !c.Typing
	})
}

func TestLocalTypingDebounce(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.TypingTimeout = 40 * time.Millisecond })
	s := env.syncer

	s.Typing(context.Background(), "bob")
	s.Typing(context.Background(), "bob")
	s.Wait()
	if env.emitter.count(CommandTypingStart) != 1 || !s.IsTyping("bob") {
		t.Fatalf("expected a single typing start, got %v", env.emitter.kinds())
	}
	eventually(t, "typing stop after inactivity", func() bool {
		return env.emitter.count(CommandTypingStop) == 1
	})

	s.Typing(context.Background(), "bob")
	_, _ = s.Send(context.Background(), "bob", Draft{Text: "hi"})
	s.Wait()
	if env.emitter.count(CommandTypingStop) != 2 || s.IsTyping("bob") {
		t.Fatalf("send should stop typing immediately, got %v", env.emitter.kinds())
	}
}

func TestPresence(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.syncer

	s.Apply(&Event{Kind: EventOnlineUsers, Users: []string{"carol", "bob"}})
	s.Apply(&Event{Kind: EventPresenceChanged, UserID: "carol", Online: false})
	s.Apply(&Event{Kind: EventPresenceChanged, UserID: "dave", Online: true})

	if got := s.OnlineUsers(); !reflect.DeepEqual(got, []string{"bob", "dave"}) {
		t.Fatalf("online = %v", got)
	}
	if s.Online("carol") {
		t.Fatalf("carol should be offline")
	}
}

func TestDeletedEventRepairsSummary(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.syncer
	s.Apply(pushed("m1", "general", "bob", "first", env.api.now))
	s.Apply(pushed("m2", "general", "bob", "second", env.api.now.Add(time.Second)))

	s.Apply(&Event{Kind: EventMessageDeleted, MessageID: "m2"})
	s.Apply(&Event{Kind: EventMessageDeleted, MessageID: "ghost"})

	if got := ids(s.Messages("general")); !reflect.DeepEqual(got, []string{"m1"}) {
		t.Fatalf("messages = %v", got)
	}
	if c, _ := s.Conversation("general"); c.LastMessage == nil || c.LastMessage.MessageID != "m1" {
		t.Fatalf("summary = %+v", c.LastMessage)
	}
}

func TestReactionToggleAndRevert(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.syncer
	ctx := context.Background()
	s.Apply(pushed("m1", "bob", "bob", "hi", env.api.now))

	if err := s.ToggleReaction(ctx, "bob", "m1", "👍"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if m, _ := s.Message("bob", "m1"); !m.HasReaction("👍", "alice") {
		t.Fatalf("reaction not applied")
	}
	if err := s.ToggleReaction(ctx, "bob", "m1", "👍"); err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if m, _ := s.Message("bob", "m1"); len(m.Reactions) != 0 {
		t.Fatalf("reaction not removed: %+v", m.Reactions)
	}
	if !reflect.DeepEqual(env.api.reactions, []string{"+m1👍", "-m1👍"}) {
		t.Fatalf("api calls = %v", env.api.reactions)
	}

	env.api.failReact = true
	err := s.ToggleReaction(ctx, "bob", "m1", "🔥")
	if ErrorCode(err) != ErrCodeNetworkFailure {
		t.Fatalf("expected network_failure, got %v", err)
	}
	if m, _ := s.Message("bob", "m1"); len(m.Reactions) != 0 {
		t.Fatalf("failed reaction should be reverted: %+v", m.Reactions)
	}
}

func TestPushedReactionFindsConversation(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.syncer
	s.Apply(pushed("m1", "bob", "bob", "hi", env.api.now))

	s.Apply(&Event{Kind: EventReactionChanged, MessageID: "m1", UserID: "bob", Emoji: "❤️", Add: true})

	m, _ := s.Message("bob", "m1")
	if len(m.Reactions) != 1 || m.Reactions[0].Users()[0] != "bob" {
		t.Fatalf("unexpected reactions: %+v", m.Reactions)
	}
}

func TestCreateConversationValidation(t *testing.T) {
	tests := []struct {
		name string
		req  CreateConversationRequest
		ok   bool
	}{
		{name: "direct with one peer", req: CreateConversationRequest{Kind: KindDirect, MemberIDs: []string{"dave", "alice"}}, ok: true},
		{name: "direct with two peers", req: CreateConversationRequest{Kind: KindDirect, MemberIDs: []string{"dave", "erin"}}},
		{name: "group without name", req: CreateConversationRequest{Kind: KindGroup, MemberIDs: []string{"dave"}}},
		{name: "only self", req: CreateConversationRequest{Kind: KindGroup, Name: "x", MemberIDs: []string{"alice"}}},
		{name: "group", req: CreateConversationRequest{Kind: KindGroup, Name: " Team ", MemberIDs: []string{"dave", "dave", "erin"}}, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			conv, err := env.syncer.CreateConversation(context.Background(), tt.req)
			if !tt.ok {
				if ErrorCode(err) != ErrCodeBadRequest || !errors.Is(err, ErrInvalidConversation) {
					t.Fatalf("expected bad_request, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, ok := env.syncer.Conversation(conv.ID); !ok {
				t.Fatalf("conversation %s not listed", conv.ID)
			}
			env.syncer.Wait()
			if env.emitter.count(CommandJoin) != 1 {
				t.Fatalf("expected join emit, got %v", env.emitter.kinds())
			}
		})
	}
}

func TestCallEventsAreForwarded(t *testing.T) {
	env := newTestEnv(t, nil)
	env.syncer.Apply(&Event{Kind: EventCall, Call: &CallEvent{Action: "incoming", CallID: "call-1", FromUserID: "bob"}})

	if len(env.calls.events) != 1 || env.calls.events[0].CallID != "call-1" {
		t.Fatalf("call not forwarded: %+v", env.calls.events)
	}
}

func TestRunAppliesEventsInOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	events := make(chan *Event, 4)
	events <- pushed("m1", "general", "bob", "a", env.api.now)
	events <- pushed("m2", "general", "bob", "b", env.api.now.Add(time.Second))
	events <- &Event{Kind: EventMessageDeleted, ConversationID: "general", MessageID: "m1"}
	close(events)

	if err := env.syncer.Run(context.Background(), events); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := ids(env.syncer.Messages("general")); !reflect.DeepEqual(got, []string{"m2"}) {
		t.Fatalf("messages = %v", got)
	}
}

func TestLoadMessagesKeepsOptimisticEntries(t *testing.T) {
	env := newTestEnv(t, nil)
	env.api.gate = make(chan struct{})
	env.api.history["bob"] = []*Message{
		{ID: "h1", ConversationID: "bob", SenderID: "bob", Text: "old", CreatedAt: env.api.now.Add(-time.Minute), State: StateSeen},
	}
	s := env.syncer

	id, _ := s.Send(context.Background(), "bob", Draft{Text: "new"})
	if err := s.LoadMessages(context.Background(), "bob"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := ids(s.Messages("bob")); !reflect.DeepEqual(got, []string{"h1", id}) {
		t.Fatalf("messages = %v", got)
	}
	close(env.api.gate)
	s.Wait()
}

func TestStalledEmitterDoesNotBlockEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	env.emitter.hold = make(chan struct{})
	s := env.syncer

	s.Open(context.Background(), "bob")
	_, _ = s.Send(context.Background(), "bob", Draft{Text: "queued behind join"})

	applied := make(chan struct{})
	go func() {
		s.Apply(pushed("m9", "carol", "carol", "hello", env.api.now))
		close(applied)
	}()
	select {
	case <-applied:
	case <-time.After(time.Second):
		t.Fatal("apply blocked on the push channel")
	}
	if _, ok := s.Conversation("carol"); !ok || len(s.Messages("carol")) != 1 {
		t.Fatalf("push not applied while emitter stalled")
	}

	close(env.emitter.hold)
	s.Wait()
	want := []CommandKind{CommandJoin, CommandMessageSent}
	if got := env.emitter.kinds(); !reflect.DeepEqual(got, want) {
		t.Fatalf("emits = %v, want %v in order", got, want)
	}
}
