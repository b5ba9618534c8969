package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/metrics"
)

// UpdateKind tells observers which view changed.
type UpdateKind int

const (
	// UpdateMessages means the message list of a conversation changed.
	UpdateMessages UpdateKind = iota
	// UpdateConversations means the conversation list (order, summary, flags) changed.
	UpdateConversations
	// UpdatePresence means the online set changed.
	UpdatePresence
)

// Update is a change notification for renderers.
type Update struct {
	Kind           UpdateKind
	ConversationID string
	MessageID      string
}

// CallObserver receives call signalling forwarded from the push channel.
type CallObserver interface {
	HandleCall(ev *CallEvent)
}

// Options configures a Syncer.
type Options struct {
	// Self is the session user.
	Self Member
	// SendTimeout bounds each send request; expiry counts as failure.
	SendTimeout time.Duration
	// TypingTimeout is the input inactivity after which typing-stop is emitted.
	TypingTimeout time.Duration
	// RemoteTypingTTL clears a remote typing flag when no stop arrives. Zero disables it.
	RemoteTypingTTL time.Duration
	// UpdateBuffer is the capacity of the Updates channel.
	UpdateBuffer int

	Notifier Notifier
	Cache    Cache
	Calls    CallObserver
	// Now overrides the clock used for optimistic timestamps.
	Now func() time.Time
}

// DefaultOptions returns the timings the client ships with.
func DefaultOptions(self Member) Options {
	return Options{
		Self:            self,
		SendTimeout:     15 * time.Second,
		TypingTimeout:   time.Second,
		RemoteTypingTTL: 5 * time.Second,
		UpdateBuffer:    64,
	}
}

type typingKey struct {
	conversation string
	user         string
}

// Syncer keeps conversations and message threads consistent across initial
// loads, optimistic sends and push events. Every mutation runs as one step
// under mu.
type Syncer struct {
	api     API
	emitter Emitter
	log     *zerolog.Logger
	opts    Options

	mu     sync.RWMutex
	store  *MessageStore
	list   *ConversationList
	online map[string]struct{}
	// parked holds own pushed echoes keyed by the provisional id they belong to.
	parked    map[string]*Message
	typingGen map[typingKey]uint64
	typingSeq uint64

	local *typist

	updates  chan Update
	inflight sync.WaitGroup

	// outbox runs push emits and cache writes in order on one goroutine.
	outMu     sync.Mutex
	outbox    chan func()
	outClosed bool
}

const (
	outboxSize   = 256
	cacheTimeout = 2 * time.Second
)

// NewSyncer wires a Syncer to its collaborators. emitter may be nil when no
// push channel is connected.
func NewSyncer(api API, emitter Emitter, logger *zerolog.Logger, opts Options) *Syncer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	if opts.TypingTimeout <= 0 {
		opts.TypingTimeout = time.Second
	}
	if opts.UpdateBuffer <= 0 {
		opts.UpdateBuffer = 64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := logger.With().Str("component", "syncer").Str("user_id", opts.Self.ID).Logger()

	s := &Syncer{
		api:       api,
		emitter:   emitter,
		log:       &l,
		opts:      opts,
		store:     NewMessageStore(),
		list:      NewConversationList(opts.Self.ID),
		online:    make(map[string]struct{}),
		parked:    make(map[string]*Message),
		typingGen: make(map[typingKey]uint64),
		updates:   make(chan Update, opts.UpdateBuffer),
		outbox:    make(chan func(), outboxSize),
	}
	s.local = newTypist(s.post, opts.TypingTimeout)
	go s.drain()
	return s
}

// Run applies push events in receipt order until ctx is done or events closes.
func (s *Syncer) Run(ctx context.Context, events <-chan *Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev != nil {
				s.Apply(ev)
			}
		}
	}
}

// Updates delivers change notifications. Slow consumers miss updates rather
// than blocking the Syncer.
func (s *Syncer) Updates() <-chan Update {
	return s.updates
}

// Wait blocks until every in-flight send and background request resolved
// and the outbox is empty.
func (s *Syncer) Wait() {
	s.inflight.Wait()
}

// Shutdown stops local typing timers, waits for in-flight sends and flushes
// the outbox.
func (s *Syncer) Shutdown() {
	s.local.stopAll()
	s.Wait()
	s.outMu.Lock()
	if !s.outClosed {
		s.outClosed = true
		close(s.outbox)
	}
	s.outMu.Unlock()
}

func (s *Syncer) drain() {
	for job := range s.outbox {
		job()
		s.inflight.Done()
	}
}

// enqueue hands job to the outbox without blocking. A full outbox drops it.
func (s *Syncer) enqueue(what string, job func()) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.outClosed {
		return
	}
	s.inflight.Add(1)
	select {
	case s.outbox <- job:
	default:
		s.inflight.Done()
		s.log.Warn().Str("job", what).Msg("outbox full, dropping")
	}
}

// step collects the side effects of one mutation. Updates and notes go out
// after mu is released; emits are handed to the outbox.
type step struct {
	updates []Update
	notes   []note
	emits   []*Command
}

type note struct {
	conv *Conversation
	msg  *Message
}

func (st *step) touch(kind UpdateKind, conversationID, messageID string) {
	st.updates = append(st.updates, Update{Kind: kind, ConversationID: conversationID, MessageID: messageID})
}

// mutate runs fn as a single indivisible step. Emits are queued before mu is
// released so they leave in mutation order.
func (s *Syncer) mutate(fn func(st *step)) {
	st := &step{}
	s.mu.Lock()
	fn(st)
	for _, cmd := range st.emits {
		s.post(cmd)
	}
	s.mu.Unlock()
	s.flush(st)
}

func (s *Syncer) flush(st *step) {
	for _, u := range st.updates {
		select {
		case s.updates <- u:
		default:
			// Drop if slow consumer.
		}
	}
	if s.opts.Notifier != nil {
		for _, n := range st.notes {
			s.opts.Notifier.NotifyMessage(n.conv, n.msg)
		}
	}
}

// post queues cmd for the push channel.
func (s *Syncer) post(cmd *Command) {
	if s.emitter == nil {
		return
	}
	s.enqueue("emit", func() { s.emit(cmd) })
}

// emit publishes on the push channel; failures are logged, never returned.
// Runs on the outbox goroutine.
func (s *Syncer) emit(cmd *Command) {
	if cmd.UserID == "" {
		cmd.UserID = s.opts.Self.ID
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SendTimeout)
	defer cancel()
	if err := s.emitter.Emit(ctx, cmd); err != nil {
		s.log.Warn().Err(err).Int("kind", int(cmd.Kind)).Str("conversation_id", cmd.ConversationID).Msg("push emit failed")
	}
}

// cacheMessages queues settled messages for the cache. Called with mu held;
// the write itself happens on the outbox goroutine.
func (s *Syncer) cacheMessages(conversationID string, msgs ...*Message) {
	if s.opts.Cache == nil {
		return
	}
	settled := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		if m != nil && !m.Provisional() {
			settled = append(settled, m.Clone())
		}
	}
	if len(settled) == 0 {
		return
	}
	s.enqueue("cache messages", func() {
		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer cancel()
		if err := s.opts.Cache.SaveMessages(ctx, conversationID, settled); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("cache messages")
		}
	})
}

func (s *Syncer) cacheDelete(messageID string) {
	if s.opts.Cache == nil {
		return
	}
	s.enqueue("cache delete", func() {
		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer cancel()
		if err := s.opts.Cache.DeleteMessage(ctx, messageID); err != nil {
			s.log.Warn().Err(err).Str("message_id", messageID).Msg("cache delete")
		}
	})
}

// cacheConversations snapshots the list under mu and queues the write.
func (s *Syncer) cacheConversations() {
	if s.opts.Cache == nil {
		return
	}
	convs := s.list.Ordered()
	s.enqueue("cache conversations", func() {
		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer cancel()
		if err := s.opts.Cache.SaveConversations(ctx, convs); err != nil {
			s.log.Warn().Err(err).Msg("cache conversations")
		}
	})
}

// LoadConversations hydrates the list from the cache, then from the API.
func (s *Syncer) LoadConversations(ctx context.Context) error {
	if s.opts.Cache != nil {
		s.mu.RLock()
		empty := len(s.list.entries) == 0
		s.mu.RUnlock()
		if empty {
			if cached, err := s.opts.Cache.ListConversations(ctx); err != nil {
				s.log.Warn().Err(err).Msg("read cached conversations")
			} else if len(cached) > 0 {
				s.mutate(func(st *step) {
					s.list.Load(cached)
					st.touch(UpdateConversations, "", "")
				})
			}
		}
	}

	convs, err := s.api.FetchConversations(ctx)
	if err != nil {
		return networkFailure("fetch conversations", err)
	}
	s.mutate(func(st *step) {
		s.list.Load(convs)
		s.cacheConversations()
		st.touch(UpdateConversations, "", "")
	})
	s.log.Debug().Int("count", len(convs)).Msg("conversations loaded")
	return nil
}

// LoadMessages hydrates a conversation's history from the cache, then from the API.
func (s *Syncer) LoadMessages(ctx context.Context, conversationID string) error {
	if s.opts.Cache != nil {
		s.mu.RLock()
		empty := len(s.store.threads[conversationID]) == 0
		s.mu.RUnlock()
		if empty {
			if cached, err := s.opts.Cache.ListMessages(ctx, conversationID, 0); err != nil {
				s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("read cached messages")
			} else if len(cached) > 0 {
				s.mutate(func(st *step) {
					s.store.Load(conversationID, cached)
					st.touch(UpdateMessages, conversationID, "")
				})
			}
		}
	}

	history, err := s.api.FetchMessages(ctx, conversationID)
	if err != nil {
		return networkFailure("fetch messages", err)
	}
	s.mutate(func(st *step) {
		s.store.Load(conversationID, history)
		s.cacheMessages(conversationID, history...)
		if conv, ok := s.list.entries[conversationID]; ok {
			last := s.store.Last(conversationID)
			if last != nil && !last.Provisional() &&
				(conv.conv.LastMessage == nil || !last.CreatedAt.Before(conv.conv.LastMessage.CreatedAt)) {
				s.list.Refresh(conversationID, last)
				st.touch(UpdateConversations, conversationID, "")
			}
		}
		st.touch(UpdateMessages, conversationID, "")
	})
	s.log.Debug().Str("conversation_id", conversationID).Int("count", len(history)).Msg("history loaded")
	return nil
}

// Open makes conversationID the visible conversation: unread resets, live
// events are requested and unseen messages are marked read in the background.
func (s *Syncer) Open(ctx context.Context, conversationID string) {
	var unseen []string
	s.mutate(func(st *step) {
		if prev := s.list.OpenID(); prev != "" && prev != conversationID {
			st.emits = append(st.emits, &Command{Kind: CommandLeave, ConversationID: prev})
		}
		s.list.Open(conversationID)
		for _, m := range s.store.threads[conversationID] {
			if m.SenderID != s.opts.Self.ID && !m.Provisional() && m.State != StateSeen {
				unseen = append(unseen, m.ID)
			}
		}
		st.emits = append(st.emits, &Command{Kind: CommandJoin, ConversationID: conversationID})
		st.touch(UpdateConversations, conversationID, "")
	})
	if len(unseen) == 0 {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SendTimeout)
		defer cancel()
		if err := s.api.MarkRead(reqCtx, unseen); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("mark read failed")
		}
	}()
}

// Close leaves the open conversation. In-flight sends keep going.
func (s *Syncer) Close() {
	s.mutate(func(st *step) {
		prev := s.list.OpenID()
		if prev == "" {
			return
		}
		s.list.Close()
		st.emits = append(st.emits, &Command{Kind: CommandLeave, ConversationID: prev})
	})
}

// CreateConversation validates and creates a direct or group conversation.
func (s *Syncer) CreateConversation(ctx context.Context, req CreateConversationRequest) (*Conversation, error) {
	if err := req.validate(s.opts.Self.ID); err != nil {
		return nil, err
	}
	conv, err := s.api.CreateConversation(ctx, req)
	if err != nil {
		return nil, networkFailure("create conversation", err)
	}
	s.mutate(func(st *step) {
		s.list.Upsert(conv)
		s.cacheConversations()
		st.touch(UpdateConversations, conv.ID, "")
		st.emits = append(st.emits, &Command{Kind: CommandJoin, ConversationID: conv.ID})
	})
	s.log.Info().Str("conversation_id", conv.ID).Str("kind", string(conv.Kind)).Msg("conversation created")
	return conv.Clone(), nil
}

// SetPinned pins or unpins a conversation.
func (s *Syncer) SetPinned(conversationID string, pinned bool) error {
	return s.setFlag(conversationID, func() bool { return s.list.SetPinned(conversationID, pinned) })
}

// SetMuted mutes or unmutes notifications for a conversation.
func (s *Syncer) SetMuted(conversationID string, muted bool) error {
	return s.setFlag(conversationID, func() bool { return s.list.SetMuted(conversationID, muted) })
}

// SetArchived archives or restores a conversation.
func (s *Syncer) SetArchived(conversationID string, archived bool) error {
	return s.setFlag(conversationID, func() bool { return s.list.SetArchived(conversationID, archived) })
}

func (s *Syncer) setFlag(conversationID string, set func() bool) error {
	var found bool
	s.mutate(func(st *step) {
		found = set()
		if found {
			s.cacheConversations()
			st.touch(UpdateConversations, conversationID, "")
		}
	})
	if !found {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	return nil
}

// Messages returns a snapshot of a conversation's messages.
func (s *Syncer) Messages(conversationID string) []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Messages(conversationID)
}

// Message returns a snapshot of one message.
func (s *Syncer) Message(conversationID, messageID string) (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Get(conversationID, messageID)
}

// Conversations returns the ordered conversation list.
func (s *Syncer) Conversations() []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.Ordered()
}

// Conversation returns a snapshot of one conversation.
func (s *Syncer) Conversation(conversationID string) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.Get(conversationID)
}

// Online reports whether userID is currently online.
func (s *Syncer) Online(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.online[userID]
	return ok
}

// OnlineUsers returns the sorted online set.
func (s *Syncer) OnlineUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.online))
	for id := range s.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func networkFailure(op string, err error) error {
	if ErrorCode(err) != "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return coreError(ErrCodeNetworkFailure, op+": "+err.Error(), fmt.Errorf("%w: %w", ErrNetworkFailure, err))
}

func recordPush(kind EventKind) {
	metrics.PushEventsTotal.WithLabelValues(kind.String()).Inc()
}
