// Package notify keeps the in-app notification queue.
package notify

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

// DefaultTTL is how long a notification stays before it dismisses itself.
const DefaultTTL = 5 * time.Second

const previewRunes = 80

// Notification announces a message in a conversation that is not open.
type Notification struct {
	ID               string
	ConversationID   string
	ConversationName string
	MessageID        string
	SenderName       string
	Preview          string
	CreatedAt        time.Time
}

// Queue implements core.Notifier.
type Queue struct {
	ttl time.Duration
	log *zerolog.Logger

	mu     sync.Mutex
	items  []Notification
	timers map[string]*time.Timer
	closed bool

	raised chan Notification
}

// New creates a queue. ttl <= 0 means DefaultTTL.
func New(ttl time.Duration, logger *zerolog.Logger) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Queue{
		ttl:    ttl,
		log:    logger,
		timers: make(map[string]*time.Timer),
		raised: make(chan Notification, 16),
	}
}

// Raised delivers each new notification. Slow readers miss some; List stays complete.
func (q *Queue) Raised() <-chan Notification {
	return q.raised
}

// NotifyMessage queues a notification for msg.
func (q *Queue) NotifyMessage(conv *core.Conversation, msg *core.Message) {
	if conv == nil || msg == nil {
		return
	}
	n := Notification{
		ID:               uuid.NewString(),
		ConversationID:   conv.ID,
		ConversationName: displayName(conv, msg),
		MessageID:        msg.ID,
		SenderName:       msg.SenderName,
		Preview:          preview(msg),
		CreatedAt:        time.Now(),
	}
	if n.SenderName == "" {
		n.SenderName = msg.SenderID
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, n)
	id := n.ID
	q.timers[id] = time.AfterFunc(q.ttl, func() { q.Dismiss(id) })
	q.mu.Unlock()

	q.log.Debug().Str("conversation_id", conv.ID).Str("message_id", msg.ID).Msg("notification raised")
	select {
	case q.raised <- n:
	default:
	}
}

// List returns the pending notifications, oldest first.
func (q *Queue) List() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Notification(nil), q.items...)
}

// Dismiss removes one notification. Returns false if it was already gone.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, n := range q.items {
		if n.ID != id {
			continue
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		if t, ok := q.timers[id]; ok {
			t.Stop()
			delete(q.timers, id)
		}
		return true
	}
	return false
}

// DismissConversation drops every notification of a conversation, e.g. when it is opened.
func (q *Queue) DismissConversation(conversationID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	dropped := 0
	for _, n := range q.items {
		if n.ConversationID != conversationID {
			kept = append(kept, n)
			continue
		}
		dropped++
		if t, ok := q.timers[n.ID]; ok {
			t.Stop()
			delete(q.timers, n.ID)
		}
	}
	q.items = kept
	return dropped
}

// Close stops all timers and rejects further notifications.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.items = nil
}

func displayName(conv *core.Conversation, msg *core.Message) string {
	if conv.Name != "" {
		return conv.Name
	}
	if conv.Kind == core.KindDirect && msg.SenderName != "" {
		return msg.SenderName
	}
	return conv.ID
}

func preview(msg *core.Message) string {
	if msg.Text == "" {
		switch msg.Type {
		case core.MessageTypeImage:
			return "[image]"
		case core.MessageTypeVoice:
			return "[voice message]"
		default:
			return "[attachment]"
		}
	}
	if utf8.RuneCountInString(msg.Text) <= previewRunes {
		return msg.Text
	}
	runes := []rune(msg.Text)
	return string(runes[:previewRunes-1]) + "…"
}

var _ core.Notifier = (*Queue)(nil)
