package core

import (
	"context"
	"sync"
	"time"
)

// typist debounces the local user's typing indicator per conversation:
// the first keystroke emits a start, inactivity longer than timeout emits a stop.
type typist struct {
	emit    func(*Command)
	timeout time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTypist(emit func(*Command), timeout time.Duration) *typist {
	return &typist{
		emit:    emit,
		timeout: timeout,
		timers:  make(map[string]*time.Timer),
	}
}

func (t *typist) keystroke(conversationID string) {
	t.mu.Lock()
	if timer, ok := t.timers[conversationID]; ok {
		timer.Reset(t.timeout)
		t.mu.Unlock()
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(t.timeout, func() { t.expire(conversationID, timer) })
	t.timers[conversationID] = timer
	t.mu.Unlock()

	t.emit(&Command{Kind: CommandTypingStart, ConversationID: conversationID})
}

func (t *typist) expire(conversationID string, timer *time.Timer) {
	t.mu.Lock()
	if t.timers[conversationID] != timer {
		t.mu.Unlock()
		return
	}
	delete(t.timers, conversationID)
	t.mu.Unlock()

	t.emit(&Command{Kind: CommandTypingStop, ConversationID: conversationID})
}

// stop emits typing-stop right away if a start is outstanding.
func (t *typist) stop(conversationID string) {
	t.mu.Lock()
	timer, ok := t.timers[conversationID]
	if ok {
		timer.Stop()
		delete(t.timers, conversationID)
	}
	t.mu.Unlock()

	if ok {
		t.emit(&Command{Kind: CommandTypingStop, ConversationID: conversationID})
	}
}

func (t *typist) active(conversationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[conversationID]
	return ok
}

func (t *typist) stopAll() {
	t.mu.Lock()
	ids := make([]string, 0, len(t.timers))
	for id := range t.timers {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.stop(id)
	}
}

// Typing records a keystroke in the conversation's input.
func (s *Syncer) Typing(_ context.Context, conversationID string) {
	s.local.keystroke(conversationID)
}

// StopTyping ends the local typing indicator, e.g. when the input is cleared.
func (s *Syncer) StopTyping(_ context.Context, conversationID string) {
	s.local.stop(conversationID)
}

// IsTyping reports whether the local user currently shows as typing.
func (s *Syncer) IsTyping(conversationID string) bool {
	return s.local.active(conversationID)
}
