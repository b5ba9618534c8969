package core

import (
	"time"

	"github.com/vovakirdan/wirechat-client/internal/metrics"
)

// Apply merges a single push event into local state. Events must be applied
// in receipt order; Run does that for a channel of events.
func (s *Syncer) Apply(ev *Event) {
	switch ev.Kind {
	case EventMessageReceived:
		s.applyMessage(ev)
	case EventMessageDeleted:
		s.applyDeleted(ev)
	case EventTypingStarted:
		s.applyTyping(ev, true)
	case EventTypingStopped:
		s.applyTyping(ev, false)
	case eventTypingExpired:
		s.applyTypingExpired(ev)
	case EventPresenceChanged:
		s.applyPresence(ev)
	case EventOnlineUsers:
		s.applyOnlineUsers(ev)
	case EventReactionChanged:
		s.applyReaction(ev)
	case EventConversationUpdated:
		s.applyConversation(ev)
	case EventCall:
		if s.opts.Calls != nil && ev.Call != nil {
			s.opts.Calls.HandleCall(ev.Call)
		}
	default:
		s.log.Debug().Int("kind", int(ev.Kind)).Msg("unknown push event ignored")
		return
	}
	recordPush(ev.Kind)
}

func (s *Syncer) applyMessage(ev *Event) {
	if ev.Message == nil || ev.Message.ID == "" {
		s.log.Warn().Str("kind", ev.Kind.String()).Msg("message event without payload")
		return
	}
	msg := ev.Message.Clone()
	if msg.ConversationID == "" {
		msg.ConversationID = ev.ConversationID
	}
	conversationID := msg.ConversationID
	if msg.State == "" || msg.State == StatePending || msg.State == StateFailed {
		msg.State = StateSent
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.opts.Now()
	}
	own := msg.SenderID == s.opts.Self.ID

	var duplicate, parked bool
	s.mutate(func(st *step) {
		if _, ok := s.store.Get(conversationID, msg.ID); ok {
			// Echo of something already settled: refresh in place.
			duplicate = true
			s.store.UpsertFromPush(conversationID, msg)
			if cur, ok := s.store.Get(conversationID, msg.ID); ok {
				s.cacheMessages(conversationID, cur)
			}
			if conv, ok := s.list.Get(conversationID); ok && conv.LastMessage != nil && conv.LastMessage.MessageID == msg.ID {
				s.list.Refresh(conversationID, s.store.Last(conversationID))
				st.touch(UpdateConversations, conversationID, "")
			}
			st.touch(UpdateMessages, conversationID, msg.ID)
			return
		}

		if own {
			for provisionalID, echo := range s.parked {
				if echo.ID == msg.ID {
					// Second echo of a parked message.
					s.parked[provisionalID] = msg
					duplicate = true
					return
				}
			}
			if provisionalID := s.store.FindPendingEcho(conversationID, msg.SenderID, msg, s.parked); provisionalID != "" {
				s.parked[provisionalID] = msg
				parked = true
				return
			}
		}

		s.store.UpsertFromPush(conversationID, msg)
		s.list.Accept(msg)
		s.cacheMessages(conversationID, msg)
		if s.list.SetTyping(conversationID, msg.SenderID, false) {
			delete(s.typingGen, typingKey{conversation: conversationID, user: msg.SenderID})
		}
		st.touch(UpdateMessages, conversationID, msg.ID)
		st.touch(UpdateConversations, conversationID, "")

		if !own && conversationID != s.list.OpenID() {
			if conv, ok := s.list.Get(conversationID); ok && !conv.Muted {
				st.notes = append(st.notes, note{conv: conv, msg: msg.Clone()})
			}
		}
	})

	switch {
	case duplicate:
		metrics.DuplicateEchoes.Inc()
		s.log.Debug().Str("code", ErrCodeDuplicateEcho).Str("message_id", msg.ID).Msg("echo merged into existing message")
	case parked:
		metrics.ParkedEchoes.Inc()
		s.log.Debug().Str("message_id", msg.ID).Msg("own echo parked until send resolves")
	}
}

func (s *Syncer) applyDeleted(ev *Event) {
	if ev.MessageID == "" {
		return
	}
	s.mutate(func(st *step) {
		conversationID := ev.ConversationID
		if conversationID == "" {
			located, ok := s.store.Locate(ev.MessageID)
			if !ok {
				metrics.ReconcileNoops.Inc()
				return
			}
			conversationID = located
		}
		s.removeMessage(st, conversationID, ev.MessageID)
	})
}

func (s *Syncer) applyTyping(ev *Event, typing bool) {
	if ev.UserID == "" || ev.UserID == s.opts.Self.ID {
		return
	}
	key := typingKey{conversation: ev.ConversationID, user: ev.UserID}

	var (
		gen   uint64
		armed bool
	)
	s.mutate(func(st *step) {
		if !s.list.Has(ev.ConversationID) {
			return
		}
		changed := s.list.SetTyping(ev.ConversationID, ev.UserID, typing)
		if typing {
			s.typingSeq++
			gen = s.typingSeq
			s.typingGen[key] = gen
			armed = s.opts.RemoteTypingTTL > 0
		} else {
			delete(s.typingGen, key)
		}
		if changed {
			st.touch(UpdateConversations, ev.ConversationID, "")
		}
	})

	if armed {
		expiry := &Event{Kind: eventTypingExpired, ConversationID: ev.ConversationID, UserID: ev.UserID, typingGen: gen}
		time.AfterFunc(s.opts.RemoteTypingTTL, func() { s.Apply(expiry) })
	}
}

func (s *Syncer) applyTypingExpired(ev *Event) {
	key := typingKey{conversation: ev.ConversationID, user: ev.UserID}
	s.mutate(func(st *step) {
		if s.typingGen[key] != ev.typingGen {
			// A newer start re-armed the flag.
			return
		}
		delete(s.typingGen, key)
		if s.list.SetTyping(ev.ConversationID, ev.UserID, false) {
			st.touch(UpdateConversations, ev.ConversationID, "")
		}
	})
}

func (s *Syncer) applyPresence(ev *Event) {
	if ev.UserID == "" {
		return
	}
	s.mutate(func(st *step) {
		_, was := s.online[ev.UserID]
		if was == ev.Online {
			return
		}
		if ev.Online {
			s.online[ev.UserID] = struct{}{}
		} else {
			delete(s.online, ev.UserID)
		}
		st.touch(UpdatePresence, "", "")
	})
}

func (s *Syncer) applyOnlineUsers(ev *Event) {
	s.mutate(func(st *step) {
		next := make(map[string]struct{}, len(ev.Users))
		for _, id := range ev.Users {
			if id != "" {
				next[id] = struct{}{}
			}
		}
		s.online = next
		st.touch(UpdatePresence, "", "")
	})
}

func (s *Syncer) applyReaction(ev *Event) {
	if ev.MessageID == "" || ev.Emoji == "" || ev.UserID == "" {
		return
	}
	s.mutate(func(st *step) {
		conversationID := ev.ConversationID
		if conversationID == "" {
			located, ok := s.store.Locate(ev.MessageID)
			if !ok {
				return
			}
			conversationID = located
		}
		if !s.store.ApplyReaction(conversationID, ev.MessageID, ev.Emoji, ev.UserID, ev.Add) {
			metrics.ReconcileNoops.Inc()
			return
		}
		if m, ok := s.store.Get(conversationID, ev.MessageID); ok {
			s.cacheMessages(conversationID, m)
		}
		st.touch(UpdateMessages, conversationID, ev.MessageID)
	})
}

func (s *Syncer) applyConversation(ev *Event) {
	if ev.Conversation == nil || ev.Conversation.ID == "" {
		return
	}
	s.mutate(func(st *step) {
		s.list.Upsert(ev.Conversation)
		s.cacheConversations()
		st.touch(UpdateConversations, ev.Conversation.ID, "")
	})
}
