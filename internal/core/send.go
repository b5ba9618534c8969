package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/wirechat-client/internal/metrics"
)

// Send appends an optimistic entry for draft and submits it in the background.
// It returns the provisional id as soon as the entry is visible. The request is
// not bound to ctx: leaving the conversation must not cancel a send.
func (s *Syncer) Send(ctx context.Context, conversationID string, draft Draft) (string, error) {
	if err := draft.normalize(); err != nil {
		return "", err
	}

	msg := &Message{
		ID:             NewProvisionalID(),
		ConversationID: conversationID,
		SenderID:       s.opts.Self.ID,
		SenderName:     s.opts.Self.Name,
		Type:           draft.Type,
		Text:           draft.Text,
		Attachments:    draft.Attachments,
		ReplyTo:        draft.ReplyTo,
		CreatedAt:      s.opts.Now(),
		State:          StatePending,
	}

	var appendErr error
	s.mutate(func(st *step) {
		if appendErr = s.store.Append(conversationID, msg); appendErr != nil {
			return
		}
		st.touch(UpdateMessages, conversationID, msg.ID)
	})
	if appendErr != nil {
		return "", appendErr
	}

	s.local.stop(conversationID)

	metrics.SendsInFlight.Inc()
	s.inflight.Add(1)
	go s.deliver(context.WithoutCancel(ctx), msg)

	s.log.Debug().Str("conversation_id", conversationID).Str("provisional_id", msg.ID).Msg("message queued")
	return msg.ID, nil
}

// Resend replaces a failed entry with a fresh provisional one carrying the same content.
func (s *Syncer) Resend(ctx context.Context, conversationID, failedID string) (string, error) {
	var (
		draft Draft
		err   error
	)
	s.mutate(func(st *step) {
		m, ok := s.store.Get(conversationID, failedID)
		if !ok {
			err = fmt.Errorf("resend %s: %w", failedID, ErrNotFound)
			return
		}
		if !m.Provisional() || m.State != StateFailed {
			err = fmt.Errorf("resend %s: %w", failedID, ErrNotFailed)
			return
		}
		s.store.Remove(conversationID, failedID)
		delete(s.parked, failedID)
		st.touch(UpdateMessages, conversationID, failedID)
		draft = Draft{Type: m.Type, Text: m.Text, Attachments: m.Attachments, ReplyTo: m.ReplyTo}
	})
	if err != nil {
		return "", err
	}
	return s.Send(ctx, conversationID, draft)
}

func (s *Syncer) deliver(ctx context.Context, msg *Message) {
	defer s.inflight.Done()
	defer metrics.SendsInFlight.Dec()

	reqCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()

	final, err := s.api.SendMessage(reqCtx, SendRequest{
		ConversationID: msg.ConversationID,
		Type:           msg.Type,
		Text:           msg.Text,
		Attachments:    msg.Attachments,
		ReplyTo:        msg.ReplyTo,
	})
	if err == nil && (final == nil || final.ID == "" || IsProvisionalID(final.ID)) {
		err = errors.New("backend returned no durable id")
	}
	if err != nil {
		s.sendFailed(msg, err)
		return
	}
	s.sendSucceeded(msg, final)
}

func (s *Syncer) sendSucceeded(msg, final *Message) {
	final = final.Clone()
	final.ConversationID = msg.ConversationID
	if final.SenderID == "" {
		final.SenderID = msg.SenderID
		final.SenderName = msg.SenderName
	}
	if final.State.rank() < StateSent.rank() {
		final.State = StateSent
	}

	var replaced bool
	s.mutate(func(st *step) {
		echo := s.parked[msg.ID]
		delete(s.parked, msg.ID)
		replaced = s.store.Replace(msg.ConversationID, msg.ID, final)
		if echo != nil && echo.ID != final.ID {
			// Same text, different message: another device sent it.
			s.applyUnparked(st, echo)
		}
		if !replaced {
			return
		}
		s.list.Accept(final)
		s.cacheMessages(msg.ConversationID, final)
		st.touch(UpdateMessages, msg.ConversationID, final.ID)
		st.touch(UpdateConversations, msg.ConversationID, "")
		st.emits = append(st.emits, &Command{
			Kind:           CommandMessageSent,
			ConversationID: msg.ConversationID,
			UserID:         s.opts.Self.ID,
			Message:        final.Clone(),
		})
	})

	if !replaced {
		metrics.ReconcileNoops.Inc()
		s.log.Debug().Str("provisional_id", msg.ID).Str("message_id", final.ID).Msg("optimistic entry already gone")
		return
	}
	metrics.SendsTotal.WithLabelValues("sent").Inc()
	s.log.Debug().Str("provisional_id", msg.ID).Str("message_id", final.ID).Msg("message confirmed")
}

// applyUnparked stores an own push that was held back for a pending entry it
// turned out not to belong to. Called with mu held.
func (s *Syncer) applyUnparked(st *step, echo *Message) {
	if echo.State.rank() < StateSent.rank() {
		echo.State = StateSent
	}
	s.store.UpsertFromPush(echo.ConversationID, echo)
	s.list.Accept(echo)
	s.cacheMessages(echo.ConversationID, echo)
	st.touch(UpdateMessages, echo.ConversationID, echo.ID)
	st.touch(UpdateConversations, echo.ConversationID, "")
}

func (s *Syncer) sendFailed(msg *Message, cause error) {
	var (
		echo   *Message
		marked bool
	)
	s.mutate(func(st *step) {
		if parked, ok := s.parked[msg.ID]; ok {
			delete(s.parked, msg.ID)
			if parked.State.rank() < StateSent.rank() {
				parked.State = StateSent
			}
			if s.store.Replace(msg.ConversationID, msg.ID, parked) {
				echo = parked
				s.list.Accept(parked)
				s.cacheMessages(msg.ConversationID, parked)
				st.touch(UpdateMessages, msg.ConversationID, parked.ID)
				st.touch(UpdateConversations, msg.ConversationID, "")
			} else {
				s.applyUnparked(st, parked)
			}
			return
		}
		marked = s.store.MarkFailed(msg.ConversationID, msg.ID)
		if marked {
			st.touch(UpdateMessages, msg.ConversationID, msg.ID)
		}
	})

	switch {
	case echo != nil:
		metrics.SendsTotal.WithLabelValues("echo").Inc()
		s.log.Info().Err(cause).Str("provisional_id", msg.ID).Str("message_id", echo.ID).
			Msg("send request failed but push echo confirmed the message")
	case marked:
		metrics.SendsTotal.WithLabelValues("failed").Inc()
		s.log.Warn().Err(cause).Str("code", ErrCodeNetworkFailure).Str("conversation_id", msg.ConversationID).
			Str("provisional_id", msg.ID).Msg("message send failed")
	default:
		metrics.ReconcileNoops.Inc()
		s.log.Debug().Err(cause).Str("provisional_id", msg.ID).Msg("failed send target already gone")
	}
}

// Delete removes a message. Failed optimistic entries are dropped locally;
// durable messages are deleted on the backend first.
func (s *Syncer) Delete(ctx context.Context, conversationID, messageID string) error {
	if IsProvisionalID(messageID) {
		var err error
		s.mutate(func(st *step) {
			m, ok := s.store.Get(conversationID, messageID)
			if !ok {
				err = fmt.Errorf("delete %s: %w", messageID, ErrNotFound)
				return
			}
			if m.State != StateFailed {
				err = fmt.Errorf("delete %s: %w", messageID, ErrNotFailed)
				return
			}
			s.store.Remove(conversationID, messageID)
			delete(s.parked, messageID)
			st.touch(UpdateMessages, conversationID, messageID)
		})
		return err
	}

	if err := s.api.DeleteMessage(ctx, messageID); err != nil {
		return networkFailure("delete message", err)
	}
	s.mutate(func(st *step) {
		s.removeMessage(st, conversationID, messageID)
	})
	return nil
}

// removeMessage drops a durable message and repairs the summary. Called with mu held.
func (s *Syncer) removeMessage(st *step, conversationID, messageID string) {
	if !s.store.Remove(conversationID, messageID) {
		metrics.ReconcileNoops.Inc()
		return
	}
	s.cacheDelete(messageID)
	st.touch(UpdateMessages, conversationID, messageID)
	if conv, ok := s.list.Get(conversationID); ok && conv.LastMessage != nil && conv.LastMessage.MessageID == messageID {
		s.list.Refresh(conversationID, s.store.Last(conversationID))
		st.touch(UpdateConversations, conversationID, "")
	}
}

// ToggleReaction flips the session user's emoji on a message. The change is
// shown immediately and rolled back if the backend refuses it.
func (s *Syncer) ToggleReaction(ctx context.Context, conversationID, messageID, emoji string) error {
	var (
		add   bool
		found bool
	)
	self := s.opts.Self.ID
	s.mutate(func(st *step) {
		m, ok := s.store.Get(conversationID, messageID)
		if !ok {
			return
		}
		found = true
		add = !m.HasReaction(emoji, self)
		s.store.ApplyReaction(conversationID, messageID, emoji, self, add)
		st.touch(UpdateMessages, conversationID, messageID)
	})
	if !found {
		return fmt.Errorf("react to %s: %w", messageID, ErrNotFound)
	}
	if IsProvisionalID(messageID) {
		return nil
	}

	var err error
	if add {
		err = s.api.AddReaction(ctx, messageID, emoji)
	} else {
		err = s.api.RemoveReaction(ctx, messageID, emoji)
	}
	if err == nil {
		s.mutate(func(*step) {
			if m, ok := s.store.Get(conversationID, messageID); ok {
				s.cacheMessages(conversationID, m)
			}
		})
		return nil
	}

	s.mutate(func(st *step) {
		if s.store.ApplyReaction(conversationID, messageID, emoji, self, !add) {
			st.touch(UpdateMessages, conversationID, messageID)
		}
	})
	return networkFailure("toggle reaction", err)
}
