package ws

import (
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

func commandToInbound(cmd *core.Command) (proto.Inbound, error) {
	var (
		typ  string
		data any
	)
	switch cmd.Kind {
	case core.CommandJoin:
		typ, data = proto.InboundTypeJoin, proto.ConversationData{ConversationID: cmd.ConversationID}
	case core.CommandLeave:
		typ, data = proto.InboundTypeLeave, proto.ConversationData{ConversationID: cmd.ConversationID}
	case core.CommandTypingStart:
		typ, data = proto.InboundTypeTyping, proto.ConversationData{ConversationID: cmd.ConversationID}
	case core.CommandTypingStop:
		typ, data = proto.InboundTypeStopTyping, proto.ConversationData{ConversationID: cmd.ConversationID}
	case core.CommandMessageSent:
		if cmd.Message == nil {
			return proto.Inbound{}, fmt.Errorf("send_message without message")
		}
		typ, data = proto.InboundTypeSendMessage, proto.MessageFromCore(cmd.Message)
	default:
		return proto.Inbound{}, fmt.Errorf("unknown command kind %d", cmd.Kind)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return proto.Inbound{}, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return proto.Inbound{Type: typ, Data: payload}, nil
}

// outboundToEvent maps a pushed frame to a core event. A nil event with nil
// error means the frame carries nothing the client tracks.
func outboundToEvent(out proto.Outbound) (*core.Event, error) {
	if out.Type == proto.OutboundTypeError {
		return nil, nil
	}

	switch out.Event {
	case proto.EventMessage:
		var m proto.Message
		if err := json.Unmarshal(out.Data, &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		return &core.Event{Kind: core.EventMessageReceived, ConversationID: m.ConversationID, Message: m.ToCore()}, nil
	case proto.EventMessageDeleted:
		var d proto.EventMessageDeletedData
		if err := json.Unmarshal(out.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal message_deleted: %w", err)
		}
		return &core.Event{Kind: core.EventMessageDeleted, ConversationID: d.ConversationID, MessageID: d.MessageID}, nil
	case proto.EventTyping, proto.EventStopTyping:
		var d proto.EventTypingData
		if err := json.Unmarshal(out.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", out.Event, err)
		}
		kind := core.EventTypingStarted
		if out.Event == proto.EventStopTyping {
			kind = core.EventTypingStopped
		}
		return &core.Event{Kind: kind, ConversationID: d.ConversationID, UserID: d.UserID}, nil
	case proto.EventReaction:
		var d proto.EventReactionData
		if err := json.Unmarshal(out.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal reaction: %w", err)
		}
		return &core.Event{
			Kind:           core.EventReactionChanged,
			ConversationID: d.ConversationID,
			MessageID:      d.MessageID,
			Emoji:          d.Emoji,
			UserID:         d.UserID,
			Add:            d.Add,
		}, nil
	case proto.EventUserOnline, proto.EventUserOffline:
		var d proto.EventPresenceData
		if err := json.Unmarshal(out.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", out.Event, err)
		}
		return &core.Event{Kind: core.EventPresenceChanged, UserID: d.UserID, Online: out.Event == proto.EventUserOnline}, nil
	case proto.EventOnlineUsers:
		var d proto.EventOnlineUsersData
		if err := json.Unmarshal(out.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal online_users: %w", err)
		}
		return &core.Event{Kind: core.EventOnlineUsers, Users: d.Users}, nil
	case proto.EventConversation:
		var c proto.Conversation
		if err := json.Unmarshal(out.Data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal conversation: %w", err)
		}
		return &core.Event{Kind: core.EventConversationUpdated, ConversationID: c.ID, Conversation: c.ToCore()}, nil
	case proto.EventCallIncoming, proto.EventCallAccepted, proto.EventCallRejected, proto.EventCallJoinInfo, proto.EventCallEnded:
		var d proto.EventCallData
		if err := json.Unmarshal(out.Data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", out.Event, err)
		}
		return &core.Event{
			Kind:           core.EventCall,
			ConversationID: d.ConversationID,
			UserID:         d.FromUserID,
			Call: &core.CallEvent{
				Action:         callActions[out.Event],
				CallID:         d.CallID,
				CallType:       d.CallType,
				FromUserID:     d.FromUserID,
				FromUsername:   d.FromUsername,
				ConversationID: d.ConversationID,
				Reason:         d.Reason,
				JoinURL:        d.URL,
				JoinToken:      d.Token,
			},
		}, nil
	default:
		return nil, nil
	}
}

var callActions = map[string]string{
	proto.EventCallIncoming: "incoming",
	proto.EventCallAccepted: "accepted",
	proto.EventCallRejected: "rejected",
	proto.EventCallJoinInfo: "join_info",
	proto.EventCallEnded:    "ended",
}
