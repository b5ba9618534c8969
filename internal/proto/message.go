package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope the server receives from clients.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello       = "hello"
	InboundTypeJoin        = "join_room"
	InboundTypeLeave       = "leave_room"
	InboundTypeSendMessage = "send_message"
	InboundTypeTyping      = "typing"
	InboundTypeStopTyping  = "stop_typing"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Event names carried in Outbound.Event.
const (
	EventMessage        = "message"
	EventMessageDeleted = "message_deleted"
	EventTyping         = "typing"
	EventStopTyping     = "stop_typing"
	EventReaction       = "reaction"
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventOnlineUsers    = "online_users"
	EventConversation   = "conversation"
	EventCallIncoming   = "call_incoming"
	EventCallAccepted   = "call_accepted"
	EventCallRejected   = "call_rejected"
	EventCallJoinInfo   = "call_join_info"
	EventCallEnded      = "call_ended"
)

// HelloData introduces the client right after the socket opens.
type HelloData struct {
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// ConversationData names the conversation for join, leave and typing frames.
type ConversationData struct {
	ConversationID string `json:"chat_id"`
}

// Outbound is the envelope the server pushes to clients.
type Outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// Attachment is the wire form of an uploaded file reference.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
	MIME string `json:"mime,omitempty"`
}

// Reaction lists the users who reacted with one emoji.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
}

// Message is shared by REST responses, the send_message frame and the message event.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"chat_id"`
	SenderID       string       `json:"sender_id"`
	SenderName     string       `json:"sender_name,omitempty"`
	Type           string       `json:"type,omitempty"`
	Text           string       `json:"text"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ReplyTo        string       `json:"reply_to,omitempty"`
	Reactions      []Reaction   `json:"reactions,omitempty"`
	Status         string       `json:"status,omitempty"`
	Edited         bool         `json:"edited,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// EventMessageDeletedData announces a removed message.
type EventMessageDeletedData struct {
	ConversationID string `json:"chat_id,omitempty"`
	MessageID      string `json:"message_id"`
}

// EventTypingData is the payload of typing and stop_typing.
type EventTypingData struct {
	ConversationID string `json:"chat_id"`
	UserID         string `json:"user_id"`
}

// EventReactionData adds or removes one reactor.
type EventReactionData struct {
	ConversationID string `json:"chat_id,omitempty"`
	MessageID      string `json:"message_id"`
	Emoji          string `json:"emoji"`
	UserID         string `json:"user_id"`
	Add            bool   `json:"add"`
}

// EventPresenceData is the payload of user_online and user_offline.
type EventPresenceData struct {
	UserID string `json:"user_id"`
}

// EventOnlineUsersData replaces the online set.
type EventOnlineUsersData struct {
	Users []string `json:"users"`
}

// EventCallData carries call signalling.
type EventCallData struct {
	CallID         string `json:"call_id"`
	CallType       string `json:"call_type,omitempty"`
	FromUserID     string `json:"from_user_id,omitempty"`
	FromUsername   string `json:"from_username,omitempty"`
	ConversationID string `json:"chat_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	URL            string `json:"url,omitempty"`
	Token          string `json:"token,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
