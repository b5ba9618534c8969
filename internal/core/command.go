package core

// CommandKind describes what the client emits on the push channel.
type CommandKind int

const (
	// CommandMessageSent fans a durably stored message out to other participants.
	CommandMessageSent CommandKind = iota
	// CommandTypingStart announces that the local user is typing.
	CommandTypingStart
	// CommandTypingStop announces that the local user stopped typing.
	CommandTypingStop
	// CommandJoin subscribes to a conversation's live events.
	CommandJoin
	// CommandLeave unsubscribes from a conversation's live events.
	CommandLeave
)

// Command represents an outbound push-channel event.
type Command struct {
	Kind           CommandKind
	ConversationID string
	UserID         string
	Message        *Message
}
