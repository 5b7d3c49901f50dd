package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinChannel subscribes the session to a channel room.
	CommandJoinChannel CommandKind = iota
	// CommandLeaveChannel unsubscribes the session from a channel room.
	CommandLeaveChannel
	// CommandSendMessage creates a message in a channel.
	CommandSendMessage
	// CommandEditMessage replaces the content of an existing message.
	CommandEditMessage
	// CommandDeleteMessage removes a message.
	CommandDeleteMessage
	// CommandReactMessage toggles an emoji reaction on a message.
	CommandReactMessage
	// CommandTypingStart announces that the user started typing.
	CommandTypingStart
	// CommandTypingStop announces that the user stopped typing.
	CommandTypingStop
	// CommandSetStatus changes the user's presence status.
	CommandSetStatus
)

// Command represents an action requested by a client session.
type Command struct {
	Kind      CommandKind
	Channel   string
	MessageID string
	Content   string
	Emoji     string
	Status    Status
}
