package models

// EventKind names the four inbound event shapes
type EventKind string

const (
	EventNewMessage      EventKind = "new_message"
	EventThreadReply     EventKind = "thread_reply"
	EventReactionAdded   EventKind = "reaction_added"
	EventReactionRemoved EventKind = "reaction_removed"
)

// Event is a normalized inbound chat event
type Event interface {
	Kind() EventKind
	Channel() string
	// ExternalID is the id of the message the event is about
	ExternalID() string
	// Actor is the chat user who caused the event, empty when unknown
	Actor() string
}

// NewMessage is a top-level post in the channel
type NewMessage struct {
	Text      string
	ChannelID string
	MessageID string
	UserID    string
}

func (NewMessage) Kind() EventKind      { return EventNewMessage }
func (e NewMessage) Channel() string    { return e.ChannelID }
func (e NewMessage) ExternalID() string { return e.MessageID }
func (e NewMessage) Actor() string      { return e.UserID }

// ThreadReply is a reply posted under a parent message
type ThreadReply struct {
	Text            string
	ChannelID       string
	MessageID       string
	ParentMessageID string
	UserID          string
}

func (ThreadReply) Kind() EventKind      { return EventThreadReply }
func (e ThreadReply) Channel() string    { return e.ChannelID }
func (e ThreadReply) ExternalID() string { return e.MessageID }
func (e ThreadReply) Actor() string      { return e.UserID }

// ReactionAdded is an emoji reaction placed on a message
type ReactionAdded struct {
	Symbol          string
	TargetMessageID string
	ChannelID       string
	UserID          string
}

func (ReactionAdded) Kind() EventKind      { return EventReactionAdded }
func (e ReactionAdded) Channel() string    { return e.ChannelID }
func (e ReactionAdded) ExternalID() string { return e.TargetMessageID }
func (e ReactionAdded) Actor() string      { return e.UserID }

// ReactionRemoved is an emoji reaction taken off a message
type ReactionRemoved struct {
	Symbol          string
	TargetMessageID string
	ChannelID       string
	UserID          string
}

func (ReactionRemoved) Kind() EventKind      { return EventReactionRemoved }
func (e ReactionRemoved) Channel() string    { return e.ChannelID }
func (e ReactionRemoved) ExternalID() string { return e.TargetMessageID }
func (e ReactionRemoved) Actor() string      { return e.UserID }
