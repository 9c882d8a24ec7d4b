package core

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventWelcome confirms a connection attached and lists its channels.
	EventWelcome EventKind = iota
	// EventJoined confirms a channel subscription.
	EventJoined
	// EventLeft confirms a channel unsubscription.
	EventLeft
	// EventSignal delivers a routed signal.
	EventSignal
	// EventError reports a rejected operation.
	EventError
)

// Event is sent to connections to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Channel ChannelID
	Label   string
	// Channels lists the connection's subscriptions (welcome only). Partial
	// flags that membership resolution is incomplete and will be retried.
	Channels []ChannelID
	Partial  bool
	Signal   *Signal
	Err      *Error
}
