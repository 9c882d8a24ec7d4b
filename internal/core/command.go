package core

// commandKind describes what a caller wants the hub to do.
type commandKind int

const (
	cmdAttach commandKind = iota
	cmdDetach
	cmdSubscribe
	cmdUnsubscribe
	cmdRefresh
	cmdSignal
	cmdPresencePing
	cmdReset
)

// command is one unit of work posted to the hub's loop. Only the fields
// relevant to the kind are set. done, when non-nil, is closed once the
// command has been applied.
type command struct {
	kind     commandKind
	conn     *Conn
	connID   string
	channel  ChannelID
	label    string
	channels []ChannelID
	partial  bool
	signal   *Signal
	reason   string
	done     chan struct{}
}
