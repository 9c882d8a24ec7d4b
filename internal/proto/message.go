package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin        = "join"
	InboundTypeLeave       = "leave"
	InboundTypeMsg         = "msg"
	InboundTypeTypingStart = "typing_start"
	InboundTypeTypingStop  = "typing_stop"
	InboundTypeMessageRead = "message_read"
	InboundTypeStatus      = "status_update"
	InboundTypeFileShared  = "file_shared"

	OutboundTypeWelcome = "welcome"
	OutboundTypeJoined  = "joined"
	OutboundTypeLeft    = "left"
	OutboundTypeEvent   = "event"
	OutboundTypeError   = "error"
)

// JoinData requests a subscription to a channel.
type JoinData struct {
	Channel string `json:"channel"`
}

// LeaveData drops a subscription.
type LeaveData struct {
	Channel string `json:"channel"`
}

// MsgData is a chat message from the client.
type MsgData struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// TypingData marks the start or stop of typing in a channel.
type TypingData struct {
	Channel string `json:"channel"`
}

// ReadData acknowledges a message. With a channel it notifies the channel
// members; without one it only syncs the reader's other devices.
type ReadData struct {
	Channel   string `json:"channel,omitempty"`
	MessageID int64  `json:"message_id"`
}

// StatusData is a liveness ping. The server derives the actual status from
// its connection registry, so the field is advisory at best.
type StatusData struct {
	Status string `json:"status,omitempty"`
}

// FileData announces a file shared into a channel. The blob itself travels
// out of band; only the metadata is fanned out.
type FileData struct {
	Channel string `json:"channel"`
	Name    string `json:"name"`
	Size    int64  `json:"size,omitempty"`
	Mime    string `json:"mime,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// WelcomeData confirms the connection and lists the channels it was
// subscribed to. Partial means course channels are missing and a second
// welcome will follow once the store answers.
type WelcomeData struct {
	ConnID   string   `json:"conn_id"`
	UserID   int64    `json:"user_id"`
	User     string   `json:"user"`
	Channels []string `json:"channels"`
	Partial  bool     `json:"partial,omitempty"`
}

// JoinedData confirms an explicit channel join.
type JoinedData struct {
	Channel string `json:"channel"`
	Label   string `json:"label,omitempty"`
}

// LeftData confirms leaving a channel.
type LeftData struct {
	Channel string `json:"channel"`
}

// EventMessage is a chat message fanned out to channel members.
type EventMessage struct {
	ID      int64  `json:"id,omitempty"`
	Channel string `json:"channel"`
	From    int64  `json:"from"`
	User    string `json:"user"`
	Text    string `json:"text"`
	TS      int64  `json:"ts"`
}

// EventTyping notifies that a user started or stopped typing.
type EventTyping struct {
	Channel string `json:"channel"`
	From    int64  `json:"from"`
	User    string `json:"user"`
}

// EventRead notifies that a user has read a message.
type EventRead struct {
	Channel   string `json:"channel,omitempty"`
	MessageID int64  `json:"message_id"`
	From      int64  `json:"from"`
	User      string `json:"user"`
	TS        int64  `json:"ts"`
}

// EventStatus notifies a presence change.
type EventStatus struct {
	UserID   int64  `json:"user_id"`
	User     string `json:"user"`
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen,omitempty"`
}

// EventFile notifies that a file was shared into a channel.
type EventFile struct {
	Channel string `json:"channel"`
	From    int64  `json:"from"`
	User    string `json:"user"`
	Name    string `json:"name"`
	Size    int64  `json:"size,omitempty"`
	Mime    string `json:"mime,omitempty"`
	URL     string `json:"url,omitempty"`
	TS      int64  `json:"ts"`
}

// EventAnnouncement carries a staff announcement.
type EventAnnouncement struct {
	ID         int64  `json:"id,omitempty"`
	From       int64  `json:"from"`
	User       string `json:"user"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Department string `json:"department,omitempty"`
	TS         int64  `json:"ts"`
}

// EventGrade tells a student a grade was posted. It only ever travels to
// the student's own connections.
type EventGrade struct {
	ID     int64   `json:"id,omitempty"`
	Course int64   `json:"course"`
	Label  string  `json:"label"`
	Value  float64 `json:"value"`
	TS     int64   `json:"ts"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code      string `json:"code"`
	Msg       string `json:"msg"`
	Retryable bool   `json:"retryable,omitempty"`
}
