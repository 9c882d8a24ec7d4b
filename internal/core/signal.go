package core

import "time"

// SignalKind enumerates every real-time signal the hub can fan out.
type SignalKind string

const (
	SignalChat         SignalKind = "chat"
	SignalTypingStart  SignalKind = "typing_start"
	SignalTypingStop   SignalKind = "typing_stop"
	SignalReadReceipt  SignalKind = "message_read"
	SignalStatusUpdate SignalKind = "status_update"
	SignalFileShared   SignalKind = "file_shared"
	SignalAnnouncement SignalKind = "announcement"
	SignalGrade        SignalKind = "grade"
)

// ScopeKind says how a signal's audience is computed.
type ScopeKind string

const (
	// ScopePrincipal targets every live connection of one principal.
	ScopePrincipal ScopeKind = "principal"
	// ScopeChannel targets the subscribers of one channel.
	ScopeChannel ScopeKind = "channel"
	// ScopeGlobal targets every live connection.
	ScopeGlobal ScopeKind = "global"
)

// Scope is the audience of a signal.
type Scope struct {
	Kind      ScopeKind
	Principal int64
	Channel   ChannelID
}

func PrincipalScope(id int64) Scope { return Scope{Kind: ScopePrincipal, Principal: id} }

func ChannelScope(ch ChannelID) Scope { return Scope{Kind: ScopeChannel, Channel: ch} }

func GlobalScope() Scope { return Scope{Kind: ScopeGlobal} }

// Receipt marks a message as read by a principal.
type Receipt struct {
	MessageID int64
	ReadBy    int64
	ReadAt    time.Time
}

// FileMeta describes a shared file; the payload itself travels out of band.
type FileMeta struct {
	Name string
	Size int64
	Mime string
	URL  string
}

// Announcement is a portal-wide or department-wide notice.
type Announcement struct {
	ID         int64
	Author     int64
	AuthorName string
	Title      string
	Body       string
	Department string
	PostedAt   time.Time
}

// Grade notifies a student that a grade was published for a course.
type Grade struct {
	ID       int64
	Course   int64
	Student  int64
	Label    string
	Value    float64
	PostedAt time.Time
}

// StatusChange carries a presence transition.
type StatusChange struct {
	Principal int64
	Username  string
	Status    PresenceStatus
	LastSeen  time.Time
}

// Signal is one routed event. Exactly one payload field matching Kind is set.
// SourceConn identifies the originating connection for per-source ordering;
// signals injected by services leave it empty.
type Signal struct {
	Kind       SignalKind
	Scope      Scope
	SourceConn string
	Sender     int64
	SenderName string
	At         time.Time

	Message      *Message
	Receipt      *Receipt
	File         *FileMeta
	Announcement *Announcement
	Grade        *Grade
	Status       *StatusChange
}
