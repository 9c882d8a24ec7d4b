package core

import "time"

// Message is the domain model for a chat message routed through a channel.
// Persistence is the portal store's responsibility; the core only carries
// the message to live connections.
type Message struct {
	ID         int64
	Channel    ChannelID
	Sender     int64
	SenderName string
	Body       string
	SentAt     time.Time
}
