package core

import "time"

// Conn is one live socket as seen by the core layer. Events is the outbound
// queue drained by the transport's write loop; the hub closes it when the
// connection detaches.
type Conn struct {
	ID            string
	Principal     *Principal
	EstablishedAt time.Time
	Events        chan *Event
}

// NewConn constructs a connection with an outbound buffer of the given size.
func NewConn(id string, p *Principal, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 32
	}
	return &Conn{
		ID:            id,
		Principal:     p,
		EstablishedAt: time.Now(),
		Events:        make(chan *Event, buffer),
	}
}

// TrySend enqueues an event without blocking. A full buffer drops the event
// and reports false; the hub never stalls on a slow consumer.
func (c *Conn) TrySend(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
