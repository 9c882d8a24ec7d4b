package core

// Router owns channel subscriptions and fans signals out to the connections
// in scope. Delivery is best effort: a connection whose outbound buffer is
// full loses the event rather than stalling everyone else.
//
// The router is owned by the hub loop and is not safe for concurrent use.
type Router struct {
	byChannel map[ChannelID]map[string]*Conn
	byConn    map[string]map[ChannelID]struct{}
}

func NewRouter() *Router {
	return &Router{
		byChannel: make(map[ChannelID]map[string]*Conn),
		byConn:    make(map[string]map[ChannelID]struct{}),
	}
}

// Subscribe adds the connection to a channel. It reports false when the
// subscription already existed.
func (r *Router) Subscribe(c *Conn, ch ChannelID) bool {
	subs := r.byChannel[ch]
	if subs == nil {
		subs = make(map[string]*Conn)
		r.byChannel[ch] = subs
	}
	if _, ok := subs[c.ID]; ok {
		return false
	}
	subs[c.ID] = c
	chans := r.byConn[c.ID]
	if chans == nil {
		chans = make(map[ChannelID]struct{})
		r.byConn[c.ID] = chans
	}
	chans[ch] = struct{}{}
	return true
}

// Unsubscribe removes the connection from a channel. It reports false when
// no such subscription existed.
func (r *Router) Unsubscribe(connID string, ch ChannelID) bool {
	subs := r.byChannel[ch]
	if _, ok := subs[connID]; !ok {
		return false
	}
	delete(subs, connID)
	if len(subs) == 0 {
		delete(r.byChannel, ch)
	}
	chans := r.byConn[connID]
	delete(chans, ch)
	if len(chans) == 0 {
		delete(r.byConn, connID)
	}
	return true
}

// DropConn removes every subscription held by the connection and returns
// the channels it was in.
func (r *Router) DropConn(connID string) []ChannelID {
	chans := r.byConn[connID]
	if len(chans) == 0 {
		delete(r.byConn, connID)
		return nil
	}
	out := make([]ChannelID, 0, len(chans))
	for ch := range chans {
		out = append(out, ch)
		subs := r.byChannel[ch]
		delete(subs, connID)
		if len(subs) == 0 {
			delete(r.byChannel, ch)
		}
	}
	delete(r.byConn, connID)
	return out
}

// Subscribed reports whether the connection is in the channel.
func (r *Router) Subscribed(connID string, ch ChannelID) bool {
	_, ok := r.byChannel[ch][connID]
	return ok
}

// Subscribers returns the connections currently in the channel.
func (r *Router) Subscribers(ch ChannelID) []*Conn {
	subs := r.byChannel[ch]
	out := make([]*Conn, 0, len(subs))
	for _, c := range subs {
		out = append(out, c)
	}
	return out
}

// Channels returns the channels the connection is subscribed to.
func (r *Router) Channels(connID string) []ChannelID {
	chans := r.byConn[connID]
	out := make([]ChannelID, 0, len(chans))
	for ch := range chans {
		out = append(out, ch)
	}
	return out
}

// Reset drops every subscription.
func (r *Router) Reset() {
	r.byChannel = make(map[ChannelID]map[string]*Conn)
	r.byConn = make(map[string]map[ChannelID]struct{})
}

// Route delivers the signal to every connection in its scope, including the
// sender's own connections. It returns how many connections received the
// event and how many dropped it because their buffer was full.
func (r *Router) Route(sig *Signal, reg *Registry) (delivered, dropped int) {
	ev := &Event{Kind: EventSignal, Channel: sig.Scope.Channel, Signal: sig}
	for _, c := range r.targets(sig.Scope, reg) {
		if c.TrySend(ev) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

func (r *Router) targets(scope Scope, reg *Registry) []*Conn {
	switch scope.Kind {
	case ScopePrincipal:
		return reg.Connections(scope.Principal)
	case ScopeChannel:
		subs := r.byChannel[scope.Channel]
		out := make([]*Conn, 0, len(subs))
		for _, c := range subs {
			out = append(out, c)
		}
		return out
	case ScopeGlobal:
		return reg.All()
	default:
		return nil
	}
}
