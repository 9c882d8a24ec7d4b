package core

// Registry indexes live connections by connection ID and by principal.
// A principal may hold several connections at once (one per device); the
// registry answers "is anyone here" questions without consulting presence.
//
// The registry is owned by the hub loop and is not safe for concurrent use.
type Registry struct {
	conns       map[string]*Conn
	byPrincipal map[int64]map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns:       make(map[string]*Conn),
		byPrincipal: make(map[int64]map[string]*Conn),
	}
}

// Register adds a connection and reports whether it is the principal's first
// live connection. Registering an already-known ID is a no-op that reports
// false.
func (r *Registry) Register(c *Conn) (first bool) {
	if _, ok := r.conns[c.ID]; ok {
		return false
	}
	r.conns[c.ID] = c
	set := r.byPrincipal[c.Principal.ID]
	if set == nil {
		set = make(map[string]*Conn)
		r.byPrincipal[c.Principal.ID] = set
	}
	set[c.ID] = c
	return len(set) == 1
}

// Unregister removes a connection and reports whether it was the principal's
// last one. Unknown IDs are a no-op, so transports may detach twice.
func (r *Registry) Unregister(connID string) (c *Conn, last bool) {
	c, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	delete(r.conns, connID)
	set := r.byPrincipal[c.Principal.ID]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.byPrincipal, c.Principal.ID)
		return c, true
	}
	return c, false
}

// ByID returns the connection with the given ID, or nil.
func (r *Registry) ByID(connID string) *Conn {
	return r.conns[connID]
}

// IsOnline reports whether the principal has at least one live connection.
func (r *Registry) IsOnline(principal int64) bool {
	return len(r.byPrincipal[principal]) > 0
}

// Connections returns the principal's live connections.
func (r *Registry) Connections(principal int64) []*Conn {
	set := r.byPrincipal[principal]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// All returns every live connection.
func (r *Registry) All() []*Conn {
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

// Reset drops every connection without notifying anyone. The hub uses it
// when a full-state rebuild is required.
func (r *Registry) Reset() []*Conn {
	dropped := r.All()
	r.conns = make(map[string]*Conn)
	r.byPrincipal = make(map[int64]map[string]*Conn)
	return dropped
}
