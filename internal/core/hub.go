package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Hub coordinates live connections, channel subscriptions and presence.
// All mutable state is owned by the single goroutine running Run; callers
// interact by posting commands, which keeps the registry, router and
// presence transitions free of locks and races.
//
// Store and verifier lookups never happen on the hub goroutine. Transports
// resolve membership in their own goroutines and hand the hub finished
// results.
type Hub struct {
	registry *Registry
	presence *Presence
	router   *Router

	commands chan command
	done     chan struct{}
	log      *zerolog.Logger
}

// NewHub creates a hub. Run must be started for it to make progress.
func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		registry: NewRegistry(),
		presence: NewPresence(),
		router:   NewRouter(),
		commands: make(chan command, 256),
		done:     make(chan struct{}),
		log:      logger,
	}
}

// Run processes commands until the context is canceled, then closes every
// live connection's event stream.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, c := range h.registry.Reset() {
				close(c.Events)
			}
			h.router.Reset()
			return
		case cmd := <-h.commands:
			h.handle(cmd)
		}
	}
}

// post delivers a command to the loop, or drops it if the hub has stopped.
func (h *Hub) post(cmd command) {
	select {
	case h.commands <- cmd:
	case <-h.done:
	}
}

// Attach registers a resolved connection. The hub subscribes it to the
// resolved channels, sends the welcome event and, when this is the
// principal's first live connection, publishes the online transition.
func (h *Hub) Attach(c *Conn, res *Resolution) {
	h.post(command{kind: cmdAttach, conn: c, channels: res.Channels, partial: res.Partial})
}

// Detach removes a connection after any disconnect path. It is safe to call
// more than once for the same connection; repeats are no-ops.
func (h *Hub) Detach(connID, reason string) {
	h.post(command{kind: cmdDetach, connID: connID, reason: reason})
}

// Subscribe adds the connection to a channel after the transport has
// authorized the join. Label is echoed in the joined event.
func (h *Hub) Subscribe(connID string, ch ChannelID, label string) {
	h.post(command{kind: cmdSubscribe, connID: connID, channel: ch, label: label})
}

// Unsubscribe removes the connection from a channel. Leaving never fails;
// the left event is emitted even when no subscription existed.
func (h *Hub) Unsubscribe(connID string, ch ChannelID) {
	h.post(command{kind: cmdUnsubscribe, connID: connID, channel: ch})
}

// Refresh re-applies a connection's resolution after a retry completed. The
// connection receives a fresh welcome listing the full channel set.
func (h *Hub) Refresh(connID string, res *Resolution) {
	h.post(command{kind: cmdRefresh, connID: connID, channels: res.Channels, partial: res.Partial})
}

// Publish routes a signal to its scope. Client-originated signals must pass
// relay validation before they get here; service-originated fan-out
// (announcements, grades) is injected directly.
func (h *Hub) Publish(sig *Signal) {
	h.post(command{kind: cmdSignal, signal: sig})
}

// PresencePing recomputes the connection's principal presence and
// broadcasts the current record to the principal's course and department
// channels.
func (h *Hub) PresencePing(connID string) {
	h.post(command{kind: cmdPresencePing, connID: connID})
}

// PresenceSnapshot reports the published presence of a principal. Safe to
// call from any goroutine.
func (h *Hub) PresenceSnapshot(principal int64) PresenceRecord {
	return h.presence.Snapshot(principal)
}

// Reset disconnects everything and clears all state, then returns. Used by
// operational tooling; normal shutdown goes through Run's context.
func (h *Hub) Reset() {
	done := make(chan struct{})
	h.post(command{kind: cmdReset, done: done})
	select {
	case <-done:
	case <-h.done:
	}
}

func (h *Hub) handle(cmd command) {
	switch cmd.kind {
	case cmdAttach:
		h.handleAttach(cmd)
	case cmdDetach:
		h.handleDetach(cmd)
	case cmdSubscribe:
		h.handleSubscribe(cmd)
	case cmdUnsubscribe:
		h.handleUnsubscribe(cmd)
	case cmdRefresh:
		h.handleRefresh(cmd)
	case cmdSignal:
		h.handleSignal(cmd)
	case cmdPresencePing:
		h.handlePresencePing(cmd)
	case cmdReset:
		h.handleReset(cmd)
	}
	if cmd.done != nil {
		close(cmd.done)
	}
}

func (h *Hub) handleAttach(cmd command) {
	c := cmd.conn
	first := h.registry.Register(c)
	for _, ch := range cmd.channels {
		h.router.Subscribe(c, ch)
	}
	c.TrySend(&Event{Kind: EventWelcome, Channels: cmd.channels, Partial: cmd.partial})
	h.log.Debug().
		Str("conn", c.ID).
		Int64("principal", c.Principal.ID).
		Int("channels", len(cmd.channels)).
		Bool("partial", cmd.partial).
		Msg("connection attached")
	if first {
		rec, changed := h.presence.MarkOnline(c.Principal.ID, c.Principal.Username)
		if changed {
			h.broadcastPresence(cmd.channels, rec)
		}
	}
}

func (h *Hub) handleDetach(cmd command) {
	c, last := h.registry.Unregister(cmd.connID)
	if c == nil {
		return
	}
	scope := h.router.DropConn(cmd.connID)
	h.log.Debug().
		Str("conn", c.ID).
		Int64("principal", c.Principal.ID).
		Str("reason", cmd.reason).
		Msg("connection detached")
	if last {
		rec, changed := h.presence.MarkOffline(c.Principal.ID)
		if changed {
			h.broadcastPresence(scope, rec)
		}
	}
	close(c.Events)
}

func (h *Hub) handleSubscribe(cmd command) {
	c := h.registry.ByID(cmd.connID)
	if c == nil {
		return
	}
	h.router.Subscribe(c, cmd.channel)
	c.TrySend(&Event{Kind: EventJoined, Channel: cmd.channel, Label: cmd.label})
}

func (h *Hub) handleUnsubscribe(cmd command) {
	c := h.registry.ByID(cmd.connID)
	if c == nil {
		return
	}
	h.router.Unsubscribe(cmd.connID, cmd.channel)
	c.TrySend(&Event{Kind: EventLeft, Channel: cmd.channel})
}

func (h *Hub) handleRefresh(cmd command) {
	c := h.registry.ByID(cmd.connID)
	if c == nil {
		return
	}
	for _, ch := range cmd.channels {
		h.router.Subscribe(c, ch)
	}
	c.TrySend(&Event{Kind: EventWelcome, Channels: cmd.channels, Partial: cmd.partial})
}

func (h *Hub) handleSignal(cmd command) {
	delivered, dropped := h.router.Route(cmd.signal, h.registry)
	if dropped > 0 {
		h.log.Warn().
			Str("kind", string(cmd.signal.Kind)).
			Int("delivered", delivered).
			Int("dropped", dropped).
			Msg("slow consumers dropped signal")
	}
}

func (h *Hub) handlePresencePing(cmd command) {
	c := h.registry.ByID(cmd.connID)
	if c == nil {
		return
	}
	rec, _ := h.presence.MarkOnline(c.Principal.ID, c.Principal.Username)
	h.broadcastPresence(h.router.Channels(c.ID), rec)
}

func (h *Hub) handleReset(cmd command) {
	for _, c := range h.registry.Reset() {
		close(c.Events)
	}
	h.router.Reset()
	h.presence.Reset()
	h.log.Info().Str("reason", cmd.reason).Msg("hub state reset")
}

// broadcastPresence delivers one status event to every subscriber of the
// principal's course and department channels. A subscriber sharing several
// of those channels still receives a single event.
func (h *Hub) broadcastPresence(scope []ChannelID, rec PresenceRecord) {
	sig := &Signal{
		Kind: SignalStatusUpdate,
		At:   time.Now(),
		Status: &StatusChange{
			Principal: rec.Principal,
			Username:  rec.Username,
			Status:    rec.Status,
			LastSeen:  rec.LastSeen,
		},
	}
	ev := &Event{Kind: EventSignal, Signal: sig}
	seen := make(map[string]struct{})
	for _, id := range scope {
		ch, err := ParseChannel(id)
		if err != nil || (ch.Kind != ChannelCourse && ch.Kind != ChannelDepartment) {
			continue
		}
		for _, c := range h.router.Subscribers(id) {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			c.TrySend(ev)
		}
	}
}
