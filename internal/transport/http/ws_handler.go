package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/VRMX2/USTHB-APP/internal/auth"
	"github.com/VRMX2/USTHB-APP/internal/config"
	"github.com/VRMX2/USTHB-APP/internal/core"
	"github.com/VRMX2/USTHB-APP/internal/proto"
	"github.com/VRMX2/USTHB-APP/internal/store"
)

// WSHandler authenticates upgrade requests and bridges accepted sockets to
// the hub. Tokens are checked before the handshake completes, so a bad token
// costs a plain 401 and never allocates hub state.
type WSHandler struct {
	hub      *core.Hub
	relay    *core.Relay
	resolver *core.Resolver
	auth     *auth.Service
	messages store.MessageStore
	cfg      *config.Config
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, resolver *core.Resolver, messages store.MessageStore, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:      hub,
		relay:    core.NewRelay(),
		resolver: resolver,
		auth:     authService,
		messages: messages,
		cfg:      cfg,
		log:      logger,
	}
}

// wsSession holds the mutable per-connection state. The principal pointer is
// swapped, never mutated, whenever a join or a late resolve refreshes course
// membership; the mutex covers only that swap.
type wsSession struct {
	conn    *core.Conn
	limiter *rateLimiter

	mu        sync.Mutex
	principal *core.Principal
}

func (s *wsSession) snapshot() *core.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

func (s *wsSession) updateCourses(courses map[int64]core.CourseRole) {
	s.mu.Lock()
	s.principal = s.principal.WithCourses(courses)
	s.mu.Unlock()
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	principal, err := h.authenticate(r)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws upgrade rejected")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	wsConn := core.NewConn(uuid.NewString(), principal, h.cfg.EventBuffer)
	session := &wsSession{
		conn:      wsConn,
		limiter:   newRateLimiter(h.cfg.ActionsPerMinute),
		principal: principal,
	}

	// Membership is computed here, in the request goroutine, so a slow store
	// never stalls the hub. A partial resolution still gets the connection
	// attached; the missing course channels arrive with the retry below.
	res, resolveErr := h.resolver.ResolveDefault(ctx, principal)
	if res.Courses != nil {
		session.updateCourses(res.Courses)
	}
	h.hub.Attach(wsConn, res)

	reason := core.ErrCodeNormalClose
	defer func() { h.hub.Detach(wsConn.ID, reason) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if resolveErr != nil {
		h.log.Warn().Err(resolveErr).Str("conn_id", wsConn.ID).Int64("user_id", principal.ID).Msg("partial channel resolve")
		go h.retryResolve(ctx, conn, session)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, wsConn)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	closeMsg := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			closeMsg = err.Error()
			reason = core.ErrCodeTransportError
			h.log.Warn().Err(err).Str("conn_id", wsConn.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, closeMsg)
}

// authenticate extracts and verifies the token carried by the upgrade
// request. Browsers cannot set headers on WebSocket dials, so a token query
// parameter is accepted alongside the standard bearer header.
func (h *WSHandler) authenticate(r *stdhttp.Request) (*core.Principal, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		return nil, errors.New("missing token")
	}
	return h.auth.Verify(r.Context(), token)
}

// retryResolve re-runs membership resolution once after a short delay. On
// success the hub re-subscribes the connection and sends a complete welcome;
// on a second failure the client is told to reconnect later.
func (h *WSHandler) retryResolve(ctx context.Context, conn *websocket.Conn, s *wsSession) {
	delay := h.cfg.ResolveRetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	res, err := h.resolver.ResolveDefault(ctx, s.snapshot())
	if err != nil {
		h.log.Warn().Err(err).Str("conn_id", s.conn.ID).Msg("channel resolve retry failed")
		_ = h.writeError(ctx, conn, &proto.Error{
			Code:      core.ErrCodeStoreUnavailable,
			Msg:       "course channels unavailable, reconnect to retry",
			Retryable: true,
		})
		return
	}

	s.updateCourses(res.Courses)
	h.hub.Refresh(s.conn.ID, res)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, s *wsSession) error {
	for {
		var inbound proto.Inbound
		if err := h.readNext(ctx, conn, &inbound); err != nil {
			return err
		}

		if !s.limiter.allow(time.Now()) {
			if err := h.writeError(ctx, conn, &proto.Error{
				Code:      core.ErrCodeRateLimited,
				Msg:       "too many actions, slow down",
				Retryable: true,
			}); err != nil {
				return err
			}
			continue
		}

		var err error
		switch inbound.Type {
		case proto.InboundTypeJoin:
			err = h.handleJoin(ctx, conn, s, inbound.Data)
		case proto.InboundTypeLeave:
			err = h.handleLeave(ctx, conn, s, inbound.Data)
		case proto.InboundTypeStatus:
			// The payload is ignored; any ping means the client is alive and
			// the registry decides what status that amounts to.
			h.hub.PresencePing(s.conn.ID)
		default:
			err = h.handleSignal(ctx, conn, s, inbound)
		}
		if err != nil {
			h.log.Warn().Err(err).Str("conn_id", s.conn.ID).Str("type", inbound.Type).Msg("inbound handling failed")
			return err
		}
	}
}

// readNext reads one frame, bounded by the idle timeout when configured.
func (h *WSHandler) readNext(ctx context.Context, conn *websocket.Conn, inbound *proto.Inbound) error {
	if h.cfg.WSIdleTimeout > 0 {
		readCtx, cancel := context.WithTimeout(ctx, h.cfg.WSIdleTimeout)
		defer cancel()
		return wsjson.Read(readCtx, conn, inbound)
	}
	return wsjson.Read(ctx, conn, inbound)
}

func (h *WSHandler) handleJoin(ctx context.Context, conn *websocket.Conn, s *wsSession, data json.RawMessage) error {
	var join proto.JoinData
	if err := json.Unmarshal(data, &join); err != nil {
		return err
	}
	if join.Channel == "" {
		return h.writeError(ctx, conn, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "channel is required"})
	}

	target, err := core.ParseChannel(core.ChannelID(join.Channel))
	if err != nil {
		return h.writeError(ctx, conn, &proto.Error{Code: core.ErrCodeNotFound, Msg: err.Error()})
	}

	label, courses, err := h.resolver.AuthorizeJoin(ctx, s.snapshot(), target)
	if err != nil {
		return h.writeError(ctx, conn, protoError(err))
	}

	if courses != nil {
		s.updateCourses(courses)
	}
	h.hub.Subscribe(s.conn.ID, target.ID, label)
	return nil
}

func (h *WSHandler) handleLeave(ctx context.Context, conn *websocket.Conn, s *wsSession, data json.RawMessage) error {
	var leave proto.LeaveData
	if err := json.Unmarshal(data, &leave); err != nil {
		return err
	}
	if leave.Channel == "" {
		return h.writeError(ctx, conn, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "channel is required"})
	}

	h.hub.Unsubscribe(s.conn.ID, core.ChannelID(leave.Channel))
	return nil
}

func (h *WSHandler) handleSignal(ctx context.Context, conn *websocket.Conn, s *wsSession, inbound proto.Inbound) error {
	principal := s.snapshot()

	sig, protoErr, err := inboundToSignal(principal, inbound)
	if err != nil {
		return err
	}
	if protoErr != nil {
		return h.writeError(ctx, conn, protoErr)
	}

	if rejection := h.relay.Validate(principal, sig); rejection != nil {
		return h.writeError(ctx, conn, &proto.Error{Code: rejection.Code, Msg: rejection.Message, Retryable: rejection.Retryable})
	}
	sig.SourceConn = s.conn.ID

	// Chat is the one signal that persists before fan-out so that history
	// and the live stream agree on message ids.
	if sig.Kind == core.SignalChat {
		record := &store.Message{
			Channel: string(sig.Message.Channel),
			UserID:  sig.Sender,
			Body:    sig.Message.Body,
		}
		if err := h.messages.SaveMessage(ctx, record); err != nil {
			h.log.Error().Err(err).Str("conn_id", s.conn.ID).Msg("failed to persist message")
			return h.writeError(ctx, conn, &proto.Error{
				Code:      core.ErrCodeStoreUnavailable,
				Msg:       "message not stored, try again",
				Retryable: true,
			})
		}
		sig.Message.ID = record.ID
		sig.Message.SentAt = record.CreatedAt
	}

	h.hub.Publish(sig)
	return nil
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, wsConn *core.Conn) error {
	for {
		select {
		case event, ok := <-wsConn.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(wsConn, event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", wsConn.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, perr *proto.Error) error {
	return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: perr})
}
