package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thesecretlab-dev/anima-dashboard/internal/security"
	"github.com/thesecretlab-dev/anima-dashboard/pkg/models"
)

const (
	writeTimeout   = 10 * time.Second
	requestTimeout = 30 * time.Second
)

// handleWS guards the socket upgrade: origin validation, auth with
// rate limiting, then the frame loop. Every rejection is audited.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ip := security.ClientIP(r)

	if origin := s.security.ValidateOrigin(r); !origin.Valid {
		s.security.RecordSocketRejected(ip, origin.Reason)
		s.metrics.ConnectionsRejected.WithLabelValues("origin").Inc()
		security.WriteError(w, http.StatusForbidden, origin.Reason, "forbidden")
		return
	}

	if s.auth.Enabled() {
		decision := s.security.CheckAuthRateLimit(ip)
		if !decision.Allowed {
			s.metrics.ConnectionsRejected.WithLabelValues("rate_limited").Inc()
			w.Header().Set("Retry-After", security.RetryAfterHeader(decision))
			security.WriteError(w, http.StatusTooManyRequests, "too many authentication attempts", "rate_limited")
			return
		}
		if _, err := s.auth.Validate(bearerToken(r)); err != nil {
			s.security.RecordAuthFailure(ip)
			s.metrics.ConnectionsRejected.WithLabelValues("auth").Inc()
			security.WriteError(w, http.StatusUnauthorized, "invalid credentials", "unauthorized")
			return
		}
		s.security.RecordAuthSuccess(ip)
	}

	upgrader := websocket.Upgrader{
		// Origin was validated above; gorilla's same-host default would
		// reject the non-browser clients we explicitly allow.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("socket upgrade failed", "ip", ip, "error", err)
		return
	}

	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ActiveConnections.Inc()
	defer s.metrics.ActiveConnections.Dec()

	conn := &connection{
		server:    s,
		ws:        ws,
		ip:        ip,
		sub:       s.hub.Subscribe(),
		responses: make(chan models.ServerFrame, 32),
		done:      make(chan struct{}),
	}
	defer conn.close()

	go conn.writeLoop()
	conn.readLoop()
}

// bearerToken extracts credentials from the Authorization header or,
// for browser clients that cannot set headers on upgrades, the token
// query parameter.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := cutBearer(header); ok {
			return token
		}
		return header
	}
	return r.URL.Query().Get("token")
}

func cutBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):], true
	}
	return "", false
}

// connection is one upgraded socket. The read loop handles request
// frames; the write loop serializes responses and feed events, stamping
// events with a per-connection sequence number.
type connection struct {
	server    *Server
	ws        *websocket.Conn
	ip        string
	sub       *Subscription
	responses chan models.ServerFrame
	done      chan struct{}
}

func (c *connection) close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.sub.Close()
	c.ws.Close()
}

func (c *connection) readLoop() {
	c.ws.SetReadLimit(c.server.security.Config().MaxSocketFrameBytes)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				c.server.security.RecordSocketRejected(c.ip, "frame exceeds size limit")
			}
			return
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.respondError(frame.ID, "malformed frame", "bad_request")
			continue
		}
		c.handle(frame)
	}
}

func (c *connection) writeLoop() {
	var seq int64
	for {
		select {
		case <-c.done:
			return

		case frame := <-c.responses:
			if err := c.write(frame); err != nil {
				return
			}

		case ev := <-c.sub.Events():
			// A gap means events were dropped before this one; tell the
			// surface to resynchronize before it sees the next event.
			if c.sub.TakeGap() {
				seq++
				gap := models.NewSeqGapEvent()
				if err := c.write(models.ServerFrame{Type: models.FrameEvent, Seq: seq, Event: &gap}); err != nil {
					return
				}
			}
			seq++
			if err := c.write(models.ServerFrame{Type: models.FrameEvent, Seq: seq, Event: &ev}); err != nil {
				return
			}
		}
	}
}

func (c *connection) write(frame models.ServerFrame) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(frame)
}

func (c *connection) handle(frame models.ClientFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch frame.Method {
	case models.MethodHealth:
		c.respond(frame.ID, models.HealthResponse{OK: true, Version: c.server.version})

	case models.MethodChatSend:
		var params models.ChatSendParams
		if !c.decodeParams(frame, &params) {
			return
		}
		resp, err := c.server.dispatcher.Dispatch(ctx, params, c.ip)
		if err != nil {
			c.respondError(frame.ID, err.Error(), errorType(err))
			return
		}
		c.respond(frame.ID, resp)

	case models.MethodChatHistory:
		var params models.ChatHistoryParams
		if !c.decodeParams(frame, &params) {
			return
		}
		session, messages, err := c.server.store.History(ctx, params.SessionKey)
		if err != nil {
			c.respondError(frame.ID, err.Error(), "internal")
			return
		}
		c.respond(frame.ID, models.HistoryPayload{
			SessionKey: session.DisplayKey,
			SessionID:  session.SessionID,
			Messages:   messages,
		})

	case models.MethodChatAbort:
		var params models.ChatAbortParams
		if !c.decodeParams(frame, &params) {
			return
		}
		if err := c.server.dispatcher.Abort(params.SessionKey, params.RunID); err != nil {
			c.respondError(frame.ID, err.Error(), "not_found")
			return
		}
		c.respond(frame.ID, struct{}{})

	case models.MethodSessionsList:
		var params models.SessionsListParams
		if frame.Params != nil && !c.decodeParams(frame, &params) {
			return
		}
		limit := params.Limit
		if limit <= 0 || limit > c.server.sessionListLimit {
			limit = c.server.sessionListLimit
		}
		entries, err := c.server.store.List(ctx, limit)
		if err != nil {
			c.respondError(frame.ID, err.Error(), "internal")
			return
		}
		c.respond(frame.ID, models.SessionsListResponse{
			Ts:       time.Now().UnixMilli(),
			Count:    len(entries),
			Sessions: entries,
		})

	case models.MethodSessionsActive:
		// Notification only; used for presence, nothing to return.
		var params models.SessionsActiveParams
		if frame.Params != nil {
			_ = json.Unmarshal(frame.Params, &params)
		}
		c.server.logger.Debug("active session", "ip", c.ip, "session", params.SessionKey)

	default:
		c.respondError(frame.ID, fmt.Sprintf("unknown method %q", frame.Method), "bad_request")
	}
}

func (c *connection) decodeParams(frame models.ClientFrame, into any) bool {
	if err := json.Unmarshal(frame.Params, into); err != nil {
		c.respondError(frame.ID, "malformed params", "bad_request")
		return false
	}
	return true
}

func (c *connection) respond(id string, payload any) {
	if id == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.respondError(id, "encode response", "internal")
		return
	}
	c.enqueue(models.ServerFrame{Type: models.FrameResponse, ID: id, OK: true, Payload: data})
}

func (c *connection) respondError(id, message, errType string) {
	if id == "" {
		return
	}
	c.enqueue(models.ServerFrame{
		Type:  models.FrameResponse,
		ID:    id,
		Error: &models.FrameError{Message: message, Type: errType},
	})
}

func (c *connection) enqueue(frame models.ServerFrame) {
	select {
	case c.responses <- frame:
	case <-c.done:
	}
}

func errorType(err error) string {
	if errors.Is(err, ErrCommandBlocked) {
		return "blocked"
	}
	return "bad_request"
}
