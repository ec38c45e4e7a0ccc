// Package client connects a surface to the gateway socket and adapts
// it to the chat transport boundary, including response correlation
// and feed gap detection.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/thesecretlab-dev/anima-dashboard/internal/chat"
	"github.com/thesecretlab-dev/anima-dashboard/pkg/models"
)

// ErrClosed is returned for operations on a closed client.
var ErrClosed = errors.New("client closed")

// Options configures a gateway connection.
type Options struct {
	// Token is sent as a bearer credential during the upgrade.
	Token  string
	Logger *slog.Logger

	// EventBuffer is the local feed queue depth. Overflow injects a
	// seq_gap event instead of blocking the read pump.
	EventBuffer int
}

// Client is a socket connection to the gateway. It implements the full
// chat transport boundary including the optional capabilities.
type Client struct {
	ws     *websocket.Conn
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]chan *models.ServerFrame
	closed  bool

	events  chan models.TransportEvent
	lastSeq int64

	done chan struct{}
}

var (
	_ chat.Transport             = (*Client)(nil)
	_ chat.RunAborter            = (*Client)(nil)
	_ chat.SessionLister         = (*Client)(nil)
	_ chat.ActiveSessionNotifier = (*Client)(nil)
)

// Dial connects to a gateway socket URL (ws://host:port/ws).
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := opts.EventBuffer
	if buffer < 1 {
		buffer = 256
	}

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial gateway: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	c := &Client{
		ws:      ws,
		logger:  logger.With("component", "client"),
		pending: make(map[string]chan *models.ServerFrame),
		events:  make(chan models.TransportEvent, buffer),
		done:    make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// Close tears down the connection. The event feed channel is closed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	return c.ws.Close()
}

// Events returns the live feed. The stream starts from connection time
// and ends when the client closes.
func (c *Client) Events() <-chan models.TransportEvent {
	return c.events
}

func (c *Client) readPump() {
	defer func() {
		c.failPending()
		close(c.events)
	}()
	for {
		var frame models.ServerFrame
		if err := c.ws.ReadJSON(&frame); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("connection lost", "error", err)
			}
			return
		}
		switch frame.Type {
		case models.FrameResponse:
			c.resolve(&frame)
		case models.FrameEvent:
			c.deliver(&frame)
		default:
			c.logger.Debug("ignoring unknown frame type", "type", frame.Type)
		}
	}
}

// deliver queues a feed event, injecting a seq_gap when the server-side
// numbering shows a hole or the local queue overflows. Either way the
// consumer learns it cannot trust the continuity of what it has seen.
func (c *Client) deliver(frame *models.ServerFrame) {
	if frame.Event == nil {
		return
	}
	if c.lastSeq != 0 && frame.Seq != c.lastSeq+1 {
		c.logger.Warn("feed sequence gap", "expected", c.lastSeq+1, "got", frame.Seq)
		c.pushEvent(models.NewSeqGapEvent())
	}
	c.lastSeq = frame.Seq
	c.pushEvent(*frame.Event)
}

func (c *Client) pushEvent(ev models.TransportEvent) {
	select {
	case c.events <- ev:
	default:
		// Drop and degrade to a gap marker rather than stalling reads.
		select {
		case c.events <- models.NewSeqGapEvent():
		default:
		}
	}
}

func (c *Client) resolve(frame *models.ServerFrame) {
	c.mu.Lock()
	waiter, ok := c.pending[frame.ID]
	if ok {
		delete(c.pending, frame.ID)
	}
	c.mu.Unlock()
	if ok {
		waiter <- frame
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, waiter := range c.pending {
		close(waiter)
		delete(c.pending, id)
	}
}

// call sends a request frame and waits for its response.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
		raw = data
	}

	id := uuid.NewString()
	waiter := make(chan *models.ServerFrame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = waiter
	err := c.writeFrame(models.ClientFrame{ID: id, Method: method, Params: raw})
	c.mu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	case frame, ok := <-waiter:
		if !ok {
			return nil, ErrClosed
		}
		if frame.Error != nil {
			return nil, fmt.Errorf("%s: %s", frame.Error.Type, frame.Error.Message)
		}
		return frame.Payload, nil
	}
}

// writeFrame must be called with c.mu held; gorilla allows only one
// concurrent writer.
func (c *Client) writeFrame(frame models.ClientFrame) error {
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(frame)
}

// FetchHistory implements chat.Transport.
func (c *Client) FetchHistory(ctx context.Context, sessionKey string) (*models.HistoryPayload, error) {
	payload, err := c.call(ctx, models.MethodChatHistory, models.ChatHistoryParams{SessionKey: sessionKey})
	if err != nil {
		return nil, err
	}
	var history models.HistoryPayload
	if err := json.Unmarshal(payload, &history); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return &history, nil
}

// Send implements chat.Transport.
func (c *Client) Send(ctx context.Context, req chat.SendRequest) (*models.SendResponse, error) {
	payload, err := c.call(ctx, models.MethodChatSend, models.ChatSendParams{
		SessionKey:     req.SessionKey,
		Message:        req.Message,
		ThinkingLevel:  req.ThinkingLevel,
		IdempotencyKey: req.IdempotencyKey,
		Attachments:    req.Attachments,
	})
	if err != nil {
		return nil, err
	}
	var resp models.SendResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode send response: %w", err)
	}
	return &resp, nil
}

// RequestHealth implements chat.Transport.
func (c *Client) RequestHealth(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	payload, err := c.call(ctx, models.MethodHealth, nil)
	if err != nil {
		return false
	}
	var health models.HealthResponse
	if err := json.Unmarshal(payload, &health); err != nil {
		return false
	}
	return health.OK
}

// AbortRun implements chat.RunAborter.
func (c *Client) AbortRun(ctx context.Context, sessionKey, runID string) error {
	_, err := c.call(ctx, models.MethodChatAbort, models.ChatAbortParams{SessionKey: sessionKey, RunID: runID})
	return err
}

// ListSessions implements chat.SessionLister.
func (c *Client) ListSessions(ctx context.Context, limit int) (*models.SessionsListResponse, error) {
	payload, err := c.call(ctx, models.MethodSessionsList, models.SessionsListParams{Limit: limit})
	if err != nil {
		return nil, err
	}
	var list models.SessionsListResponse
	if err := json.Unmarshal(payload, &list); err != nil {
		return nil, fmt.Errorf("decode session list: %w", err)
	}
	return &list, nil
}

// SetActiveSessionKey implements chat.ActiveSessionNotifier with a
// fire-and-forget notification.
func (c *Client) SetActiveSessionKey(sessionKey string) {
	params, err := json.Marshal(models.SessionsActiveParams{SessionKey: sessionKey})
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err := c.writeFrame(models.ClientFrame{Method: models.MethodSessionsActive, Params: params}); err != nil {
		c.logger.Debug("active session notify failed", "error", err)
	}
}
