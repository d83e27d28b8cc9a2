// Package realtime maintains the long-lived websocket the backend pushes
// account-lifecycle events through, outside any request/response cycle.
// The channel owns its reconnection; callers connect once and close once.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/fieldhouse/fieldhouse-go/apimodel"
)

// EventHandler receives server-pushed account-lifecycle events. Handlers
// are invoked from the channel's read goroutine.
type EventHandler interface {
	ForcedLogout(userID string)
	AccountUpdated(userID string)
	AccountDeleted(userID string)
}

// TokenSource yields the bearer token the connection authenticates with.
type TokenSource interface {
	Token() string
}

const (
	backoffBase = time.Second
	backoffCap  = 30 * time.Second

	pingInterval = 30 * time.Second
	readTimeout  = 70 * time.Second
	writeTimeout = 10 * time.Second
)

// Channel is the client side of the realtime connection. At most one
// connection is active per Channel; Connect while connected is a no-op.
type Channel struct {
	url           string
	source        TokenSource
	handler       EventHandler
	logger        zerolog.Logger
	deviceID      string
	onAuthFailure func()
	dialer        *websocket.Dialer

	lock      sync.Mutex
	writeLock sync.Mutex
	conn      *websocket.Conn
	cancel    context.CancelFunc
	connected bool
	rooms     map[string]struct{}
}

// Options configures NewChannel.
type Options struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string
	// Source provides the bearer token at (re)connect time.
	Source TokenSource
	// Handler receives account-lifecycle events.
	Handler EventHandler
	// OnAuthFailure fires when the server refuses the connection with a
	// 401/403; the session must be treated exactly like a transport 401.
	OnAuthFailure func()
	Logger        zerolog.Logger
	Dialer        *websocket.Dialer
}

func NewChannel(opts Options) *Channel {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Channel{
		url:           opts.URL,
		source:        opts.Source,
		handler:       opts.Handler,
		logger:        opts.Logger,
		onAuthFailure: opts.OnAuthFailure,
		deviceID:      ksuid.New().String(),
		dialer:        dialer,
		rooms:         map[string]struct{}{},
	}
}

// DeviceID returns the per-channel client identifier sent at connect time.
func (c *Channel) DeviceID() string {
	return c.deviceID
}

// Connected reports whether the channel currently has a live connection.
func (c *Channel) Connected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connected
}

// Connect starts the connection loop. Reconnection with bounded backoff is
// handled internally until Close or an authentication refusal.
func (c *Channel) Connect(ctx context.Context) {
	c.lock.Lock()
	if c.cancel != nil {
		c.lock.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.lock.Unlock()

	go c.run(runCtx)
}

// Close tears the connection down. Idempotent.
func (c *Channel) Close() error {
	c.lock.Lock()
	cancel := c.cancel
	conn := c.conn
	c.cancel = nil
	c.conn = nil
	c.connected = false
	c.lock.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		return conn.Close()
	}
	return nil
}

// JoinRoom subscribes to a scoped event room (e.g. a venue's roster). While
// disconnected this is a warning no-op, not an error.
func (c *Channel) JoinRoom(room string) error {
	if err := c.emit(apimodel.CommandJoinRoom, apimodel.RoomCommand{Room: room}); err != nil {
		return err
	}
	c.lock.Lock()
	if c.connected {
		c.rooms[room] = struct{}{}
	}
	c.lock.Unlock()
	return nil
}

// LeaveRoom unsubscribes from a room. Warning no-op while disconnected.
func (c *Channel) LeaveRoom(room string) error {
	c.lock.Lock()
	delete(c.rooms, room)
	c.lock.Unlock()
	return c.emit(apimodel.CommandLeaveRoom, apimodel.RoomCommand{Room: room})
}

func (c *Channel) emit(event string, payload any) error {
	c.lock.Lock()
	conn := c.conn
	connected := c.connected
	c.lock.Unlock()

	if !connected || conn == nil {
		c.logger.Warn().Str("event", event).Msg("emit on disconnected channel dropped")
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(apimodel.Envelope{Event: event, Payload: data})
}

// run owns the dial/read/reconnect cycle.
func (c *Channel) run(ctx context.Context) {
	backoff := backoffBase
	for {
		if ctx.Err() != nil {
			return
		}

		conn, resp, err := c.dial(ctx)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				c.logger.Warn().Int("status", resp.StatusCode).Msg("realtime connection refused, ending session")
				c.teardown()
				if c.onAuthFailure != nil {
					c.onAuthFailure()
				}
				return
			}
			c.logger.Debug().Err(err).Dur("backoff", backoff).Msg("realtime dial failed")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = backoffBase
		c.attach(conn)
		c.rejoinRooms()

		pingCtx, stopPing := context.WithCancel(ctx)
		go c.pingLoop(pingCtx, conn)
		c.readLoop(ctx, conn)
		stopPing()

		c.detach(conn)
		if ctx.Err() != nil {
			return
		}
		if !sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if tok := c.source.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	header.Set("X-Device-ID", c.deviceID)
	return c.dialer.DialContext(ctx, c.url, header)
}

func (c *Channel) attach(conn *websocket.Conn) {
	c.lock.Lock()
	c.conn = conn
	c.connected = true
	c.lock.Unlock()
	c.logger.Debug().Msg("realtime connected")
}

func (c *Channel) detach(conn *websocket.Conn) {
	c.lock.Lock()
	if c.conn == conn {
		c.conn = nil
		c.connected = false
	}
	c.lock.Unlock()
	_ = conn.Close()
}

func (c *Channel) teardown() {
	c.lock.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.conn = nil
	c.connected = false
	c.lock.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Channel) rejoinRooms() {
	c.lock.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.lock.Unlock()

	for _, room := range rooms {
		if err := c.emit(apimodel.CommandJoinRoom, apimodel.RoomCommand{Room: room}); err != nil {
			c.logger.Warn().Err(err).Str("room", room).Msg("rejoining room")
		}
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var env apimodel.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("realtime read ended")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		c.dispatch(env)
	}
}

func (c *Channel) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeLock.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeLock.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Channel) dispatch(env apimodel.Envelope) {
	switch env.Event {
	case apimodel.EventAuthLogout:
		var ev apimodel.LogoutEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			c.logger.Warn().Err(err).Msg("malformed auth:logout payload")
			return
		}
		c.handler.ForcedLogout(ev.UserID)

	case apimodel.EventAuthAccount:
		var ev apimodel.AccountEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			c.logger.Warn().Err(err).Msg("malformed auth:account payload")
			return
		}
		switch ev.Action {
		case apimodel.AccountActionUpdate:
			c.handler.AccountUpdated(ev.UserID)
		case apimodel.AccountActionDelete:
			c.handler.AccountDeleted(ev.UserID)
		case apimodel.AccountActionWarning:
			c.logger.Warn().Str("user_id", ev.UserID).Msg("account warning received")
		default:
			c.logger.Debug().Str("action", string(ev.Action)).Msg("unknown account action")
		}

	default:
		// Domain events (venue:*, club:*) are not this channel's concern.
		c.logger.Debug().Str("event", env.Event).Msg("unhandled realtime event")
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > backoffCap {
		return backoffCap
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
