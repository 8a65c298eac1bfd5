// Package realtime delivers out-of-band backend events (lead schedule
// reminders) over a websocket.
//
// The connection is an explicitly owned object with a lifecycle tied to
// the authenticated session: Connect when a session opens, Disconnect on
// logout or shutdown. Consumers subscribe for typed events and must
// unsubscribe when their own lifetime ends.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldcrm/callgate/internal/models"
)

// Connection tuning constants.
const (
	// DefaultChannelBufferSize buffers subscriber channels; slow
	// consumers drop events rather than blocking the read loop.
	DefaultChannelBufferSize = 10
	// ReconnectAttempts bounds automatic reconnection after a dropped
	// connection.
	ReconnectAttempts = 5
	// ReconnectDelay is the pause between reconnection attempts.
	ReconnectDelay = time.Second
)

// eventReminder is the wire event name for schedule reminders.
const eventReminder = "lead-schedule-reminder"

// envelope is the wire frame for server-pushed events.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// joinMessage announces the agent's identity after connecting.
type joinMessage struct {
	Event  string `json:"event"`
	UserID string `json:"userId"`
}

// Conn is an explicitly owned realtime connection.
type Conn struct {
	url    string
	dialer *websocket.Dialer

	mu        sync.Mutex
	ws        *websocket.Conn
	connected bool
	closing   bool
	subs      map[int]chan models.ScheduleReminder
	nextSub   int
}

// NewConn creates a connection object for the given websocket URL. No
// network activity happens until Connect.
func NewConn(wsURL string) *Conn {
	return &Conn{
		url:    wsURL,
		dialer: websocket.DefaultDialer,
		subs:   make(map[int]chan models.ScheduleReminder),
	}
}

// Connect dials the backend, joins the agent's room, and starts the read
// loop. Connecting an already-connected Conn is a no-op.
func (c *Conn) Connect(ctx context.Context, token, userID string) error {
	if token == "" {
		slog.Info("realtime: no token, skipping connection")
		return nil
	}

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		slog.Debug("realtime: already connected")
		return nil
	}
	c.closing = false
	c.mu.Unlock()

	if err := c.dial(ctx, token, userID); err != nil {
		return err
	}

	go c.readLoop(token, userID)
	return nil
}

func (c *Conn) dial(ctx context.Context, token, userID string) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	slog.Debug("realtime: connecting", "url", c.url)
	ws, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		slog.Error("realtime: connection failed", "error", err)
		return fmt.Errorf("failed to connect realtime source: %w", err)
	}

	if userID != "" {
		if err := ws.WriteJSON(joinMessage{Event: "join", UserID: userID}); err != nil {
			ws.Close()
			return fmt.Errorf("failed to join user room: %w", err)
		}
		slog.Debug("realtime: joined room", "user_id", userID)
	}

	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	slog.Info("realtime: connected")
	return nil
}

// readLoop consumes server events, fanning reminders out to subscribers,
// and reconnects a bounded number of times after failures.
func (c *Conn) readLoop(token, userID string) {
	for {
		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()
		if ws == nil {
			return
		}

		var ev envelope
		if err := ws.ReadJSON(&ev); err != nil {
			c.mu.Lock()
			closing := c.closing
			c.connected = false
			c.mu.Unlock()
			if closing {
				return
			}
			slog.Warn("realtime: connection lost", "error", err)
			if !c.reconnect(token, userID) {
				return
			}
			continue
		}

		if ev.Event != eventReminder {
			slog.Debug("realtime: ignoring event", "event", ev.Event)
			continue
		}

		var reminder models.ScheduleReminder
		if err := json.Unmarshal(ev.Data, &reminder); err != nil {
			slog.Warn("realtime: malformed reminder payload", "error", err)
			continue
		}

		slog.Info("realtime: reminder received", "lead_id", reminder.LeadID)
		c.publish(reminder)
	}
}

func (c *Conn) reconnect(token, userID string) bool {
	for attempt := 1; attempt <= ReconnectAttempts; attempt++ {
		time.Sleep(ReconnectDelay)

		c.mu.Lock()
		if c.closing {
			c.mu.Unlock()
			return false
		}
		c.mu.Unlock()

		slog.Debug("realtime: reconnecting", "attempt", attempt)
		if err := c.dial(context.Background(), token, userID); err == nil {
			return true
		}
	}
	slog.Error("realtime: reconnection attempts exhausted", "attempts", ReconnectAttempts)
	return false
}

func (c *Conn) publish(reminder models.ScheduleReminder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		select {
		case ch <- reminder:
		default:
			slog.Warn("realtime: subscriber channel full, dropping reminder", "subscriber", id)
		}
	}
}

// Disconnect closes the connection and stops reconnection. Idempotent.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.closing = true
	ws := c.ws
	c.ws = nil
	c.connected = false
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
		slog.Info("realtime: disconnected")
	}
}

// Subscription is one consumer's handle on the reminder stream. Its
// lifetime must be scoped to the consumer: call Unsubscribe on teardown.
type Subscription struct {
	id   int
	ch   chan models.ScheduleReminder
	conn *Conn
	once sync.Once
}

// Subscribe registers a new reminder consumer.
func (c *Conn) Subscribe() *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	ch := make(chan models.ScheduleReminder, DefaultChannelBufferSize)
	c.subs[c.nextSub] = ch
	return &Subscription{id: c.nextSub, ch: ch, conn: c}
}

// Reminders returns the subscriber's event channel. It is closed by
// Unsubscribe.
func (s *Subscription) Reminders() <-chan models.ScheduleReminder {
	return s.ch
}

// Unsubscribe removes the subscriber and closes its channel. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.conn.mu.Lock()
		delete(s.conn.subs, s.id)
		s.conn.mu.Unlock()
		close(s.ch)
	})
}
