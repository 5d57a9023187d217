// Package wsclient is a Go client for the relay protocol. It keeps one logical
// connection alive across transient drops with bounded linear backoff, and
// delivers server frames to listeners that survive reconnection.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"dholuo-chat/internal/relay"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 2 * time.Second
	dialTimeout        = 10 * time.Second
	requestIDLength    = 12
)

var (
	ErrReconnectExhausted = errors.New("wsclient: reconnect attempts exhausted")
	ErrClosed             = errors.New("wsclient: client closed")
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Conn is the transport surface the client uses. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type DialFunc func(ctx context.Context) (Conn, error)

// ScheduleFunc runs fn after d and returns a function that cancels it.
type ScheduleFunc func(d time.Duration, fn func()) (cancel func())

type Options struct {
	URL         string
	Header      http.Header
	MaxAttempts int
	BaseDelay   time.Duration
	Dial        DialFunc
	Schedule    ScheduleFunc
	Logger      *slog.Logger
}

type Client struct {
	dial        DialFunc
	schedule    ScheduleFunc
	maxAttempts int
	baseDelay   time.Duration
	log         *slog.Logger

	messages     listeners[relay.OutboundMessage]
	connection   listeners[bool]
	errs         listeners[string]
	typing       listeners[relay.TypingFrame]
	translations listeners[relay.TranslationFrame]
	insights     listeners[relay.InsightsFrame]

	mu          sync.Mutex
	conn        Conn
	state       State
	attempts    int
	pending     [][]byte
	cancelRetry func()

	writeMu sync.Mutex
}

func New(opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dial == nil {
		url, header := opts.URL, opts.Header
		opts.Dial = func(ctx context.Context) (Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
			if err != nil {
				return nil, err
			}
			return conn, nil
		}
	}
	if opts.Schedule == nil {
		opts.Schedule = func(d time.Duration, fn func()) func() {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		}
	}
	return &Client{
		dial:        opts.Dial,
		schedule:    opts.Schedule,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		log:         opts.Logger,
	}
}

func (c *Client) OnMessage(fn func(relay.OutboundMessage)) (unsubscribe func()) {
	return c.messages.add(fn)
}

// OnConnection reports true on every open and false on every drop.
func (c *Client) OnConnection(fn func(connected bool)) (unsubscribe func()) {
	return c.connection.add(fn)
}

func (c *Client) OnError(fn func(msg string)) (unsubscribe func()) {
	return c.errs.add(fn)
}

func (c *Client) OnTyping(fn func(relay.TypingFrame)) (unsubscribe func()) {
	return c.typing.add(fn)
}

func (c *Client) OnTranslation(fn func(relay.TranslationFrame)) (unsubscribe func()) {
	return c.translations.add(fn)
}

func (c *Client) OnInsights(fn func(relay.InsightsFrame)) (unsubscribe func()) {
	return c.insights.add(fn)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of reconnect attempts since the last open.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect dials the server. It is also the way out of StateFailed and StateClosed.
// A failed dial still schedules reconnect attempts.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	if c.cancelRetry != nil {
		c.cancelRetry()
		c.cancelRetry = nil
	}
	c.attempts = 0
	c.state = StateConnecting
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.log.Warn("wsclient: connect failed", "error", err)
		c.errs.emit(err.Error())
		c.scheduleReconnect()
		return fmt.Errorf("connect: %w", err)
	}
	c.opened(conn)
	return nil
}

func (c *Client) redial() {
	c.mu.Lock()
	if c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.cancelRetry = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		c.log.Warn("wsclient: reconnect failed", "error", err)
		c.errs.emit(err.Error())
		c.scheduleReconnect()
		return
	}
	c.opened(conn)
}

// opened flushes the queued frames before any Send can reach the new
// transport: writeMu is held from the state change until the queue is empty.
func (c *Client) opened(conn Conn) {
	c.writeMu.Lock()
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		c.writeMu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, data := range pending {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.log.Warn("wsclient: flushing queued frame failed", "error", err)
		}
	}
	c.writeMu.Unlock()

	c.log.Info("wsclient: connected", "flushed", len(pending))
	c.connection.emit(true)

	go c.readLoop(conn)
}

func (c *Client) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.dropped(conn, err)
			return
		}
		c.deliver(data)
	}
}

// dropped handles the end of a transport. Clean closes (1000, 1001) stay
// down; anything else reconnects.
func (c *Client) dropped(conn Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// already replaced or closed by Close
		c.mu.Unlock()
		return
	}
	c.conn = nil
	conn.Close()

	code := websocket.CloseAbnormalClosure
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}
	clean := code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway
	if clean {
		c.state = StateClosed
	}
	c.mu.Unlock()

	c.log.Info("wsclient: disconnected", "code", code)
	c.connection.emit(false)
	if !clean {
		c.scheduleReconnect()
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.maxAttempts {
		c.state = StateFailed
		c.mu.Unlock()
		c.log.Error("wsclient: giving up", "attempts", c.maxAttempts)
		c.errs.emit(ErrReconnectExhausted.Error())
		return
	}
	c.attempts++
	attempt := c.attempts
	delay := c.baseDelay * time.Duration(attempt)
	c.state = StateReconnecting
	c.mu.Unlock()

	c.log.Info("wsclient: reconnecting", "attempt", attempt, "max", c.maxAttempts, "delay", delay)
	cancel := c.schedule(delay, c.redial)

	c.mu.Lock()
	if c.state == StateReconnecting && c.attempts == attempt {
		c.cancelRetry = cancel
	}
	c.mu.Unlock()
}

func (c *Client) deliver(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		c.log.Warn("wsclient: undecodable frame", "error", err)
		return
	}

	var err error
	switch head.Type {
	case relay.TypeMessage:
		var f relay.MessageFrame
		if err = json.Unmarshal(data, &f); err == nil {
			c.messages.emit(f.Message)
		}
	case relay.TypeTyping:
		var f relay.TypingFrame
		if err = json.Unmarshal(data, &f); err == nil {
			c.typing.emit(f)
		}
	case relay.TypeTranslation:
		var f relay.TranslationFrame
		if err = json.Unmarshal(data, &f); err == nil {
			c.translations.emit(f)
		}
	case relay.TypeInsights:
		var f relay.InsightsFrame
		if err = json.Unmarshal(data, &f); err == nil {
			c.insights.emit(f)
		}
	case relay.TypeError:
		var f relay.ErrorFrame
		if err = json.Unmarshal(data, &f); err == nil {
			c.errs.emit(f.Message)
		}
	default:
		c.log.Debug("wsclient: ignoring frame", "type", head.Type)
	}
	if err != nil {
		c.log.Warn("wsclient: decode frame", "type", head.Type, "error", err)
	}
}

// Send writes frame now if the connection is open, otherwise queues it for the next open.
func (c *Client) Send(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	conn := c.conn
	if c.state != StateOpen || conn == nil {
		c.pending = append(c.pending, data)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.write(conn, data)
}

func (c *Client) write(conn Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Client) SendChatMessage(conversationID, userID int64, content, language string, translation *string) error {
	return c.Send(relay.InboundFrame{
		Type:           relay.TypeMessage,
		ConversationID: &conversationID,
		Content:        &content,
		UserID:         &userID,
		Language:       &language,
		Translation:    translation,
	})
}

// RequestTranslation returns the request id the matching translation frame will carry.
func (c *Client) RequestTranslation(text, sourceLanguage, targetLanguage string) (string, error) {
	id, err := gonanoid.New(requestIDLength)
	if err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}
	return id, c.Send(relay.InboundFrame{
		Type:           relay.TypeTranslate,
		RequestID:      id,
		Text:           &text,
		SourceLanguage: &sourceLanguage,
		TargetLanguage: &targetLanguage,
	})
}

func (c *Client) RequestInsights(text, language string) (string, error) {
	id, err := gonanoid.New(requestIDLength)
	if err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}
	return id, c.Send(relay.InboundFrame{
		Type:      relay.TypeInsights,
		RequestID: id,
		Text:      &text,
		Language:  &language,
	})
}

// Close shuts the connection down cleanly and tears down every listener.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed && c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	wasOpen := c.state == StateOpen
	c.state = StateClosed
	if c.cancelRetry != nil {
		c.cancelRetry()
		c.cancelRetry = nil
	}
	conn := c.conn
	c.conn = nil
	c.pending = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		c.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = conn.Close()
	}
	if wasOpen {
		c.connection.emit(false)
	}

	c.messages.clear()
	c.connection.clear()
	c.errs.clear()
	c.typing.clear()
	c.translations.clear()
	c.insights.clear()
	return err
}
