package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dholuo-chat/internal/insights"
	"dholuo-chat/internal/relay"
	"dholuo-chat/internal/translate"
)

type readResult struct {
	data []byte
	err  error
}

type fakeConn struct {
	reads chan readResult
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan readResult, 16), done: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case r := <-f.reads:
		return websocket.TextMessage, r.data, r.err
	case <-f.done:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeConn) push(frame any) {
	data, _ := json.Marshal(frame)
	f.reads <- readResult{data: data}
}

func (f *fakeConn) drop(code int) {
	f.reads <- readResult{err: &websocket.CloseError{Code: code}}
}

func (f *fakeConn) frames() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, w := range f.written {
		var m map[string]any
		if json.Unmarshal(w, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

type fakeScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	queue  []func()
}

func (s *fakeScheduler) schedule(d time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	s.queue = append(s.queue, fn)
	return func() {}
}

// fireNext runs the oldest scheduled callback on the calling goroutine.
func (s *fakeScheduler) fireNext() bool {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return false
	}
	fn := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()
	fn()
	return true
}

func (s *fakeScheduler) scheduled() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type dialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	calls int
}

// dial hands out the queued connections in order, then fails.
func (d *dialer) dial(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *dialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type eventLog[T any] struct {
	mu     sync.Mutex
	events []T
}

func (l *eventLog[T]) add(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, v)
}

func (l *eventLog[T]) all() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]T(nil), l.events...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_ReconnectBackoffBound(t *testing.T) {
	first := newFakeConn()
	d := &dialer{conns: []*fakeConn{first}}
	sched := &fakeScheduler{}
	c := New(Options{MaxAttempts: 5, BaseDelay: 2 * time.Second, Dial: d.dial, Schedule: sched.schedule, Logger: quietLogger()})

	errs := &eventLog[string]{}
	c.OnError(errs.add)

	require.NoError(t, c.Connect(context.Background()))
	first.drop(websocket.CloseAbnormalClosure)
	require.Eventually(t, func() bool { return len(sched.scheduled()) == 1 }, time.Second, time.Millisecond)

	// every scheduled attempt fails to dial: closes two through six
	for i := 0; i < 10; i++ {
		if !sched.fireNext() {
			break
		}
	}

	delays := sched.scheduled()
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second, 8 * time.Second, 10 * time.Second}, delays)
	for i := 1; i < len(delays); i++ {
		assert.Greater(t, delays[i], delays[i-1])
	}
	assert.Equal(t, 6, d.callCount())
	assert.Equal(t, StateFailed, c.State())
	assert.Contains(t, errs.all(), ErrReconnectExhausted.Error())

	// an explicit Connect is the way out of the failed state
	d.mu.Lock()
	d.conns = []*fakeConn{newFakeConn()}
	d.mu.Unlock()
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, 0, c.Attempts())
}

func TestClient_CleanCloseDoesNotReconnect(t *testing.T) {
	for _, code := range []int{websocket.CloseNormalClosure, websocket.CloseGoingAway} {
		conn := newFakeConn()
		d := &dialer{conns: []*fakeConn{conn}}
		sched := &fakeScheduler{}
		c := New(Options{Dial: d.dial, Schedule: sched.schedule, Logger: quietLogger()})

		require.NoError(t, c.Connect(context.Background()))
		conn.drop(code)

		assert.Eventually(t, func() bool { return c.State() == StateClosed }, time.Second, time.Millisecond)
		assert.Empty(t, sched.scheduled())
	}
}

func TestClient_ListenersSurviveReconnect(t *testing.T) {
	conn1, conn2 := newFakeConn(), newFakeConn()
	d := &dialer{conns: []*fakeConn{conn1, conn2}}
	sched := &fakeScheduler{}
	c := New(Options{Dial: d.dial, Schedule: sched.schedule, Logger: quietLogger()})

	messages := &eventLog[string]{}
	unsubscribe := c.OnMessage(func(m relay.OutboundMessage) { messages.add(m.Content) })
	connected := &eventLog[bool]{}
	c.OnConnection(connected.add)

	require.NoError(t, c.Connect(context.Background()))
	conn1.push(map[string]any{"type": "message", "message": map[string]any{"id": 1, "content": "misawa", "isUserMessage": true}})
	require.Eventually(t, func() bool { return len(messages.all()) == 1 }, time.Second, time.Millisecond)

	conn1.drop(websocket.CloseAbnormalClosure)
	require.Eventually(t, func() bool { return len(sched.scheduled()) == 1 }, time.Second, time.Millisecond)
	require.True(t, sched.fireNext())
	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, 0, c.Attempts())

	conn2.push(map[string]any{"type": "message", "message": map[string]any{"id": 2, "content": "erokamano"}})
	require.Eventually(t, func() bool { return len(messages.all()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"misawa", "erokamano"}, messages.all())
	assert.Equal(t, []bool{true, false, true}, connected.all())

	unsubscribe()
	unsubscribe()
	conn2.push(map[string]any{"type": "message", "message": map[string]any{"id": 3, "content": "ignored"}})
	conn2.push(map[string]any{"type": "typing", "action": "translating"})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, messages.all(), 2)
}

func TestClient_QueuedSendFlushedOnOpen(t *testing.T) {
	conn := newFakeConn()
	d := &dialer{conns: []*fakeConn{conn}}
	c := New(Options{Dial: d.dial, Schedule: (&fakeScheduler{}).schedule, Logger: quietLogger()})

	id, err := c.RequestTranslation("Hello", "eng", "luo")
	require.NoError(t, err)
	assert.Len(t, id, requestIDLength)
	assert.Empty(t, conn.frames())

	require.NoError(t, c.Connect(context.Background()))
	frames := conn.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, "translate", frames[0]["type"])
	assert.Equal(t, id, frames[0]["requestId"])

	require.NoError(t, c.SendChatMessage(3, 9, "misawa", "luo", nil))
	frames = conn.frames()
	require.Len(t, frames, 2)
	assert.Equal(t, map[string]any{
		"type": "message", "conversationId": float64(3), "content": "misawa", "userId": float64(9), "language": "luo",
	}, frames[1])
}

// gatedConn holds its first write until the gate opens.
type gatedConn struct {
	*fakeConn
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (g *gatedConn) WriteMessage(kind int, data []byte) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.gate
	})
	return g.fakeConn.WriteMessage(kind, data)
}

func TestClient_SendDuringFlushKeepsOrder(t *testing.T) {
	conn := &gatedConn{fakeConn: newFakeConn(), gate: make(chan struct{}), entered: make(chan struct{})}
	dial := func(context.Context) (Conn, error) { return conn, nil }
	c := New(Options{Dial: dial, Schedule: (&fakeScheduler{}).schedule, Logger: quietLogger()})

	require.NoError(t, c.SendChatMessage(1, 1, "first", "eng", nil))
	require.NoError(t, c.SendChatMessage(1, 1, "second", "eng", nil))

	connected := make(chan error, 1)
	go func() { connected <- c.Connect(context.Background()) }()
	<-conn.entered
	require.Eventually(t, func() bool { return c.State() == StateOpen }, time.Second, time.Millisecond)

	sent := make(chan error, 1)
	go func() { sent <- c.SendChatMessage(1, 1, "third", "eng", nil) }()
	time.Sleep(20 * time.Millisecond)

	close(conn.gate)
	require.NoError(t, <-connected)
	require.NoError(t, <-sent)

	var contents []any
	for _, f := range conn.frames() {
		contents = append(contents, f["content"])
	}
	assert.Equal(t, []any{"first", "second", "third"}, contents)
	require.NoError(t, c.Close())
}

func TestClient_DeliversFrameKinds(t *testing.T) {
	conn := newFakeConn()
	d := &dialer{conns: []*fakeConn{conn}}
	c := New(Options{Dial: d.dial, Schedule: (&fakeScheduler{}).schedule, Logger: quietLogger()})

	translations := &eventLog[relay.TranslationFrame]{}
	c.OnTranslation(translations.add)
	typing := &eventLog[relay.TypingFrame]{}
	c.OnTyping(typing.add)
	ins := &eventLog[relay.InsightsFrame]{}
	c.OnInsights(ins.add)
	errs := &eventLog[string]{}
	c.OnError(errs.add)

	require.NoError(t, c.Connect(context.Background()))
	conn.push(relay.TypingFrame{Type: relay.TypeTyping, Action: relay.ActionTranslating})
	conn.push(relay.TranslationFrame{Type: relay.TypeTranslation, RequestID: "x", OriginalText: "Hello", TranslatedText: "misawa", SourceLanguage: "eng", TargetLanguage: "luo"})
	conn.push(relay.InsightsFrame{Type: relay.TypeInsights, Text: "misawa", Insights: insights.Unavailable()})
	conn.push(relay.ErrorFrame{Type: relay.TypeError, Message: relay.GenericErrorMessage})

	require.Eventually(t, func() bool { return len(errs.all()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []relay.TypingFrame{{Type: relay.TypeTyping, Action: relay.ActionTranslating}}, typing.all())
	require.Len(t, translations.all(), 1)
	assert.Equal(t, "misawa", translations.all()[0].TranslatedText)
	require.Len(t, ins.all(), 1)
	assert.Equal(t, relay.GenericErrorMessage, errs.all()[0])
}

func TestClient_Close(t *testing.T) {
	conn := newFakeConn()
	d := &dialer{conns: []*fakeConn{conn}}
	c := New(Options{Dial: d.dial, Schedule: (&fakeScheduler{}).schedule, Logger: quietLogger()})

	connected := &eventLog[bool]{}
	c.OnConnection(connected.add)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, []bool{true, false}, connected.all())
	assert.ErrorIs(t, c.Send(map[string]string{"type": "translate"}), ErrClosed)
	assert.Zero(t, c.connection.len())
	require.NoError(t, c.Close())
}

func TestClient_AgainstRelayServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := relay.NewHub(quietLogger())
	go hub.Run(ctx)
	tr := translate.NewService(translate.DefaultDictionary(), translate.Options{Logger: quietLogger()})
	an := insights.NewService()
	engine := relay.NewEngine(nil, tr, an, nil, relay.Options{Logger: quietLogger()})
	h := relay.NewHandler(hub, engine, tr, an, nil, quietLogger())

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWs))
	defer srv.Close()

	c := New(Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Logger: quietLogger()})
	defer c.Close()

	got := make(chan relay.TranslationFrame, 1)
	c.OnTranslation(func(f relay.TranslationFrame) { got <- f })

	require.NoError(t, c.Connect(context.Background()))
	id, err := c.RequestTranslation("Hello", "eng", "luo")
	require.NoError(t, err)

	select {
	case f := <-got:
		assert.Equal(t, id, f.RequestID)
		assert.Equal(t, "misawa", f.TranslatedText)
	case <-time.After(2 * time.Second):
		t.Fatal("no translation frame")
	}
}
