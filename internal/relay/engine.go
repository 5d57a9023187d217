// Package relay is the server side of the chat protocol. Each websocket
// connection feeds inbound frames to an Engine, which runs every request as
// its own branch and writes the resulting frames back to the connection.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"dholuo-chat/internal/chat"
	"dholuo-chat/internal/insights"
	"dholuo-chat/internal/metrics"
	"dholuo-chat/internal/responder"
	"dholuo-chat/internal/translate"
)

// MessageStore persists chat turns.
type MessageStore interface {
	CreateMessage(ctx context.Context, in chat.CreateMessageInput) (*chat.Message, error)
}

// Responder produces the automated reply for a chat turn.
type Responder interface {
	Respond(ctx context.Context, text, language string) string
}

type Options struct {
	BaseLanguage  string
	BranchTimeout time.Duration
	Logger        *slog.Logger
}

type Engine struct {
	store      MessageStore
	translator translate.Translator
	analyzer   insights.Analyzer
	responder  Responder

	base    string
	timeout time.Duration
	log     *slog.Logger

	mu       sync.RWMutex
	stopping bool
	wg       sync.WaitGroup
}

func NewEngine(store MessageStore, translator translate.Translator, analyzer insights.Analyzer, resp Responder, opts Options) *Engine {
	if opts.BaseLanguage == "" {
		opts.BaseLanguage = "eng"
	}
	if opts.BranchTimeout <= 0 {
		opts.BranchTimeout = 90 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		store:      store,
		translator: translator,
		analyzer:   analyzer,
		responder:  resp,
		base:       opts.BaseLanguage,
		timeout:    opts.BranchTimeout,
		log:        opts.Logger,
	}
}

type protocolError struct {
	msg string
}

func (e *protocolError) Error() string { return e.msg }

func missingFields(names ...string) error {
	return &protocolError{msg: "Missing required fields: " + strings.Join(names, ", ")}
}

// Dispatch classifies one inbound frame and starts its branch. It returns as
// soon as the branch is scheduled; branches on one connection run concurrently.
func (e *Engine) Dispatch(out Sender, raw []byte) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		e.log.Warn("relay: malformed frame", "error", err)
		metrics.FramesTotal.WithLabelValues("in", "invalid").Inc()
		out.Send(errorFrame("", GenericErrorMessage))
		return
	}

	var branch func(ctx context.Context) error
	switch f.Type {
	case TypeMessage:
		branch = func(ctx context.Context) error { return e.handleChat(ctx, out, f) }
	case TypeTranslate:
		branch = func(ctx context.Context) error { return e.handleTranslate(ctx, out, f) }
	case TypeInsights:
		branch = func(ctx context.Context) error { return e.handleInsights(ctx, out, f) }
	default:
		// unrecognised types share one series
		metrics.FramesTotal.WithLabelValues("in", "unknown").Inc()
		e.log.Warn("relay: unknown frame type", "type", f.Type)
		out.Send(errorFrame(f.RequestID, fmt.Sprintf("Unknown frame type %q", f.Type)))
		return
	}
	metrics.FramesTotal.WithLabelValues("in", f.Type).Inc()

	e.spawn(f.Type, f.RequestID, out, branch)
}

// spawn runs fn detached from the connection: closing the socket does not
// cancel it, only the branch timeout does.
func (e *Engine) spawn(name, requestID string, out Sender, fn func(ctx context.Context) error) {
	e.mu.RLock()
	if e.stopping {
		e.mu.RUnlock()
		out.Send(errorFrame(requestID, ShuttingDownMessage))
		return
	}
	e.wg.Add(1)
	e.mu.RUnlock()

	go func() {
		defer e.wg.Done()
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		defer func() {
			metrics.BranchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			if r := recover(); r != nil {
				e.log.Error("relay: branch panicked", "branch", name, "panic", r)
				out.Send(errorFrame(requestID, GenericErrorMessage))
			}
		}()

		if err := fn(ctx); err != nil {
			var perr *protocolError
			if errors.As(err, &perr) {
				out.Send(errorFrame(requestID, perr.msg))
				return
			}
			e.log.Error("relay: branch failed", "branch", name, "error", err)
			out.Send(errorFrame(requestID, GenericErrorMessage))
		}
	}()
}

// Wait blocks until every in-flight branch has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown stops accepting new branches and waits for the running ones,
// or until ctx is done.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.stopping = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay branches still running: %w", ctx.Err())
	}
}

func (e *Engine) handleChat(ctx context.Context, out Sender, f InboundFrame) error {
	var missing []string
	if f.ConversationID == nil {
		missing = append(missing, "conversationId")
	}
	if f.Content == nil || strings.TrimSpace(*f.Content) == "" {
		missing = append(missing, "content")
	}
	if f.UserID == nil {
		missing = append(missing, "userId")
	}
	if f.Language == nil || *f.Language == "" {
		missing = append(missing, "language")
	}
	if len(missing) > 0 {
		return missingFields(missing...)
	}
	conversationID, content, language := *f.ConversationID, *f.Content, *f.Language

	out.Send(typing(&conversationID, ""))

	var clientTranslation *string
	if f.Translation != nil && *f.Translation != "" {
		clientTranslation = f.Translation
	}
	userMsg, err := e.store.CreateMessage(ctx, chat.CreateMessageInput{
		ConversationID: conversationID,
		Content:        content,
		IsUserMessage:  true,
		Translation:    clientTranslation,
	})
	if err != nil {
		return fmt.Errorf("store user message: %w", err)
	}
	out.Send(MessageFrame{Type: TypeMessage, Message: OutboundMessage{Message: userMsg}})

	reply := e.respond(ctx, content, language)

	var replyTranslation *string
	var replyInsights *insights.Insights
	if language != e.base {
		replyTranslation = e.translateReply(ctx, reply, language)
		replyInsights = e.insightsFor(ctx, reply, language)
	}

	replyMsg, err := e.store.CreateMessage(ctx, chat.CreateMessageInput{
		ConversationID: conversationID,
		Content:        reply,
		IsUserMessage:  false,
		Translation:    replyTranslation,
	})
	if err != nil {
		return fmt.Errorf("store reply: %w", err)
	}
	out.Send(MessageFrame{Type: TypeMessage, Message: OutboundMessage{Message: replyMsg, Insights: replyInsights}})
	return nil
}

func (e *Engine) respond(ctx context.Context, content, language string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("relay: responder panicked", "panic", r)
			reply = responder.Apology
		}
	}()
	return e.responder.Respond(ctx, content, language)
}

// translateReply returns nil on any failure.
func (e *Engine) translateReply(ctx context.Context, reply, language string) (out *string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("relay: translation panicked", "panic", r)
			out = nil
		}
	}()
	t, err := e.translator.TryTranslate(ctx, reply, language, e.base)
	if err != nil {
		e.log.Debug("relay: reply translation skipped", "language", language, "error", err)
		return nil
	}
	return &t
}

// insightsFor returns nil on any failure.
func (e *Engine) insightsFor(ctx context.Context, reply, language string) (out *insights.Insights) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("relay: insights panicked", "panic", r)
			out = nil
		}
	}()
	ins, err := e.analyzer.Analyze(ctx, reply, language)
	if err != nil {
		e.log.Debug("relay: reply insights skipped", "language", language, "error", err)
		return nil
	}
	return &ins
}

func (e *Engine) handleTranslate(ctx context.Context, out Sender, f InboundFrame) error {
	var missing []string
	if f.Text == nil {
		missing = append(missing, "text")
	}
	if f.SourceLanguage == nil {
		missing = append(missing, "sourceLanguage")
	}
	if f.TargetLanguage == nil {
		missing = append(missing, "targetLanguage")
	}
	if len(missing) > 0 {
		return missingFields(missing...)
	}

	out.Send(typing(nil, ActionTranslating))

	translated := e.safeTranslate(ctx, *f.Text, *f.SourceLanguage, *f.TargetLanguage)
	out.Send(TranslationFrame{
		Type:           TypeTranslation,
		RequestID:      f.RequestID,
		OriginalText:   *f.Text,
		TranslatedText: translated,
		SourceLanguage: *f.SourceLanguage,
		TargetLanguage: *f.TargetLanguage,
	})
	return nil
}

func (e *Engine) safeTranslate(ctx context.Context, text, src, dst string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("relay: translator panicked", "panic", r)
			out = "[Translation error: internal error]"
		}
	}()
	return e.translator.Translate(ctx, text, src, dst)
}

func (e *Engine) handleInsights(ctx context.Context, out Sender, f InboundFrame) error {
	var missing []string
	if f.Text == nil {
		missing = append(missing, "text")
	}
	if f.Language == nil {
		missing = append(missing, "language")
	}
	if len(missing) > 0 {
		return missingFields(missing...)
	}

	out.Send(typing(nil, ActionAnalyzing))

	ins := insights.Unavailable()
	if got := e.insightsFor(ctx, *f.Text, *f.Language); got != nil {
		ins = *got
	}
	out.Send(InsightsFrame{Type: TypeInsights, RequestID: f.RequestID, Text: *f.Text, Insights: ins})
	return nil
}
