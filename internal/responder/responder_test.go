package responder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"dholuo-chat/internal/translate"
)

type stubTranslator struct {
	out   string
	err   error
	panic bool
}

func (s stubTranslator) Translate(ctx context.Context, text, src, dst string) string {
	out, err := s.TryTranslate(ctx, text, src, dst)
	if err != nil {
		return translate.Placeholder(err)
	}
	return out
}

func (s stubTranslator) TryTranslate(context.Context, string, string, string) (string, error) {
	if s.panic {
		panic("boom")
	}
	return s.out, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRespond_Dictionary(t *testing.T) {
	svc := NewService(translate.NewService(translate.DefaultDictionary(), translate.Options{Logger: quietLogger()}), quietLogger())
	ctx := context.Background()

	assert.Equal(t, "misawa", svc.Respond(ctx, "hello", "luo"))
	assert.Equal(t, "Good morning to you", svc.Respond(ctx, "Good morning to you", "eng"))
}

func TestRespond_Fallback(t *testing.T) {
	svc := NewService(stubTranslator{}, quietLogger())
	ctx := context.Background()

	tests := []struct {
		name     string
		text     string
		language string
		want     string
	}{
		{name: "greeting", text: "Hi there", language: "swa", want: "Hello! How can I assist you today?"},
		{name: "translation", text: "How do you say water?", language: "kik", want: "I can help you translate between English and Luo (Dholuo). What would you like to translate?"},
		{name: "culture plural", text: "Tell me about traditions", language: "mas", want: "The Luo people have a rich cultural heritage with unique traditions and customs. Is there a specific aspect of Luo culture you'd like to learn more about?"},
		{name: "no false greeting", text: "this is it", language: "swa", want: defaultReply},
		{name: "empty luo text", text: "  ", language: "luo", want: defaultReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.Respond(ctx, tt.text, tt.language))
		})
	}
}

func TestRespond_Failures(t *testing.T) {
	ctx := context.Background()

	failing := NewService(stubTranslator{err: errors.New("provider down")}, quietLogger())
	assert.Equal(t, Apology, failing.Respond(ctx, "hello", "luo"))

	panicking := NewService(stubTranslator{panic: true}, quietLogger())
	assert.Equal(t, Apology, panicking.Respond(ctx, "hello", "luo"))
}
