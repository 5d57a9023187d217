// Package responder generates the automated reply to a chat turn.
package responder

import (
	"context"
	"log/slog"
	"strings"

	"dholuo-chat/internal/translate"
)

const Apology = "I'm sorry, I'm having trouble processing your request right now. Please try again later."

const defaultReply = "I'm here to help you learn about the Luo (Dholuo) language. You can ask me to translate phrases, teach you about cultural contexts, or provide language learning resources. What would you like to know?"

type topic struct {
	keywords []string
	luo      string
	other    string
}

var topics = []topic{
	{
		keywords: []string{"hello", "hi", "greetings"},
		luo:      "Misawa! (Hello in Luo/Dholuo) How can I assist you today with Luo language?",
		other:    "Hello! How can I assist you today?",
	},
	{
		keywords: []string{"translate", "how do you say"},
		luo:      "In Luo (Dholuo), common phrases include:\n- Misawa - Hello\n- Idhi nade? - How are you?\n- Aber - I'm fine\n- Erokamano - Thank you\n\nWould you like to learn more specific Luo phrases?",
		other:    "I can help you translate between English and Luo (Dholuo). What would you like to translate?",
	},
	{
		keywords: []string{"culture", "tradition", "custom"},
		luo:      "Luo culture is rich in traditions. The Luo people are a Nilotic ethnic group native to western Kenya and northern Tanzania. They have a strong musical tradition and are known for their storytelling, dance, and fishing culture. Their traditional social structure is organized around kinship, with respect for elders being a central value. Would you like to know more about specific aspects of Luo culture?",
		other:    "The Luo people have a rich cultural heritage with unique traditions and customs. Is there a specific aspect of Luo culture you'd like to learn more about?",
	},
}

type Service struct {
	translator translate.Translator
	log        *slog.Logger
}

func NewService(translator translate.Translator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{translator: translator, log: logger}
}

// Respond never fails. Dholuo turns are answered with their translation,
// English turns are echoed, anything else gets a canned reply.
func (s *Service) Respond(ctx context.Context, text, language string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("responder: panic", "panic", r)
			reply = Apology
		}
	}()

	if strings.TrimSpace(text) != "" {
		switch language {
		case "luo":
			out, err := s.translator.TryTranslate(ctx, text, "eng", "luo")
			if err != nil {
				s.log.Warn("responder: translation failed", "error", err)
				return Apology
			}
			return out
		case "eng":
			return text
		}
	}
	return fallback(text, language)
}

func fallback(text, language string) string {
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || r == '\'')
	})

	for _, t := range topics {
		if matches(lower, words, t.keywords) {
			if language == "luo" {
				return t.luo
			}
			return t.other
		}
	}
	return defaultReply
}

// Single keywords match a word prefix so "traditions" hits "tradition" but
// "this" does not hit "hi". Multi-word keywords match as substrings.
func matches(lower string, words, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(k, " ") {
			if strings.Contains(lower, k) {
				return true
			}
			continue
		}
		for _, w := range words {
			if strings.HasPrefix(w, k) && (len(k) > 2 || w == k) {
				return true
			}
		}
	}
	return false
}
