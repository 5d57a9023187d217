// Package insights describes the cultural and pronunciation context of a language.
package insights

import (
	"context"
	"strings"
)

type Insights struct {
	CulturalContext string   `json:"culturalContext"`
	KeyPhrases      []string `json:"keyPhrases"`
	Pronunciation   string   `json:"pronunciation"`
}

// Analyzer produces insights for a piece of text in a language.
type Analyzer interface {
	Analyze(ctx context.Context, text, language string) (Insights, error)
}

var luo = Insights{
	CulturalContext: "The Luo people are a Nilotic ethnic group native to western Kenya and northern Tanzania.",
	KeyPhrases: []string{
		"Misawa (Hello)",
		"Idhi nade? (How are you?)",
		"Aber (I'm fine)",
		"Erokamano (Thank you)",
	},
	Pronunciation: "Luo is a tonal language with distinct vowel sounds.",
}

// Unavailable is returned for languages without insight data.
func Unavailable() Insights {
	return Insights{
		CulturalContext: "Cultural context information not available for this language.",
		KeyPhrases:      []string{},
		Pronunciation:   "Pronunciation guide not available for this language.",
	}
}

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Analyze accepts a language code or name ("luo", "Luo", "Dholuo").
// It only fails when ctx is already done.
func (s *Service) Analyze(ctx context.Context, text, language string) (Insights, error) {
	if err := ctx.Err(); err != nil {
		return Insights{}, err
	}

	switch strings.ToLower(strings.TrimSpace(language)) {
	case "luo", "dholuo":
		out := luo
		out.KeyPhrases = append([]string(nil), luo.KeyPhrases...)
		return out, nil
	}
	return Unavailable(), nil
}
