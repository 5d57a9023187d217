// Package translate maps text between English and Dholuo.
//
// A Service combines several strategies behind one policy: exact dictionary
// phrases, an optional remote translator with a cache and a circuit breaker,
// and word-by-word substitution with light grammar normalization. Translate
// never fails; failures come back as bracketed placeholder strings.
package translate

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmptyText = errors.New("text is empty")
	ErrNoMatch   = errors.New("no translation found")
	// ErrUnsupportedPair matches any *UnsupportedPairError via errors.Is.
	ErrUnsupportedPair = errors.New("unsupported language pair")
)

type UnsupportedPairError struct {
	Source string
	Target string
}

func (e *UnsupportedPairError) Error() string {
	return fmt.Sprintf("translation not available for %s to %s", e.Source, e.Target)
}

func (e *UnsupportedPairError) Is(target error) bool {
	return target == ErrUnsupportedPair
}

// Provider is one translation backend.
type Provider interface {
	Name() string
	Translate(ctx context.Context, text string, pair Pair) (string, error)
}

// Translator is what callers outside this package depend on.
type Translator interface {
	// Translate never fails; errors are rendered as bracketed strings.
	Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) string
	// TryTranslate reports failures as errors instead.
	TryTranslate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error)
}

// Placeholder renders err the way Translate reports failures.
func Placeholder(err error) string {
	var unsupported *UnsupportedPairError
	if errors.As(err, &unsupported) {
		return fmt.Sprintf("[Translation not available for %s to %s]", unsupported.Source, unsupported.Target)
	}
	return fmt.Sprintf("[Translation error: %s]", err.Error())
}
