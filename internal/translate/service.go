package translate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"dholuo-chat/internal/metrics"
)

const (
	strategyDictionary = "dictionary"
	strategyCache      = "cache"
	strategyRemote     = "remote"
	strategyWord       = "word"
)

type Options struct {
	Remote   Provider
	Cache    Cache
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// Service applies the translation policy over the dictionary and an optional remote provider.
type Service struct {
	dict     *Dictionary
	remote   Provider
	breaker  *circuitBreaker
	cache    Cache
	cacheTTL time.Duration
	log      *slog.Logger
}

func NewService(dict *Dictionary, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		dict:     dict,
		remote:   opts.Remote,
		breaker:  newCircuitBreaker(3, 30*time.Second),
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		log:      logger,
	}
}

func (s *Service) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("translate: panic", "panic", r)
			result = "[Translation error: internal error]"
		}
	}()

	out, err := s.TryTranslate(ctx, text, sourceLanguage, targetLanguage)
	if err != nil {
		return Placeholder(err)
	}
	return out
}

func (s *Service) TryTranslate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	pair := NewPair(sourceLanguage, targetLanguage)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if !s.dict.Supports(pair) {
		metrics.TranslationsTotal.WithLabelValues(strategyDictionary, "unsupported").Inc()
		return "", &UnsupportedPairError{Source: pair.Source, Target: pair.Target}
	}

	if out, ok := s.dict.LookupPhrase(pair, text); ok {
		metrics.TranslationsTotal.WithLabelValues(strategyDictionary, "hit").Inc()
		return out, nil
	}

	if out, ok := s.fromRemote(ctx, text, pair); ok {
		return out, nil
	}

	metrics.TranslationsTotal.WithLabelValues(strategyWord, "hit").Inc()
	return s.wordByWord(text, pair), nil
}

// fromRemote consults the cache, then the remote provider. Any failure falls through.
func (s *Service) fromRemote(ctx context.Context, text string, pair Pair) (string, bool) {
	if s.remote == nil {
		return "", false
	}
	if sp, ok := s.remote.(interface{ Supports(Pair) bool }); ok && !sp.Supports(pair) {
		return "", false
	}

	key := cacheKey(text, pair)
	if s.cache != nil {
		val, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("translate: cache get failed", "error", err)
		} else if ok {
			metrics.TranslationsTotal.WithLabelValues(strategyCache, "hit").Inc()
			return val, true
		}
	}

	var out string
	err := s.breaker.execute(func() error {
		var err error
		out, err = s.remote.Translate(ctx, text, pair)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrCircuitOpen) {
			s.log.Warn("translate: remote provider failed, using dictionary", "provider", s.remote.Name(), "pair", pair.String(), "error", err)
		}
		metrics.TranslationsTotal.WithLabelValues(strategyRemote, "error").Inc()
		return "", false
	}
	metrics.TranslationsTotal.WithLabelValues(strategyRemote, "hit").Inc()

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, out, s.cacheTTL); err != nil {
			s.log.Warn("translate: cache set failed", "error", err)
		}
	}
	return out, true
}

func (s *Service) wordByWord(text string, pair Pair) string {
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		if t, ok := s.dict.LookupWord(pair, w); ok {
			// keep sentence punctuation so capitalization still sees boundaries
			words[i] = t + w[len(strings.TrimRight(w, ".,!?;:")):]
		}
	}
	result := strings.Join(words, " ")

	switch pair.Target {
	case "luo":
		return applyLuoGrammar(result)
	case "eng":
		return applyEnglishGrammar(result)
	}
	return result
}
