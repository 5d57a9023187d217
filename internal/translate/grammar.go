package translate

import (
	"regexp"
	"strings"
)

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

var luoRewrites = []rewrite{
	{regexp.MustCompile(`(?i)\bi am\b`), "an"},
	{regexp.MustCompile(`(?i)\byou are\b`), "in"},
	{regexp.MustCompile(`(?i)\b(he|she) is\b`), "en"},
	{regexp.MustCompile(`(?i)\bwe are\b`), "wan"},
	{regexp.MustCompile(`(?i)\bthey are\b`), "gin"},
}

var englishRewrites = []rewrite{
	{regexp.MustCompile(`(?i)^an\b`), "I am"},
	{regexp.MustCompile(`(?i)\.\s+an\b`), ". I am"},
	{regexp.MustCompile(`(?i)^in\b`), "You are"},
	{regexp.MustCompile(`(?i)\.\s+in\b`), ". You are"},
	{regexp.MustCompile(`(?i)^en\b`), "He/she is"},
	{regexp.MustCompile(`(?i)\.\s+en\b`), ". He/she is"},
	{regexp.MustCompile(`(?i)^wan\b`), "We are"},
	{regexp.MustCompile(`(?i)\.\s+wan\b`), ". We are"},
	{regexp.MustCompile(`(?i)^gin\b`), "They are"},
	{regexp.MustCompile(`(?i)\.\s+gin\b`), ". They are"},
}

var (
	sentenceStart = regexp.MustCompile(`(^|\.\s+)[a-z]`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// applyLuoGrammar normalizes a word-by-word English to Dholuo rendering.
// Articles are dropped before the pronoun rules so the "an" they produce survives.
func applyLuoGrammar(text string) string {
	text = dropArticles(text)
	for _, rw := range luoRewrites {
		text = rw.re.ReplaceAllString(text, rw.repl)
	}
	return collapseSpaces(text)
}

// applyEnglishGrammar expands sentence-initial Dholuo pronouns and capitalizes sentences.
func applyEnglishGrammar(text string) string {
	for _, rw := range englishRewrites {
		text = rw.re.ReplaceAllString(text, rw.repl)
	}
	text = sentenceStart.ReplaceAllStringFunc(text, func(m string) string {
		return m[:len(m)-1] + strings.ToUpper(m[len(m)-1:])
	})
	return collapseSpaces(text)
}

func collapseSpaces(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// dropArticles removes standalone English articles; Dholuo has none.
func dropArticles(text string) string {
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		switch strings.ToLower(stripPunctuation(f)) {
		case "a", "an", "the":
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
