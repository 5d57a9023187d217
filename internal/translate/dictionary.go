package translate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

//go:embed dictionary.json
var defaultDictionaryJSON []byte

// Pair is an ordered (source, target) language pair.
type Pair struct {
	Source string
	Target string
}

func NewPair(source, target string) Pair {
	return Pair{Source: normalizeCode(source), Target: normalizeCode(target)}
}

func (p Pair) String() string {
	return p.Source + "->" + p.Target
}

// Dictionary is a read-only phrase table. It is safe for concurrent use.
type Dictionary struct {
	entries map[Pair]map[string]string
}

type dictionaryFile struct {
	Pairs []struct {
		Source  string            `json:"source"`
		Target  string            `json:"target"`
		Entries map[string]string `json:"entries"`
	} `json:"pairs"`
}

// LoadDictionary parses a dictionary asset. Keys are lowercased.
func LoadDictionary(r io.Reader) (*Dictionary, error) {
	var file dictionaryFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode dictionary: %w", err)
	}

	d := &Dictionary{entries: make(map[Pair]map[string]string, len(file.Pairs))}
	for _, p := range file.Pairs {
		pair := NewPair(p.Source, p.Target)
		table := d.entries[pair]
		if table == nil {
			table = make(map[string]string, len(p.Entries))
			d.entries[pair] = table
		}
		for k, v := range p.Entries {
			table[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
	return d, nil
}

var (
	defaultDict     *Dictionary
	defaultDictOnce sync.Once
)

// DefaultDictionary returns the embedded English/Dholuo dictionary.
func DefaultDictionary() *Dictionary {
	defaultDictOnce.Do(func() {
		d, err := LoadDictionary(bytes.NewReader(defaultDictionaryJSON))
		if err != nil {
			panic("translate: embedded dictionary is invalid: " + err.Error())
		}
		defaultDict = d
	})
	return defaultDict
}

func (d *Dictionary) Supports(pair Pair) bool {
	_, ok := d.entries[pair]
	return ok
}

// Len returns the number of entries for pair.
func (d *Dictionary) Len(pair Pair) int {
	return len(d.entries[pair])
}

// LookupPhrase finds an exact (case-insensitive) match, or for texts of at most
// three tokens a multi-word key contained in the text.
func (d *Dictionary) LookupPhrase(pair Pair, text string) (string, bool) {
	table, ok := d.entries[pair]
	if !ok {
		return "", false
	}

	lower := strings.ToLower(strings.TrimSpace(text))
	if v, ok := table[lower]; ok {
		return v, true
	}

	if len(strings.Fields(lower)) > 3 {
		return "", false
	}

	// Longest key wins so the result does not depend on map order.
	best, bestKey := "", ""
	for key, value := range table {
		if len(strings.Fields(key)) < 2 || !strings.Contains(lower, key) {
			continue
		}
		if len(key) > len(bestKey) || (len(key) == len(bestKey) && key < bestKey) {
			best, bestKey = value, key
		}
	}
	return best, bestKey != ""
}

// LookupWord translates a single word after stripping punctuation.
func (d *Dictionary) LookupWord(pair Pair, word string) (string, bool) {
	table, ok := d.entries[pair]
	if !ok {
		return "", false
	}
	v, ok := table[stripPunctuation(word)]
	return v, ok
}

func stripPunctuation(word string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '!', '?', ';', ':', '\'', '"', '(', ')':
			return -1
		}
		return r
	}, word)
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
