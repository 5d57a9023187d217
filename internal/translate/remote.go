package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteProvider calls the scraper translation service: POST {url}/translate {"text": ...}.
// The service only translates English to Dholuo.
type RemoteProvider struct {
	baseURL    string
	httpClient *http.Client
	pairs      map[Pair]bool
}

func NewRemoteProvider(baseURL string, timeout time.Duration) *RemoteProvider {
	return &RemoteProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		pairs:      map[Pair]bool{NewPair("eng", "luo"): true},
	}
}

func (p *RemoteProvider) Name() string { return "remote" }

func (p *RemoteProvider) Supports(pair Pair) bool {
	return p.pairs[pair]
}

func (p *RemoteProvider) Translate(ctx context.Context, text string, pair Pair) (string, error) {
	if !p.Supports(pair) {
		return "", &UnsupportedPairError{Source: pair.Source, Target: pair.Target}
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translator request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translator returned %d: %s", resp.StatusCode, string(respBody))
	}

	translated, err := extractTranslation(respBody)
	if err != nil {
		return "", err
	}
	return translated, nil
}

// extractTranslation accepts {"translated": ...}, {"translation": ...}, a bare JSON
// string, or as a last resort any non-empty string field.
func extractTranslation(body []byte) (string, error) {
	var asString string
	if err := json.Unmarshal(body, &asString); err == nil {
		return checkScraperResult(asString)
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	for _, key := range []string{"translated", "translation"} {
		if s, ok := fields[key].(string); ok && s != "" {
			return checkScraperResult(s)
		}
	}
	if msg, ok := fields["error"].(string); ok {
		return "", fmt.Errorf("translator error: %s", msg)
	}
	for _, v := range fields {
		if s, ok := v.(string); ok && s != "" {
			return checkScraperResult(s)
		}
	}
	return "", ErrNoMatch
}

// The scraper reports its own failures inside the translated field.
func checkScraperResult(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "", s == "Translation not found.":
		return "", ErrNoMatch
	case strings.HasPrefix(s, "Error:"):
		return "", fmt.Errorf("translator error: %s", strings.TrimSpace(strings.TrimPrefix(s, "Error:")))
	}
	return s, nil
}
