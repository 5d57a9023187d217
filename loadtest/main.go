package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"dholuo-chat/internal/config"
	"dholuo-chat/internal/relay"
	"dholuo-chat/internal/wsclient"
)

type options struct {
	baseURL   string
	wsURL     string
	users     int
	messages  int
	language  string
	translate bool
	interval  time.Duration
	timeout   time.Duration
}

type stats struct {
	mu        sync.Mutex
	latencies []time.Duration

	sent     atomic.Int64
	replies  atomic.Int64
	failures atomic.Int64
}

func (s *stats) observe(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func (s *stats) percentile(p float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), s.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[int(float64(len(sorted)-1)*p)]
}

func main() {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive the relay with concurrent chat sessions",
		Long: `loadtest registers users, opens one conversation per user and sends chat
messages (and optionally translate requests) over the websocket relay, then
reports reply latency.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "base-url", config.GetEnv("LOADTEST_BASE_URL", "http://localhost:8080"), "HTTP base URL")
	f.StringVar(&opts.wsURL, "ws-url", config.GetEnv("LOADTEST_WS_URL", "ws://localhost:8080/ws"), "websocket URL")
	f.IntVar(&opts.users, "users", config.GetEnvInt("LOADTEST_USERS", 50), "concurrent users")
	f.IntVar(&opts.messages, "messages", config.GetEnvInt("LOADTEST_MESSAGES", 20), "chat messages per user")
	f.StringVar(&opts.language, "language", "luo", "conversation language")
	f.BoolVar(&opts.translate, "translate", true, "send a translate request after each chat message")
	f.DurationVar(&opts.interval, "interval", 10*time.Millisecond, "pause between messages")
	f.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall deadline")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	st := &stats{}
	start := time.Now()

	slog.Info("🔥 starting load test", "users", opts.users, "messages", opts.messages, "language", opts.language)

	var wg sync.WaitGroup
	for i := 0; i < opts.users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := runUser(ctx, opts, n, st, logger); err != nil {
				st.failures.Add(1)
				slog.Warn("❌ user failed", "user", n, "error", err)
			}
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("sent=%d replies=%d failed_users=%d elapsed=%s\n", st.sent.Load(), st.replies.Load(), st.failures.Load(), elapsed.Round(time.Millisecond))
	fmt.Printf("reply latency p50=%s p95=%s p99=%s\n", st.percentile(0.50), st.percentile(0.95), st.percentile(0.99))
	if st.failures.Load() > 0 {
		return fmt.Errorf("%d users failed", st.failures.Load())
	}
	return nil
}

func runUser(ctx context.Context, opts *options, n int, st *stats, logger *slog.Logger) error {
	username := fmt.Sprintf("lt_%d_%d", time.Now().Unix(), n)
	token, userID, err := authenticate(ctx, opts.baseURL, username, "password123")
	if err != nil {
		return err
	}
	convID, err := createConversation(ctx, opts.baseURL, token, opts.language)
	if err != nil {
		return err
	}

	wsURL, err := url.Parse(opts.wsURL)
	if err != nil {
		return fmt.Errorf("parse ws url: %w", err)
	}
	q := wsURL.Query()
	q.Set("token", token)
	wsURL.RawQuery = q.Encode()

	client := wsclient.New(wsclient.Options{URL: wsURL.String(), Logger: logger.With("user", username)})
	defer client.Close()

	// replies are matched by order: the relay answers each chat turn with exactly one bot message
	var (
		mu       sync.Mutex
		sentAt   []time.Time
		received atomic.Int64
		doneOnce sync.Once
	)
	done := make(chan struct{})
	client.OnMessage(func(m relay.OutboundMessage) {
		if m.IsUserMessage {
			return
		}
		mu.Lock()
		if len(sentAt) > 0 {
			st.observe(time.Since(sentAt[0]))
			sentAt = sentAt[1:]
		}
		mu.Unlock()
		st.replies.Add(1)
		if received.Add(1) >= int64(opts.messages) {
			doneOnce.Do(func() { close(done) })
		}
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}

	for i := 0; i < opts.messages; i++ {
		mu.Lock()
		sentAt = append(sentAt, time.Now())
		mu.Unlock()

		if err := client.SendChatMessage(convID, userID, fmt.Sprintf("hello friend %d", i), opts.language, nil); err != nil {
			return err
		}
		st.sent.Add(1)
		if opts.translate {
			if _, err := client.RequestTranslation("thank you", "eng", "luo"); err != nil {
				return err
			}
		}
		time.Sleep(opts.interval)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for replies: %w", ctx.Err())
	}
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ID          int64  `json:"id"`
}

// authenticate registers (ignoring conflicts) and logs in.
func authenticate(ctx context.Context, baseURL, username, password string) (string, int64, error) {
	creds := map[string]string{"username": username, "password": password}
	if resp, err := postJSON(ctx, baseURL+"/register", "", creds); err == nil {
		resp.Body.Close()
	}

	resp, err := postJSON(ctx, baseURL+"/login", "", creds)
	if err != nil {
		return "", 0, fmt.Errorf("login %s: %w", username, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("login %s: status %d", username, resp.StatusCode)
	}

	var data loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", 0, fmt.Errorf("decode login: %w", err)
	}
	return data.AccessToken, data.ID, nil
}

func createConversation(ctx context.Context, baseURL, token, language string) (int64, error) {
	resp, err := postJSON(ctx, baseURL+"/api/conversations", token, map[string]string{
		"title":    "load test",
		"language": language,
	})
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("create conversation: status %d", resp.StatusCode)
	}

	var conv struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return 0, fmt.Errorf("decode conversation: %w", err)
	}
	return conv.ID, nil
}

func postJSON(ctx context.Context, endpoint, token string, data any) (*http.Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}
