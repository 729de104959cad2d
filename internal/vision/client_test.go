package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"framelens/internal/services"
)

func testOptions(baseURL string) Options {
	return Options{
		APIKey:        "test-key",
		BaseURL:       baseURL,
		Model:         "test-model",
		MaxAttempts:   5,
		Timeout:       5 * time.Second,
		RateLimitStep: 10 * time.Second,
		RetryDelay:    5 * time.Second,
	}
}

// recordingSleeper captures requested waits without sleeping.
type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func chatReply(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(body)
}

func TestNewRequiresCredential(t *testing.T) {
	_, err := New(Options{BaseURL: "https://api.example.com", Model: "m"})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAnalyzeBatchSendsImagesAndAuth(t *testing.T) {
	var captured chatRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(chatReply(`[]`)))
	}))
	defer server.Close()

	client, err := New(testOptions(server.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reply, err := client.AnalyzeBatch(context.Background(), "extract metrics", [][]byte{[]byte("img-a"), []byte("img-b")})
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if reply != "[]" {
		t.Fatalf("reply = %q", reply)
	}

	if auth != "Bearer test-key" {
		t.Fatalf("auth header = %q", auth)
	}
	if captured.Model != "test-model" {
		t.Fatalf("model = %q", captured.Model)
	}
	if len(captured.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(captured.Messages))
	}
	parts := captured.Messages[0].Content
	// prompt + (label, image) per frame
	if len(parts) != 5 {
		t.Fatalf("expected 5 content parts, got %d", len(parts))
	}
	if parts[0].Text != "extract metrics" {
		t.Fatalf("prompt part = %q", parts[0].Text)
	}
	if parts[1].Text != "Frame 0" || parts[3].Text != "Frame 1" {
		t.Fatalf("frame labels wrong: %q, %q", parts[1].Text, parts[3].Text)
	}
	if parts[2].ImageURL == nil || !strings.HasPrefix(parts[2].ImageURL.URL, "data:image/jpeg;base64,") {
		t.Fatalf("image part missing data URI: %+v", parts[2])
	}
}

func TestAnalyzeBatchRateLimitBackoff(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(chatReply(`[{"frame_index":0}]`)))
	}))
	defer server.Close()

	sleeper := &recordingSleeper{}
	client, err := New(testOptions(server.URL), WithSleeper(sleeper.sleep))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reply, err := client.AnalyzeBatch(context.Background(), "p", [][]byte{[]byte("img")})
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if reply == "" {
		t.Fatal("expected a reply after retries")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}

	// Two 429s produce exactly two linearly growing waits.
	want := []time.Duration{10 * time.Second, 20 * time.Second}
	if len(sleeper.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", sleeper.waits, want)
	}
	for i := range want {
		if sleeper.waits[i] != want[i] {
			t.Fatalf("wait %d = %v, want %v", i, sleeper.waits[i], want[i])
		}
	}
}

func TestAnalyzeBatchServerErrorUsesFixedDelay(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(chatReply(`[]`)))
	}))
	defer server.Close()

	sleeper := &recordingSleeper{}
	client, err := New(testOptions(server.URL), WithSleeper(sleeper.sleep))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := client.AnalyzeBatch(context.Background(), "p", [][]byte{[]byte("img")}); err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if len(sleeper.waits) != 1 || sleeper.waits[0] != 5*time.Second {
		t.Fatalf("waits = %v, want one 5s wait", sleeper.waits)
	}
}

func TestAnalyzeBatchRetriesUnparseableReply(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(chatReply("I could not read the image")))
			return
		}
		_, _ = w.Write([]byte(chatReply(`[{"frame_index":0}]`)))
	}))
	defer server.Close()

	sleeper := &recordingSleeper{}
	client, err := New(testOptions(server.URL), WithSleeper(sleeper.sleep))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reply, err := client.AnalyzeBatch(context.Background(), "p", [][]byte{[]byte("img")})
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	if !strings.Contains(reply, "frame_index") {
		t.Fatalf("reply = %q", reply)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(sleeper.waits) != 1 || sleeper.waits[0] != 5*time.Second {
		t.Fatalf("waits = %v, want one 5s wait", sleeper.waits)
	}
}

func TestAnalyzeBatchExhaustsRetries(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sleeper := &recordingSleeper{}
	opts := testOptions(server.URL)
	opts.MaxAttempts = 3
	client, err := New(opts, WithSleeper(sleeper.sleep))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.AnalyzeBatch(context.Background(), "p", [][]byte{[]byte("img")})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient classification, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(sleeper.waits) != 2 {
		t.Fatalf("expected 2 waits between 3 attempts, got %v", sleeper.waits)
	}
}

func TestStripFence(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"[1, 2]", "[1, 2]"},
		{"```json\n[1, 2]\n```", "[1, 2]"},
		{"```\n{\"a\": 1}\n```", "{\"a\": 1}"},
		{"  ```json\n[]\n```  ", "[]"},
		{"plain text", "plain text"},
	}
	for _, tc := range cases {
		if got := StripFence(tc.in); got != tc.want {
			t.Fatalf("StripFence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	var values []int
	if err := DecodeJSON("```json\n[1, 2, 3]\n```", &values); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if len(values) != 3 || values[2] != 3 {
		t.Fatalf("values = %v", values)
	}

	if err := DecodeJSON("not json", &values); err == nil {
		t.Fatal("expected parse error")
	}
	if err := DecodeJSON("``````", &values); err == nil {
		t.Fatal("expected empty reply error")
	}
}
