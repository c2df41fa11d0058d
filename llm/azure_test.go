package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:             endpoint,
		APIKey:               "test-key",
		ChatDeployment:       "gpt-chat",
		EmbeddingsDeployment: "text-embed",
		MaxRetries:           2,
		BackoffBase:          time.Millisecond,
		RequestTimeout:       5 * time.Second,
	}
}

func chatOK(content string) []byte {
	out, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
	})
	return out
}

func TestChatRetriesTransientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(chatOK("hello"))
	}))
	defer srv.Close()

	c := NewAzure(testConfig(srv.URL))
	out, err := c.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "hello" {
		t.Errorf("got %q, want %q", out, "hello")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("got %d calls, want 3", got)
	}
}

func TestChatExhaustsRetries(t *testing.T) {
	var errorEvents int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.OnError = func(event string, payload map[string]any) {
		atomic.AddInt32(&errorEvents, 1)
	}
	c := NewAzure(cfg)

	_, err := c.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("got %v, want ErrUpstream", err)
	}
	// MaxRetries=2 means 3 attempts, each emitting one error event.
	if got := atomic.LoadInt32(&errorEvents); got != 3 {
		t.Errorf("got %d error events, want 3", got)
	}
}

func TestChatDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewAzure(testConfig(srv.URL))
	_, err := c.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("got %v, want ErrUpstream", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("got %d calls, want 1 (no retry on 400)", got)
	}
}

func TestChatJSONModeRequestShape(t *testing.T) {
	var body struct {
		Messages       []Message `json:"messages"`
		ResponseFormat *struct {
			Type string `json:"type"`
		} `json:"response_format"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if r.Header.Get("api-key") != "test-key" {
			t.Errorf("missing api-key header")
		}
		w.Write(chatOK(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewAzure(testConfig(srv.URL))
	_, err := c.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if body.ResponseFormat == nil || body.ResponseFormat.Type != "json_object" {
		t.Error("json_mode did not set response_format=json_object")
	}
	if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
		t.Errorf("messages not passed through: %+v", body.Messages)
	}
}

func TestEmbedTextsBatchingAndOrder(t *testing.T) {
	var batchSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		batchSizes = append(batchSizes, len(req.Input))

		// Return items in reverse order with index fields; the client
		// must reorder by index.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"embedding": []float32{float32(len(req.Input[i]))},
				"index":     i,
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	c := NewAzure(testConfig(srv.URL))
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := c.EmbedTexts(context.Background(), texts, 2)
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) != 1 || v[0] != float32(len(texts[i])) {
			t.Errorf("vector %d = %v, want [%d]", i, v, len(texts[i]))
		}
	}
	if len(batchSizes) != 3 || batchSizes[0] != 2 || batchSizes[1] != 2 || batchSizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", batchSizes)
	}
}

func TestTelemetryHookPanicIsContained(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatOK("fine"))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.OnResult = func(event string, payload map[string]any) {
		panic("hook bug")
	}
	c := NewAzure(cfg)

	out, err := c.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "fine" {
		t.Errorf("got %q, want %q", out, "fine")
	}
}

func TestChatContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write(chatOK("late"))
	}))
	defer srv.Close()

	c := NewAzure(testConfig(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Chat(ctx, ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}
