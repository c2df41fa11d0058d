package hmochat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nivkeidan/hmochat/model"
)

const testKBDoc = `<html><body>
<h2>טיפולי שיניים</h2>
<table>
<tr><th>שירות</th><th>מכבי</th></tr>
<tr><td>טיפול שורש</td><td>זהב: 90% הנחה כסף: 60% הנחה</td></tr>
</table>
<p>המידע כפוף לתקנון הקופה.</p>
</body></html>`

// fakeAzure serves both deployments: embeddings return a constant small
// vector per input; chat returns a confirmed info reply in json mode and
// a cited answer otherwise.
func fakeAzure(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/embeddings"):
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding embeddings request: %v", err)
			}
			data := make([]map[string]any, len(req.Input))
			for i := range req.Input {
				data[i] = map[string]any{"embedding": []float32{1, 0, 0}, "index": i}
			}
			json.NewEncoder(w).Encode(map[string]any{"data": data})

		case strings.Contains(r.URL.Path, "/chat/completions"):
			var req struct {
				ResponseFormat *struct {
					Type string `json:"type"`
				} `json:"response_format"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding chat request: %v", err)
			}
			content := "במסלול זהב במכבי יש 90% הנחה על טיפול שורש [1]."
			if req.ResponseFormat != nil {
				content = `{"assistant_say":"הפרטים אושרו.","profile_patch":{` +
					`"first_name":"דוד","last_name":"כהן","id_number":"123456789",` +
					`"gender":"זכר","birth_year":1990,"hmo_name":"מכבי",` +
					`"hmo_card_number":"987654321","membership_tier":"זהב"},"status":"CONFIRMED"}`
			}
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]any{"content": content}, "finish_reason": "stop"},
				},
			})

		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func testEngineConfig(t *testing.T, endpoint string) Config {
	t.Helper()
	kbDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(kbDir, "dental.html"), []byte(testKBDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.KBDir = kbDir
	cfg.CacheDir = t.TempDir()
	cfg.StorePath = filepath.Join(t.TempDir(), "audit.db")
	cfg.EmbeddingDim = 3
	cfg.Azure.Endpoint = endpoint
	cfg.Azure.APIKey = "test-key"
	cfg.Azure.ChatDeployment = "gpt-chat"
	cfg.Azure.EmbeddingsDeployment = "text-embed"
	cfg.Azure.BackoffBaseS = 0.001
	return cfg
}

func TestEngineFullSession(t *testing.T) {
	srv := fakeAzure(t)
	defer srv.Close()

	engine, err := New(context.Background(), testEngineConfig(t, srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer engine.Close()

	if engine.KBSize() == 0 {
		t.Fatal("kb built empty")
	}
	if len(engine.KBFingerprint()) != 16 {
		t.Errorf("fingerprint = %q", engine.KBFingerprint())
	}

	// Info turn: one message carrying everything, confirmed.
	req := &model.ChatRequest{
		SessionBundle: model.SessionBundle{Locale: model.LocaleHE},
		UserInput:     "דוד כהן 123456789 זכר 1990 מכבי 987654321 זהב, מאשר",
	}
	resp, err := engine.HandleChat(context.Background(), req)
	if err != nil {
		t.Fatalf("info turn: %v", err)
	}
	if resp.SuggestedPhase != model.PhaseQNA {
		t.Fatalf("phase = %s, want QNA; profile problems: %v",
			resp.SuggestedPhase, resp.UserProfile.Problems())
	}
	if !resp.UserProfile.Complete() {
		t.Fatalf("profile incomplete: %v", resp.UserProfile.Problems())
	}

	// Q&A turn over the same bundle.
	req.UserInput = "כמה הנחה יש על טיפול שורש?"
	resp, err = engine.HandleChat(context.Background(), req)
	if err != nil {
		t.Fatalf("qna turn: %v", err)
	}
	if !strings.Contains(resp.AssistantText, "90%") {
		t.Errorf("answer = %q", resp.AssistantText)
	}
	if len(resp.Citations) == 0 {
		t.Error("qna answer carries no citations")
	}
	if len(resp.ValidationFlags) != 0 {
		t.Errorf("flags = %v", resp.ValidationFlags)
	}
	if len(req.SessionBundle.History.Turns) != 2 {
		t.Errorf("got %d history turns, want 2", len(req.SessionBundle.History.Turns))
	}
}

func TestEngineInvalidConfig(t *testing.T) {
	_, err := New(context.Background(), DefaultConfig())
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
}

func TestEngineCacheReuseAcrossRestarts(t *testing.T) {
	srv := fakeAzure(t)
	defer srv.Close()
	cfg := testEngineConfig(t, srv.URL)
	cfg.StorePath = "" // audit store optional

	e1, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first engine: %v", err)
	}
	fp := e1.KBFingerprint()
	e1.Close()

	e2, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second engine: %v", err)
	}
	defer e2.Close()
	if e2.KBFingerprint() != fp {
		t.Errorf("fingerprint changed across restarts: %s vs %s", e2.KBFingerprint(), fp)
	}
	if e2.KBSize() != e1.KBSize() {
		t.Errorf("chunk count changed: %d vs %d", e2.KBSize(), e1.KBSize())
	}
}
