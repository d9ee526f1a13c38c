package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/hikaku/internal/config"
	"github.com/hyperjump/hikaku/internal/embedding"
	"go.uber.org/zap"
)

func newTestServer(e embedding.Embedder) *Server {
	if e == nil {
		e = embedding.NewMockEmbedder(8)
	}
	return NewServer(e, "all-MiniLM-L6-v2", &config.ServerConfig{Host: "127.0.0.1", Port: 6868}, zap.NewNop())
}

// post sends a request through the full router so middleware is exercised too.
func post(srv *Server, body, contentType string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/calculate-distances", strings.NewReader(body))
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var out map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return out
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return out.Error
}

func TestCalculateDistances_OrderAndBounds(t *testing.T) {
	srv := newTestServer(nil)
	w := post(srv, `{"spec": "hello world", "candidates": ["hello world", "completely unrelated text", "hello"]}`, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Distances []float64 `json:"distances"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Distances) != 3 {
		t.Fatalf("distances length: got %d, want 3", len(out.Distances))
	}
	for i, d := range out.Distances {
		if d < 0 || d > 2 {
			t.Errorf("distances[%d] = %f out of [0, 2]", i, d)
		}
	}
	// Identical reference and candidate text embed identically.
	if out.Distances[0] > 1e-5 {
		t.Errorf("self distance: got %f, want ~0", out.Distances[0])
	}
	if out.Distances[1] <= out.Distances[0] {
		t.Errorf("unrelated text should be farther than identical text: %v", out.Distances)
	}
}

func TestCalculateDistances_WrongContentType(t *testing.T) {
	srv := newTestServer(nil)
	w := post(srv, `{"spec": "a", "candidates": ["b"]}`, "text/plain")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
	if msg := errorMessage(t, w); msg != "Content-Type must be application/json" {
		t.Errorf("error: got %q", msg)
	}
}

func TestCalculateDistances_JSONSuffixContentType(t *testing.T) {
	srv := newTestServer(nil)
	w := post(srv, `{"spec": "a", "candidates": ["b"]}`, "application/vnd.api+json; charset=utf-8")
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, body: %s", w.Code, w.Body.String())
	}
}

func TestCalculateDistances_MalformedJSON(t *testing.T) {
	srv := newTestServer(nil)
	w := post(srv, `{"spec": "a", "candidates": [`, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400 not 500", w.Code)
	}
	out := decodeBody(t, w)
	if string(out["error"]) != `"Invalid JSON format"` {
		t.Errorf("error: got %s", out["error"])
	}
	if _, ok := out["details"]; !ok {
		t.Error("parse failure should carry details")
	}
}

func TestCalculateDistances_NonObjectBody(t *testing.T) {
	srv := newTestServer(nil)
	for _, body := range []string{`[1, 2]`, `"text"`, `42`, `true`} {
		w := post(srv, body, "application/json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status for %s: got %d, want 400", body, w.Code)
		}
		if msg := errorMessage(t, w); msg != "Invalid JSON format" {
			t.Errorf("error for %s: got %q", body, msg)
		}
	}
}

func TestCalculateDistances_NullBody(t *testing.T) {
	srv := newTestServer(nil)
	w := post(srv, `null`, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
	if msg := errorMessage(t, w); msg != "Request body is empty or invalid JSON" {
		t.Errorf("error: got %q", msg)
	}
}

func TestCalculateDistances_MissingSpec(t *testing.T) {
	srv := newTestServer(nil)
	w := post(srv, `{"candidates": ["a"]}`, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
	if msg := errorMessage(t, w); msg != "Missing 'spec' field" {
		t.Errorf("error: got %q", msg)
	}
	if _, ok := decodeBody(t, w)["distances"]; ok {
		t.Error("error response must not contain distances")
	}
}

func TestCalculateDistances_MissingCandidates(t *testing.T) {
	srv := newTestServer(nil)
	w := post(srv, `{"spec": "a"}`, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
	if msg := errorMessage(t, w); msg != "Missing 'candidates' field" {
		t.Errorf("error: got %q", msg)
	}
}

func TestCalculateDistances_SpecNotString(t *testing.T) {
	srv := newTestServer(nil)
	for _, body := range []string{
		`{"spec": 42, "candidates": ["a"]}`,
		`{"spec": null, "candidates": ["a"]}`,
		`{"spec": ["a"], "candidates": ["a"]}`,
	} {
		w := post(srv, body, "application/json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status for %s: got %d, want 400", body, w.Code)
		}
		if msg := errorMessage(t, w); msg != "'spec' must be a string" {
			t.Errorf("error for %s: got %q", body, msg)
		}
	}
}

func TestCalculateDistances_CandidatesNotList(t *testing.T) {
	srv := newTestServer(nil)
	for _, body := range []string{
		`{"spec": "a", "candidates": "b"}`,
		`{"spec": "a", "candidates": null}`,
		`{"spec": "a", "candidates": {"x": 1}}`,
	} {
		w := post(srv, body, "application/json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status for %s: got %d, want 400", body, w.Code)
		}
		if msg := errorMessage(t, w); msg != "'candidates' must be a list" {
			t.Errorf("error for %s: got %q", body, msg)
		}
	}
}

func TestCalculateDistances_EmptyCandidates(t *testing.T) {
	srv := newTestServer(nil)
	w := post(srv, `{"spec": "a", "candidates": []}`, "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
	if msg := errorMessage(t, w); msg != "'candidates' list cannot be empty" {
		t.Errorf("error: got %q", msg)
	}
}

func TestCalculateDistances_NonStringCandidate(t *testing.T) {
	srv := newTestServer(nil)
	for _, body := range []string{
		`{"spec": "a", "candidates": ["b", 7]}`,
		`{"spec": "a", "candidates": [null]}`,
		`{"spec": "a", "candidates": ["b", ["c"]]}`,
	} {
		w := post(srv, body, "application/json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status for %s: got %d, want 400", body, w.Code)
		}
		if msg := errorMessage(t, w); msg != "All items in 'candidates' must be strings" {
			t.Errorf("error for %s: got %q", body, msg)
		}
	}
}

// failingEmbedder simulates a model runtime error during encoding.
type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("inference failed: boom")
}

func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("inference failed: boom")
}

func (failingEmbedder) Dimensions() int { return 8 }
func (failingEmbedder) Close() error    { return nil }

func TestCalculateDistances_EmbedderError(t *testing.T) {
	srv := newTestServer(failingEmbedder{})
	w := post(srv, `{"spec": "a", "candidates": ["b"]}`, "application/json")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", w.Code)
	}
	msg := errorMessage(t, w)
	if !strings.HasPrefix(msg, "Internal server error: ") {
		t.Errorf("error: got %q", msg)
	}
	if !strings.Contains(msg, "boom") {
		t.Errorf("error should carry the cause: %q", msg)
	}

	// The service keeps serving after an inference failure.
	srv2 := newTestServer(nil)
	srv2.embedder = failingEmbedder{}
	_ = post(srv2, `{"spec": "a", "candidates": ["b"]}`, "application/json")
	srv2.embedder = embedding.NewMockEmbedder(8)
	if w := post(srv2, `{"spec": "a", "candidates": ["b"]}`, "application/json"); w.Code != http.StatusOK {
		t.Errorf("subsequent request: got %d, want 200", w.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(nil)
	router := srv.Routes()

	// Health is unconditional, regardless of prior request history.
	_ = post(srv, `not json at all`, "application/json")
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "healthy" {
		t.Errorf("status field: got %q", out["status"])
	}
	if out["model"] != "all-MiniLM-L6-v2" {
		t.Errorf("model field: got %q", out["model"])
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(nil)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, r)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Request-ID", "given-id")
	w = httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, r)
	if got := w.Header().Get("X-Request-ID"); got != "given-id" {
		t.Errorf("caller-provided request id: got %q", got)
	}
}
