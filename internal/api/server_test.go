package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aerodoc/aerodoc/internal/conversation"
	"github.com/aerodoc/aerodoc/internal/index"
	"github.com/aerodoc/aerodoc/internal/log"
	"github.com/aerodoc/aerodoc/internal/prompt"
	"github.com/aerodoc/aerodoc/internal/rag"
)

// stubPipeline implements Pipeline with canned behavior per test.
type stubPipeline struct {
	answer     rag.Answer
	answerErr  error
	indexed    int
	ingestErr  error
	lastIngest string
}

func (s *stubPipeline) Answer(_ context.Context, question, sessionID, strategy string) (rag.Answer, error) {
	if s.answerErr != nil {
		return rag.Answer{}, s.answerErr
	}
	a := s.answer
	a.SessionID = sessionID
	a.Strategy = strategy
	if a.Text == "" {
		a.Text = "answer to: " + question
	}
	return a, nil
}

func (s *stubPipeline) Ingest(_ context.Context, documentID string, pages []rag.Page) (int, error) {
	s.lastIngest = documentID
	if s.ingestErr != nil {
		return 0, s.ingestErr
	}
	return s.indexed, nil
}

// stubSessions implements SessionStore with lenient reads.
type stubSessions struct {
	histories map[string][]conversation.Turn
	deleted   []string
}

func (s *stubSessions) History(_ context.Context, sessionID string) ([]conversation.Turn, error) {
	return s.histories[sessionID], nil
}

func (s *stubSessions) Exists(_ context.Context, sessionID string) (bool, error) {
	_, ok := s.histories[sessionID]
	return ok, nil
}

func (s *stubSessions) Delete(_ context.Context, sessionID string) error {
	s.deleted = append(s.deleted, sessionID)
	return nil
}

func (s *stubSessions) ListIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.histories))
	for id := range s.histories {
		ids = append(ids, id)
	}
	return ids, nil
}

func newTestServer(t *testing.T, pipeline Pipeline, sessions SessionStore) *httptest.Server {
	t.Helper()
	if sessions == nil {
		sessions = &stubSessions{histories: map[string][]conversation.Turn{}}
	}
	srv, err := NewServer(ServerConfig{
		Logger:   log.NewNop(),
		Pipeline: pipeline,
		Registry: prompt.NewRegistry(),
		Sessions: sessions,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestQueryEndpoint(t *testing.T) {
	t.Run("answers and echoes session and strategy", func(t *testing.T) {
		ts := newTestServer(t, &stubPipeline{}, nil)

		resp := postJSON(t, ts.URL+"/api/query",
			`{"question":"What is Vne?","session_id":"s1","strategy":"react"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}

		var answer rag.Answer
		decodeBody(t, resp, &answer)
		if answer.SessionID != "s1" || answer.Strategy != "react" {
			t.Errorf("unexpected echo: session=%q strategy=%q", answer.SessionID, answer.Strategy)
		}
		if answer.Text != "answer to: What is Vne?" {
			t.Errorf("unexpected answer %q", answer.Text)
		}
	})

	t.Run("generates a session id when absent", func(t *testing.T) {
		ts := newTestServer(t, &stubPipeline{}, nil)

		resp := postJSON(t, ts.URL+"/api/query", `{"question":"What is Vne?"}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}

		var answer rag.Answer
		decodeBody(t, resp, &answer)
		if len(answer.SessionID) != 36 {
			t.Errorf("expected a UUID session id, got %q", answer.SessionID)
		}
	})

	t.Run("substitutes the default strategy when absent", func(t *testing.T) {
		ts := newTestServer(t, &stubPipeline{}, nil)

		resp := postJSON(t, ts.URL+"/api/query", `{"question":"What is Vne?","session_id":"s1"}`)
		var answer rag.Answer
		decodeBody(t, resp, &answer)
		if answer.Strategy != "basic" {
			t.Errorf("expected default strategy basic, got %q", answer.Strategy)
		}
	})

	t.Run("empty question is rejected", func(t *testing.T) {
		ts := newTestServer(t, &stubPipeline{}, nil)

		for _, body := range []string{`{}`, `{"question":"   "}`, `not json`} {
			resp := postJSON(t, ts.URL+"/api/query", body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
			}
		}
	})

	t.Run("pipeline failures map to stable statuses", func(t *testing.T) {
		tests := []struct {
			name       string
			err        error
			wantStatus int
			wantCode   string
		}{
			{"unknown strategy", fmt.Errorf("%w: %q", prompt.ErrUnknownStrategy, "x"), http.StatusBadRequest, "unknown_strategy"},
			{"embedding", fmt.Errorf("%w: quota", rag.ErrEmbedding), http.StatusBadGateway, "embedding_failed"},
			{"generation", fmt.Errorf("%w: overloaded", rag.ErrGeneration), http.StatusBadGateway, "generation_failed"},
			{"retrieval", fmt.Errorf("%w: offline", rag.ErrRetrieval), http.StatusInternalServerError, "retrieval_failed"},
			{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ts := newTestServer(t, &stubPipeline{answerErr: tt.err}, nil)

				resp := postJSON(t, ts.URL+"/api/query", `{"question":"q","session_id":"s1"}`)
				if resp.StatusCode != tt.wantStatus {
					t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
				}
				var errResp errorResponse
				decodeBody(t, resp, &errResp)
				if errResp.Error != tt.wantCode {
					t.Errorf("error code = %q, want %q", errResp.Error, tt.wantCode)
				}
			})
		}
	})
}

func TestIngestEndpoint(t *testing.T) {
	t.Run("reports indexed chunk count", func(t *testing.T) {
		pipeline := &stubPipeline{indexed: 7}
		ts := newTestServer(t, pipeline, nil)

		resp := postJSON(t, ts.URL+"/api/ingest",
			`{"document_id":"poh","pages":[{"page":1,"text":"content"}]}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}

		var out ingestResponse
		decodeBody(t, resp, &out)
		if out.DocumentID != "poh" || out.ChunksIndexed != 7 {
			t.Errorf("unexpected response: %+v", out)
		}
		if pipeline.lastIngest != "poh" {
			t.Errorf("pipeline saw document %q", pipeline.lastIngest)
		}
	})

	t.Run("missing document id is rejected", func(t *testing.T) {
		ts := newTestServer(t, &stubPipeline{}, nil)

		resp := postJSON(t, ts.URL+"/api/ingest", `{"pages":[]}`)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("embedding failure is a bad gateway", func(t *testing.T) {
		ts := newTestServer(t, &stubPipeline{ingestErr: fmt.Errorf("%w: quota", rag.ErrEmbedding)}, nil)

		resp := postJSON(t, ts.URL+"/api/ingest", `{"document_id":"poh","pages":[]}`)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", resp.StatusCode)
		}
	})
}

func TestStrategiesEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubPipeline{}, nil)

	resp, err := http.Get(ts.URL + "/api/strategies")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out struct {
		Strategies []strategyItem `json:"strategies"`
		Default    string         `json:"default"`
	}
	decodeBody(t, resp, &out)
	if len(out.Strategies) != 8 {
		t.Errorf("expected 8 strategies, got %d", len(out.Strategies))
	}
	if out.Default != "basic" {
		t.Errorf("default = %q", out.Default)
	}
}

func TestSessionEndpoints(t *testing.T) {
	store := &stubSessions{histories: map[string][]conversation.Turn{
		"s1": {
			{Role: conversation.RoleUser, Text: "q"},
			{Role: conversation.RoleAssistant, Text: "a"},
		},
		"s2-empty": nil,
	}}
	ts := newTestServer(t, &stubPipeline{}, store)

	t.Run("list", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/sessions")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		var out struct {
			Sessions []string `json:"sessions"`
		}
		decodeBody(t, resp, &out)
		if len(out.Sessions) != 2 {
			t.Errorf("sessions = %v", out.Sessions)
		}
	})

	t.Run("history", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/sessions/s1/history")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		var out struct {
			SessionID string              `json:"session_id"`
			Turns     []conversation.Turn `json:"turns"`
		}
		decodeBody(t, resp, &out)
		if out.SessionID != "s1" || len(out.Turns) != 2 {
			t.Errorf("unexpected history: %+v", out)
		}
	})

	t.Run("history of known empty session is 200", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/sessions/s2-empty/history")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
		var out struct {
			Turns []conversation.Turn `json:"turns"`
		}
		decodeBody(t, resp, &out)
		if out.Turns == nil || len(out.Turns) != 0 {
			t.Errorf("turns = %#v, want empty non-null array", out.Turns)
		}
	})

	t.Run("history of unknown session is 404", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/sessions/ghost/history")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("delete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/s1", nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d", resp.StatusCode)
		}
		if len(store.deleted) != 1 || store.deleted[0] != "s1" {
			t.Errorf("deleted = %v", store.deleted)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, &stubPipeline{}, nil)

	for _, path := range []string{"/health", "/ready"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d", path, resp.StatusCode)
		}
	}
}

func TestRateLimiting(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		Pipeline:  &stubPipeline{},
		Registry:  prompt.NewRegistry(),
		Sessions:  &stubSessions{histories: map[string][]conversation.Turn{}},
		RateRPS:   0.001,
		RateBurst: 1,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	first, err := http.Get(ts.URL + "/api/strategies")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first request status = %d", first.StatusCode)
	}

	second, err := http.Get(ts.URL + "/api/strategies")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", second.StatusCode)
	}
	if got := second.Header.Get("Retry-After"); got == "" {
		t.Error("missing Retry-After header")
	}

	// Health probes bypass the limiter.
	probe, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	probe.Body.Close()
	if probe.StatusCode != http.StatusOK {
		t.Errorf("health probe status = %d", probe.StatusCode)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	ts := newTestServer(t, &panickingPipeline{}, nil)

	resp := postJSON(t, ts.URL+"/api/query", `{"question":"q","session_id":"s1"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

type panickingPipeline struct{}

func (p *panickingPipeline) Answer(context.Context, string, string, string) (rag.Answer, error) {
	panic("pipeline exploded")
}

func (p *panickingPipeline) Ingest(context.Context, string, []rag.Page) (int, error) {
	panic("pipeline exploded")
}

// Compile-time checks that the real collaborators satisfy the transport
// interfaces.
var (
	_ Pipeline     = (*rag.Engine)(nil)
	_ SessionStore = (*conversation.Memory)(nil)
	_ SessionStore = (*conversation.Postgres)(nil)
	_ rag.Index    = (*index.Memory)(nil)
	_ rag.Index    = (*index.Postgres)(nil)
)
