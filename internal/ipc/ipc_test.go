package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/gateway"
	"github.com/taleforge/sceneengine/internal/guard"
	"github.com/taleforge/sceneengine/internal/realtime"
	"github.com/taleforge/sceneengine/internal/store"
	"github.com/taleforge/sceneengine/internal/workflow"
)

type fixedNarrator struct {
	raw []byte
	err error
}

func (n *fixedNarrator) Narrate(context.Context, domain.NarratorRequest) (*gateway.Completion, error) {
	if n.err != nil {
		return nil, n.err
	}
	return &gateway.Completion{Raw: n.raw, InputTokens: 100, OutputTokens: 50}, nil
}

func newTestServer(t *testing.T, n gateway.Narrator) (*httptest.Server, *Handler) {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := (&store.WorldRepo{}).CreateTx(ctx, tx, domain.WorldMeta{CampaignID: "camp-1", InGameDate: "Day 1"}); err != nil {
		t.Fatalf("create world: %v", err)
	}
	if err := (&store.CharacterRepo{}).CreateTx(ctx, tx, domain.Character{
		ID: "pc-a", CampaignID: "camp-1", Name: "Ash", Stats: map[string]int{"blood": 1, "heart": 1},
	}); err != nil {
		t.Fatalf("create character: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	hub := realtime.NewHub(nil)
	gw := gateway.New(n, nil, gateway.NewRegistry(gateway.DefaultSettings(), nil), nil, nil)
	engine := workflow.NewEngine(db, gw, hub, workflow.Options{}, nil)
	h := &Handler{
		Engine:       engine,
		Hub:          hub,
		DB:           db,
		EventRepo:    &store.EventRepo{},
		CampaignLogs: &store.CampaignLogRepo{},
		Version:      "test",
	}
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, h
}

func narration(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"scene_text":    "Ash slips through the gate as the torches gutter, boots silent on the wet flagstones below.",
		"world_updates": map[string]any{},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func createScene(t *testing.T, srv *httptest.Server) SceneView {
	t.Helper()
	resp, body := do(t, srv, http.MethodPost, "/api/v1/campaigns/camp-1/scenes", `{"intro":"A gate in the rain."}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	var s SceneView
	if err := json.Unmarshal(body, &s); err != nil {
		t.Fatalf("decode scene: %v", err)
	}
	return s
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fixedNarrator{})
	resp, body := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"version":"test"`) {
		t.Errorf("unexpected body %s", body)
	}
}

func TestSceneLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, &fixedNarrator{raw: narration(t)})
	s := createScene(t, srv)
	if s.Status != domain.SceneAwaitingActions || s.CurrentExchangeNumber != 1 {
		t.Fatalf("unexpected scene %+v", s)
	}

	resp, body := do(t, srv, http.MethodPost, "/api/v1/scenes/"+s.ID+"/actions",
		`{"character_id":"pc-a","user_id":"u-a","text":"I slip past the guard"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", resp.StatusCode, body)
	}

	resp, body = do(t, srv, http.MethodGet, "/api/v1/scenes/"+s.ID+"/readiness", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"ready":true`) {
		t.Fatalf("readiness: %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, srv, http.MethodPost, "/api/v1/campaigns/camp-1/scenes/"+s.ID+"/resolve", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var res ResolutionView
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode resolution: %v", err)
	}
	if res.Scene.CurrentExchangeNumber != 2 || res.Level != "full" || res.TurnNumber != 1 {
		t.Errorf("unexpected resolution %+v", res)
	}

	resp, body = do(t, srv, http.MethodGet, "/api/v1/scenes/"+s.ID+"/events", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "exchange_resolved") {
		t.Errorf("events: %d %s", resp.StatusCode, body)
	}

	resp, body = do(t, srv, http.MethodGet, "/api/v1/campaigns/camp-1/log", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Ash slips") {
		t.Errorf("log: %d %s", resp.StatusCode, body)
	}

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/scenes/"+s.ID+"/end", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end: expected 200, got %d", resp.StatusCode)
	}
	resp, body = do(t, srv, http.MethodGet, "/api/v1/scenes/"+s.ID, "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"status":"RESOLVED"`) {
		t.Errorf("get: %d %s", resp.StatusCode, body)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv, _ := newTestServer(t, &fixedNarrator{err: errors.New("boom")})
	s := createScene(t, srv)

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"missing scene", http.MethodGet, "/api/v1/scenes/scn-nope", "", http.StatusNotFound},
		{"invalid body", http.MethodPost, "/api/v1/campaigns/camp-1/scenes", "not json", http.StatusBadRequest},
		{"second active scene", http.MethodPost, "/api/v1/campaigns/camp-1/scenes", `{"intro":"x"}`, http.StatusConflict},
		{"empty action", http.MethodPost, "/api/v1/scenes/" + s.ID + "/actions", `{"character_id":"pc-a","text":"  "}`, http.StatusBadRequest},
		{"no pending actions", http.MethodPost, "/api/v1/campaigns/camp-1/scenes/" + s.ID + "/resolve", `{"force":true}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, srv, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, resp.StatusCode, body)
			}
		})
	}

	do(t, srv, http.MethodPost, "/api/v1/scenes/"+s.ID+"/actions", `{"character_id":"pc-a","text":"I run"}`)
	resp, body := do(t, srv, http.MethodPost, "/api/v1/campaigns/camp-1/scenes/"+s.ID+"/resolve", "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", resp.StatusCode, body)
	}
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if apiErr.Kind != string(domain.KindNarrator) {
		t.Errorf("Kind = %q, want narrator_error", apiErr.Kind)
	}

	resp, body = do(t, srv, http.MethodGet, "/api/v1/campaigns/camp-1/gateway", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"failure_count":1`) {
		t.Errorf("gateway stats: %d %s", resp.StatusCode, body)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	srv, h := newTestServer(t, &fixedNarrator{raw: narration(t)})
	h.Guard = guard.New(guard.Config{SubmitsPerMinute: 1})
	s := createScene(t, srv)

	resp, body := do(t, srv, http.MethodPost, "/api/v1/scenes/"+s.ID+"/actions", `{"character_id":"pc-a","text":"I run"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first submit: expected 201, got %d: %s", resp.StatusCode, body)
	}
	resp, body = do(t, srv, http.MethodPost, "/api/v1/scenes/"+s.ID+"/actions", `{"character_id":"pc-a","text":"I run again"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second submit: expected 429, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), `"kind":"rate_limited"`) {
		t.Errorf("unexpected body %s", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fixedNarrator{})
	resp, body := do(t, srv, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected default Go collector metrics")
	}
}

func TestStreamEvents(t *testing.T) {
	srv, h := newTestServer(t, &fixedNarrator{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/campaigns/camp-1/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, _ := reader.ReadString('\n'); !strings.HasPrefix(line, ": connected") {
		t.Fatalf("unexpected preamble %q", line)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Hub.Subscribers("camp-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	createScene(t, srv)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "event: ") {
			if got := strings.TrimSpace(strings.TrimPrefix(line, "event: ")); got != workflow.EventSceneCreated {
				t.Errorf("event = %q, want %q", got, workflow.EventSceneCreated)
			}
			return
		}
	}
}
