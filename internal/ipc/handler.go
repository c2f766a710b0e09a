// Package ipc provides the HTTP API for the scene engine.
package ipc

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/guard"
	"github.com/taleforge/sceneengine/internal/realtime"
	"github.com/taleforge/sceneengine/internal/store"
	"github.com/taleforge/sceneengine/internal/workflow"
)

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Engine       *workflow.Engine
	Hub          *realtime.Hub
	Guard        *guard.Guard
	DB           *sql.DB
	EventRepo    *store.EventRepo
	CampaignLogs *store.CampaignLogRepo
	Logger       *slog.Logger
	Version      string
}

// CreateSceneRequest is the body for POST /api/v1/campaigns/{campaignID}/scenes.
type CreateSceneRequest struct {
	Intro        string               `json:"intro"`
	Participants *domain.Participants `json:"participants,omitempty"`
}

// SubmitActionRequest is the body for POST /api/v1/scenes/{sceneID}/actions.
type SubmitActionRequest struct {
	CharacterID string `json:"character_id"`
	UserID      string `json:"user_id"`
	Text        string `json:"text"`
}

// ResolveRequest is the body for POST .../resolve.
type ResolveRequest struct {
	Force bool `json:"force"`
}

// SceneView is the wire form of a scene.
type SceneView struct {
	ID                    string                `json:"id"`
	CampaignID            string                `json:"campaign_id"`
	SceneNumber           int                   `json:"scene_number"`
	Status                domain.SceneStatus    `json:"status"`
	IntroText             string                `json:"intro_text"`
	ResolutionText        string                `json:"resolution_text"`
	Participants          *domain.Participants  `json:"participants,omitempty"`
	WaitingOnUsers        []string              `json:"waiting_on_users"`
	CurrentExchangeNumber int                   `json:"current_exchange_number"`
	ExchangeState         *domain.ExchangeState `json:"exchange_state,omitempty"`
	Revision              int64                 `json:"revision"`
	UpdatedAtUnix         int64                 `json:"updated_at_unix"`
}

func sceneView(s *domain.Scene) SceneView {
	waiting := s.WaitingOnUsers
	if waiting == nil {
		waiting = []string{}
	}
	return SceneView{
		ID:                    s.ID,
		CampaignID:            s.CampaignID,
		SceneNumber:           s.SceneNumber,
		Status:                s.Status,
		IntroText:             s.IntroText,
		ResolutionText:        s.ResolutionText,
		Participants:          s.Participants,
		WaitingOnUsers:        waiting,
		CurrentExchangeNumber: s.CurrentExchangeNumber,
		ExchangeState:         s.ExchangeState,
		Revision:              s.Revision,
		UpdatedAtUnix:         s.UpdatedAtUnix,
	}
}

// ActionView is the wire form of a submitted action.
type ActionView struct {
	ID             string                `json:"id"`
	CharacterID    string                `json:"character_id"`
	ExchangeNumber int                   `json:"exchange_number"`
	Priority       domain.ActionPriority `json:"priority"`
	Status         domain.ActionStatus   `json:"status"`
	Scene          SceneView             `json:"scene"`
}

// ReadinessView is the response for GET /api/v1/scenes/{sceneID}/readiness.
type ReadinessView struct {
	Ready   bool     `json:"ready"`
	Missing []string `json:"missing"`
}

// ResolutionView is the response of a successful resolve.
type ResolutionView struct {
	Scene      SceneView              `json:"scene"`
	Exchange   int                    `json:"resolved_exchange"`
	Level      string                 `json:"level"`
	SceneText  string                 `json:"scene_text"`
	CacheHit   bool                   `json:"cache_hit"`
	TurnNumber int                    `json:"turn_number"`
	InGameDate string                 `json:"in_game_date"`
	Changes    any                    `json:"changes"`
	Health     *workflow.HealthReport `json:"health,omitempty"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.DB.PingContext(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status, "version": h.Version})
}

// CreateScene handles POST /api/v1/campaigns/{campaignID}/scenes.
func (h *Handler) CreateScene(w http.ResponseWriter, r *http.Request) {
	var req CreateSceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.Intro == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "intro is required"})
		return
	}
	s, err := h.Engine.CreateScene(r.Context(), chi.URLParam(r, "campaignID"), req.Intro, req.Participants)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sceneView(s))
}

// GetScene handles GET /api/v1/scenes/{sceneID}.
func (h *Handler) GetScene(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.GetScene(r.Context(), chi.URLParam(r, "sceneID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sceneView(s))
}

// EndScene handles POST /api/v1/scenes/{sceneID}/end.
func (h *Handler) EndScene(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.EndScene(r.Context(), chi.URLParam(r, "sceneID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sceneView(s))
}

// SubmitAction handles POST /api/v1/scenes/{sceneID}/actions.
func (h *Handler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var req SubmitActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.CharacterID == "" {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "character_id is required"})
		return
	}
	sceneID := chi.URLParam(r, "sceneID")
	if err := h.Guard.CheckRateLimit(sceneID, guard.OpSubmit); err != nil {
		h.writeError(w, err)
		return
	}
	a, s, err := h.Engine.SubmitAction(r.Context(), sceneID, req.CharacterID, req.UserID, req.Text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ActionView{
		ID:             a.ID,
		CharacterID:    a.CharacterID,
		ExchangeNumber: a.ExchangeNumber,
		Priority:       a.Priority,
		Status:         a.Status,
		Scene:          sceneView(s),
	})
}

// Readiness handles GET /api/v1/scenes/{sceneID}/readiness.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ready, missing, err := h.Engine.Readiness(r.Context(), chi.URLParam(r, "sceneID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if missing == nil {
		missing = []string{}
	}
	writeJSON(w, http.StatusOK, ReadinessView{Ready: ready, Missing: missing})
}

// Resolve handles POST /api/v1/campaigns/{campaignID}/scenes/{sceneID}/resolve.
// An empty body resolves without force.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
			return
		}
	}
	if f := r.URL.Query().Get("force"); f != "" {
		req.Force, _ = strconv.ParseBool(f)
	}

	campaignID := chi.URLParam(r, "campaignID")
	if err := h.Guard.CheckRateLimit(campaignID, guard.OpResolve); err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.Engine.ResolveScene(r.Context(), campaignID, chi.URLParam(r, "sceneID"), req.Force)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResolutionView{
		Scene:      sceneView(res.Scene),
		Exchange:   res.Exchange,
		Level:      string(res.Level),
		SceneText:  res.SceneText,
		CacheHit:   res.CacheHit,
		TurnNumber: res.World.TurnNumber,
		InGameDate: res.World.InGameDate,
		Changes:    res.Report,
		Health:     res.Health,
	})
}

// ListEvents handles GET /api/v1/scenes/{sceneID}/events?since_seq=N.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	sinceSeq := int64(0)
	if s := r.URL.Query().Get("since_seq"); s != "" {
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			sinceSeq = parsed
		}
	}

	events, err := h.EventRepo.ListByScene(r.Context(), h.DB, chi.URLParam(r, "sceneID"), sinceSeq)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.SceneEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// CampaignLog handles GET /api/v1/campaigns/{campaignID}/log?limit=N.
func (h *Handler) CampaignLog(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := h.CampaignLogs.ListByCampaign(r.Context(), h.DB, chi.URLParam(r, "campaignID"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.CampaignLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GatewayStats handles GET /api/v1/campaigns/{campaignID}/gateway.
func (h *Handler) GatewayStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Gateway.Registry.Stats(chi.URLParam(r, "campaignID")))
}

// CampaignHealth handles POST /api/v1/campaigns/{campaignID}/health.
func (h *Handler) CampaignHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.ScoreHealth(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// StreamEvents handles GET /api/v1/campaigns/{campaignID}/stream (SSE).
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: 500, Message: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ch := h.Hub.Subscribe(campaignID)
	defer h.Hub.Unsubscribe(campaignID, ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, flusher, ev)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var engErr *domain.EngineError
	if !errors.As(err, &engErr) {
		h.logger().Error("unhandled request error", "error", err)
		writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
		return
	}
	writeJSON(w, statusFor(engErr), APIError{Code: engErr.Code, Kind: string(engErr.Kind), Message: engErr.Message})
}

func statusFor(e *domain.EngineError) int {
	switch e.Code {
	case domain.ErrEmptyAction.Code:
		return http.StatusBadRequest
	case domain.ErrNotParticipant.Code:
		return http.StatusForbidden
	case domain.ErrBudgetExceeded.Code:
		return http.StatusPaymentRequired
	}
	switch e.Kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindNotReady, domain.KindInvalidState, domain.KindConflict:
		return http.StatusConflict
	case domain.KindGatewayUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindNarrator, domain.KindValidationExhausted:
		return http.StatusBadGateway
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func writeSSEEvent(w http.ResponseWriter, f http.Flusher, ev realtime.Event) {
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Name, data)
	f.Flush()
}
