package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/synthdesk/internal/apperr"
	"github.com/ent0n29/synthdesk/internal/artifact"
	"github.com/ent0n29/synthdesk/internal/audio"
	"github.com/ent0n29/synthdesk/internal/config"
	"github.com/ent0n29/synthdesk/internal/desktop"
	"github.com/ent0n29/synthdesk/internal/generation"
	"github.com/ent0n29/synthdesk/internal/interaction"
	"github.com/ent0n29/synthdesk/internal/journal"
	"github.com/ent0n29/synthdesk/internal/observability"
	"github.com/ent0n29/synthdesk/internal/protocol"
)

const audioStartTimeout = 15 * time.Second

// Desktop is the UI boundary the API drives.
type Desktop interface {
	OnAppOpen(appID string) error
	OnInteraction(rec interaction.Record) error
	OnClose()
	State() desktop.State
	Subscribe() (<-chan desktop.State, func())
}

type AudioSessions interface {
	Start(ctx context.Context) (audio.Status, error)
	Stop() error
	Status() audio.Status
}

type Artifacts interface {
	Generate(ctx context.Context, kind artifact.Kind, req artifact.Request) (artifact.Result, error)
}

type Deps struct {
	Desktop   Desktop
	Audio     AudioSessions
	Bridge    *audio.Bridge
	Artifacts Artifacts
	Journal   journal.Store
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

type Server struct {
	cfg       config.Config
	desktop   Desktop
	audio     AudioSessions
	bridge    *audio.Bridge
	artifacts Artifacts
	journal   journal.Store
	metrics   *observability.Metrics
	logger    *zap.Logger
	upgrader  websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*wsClient]struct{}
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		desktop:   deps.Desktop,
		audio:     deps.Audio,
		bridge:    deps.Bridge,
		artifacts: deps.Artifacts,
		journal:   deps.Journal,
		metrics:   deps.Metrics,
		logger:    logger.Named("httpapi"),
		clients:   make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive the desktop and microphone.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/desktop/apps/{id}/open", s.handleOpenApp)
	r.Post("/v1/desktop/interactions", s.handleInteraction)
	r.Post("/v1/desktop/close", s.handleClose)
	r.Get("/v1/desktop/state", s.handleState)
	r.Get("/v1/desktop/ws", s.handleDesktopWS)

	r.Post("/v1/audio/session/start", s.handleAudioStart)
	r.Post("/v1/audio/session/stop", s.handleAudioStop)
	r.Get("/v1/audio/session", s.handleAudioStatus)

	r.Post("/v1/artifacts/{kind}", s.handleArtifact)
	r.Get("/v1/journal", s.handleJournal)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"generator_mode":  s.cfg.GeneratorMode,
		"audio_transport": s.cfg.AudioTransport,
		"journal_mode":    s.journalMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.desktop == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "desktop not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"generator_mode":  s.cfg.GeneratorMode,
		"audio_transport": s.cfg.AudioTransport,
		"journal_mode":    s.journalMode(),
	})
}

func (s *Server) handleOpenApp(w http.ResponseWriter, r *http.Request) {
	if !s.requireDesktop(w) {
		return
	}
	if err := s.desktop.OnAppOpen(chi.URLParam(r, "id")); err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, s.desktop.State())
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	if !s.requireDesktop(w) {
		return
	}
	var rec interaction.Record
	if err := decodeJSON(r, &rec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	rec = rec.Normalize()
	if rec.ID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "interaction id is required")
		return
	}
	if err := s.desktop.OnInteraction(rec); err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, s.desktop.State())
}

func (s *Server) handleClose(w http.ResponseWriter, _ *http.Request) {
	if !s.requireDesktop(w) {
		return
	}
	s.desktop.OnClose()
	respondJSON(w, http.StatusOK, s.desktop.State())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	if !s.requireDesktop(w) {
		return
	}
	respondJSON(w, http.StatusOK, s.desktop.State())
}

func (s *Server) handleAudioStart(w http.ResponseWriter, r *http.Request) {
	if s.audio == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "audio sessions not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), audioStartTimeout)
	defer cancel()
	status, err := s.audio.Start(ctx)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleAudioStop(w http.ResponseWriter, _ *http.Request) {
	if s.audio == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "audio sessions not configured")
		return
	}
	if err := s.audio.Stop(); err != nil {
		s.logger.Warn("audio stop failed", zap.Error(err))
	}
	respondJSON(w, http.StatusOK, s.audio.Status())
}

func (s *Server) handleAudioStatus(w http.ResponseWriter, _ *http.Request) {
	if s.audio == nil {
		respondJSON(w, http.StatusOK, audio.Status{State: audio.StateIdle})
		return
	}
	respondJSON(w, http.StatusOK, s.audio.Status())
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "artifact generation not configured")
		return
	}
	kind, err := artifact.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unsupported_kind", err.Error())
		return
	}
	var req artifact.Request
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := s.artifacts.Generate(r.Context(), kind, req)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		respondJSON(w, http.StatusOK, map[string]any{"entries": []journal.Entry{}})
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "journal_unavailable", err.Error())
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) requireDesktop(w http.ResponseWriter) bool {
	if s.desktop == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "desktop not configured")
		return false
	}
	return true
}

func (s *Server) journalMode() string {
	switch s.journal.(type) {
	case nil:
		return "disabled"
	case *journal.PostgresStore:
		return "postgres"
	default:
		return "in-memory"
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondAppError(w http.ResponseWriter, err error) {
	code, retryable := errorCode(err)
	respondJSON(w, statusForError(err), errorResponse{Error: err.Error(), Code: code, Retryable: retryable})
}

// errorCode maps the failure taxonomy onto wire codes.
func errorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, audio.ErrSessionBusy):
		return "audio_session_busy", false
	case errors.Is(err, audio.ErrSessionClosed):
		return "audio_session_closed", true
	}
	switch kind := apperr.KindOf(err); kind {
	case apperr.KindDeviceCapability:
		return string(kind), true
	case apperr.KindStreamTransport:
		return string(kind), generation.IsRetryable(err)
	case "":
		return "internal", false
	default:
		return string(kind), false
	}
}

func statusForError(err error) int {
	if errors.Is(err, audio.ErrSessionBusy) {
		return http.StatusConflict
	}
	switch apperr.KindOf(err) {
	case apperr.KindEmptyHistory:
		return http.StatusBadRequest
	case apperr.KindConfiguration:
		return http.StatusServiceUnavailable
	case apperr.KindDeviceCapability:
		return http.StatusConflict
	case apperr.KindStreamTransport, apperr.KindArtifactGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
