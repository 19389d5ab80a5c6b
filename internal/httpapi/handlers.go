package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/dispatch"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/events"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/finalize"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/merge"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/models"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/observability/logging"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/observability/metrics"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/session"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/store"
)

// API holds the handler dependencies.
type API struct {
	registry       *session.Registry
	dispatcher     *dispatch.Dispatcher
	finalizer      *finalize.Finalizer
	chunks         *store.ChunkStore
	artifacts      *store.ArtifactStore
	publisher      *events.Publisher
	maxUploadBytes int64

	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewAPI wires the HTTP handlers to the orchestrator components.
func NewAPI(
	registry *session.Registry,
	dispatcher *dispatch.Dispatcher,
	finalizer *finalize.Finalizer,
	chunks *store.ChunkStore,
	artifacts *store.ArtifactStore,
	publisher *events.Publisher,
	maxUploadBytes int64,
) *API {
	return &API{
		registry:       registry,
		dispatcher:     dispatcher,
		finalizer:      finalizer,
		chunks:         chunks,
		artifacts:      artifacts,
		publisher:      publisher,
		maxUploadBytes: maxUploadBytes,
		metrics:        metrics.DefaultMetrics,
		log:            logging.WithComponent("httpapi"),
	}
}

func (a *API) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID, err := a.registry.Create(payload.Title)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev := models.SessionEvent{
		EventType: models.EventSessionStarted,
		SessionID: sessionID,
		Title:     payload.Title,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := a.publisher.PublishSessionEvent(context.Background(), sessionID, ev); err != nil {
		a.log.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to publish session started event")
	}

	respondJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

func (a *API) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// Reject uploads for unknown sessions before touching the disk.
	if _, err := a.registry.Get(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	file, header, ok := a.openUploadedFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	path, size, err := a.chunks.SaveChunk(sessionID, mimeType, file)
	if errors.Is(err, store.ErrUnsupportedMedia) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.log.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to store chunk")
		respondError(w, http.StatusInternalServerError, "failed to store chunk")
		return
	}

	seq, err := a.registry.RecordChunk(sessionID, path, mimeType, func(c session.Chunk) session.JobHandle {
		return a.dispatcher.Submit(c)
	})
	if err != nil {
		// The chunk was rejected; remove the orphaned file.
		a.chunks.Remove(path)
		switch {
		case errors.Is(err, session.ErrNotFound):
			respondError(w, http.StatusNotFound, "Session not found")
		case errors.Is(err, session.ErrSessionClosed):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	a.metrics.RecordChunkReceived(size)
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"seq":    seq,
		"path":   a.chunks.RelPath(path),
	})
}

func (a *API) handleUploadScreenshot(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	view, err := a.registry.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	file, header, ok := a.openUploadedFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	relPath, err := a.artifacts.SaveScreenshot(view.NormalizedTitle, header.Header.Get("Content-Type"), data)
	if errors.Is(err, store.ErrUnsupportedMedia) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.log.Error().Err(err).Str("sessionId", sessionID).Msg("Failed to store screenshot")
		respondError(w, http.StatusInternalServerError, "failed to store screenshot")
		return
	}

	a.metrics.RecordScreenshot()
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "path": relPath})
}

func (a *API) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	output, err := a.finalizer.Begin(sessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "Session not found")
		return
	case errors.Is(err, session.ErrAlreadyFinalizing):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "output": output})
}

func (a *API) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	meetings, err := a.artifacts.ListMeetings()
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to list meetings")
		respondError(w, http.StatusInternalServerError, "failed to list meetings")
		return
	}
	if meetings == nil {
		meetings = []store.MeetingSummary{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"meetings": meetings})
}

func (a *API) handleGetTranscription(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")

	artifact, err := a.artifacts.ReadArtifact(meetingID)
	if errors.Is(err, store.ErrArtifactNotFound) {
		respondError(w, http.StatusNotFound, "Transcription not found")
		return
	}
	if err != nil {
		a.log.Error().Err(err).Str("meeting", meetingID).Msg("Failed to read transcription")
		respondError(w, http.StatusInternalServerError, "error reading transcription")
		return
	}

	// Presentation transform only: the stored artifact keeps the original
	// segment granularity.
	artifact.Segments = merge.CoalesceBySpeaker(artifact.Segments)
	respondJSON(w, http.StatusOK, artifact)
}

func (a *API) handleGetMiddleScreenshot(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")

	infos, err := a.artifacts.ListScreenshots(meetingID)
	if errors.Is(err, store.ErrArtifactNotFound) {
		respondError(w, http.StatusNotFound, "Meeting not found")
		return
	}
	if err != nil || len(infos) == 0 {
		respondError(w, http.StatusNotFound, "No screenshots found")
		return
	}

	path, err := a.artifacts.ScreenshotPath(meetingID, infos[len(infos)/2].Filename)
	if err != nil {
		respondError(w, http.StatusNotFound, "Screenshot not found")
		return
	}
	http.ServeFile(w, r, path)
}

func (a *API) handleListScreenshots(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")

	infos, err := a.artifacts.ListScreenshots(meetingID)
	if errors.Is(err, store.ErrArtifactNotFound) {
		respondError(w, http.StatusNotFound, "Meeting not found")
		return
	}
	if err != nil {
		a.log.Error().Err(err).Str("meeting", meetingID).Msg("Failed to list screenshots")
		respondError(w, http.StatusInternalServerError, "error reading screenshots")
		return
	}
	if infos == nil {
		infos = []store.ScreenshotInfo{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"screenshots": infos})
}

func (a *API) handleGetScreenshotFile(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")
	filename := chi.URLParam(r, "filename")

	path, err := a.artifacts.ScreenshotPath(meetingID, filename)
	if err != nil {
		respondError(w, http.StatusNotFound, "Screenshot not found")
		return
	}
	http.ServeFile(w, r, path)
}

// openUploadedFile extracts the multipart "file" field, enforcing the upload
// size limit. Writes the error response itself when it returns ok=false.
func (a *API) openUploadedFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	if a.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing multipart file field")
		return nil, nil, false
	}
	if header.Header.Get("Content-Type") == "" {
		file.Close()
		respondError(w, http.StatusBadRequest, "content_type missing from uploaded file")
		return nil, nil, false
	}
	return file, header, true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}
