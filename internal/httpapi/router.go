// Package httpapi exposes the session orchestrator over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(api *API) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Recording session lifecycle
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/start", api.handleStartSession)
		r.Post("/{sessionID}/chunk", api.handleUploadChunk)
		r.Post("/{sessionID}/screenshot", api.handleUploadScreenshot)
		r.Post("/{sessionID}/end", api.handleEndSession)
	})

	// Finished meeting browsing
	r.Route("/api/meetings", func(r chi.Router) {
		r.Get("/", api.handleListMeetings)
		r.Get("/{meetingID}/transcription", api.handleGetTranscription)
		r.Get("/{meetingID}/screenshot", api.handleGetMiddleScreenshot)
		r.Get("/{meetingID}/screenshots", api.handleListScreenshots)
		r.Get("/{meetingID}/screenshots/{filename}", api.handleGetScreenshotFile)
	})

	return r
}

// requestLogger logs one line per completed request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
