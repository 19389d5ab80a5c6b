package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/observability/logging"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/observability/metrics"
)

// SubmitFunc enqueues a transcription job for a stored chunk and returns its
// handle. It must not block; it runs while the registry lock is held so that
// a chunk and its job are registered atomically with respect to finalization.
type SubmitFunc func(Chunk) JobHandle

// Registry is the authoritative in-memory table of session state machines.
// All mutations are atomic with respect to concurrent callers.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		log:      logging.WithComponent("session-registry"),
		metrics:  metrics.DefaultMetrics,
	}
}

// Create registers a new session in ACTIVE state and returns its ID.
// The normalized title is computed once here and never changes.
func (r *Registry) Create(title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", ErrEmptyTitle
	}

	s := &Session{
		ID:              uuid.NewString(),
		Title:           title,
		NormalizedTitle: NormalizeTitle(title),
		State:           StateActive,
		CreatedAt:       time.Now(),
		results:         make(map[int]ChunkResult),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.metrics.RecordSessionStarted()
	r.log.Info().
		Str("sessionId", s.ID).
		Str("title", title).
		Str("normalizedTitle", s.NormalizedTitle).
		Msg("Session started")
	return s.ID, nil
}

// View is a read-only copy of a session's externally visible fields.
type View struct {
	ID              string
	Title           string
	NormalizedTitle string
	State           State
	CreatedAt       time.Time
	ChunkCount      int
}

// Get returns a copy of the session's visible state.
func (r *Registry) Get(sessionID string) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return View{}, ErrNotFound
	}
	return View{
		ID:              s.ID,
		Title:           s.Title,
		NormalizedTitle: s.NormalizedTitle,
		State:           s.State,
		CreatedAt:       s.CreatedAt,
		ChunkCount:      len(s.chunks),
	}, nil
}

// RecordChunk assigns the next sequence index to a stored chunk and submits
// its transcription job, atomically. Concurrent calls for the same session
// receive distinct, gapless indices. Returns ErrSessionClosed once
// finalization has begun: the chunk is either fully registered (and will be
// included in the final artifact) or rejected, never silently dropped.
func (r *Registry) RecordChunk(sessionID, path, mimeType string, submit SubmitFunc) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return 0, ErrNotFound
	}
	if s.State != StateActive {
		return 0, ErrSessionClosed
	}

	chunk := Chunk{
		SessionID: sessionID,
		Seq:       len(s.chunks),
		Path:      path,
		MimeType:  mimeType,
	}
	s.chunks = append(s.chunks, chunk)
	if submit != nil {
		s.jobs = append(s.jobs, submit(chunk))
	}
	return chunk.Seq, nil
}

// RecordJobResult stores a completed job's outcome against its sequence
// index. Safe to call after the session was evicted (the result is dropped).
func (r *Registry) RecordJobResult(sessionID string, seq int, res ChunkResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		r.log.Debug().
			Str("sessionId", sessionID).
			Int("seq", seq).
			Msg("Job result for evicted session dropped")
		return
	}
	s.results[seq] = res
}

// BeginFinalization transitions the session to FINALIZING and returns an
// immutable snapshot for the finalizer. Exactly one caller wins a race: the
// losers receive ErrAlreadyFinalizing. A session whose previous finalization
// failed may be finalized again.
func (r *Registry) BeginFinalization(sessionID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	switch s.State {
	case StateActive, StateFinalizationFailed:
		// proceed
	default:
		return Snapshot{}, ErrAlreadyFinalizing
	}
	s.State = StateFinalizing

	snap := Snapshot{
		ID:              s.ID,
		Title:           s.Title,
		NormalizedTitle: s.NormalizedTitle,
		CreatedAt:       s.CreatedAt,
		Chunks:          append([]Chunk(nil), s.chunks...),
		Jobs:            append([]JobHandle(nil), s.jobs...),
	}
	r.log.Info().
		Str("sessionId", sessionID).
		Int("chunks", len(snap.Chunks)).
		Msg("Finalization started")
	return snap, nil
}

// MarkFinalized records a successful finalization and evicts the session.
func (r *Registry) MarkFinalized(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.State = StateFinalized
	delete(r.sessions, sessionID)
	r.metrics.RecordSessionEvicted()
	r.log.Info().Str("sessionId", sessionID).Msg("Session finalized and evicted")
}

// MarkFailed records a failed finalization. The session is retained so an
// operator can inspect it or retry.
func (r *Registry) MarkFailed(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.State = StateFinalizationFailed
	r.log.Warn().Str("sessionId", sessionID).Msg("Session finalization failed, retained for inspection")
}

// Evict removes a session from the registry regardless of state.
func (r *Registry) Evict(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; ok {
		delete(r.sessions, sessionID)
		r.metrics.RecordSessionEvicted()
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

