// Package finalize implements the end-of-session workflow: await all
// outstanding transcription jobs, merge their results, persist the artifact
// and clean up intermediate state.
package finalize

import (
	"context"
	"time"

	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/dispatch"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/events"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/merge"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/models"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/observability/logging"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/observability/metrics"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/session"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/store"
)

// Finalizer closes sessions. Exactly one finalization runs per session at a
// time; the registry's BeginFinalization guard enforces that.
type Finalizer struct {
	registry  *session.Registry
	chunks    *store.ChunkStore
	artifacts *store.ArtifactStore
	publisher *events.Publisher
	metrics   *metrics.Metrics
}

// New creates a finalizer.
func New(registry *session.Registry, chunks *store.ChunkStore, artifacts *store.ArtifactStore, publisher *events.Publisher) *Finalizer {
	return &Finalizer{
		registry:  registry,
		chunks:    chunks,
		artifacts: artifacts,
		publisher: publisher,
		metrics:   metrics.DefaultMetrics,
	}
}

// Begin starts finalization for a session and returns the eventual artifact
// location (relative to the output root) immediately. The workflow itself
// runs in the background. Fails with session.ErrNotFound or
// session.ErrAlreadyFinalizing.
func (f *Finalizer) Begin(sessionID string) (string, error) {
	snap, err := f.registry.BeginFinalization(sessionID)
	if err != nil {
		return "", err
	}
	go f.run(snap)
	return f.artifacts.RelArtifactPath(snap.NormalizedTitle), nil
}

// Run executes finalization synchronously. Exposed for callers that need to
// observe completion, such as tests.
func (f *Finalizer) Run(snap session.Snapshot) {
	f.run(snap)
}

func (f *Finalizer) run(snap session.Snapshot) {
	start := time.Now()
	log := logging.WithSession(snap.ID)
	log.Info().Int("chunks", len(snap.Chunks)).Msg("Awaiting outstanding transcription jobs")

	// This suspension is scoped to this session's jobs only; unrelated
	// sessions' uploads and finalizations are unaffected.
	results, _ := dispatch.AwaitAll(context.Background(), snap.Jobs)

	merged := merge.Merge(results, len(snap.Chunks))
	if len(merged.Failed) > 0 {
		log.Warn().Ints("failedChunks", merged.Failed).Msg("Finalizing with transcription gaps")
	}

	artifact := models.SessionArtifact{
		Session: models.SessionMeta{
			Title:     snap.Title,
			StartTime: float64(snap.CreatedAt.UnixMilli()) / 1000,
		},
		Segments:     merged.Segments,
		FailedChunks: merged.Failed,
	}

	path, err := f.artifacts.WriteArtifact(snap.NormalizedTitle, artifact)
	if err != nil {
		// Persistence failure is terminal for this attempt. The session and
		// its chunk directory are retained for inspection and retry.
		log.Error().Err(err).Msg("Failed to persist artifact")
		f.registry.MarkFailed(snap.ID)
		f.metrics.RecordFinalization("failed", time.Since(start).Seconds())
		f.publishSessionEvent(snap, models.EventFinalizeFailed, err.Error())
		return
	}

	f.registry.MarkFinalized(snap.ID)
	f.metrics.RecordFinalization("succeeded", time.Since(start).Seconds())

	if err := f.chunks.RemoveSession(snap.ID); err != nil {
		log.Warn().Err(err).Msg("Failed to remove session chunk directory")
	}

	f.publishSessionEvent(snap, models.EventFinalizeSucceeded, "")
	f.publishTranscriptReady(snap, path, merged)

	log.Info().
		Str("artifact", path).
		Int("segments", len(artifact.Segments)).
		Dur("duration", time.Since(start)).
		Msg("Session finalized")
}

func (f *Finalizer) publishSessionEvent(snap session.Snapshot, eventType, detail string) {
	ev := models.SessionEvent{
		EventType: eventType,
		SessionID: snap.ID,
		Title:     snap.Title,
		Timestamp: time.Now().UnixMilli(),
		Detail:    detail,
	}
	if err := f.publisher.PublishSessionEvent(context.Background(), snap.ID, ev); err != nil {
		log := logging.WithSession(snap.ID)
		log.Warn().Err(err).Msg("Failed to publish session event")
	}
}

func (f *Finalizer) publishTranscriptReady(snap session.Snapshot, path string, merged merge.Merged) {
	ev := models.TranscriptReadyEvent{
		EventType:    models.EventTranscriptReady,
		SessionID:    snap.ID,
		Title:        snap.Title,
		ArtifactPath: path,
		SegmentCount: len(merged.Segments),
		FailedChunks: merged.Failed,
		Timestamp:    time.Now().UnixMilli(),
	}
	if err := f.publisher.PublishTranscriptReady(context.Background(), snap.ID, ev); err != nil {
		log := logging.WithSession(snap.ID)
		log.Warn().Err(err).Msg("Failed to publish transcript event")
	}
}
