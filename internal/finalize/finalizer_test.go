package finalize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/dispatch"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/events"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/models"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/session"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/store"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/transcribe"
)

// scriptedTranscriber returns a canned result per audio path.
type scriptedTranscriber struct {
	mu      sync.Mutex
	results map[string]transcribe.Result
	errs    map[string]error
	block   map[string]chan struct{}
}

func newScriptedTranscriber() *scriptedTranscriber {
	return &scriptedTranscriber{
		results: make(map[string]transcribe.Result),
		errs:    make(map[string]error),
		block:   make(map[string]chan struct{}),
	}
}

func (s *scriptedTranscriber) script(path string, res transcribe.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[path] = res
}

func (s *scriptedTranscriber) fail(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[path] = err
}

func (s *scriptedTranscriber) gate(path string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.block[path] = ch
	return ch
}

func (s *scriptedTranscriber) Transcribe(ctx context.Context, audioPath string) (transcribe.Result, error) {
	s.mu.Lock()
	gate := s.block[audioPath]
	res, err := s.results[audioPath], s.errs[audioPath]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return res, err
}

// env wires a complete finalization stack over temp directories.
type env struct {
	registry    *session.Registry
	dispatcher  *dispatch.Dispatcher
	finalizer   *Finalizer
	chunks      *store.ChunkStore
	artifacts   *store.ArtifactStore
	transcriber *scriptedTranscriber
	outputDir   string
}

func newEnv(t *testing.T, workers int) *env {
	t.Helper()
	chunks, err := store.NewChunkStore(t.TempDir())
	if err != nil {
		t.Fatalf("chunk store: %v", err)
	}
	outputDir := t.TempDir()
	artifacts, err := store.NewArtifactStore(outputDir)
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	registry := session.NewRegistry()
	transcriber := newScriptedTranscriber()
	dispatcher := dispatch.New(transcriber, registry, workers)
	return &env{
		registry:    registry,
		dispatcher:  dispatcher,
		finalizer:   New(registry, chunks, artifacts, events.New(nil)),
		chunks:      chunks,
		artifacts:   artifacts,
		transcriber: transcriber,
		outputDir:   outputDir,
	}
}

// addChunkScripted saves a chunk, scripts its transcription result and
// registers it with the session, returning the stored path.
func (e *env) addChunkScripted(t *testing.T, sessionID string, res transcribe.Result) string {
	t.Helper()
	path, _, err := e.chunks.SaveChunk(sessionID, "audio/webm", strings.NewReader("audio"))
	if err != nil {
		t.Fatalf("save chunk: %v", err)
	}
	e.transcriber.script(path, res)
	if _, err := e.registry.RecordChunk(sessionID, path, "audio/webm", func(c session.Chunk) session.JobHandle {
		return e.dispatcher.Submit(c)
	}); err != nil {
		t.Fatalf("record chunk: %v", err)
	}
	return path
}

func speakerResult(speaker, text string, end float64) transcribe.Result {
	return transcribe.Result{
		Segments: []models.TranscriptSegment{{Start: 0, End: end, Speaker: &speaker, Text: text}},
		Language: "en",
	}
}

func TestFinalizer_HappyPath(t *testing.T) {
	e := newEnv(t, 2)
	id, _ := e.registry.Create("Weekly Sync")

	for i := 0; i < 3; i++ {
		path, _, err := e.chunks.SaveChunk(id, "audio/webm", strings.NewReader("audio"))
		if err != nil {
			t.Fatalf("save chunk: %v", err)
		}
		e.transcriber.script(path, speakerResult("SPEAKER_00", fmt.Sprintf("part %d", i), 2))
		if _, err := e.registry.RecordChunk(id, path, "audio/webm", func(c session.Chunk) session.JobHandle {
			return e.dispatcher.Submit(c)
		}); err != nil {
			t.Fatalf("record chunk: %v", err)
		}
	}

	snap, err := e.registry.BeginFinalization(id)
	if err != nil {
		t.Fatalf("begin finalization: %v", err)
	}
	e.finalizer.Run(snap)

	artifact, err := e.artifacts.ReadArtifact("Weekly_Sync")
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if artifact.Session.Title != "Weekly Sync" {
		t.Errorf("unexpected title %q", artifact.Session.Title)
	}
	if len(artifact.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(artifact.Segments))
	}
	for i, seg := range artifact.Segments {
		if seg.Text != fmt.Sprintf("part %d", i) {
			t.Errorf("segment %d out of order: %q", i, seg.Text)
		}
		if seg.Start != float64(2*i) || seg.End != float64(2*i+2) {
			t.Errorf("segment %d not rebased: [%v,%v]", i, seg.Start, seg.End)
		}
	}
	if len(artifact.FailedChunks) != 0 {
		t.Errorf("unexpected failed chunks: %v", artifact.FailedChunks)
	}

	if _, err := e.registry.Get(id); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected session evicted, got %v", err)
	}
	if _, err := os.Stat(e.chunks.SessionDir(id)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected chunk directory removed, got %v", err)
	}
}

func TestFinalizer_OutOfOrderCompletionKeepsChunkOrder(t *testing.T) {
	e := newEnv(t, 2)
	id, _ := e.registry.Create("ordering")

	first, _, err := e.chunks.SaveChunk(id, "audio/webm", strings.NewReader("audio"))
	if err != nil {
		t.Fatalf("save chunk: %v", err)
	}
	gate := e.transcriber.gate(first)
	e.transcriber.script(first, speakerResult("SPEAKER_00", "first", 2))
	if _, err := e.registry.RecordChunk(id, first, "audio/webm", func(c session.Chunk) session.JobHandle {
		return e.dispatcher.Submit(c)
	}); err != nil {
		t.Fatalf("record chunk: %v", err)
	}

	e.addChunkScripted(t, id, speakerResult("SPEAKER_01", "second", 3))

	// Chunk 0 resolves last.
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()

	snap, err := e.registry.BeginFinalization(id)
	if err != nil {
		t.Fatalf("begin finalization: %v", err)
	}
	e.finalizer.Run(snap)

	artifact, err := e.artifacts.ReadArtifact("ordering")
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(artifact.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(artifact.Segments))
	}
	if artifact.Segments[0].Text != "first" || artifact.Segments[1].Text != "second" {
		t.Errorf("chunk order not preserved: %q then %q", artifact.Segments[0].Text, artifact.Segments[1].Text)
	}
	if artifact.Segments[1].Start != 2 || artifact.Segments[1].End != 5 {
		t.Errorf("second chunk not rebased: [%v,%v]", artifact.Segments[1].Start, artifact.Segments[1].End)
	}
}

func TestFinalizer_FailedChunkProducesPartialArtifact(t *testing.T) {
	e := newEnv(t, 2)
	id, _ := e.registry.Create("partial")

	e.addChunkScripted(t, id, speakerResult("SPEAKER_00", "kept", 2))

	broken, _, err := e.chunks.SaveChunk(id, "audio/webm", strings.NewReader("audio"))
	if err != nil {
		t.Fatalf("save chunk: %v", err)
	}
	e.transcriber.fail(broken, errors.New("decode error"))
	if _, err := e.registry.RecordChunk(id, broken, "audio/webm", func(c session.Chunk) session.JobHandle {
		return e.dispatcher.Submit(c)
	}); err != nil {
		t.Fatalf("record chunk: %v", err)
	}

	e.addChunkScripted(t, id, speakerResult("SPEAKER_01", "also kept", 2))

	snap, err := e.registry.BeginFinalization(id)
	if err != nil {
		t.Fatalf("begin finalization: %v", err)
	}
	e.finalizer.Run(snap)

	artifact, err := e.artifacts.ReadArtifact("partial")
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(artifact.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(artifact.Segments))
	}
	if artifact.Segments[0].Text != "kept" || artifact.Segments[1].Text != "also kept" {
		t.Errorf("unexpected segments: %+v", artifact.Segments)
	}
	if len(artifact.FailedChunks) != 1 || artifact.FailedChunks[0] != 1 {
		t.Errorf("expected failed_chunks [1], got %v", artifact.FailedChunks)
	}

	// A partial transcript is still a successful finalization.
	if _, err := e.registry.Get(id); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected session evicted, got %v", err)
	}
}

func TestFinalizer_PersistenceFailureRetainsSession(t *testing.T) {
	e := newEnv(t, 1)
	id, _ := e.registry.Create("stuck")
	e.addChunkScripted(t, id, speakerResult("SPEAKER_00", "hello", 2))

	// Occupy the artifact path with a directory so the write fails.
	blocker := e.artifacts.ArtifactPath("stuck")
	if err := os.MkdirAll(blocker, 0o755); err != nil {
		t.Fatalf("block artifact path: %v", err)
	}

	snap, err := e.registry.BeginFinalization(id)
	if err != nil {
		t.Fatalf("begin finalization: %v", err)
	}
	e.finalizer.Run(snap)

	view, err := e.registry.Get(id)
	if err != nil {
		t.Fatalf("expected session retained, got %v", err)
	}
	if view.State != session.StateFinalizationFailed {
		t.Errorf("expected StateFinalizationFailed, got %v", view.State)
	}
	if _, err := os.Stat(e.chunks.SessionDir(id)); err != nil {
		t.Errorf("expected chunk directory retained, got %v", err)
	}

	// Retry succeeds once the path is writable again.
	if err := os.Remove(blocker); err != nil {
		t.Fatalf("unblock artifact path: %v", err)
	}
	snap, err = e.registry.BeginFinalization(id)
	if err != nil {
		t.Fatalf("retry finalization: %v", err)
	}
	e.finalizer.Run(snap)

	if _, err := e.artifacts.ReadArtifact("stuck"); err != nil {
		t.Errorf("expected artifact after retry, got %v", err)
	}
	if _, err := e.registry.Get(id); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected session evicted after retry, got %v", err)
	}
}

func TestFinalizer_Begin_SecondCallConflicts(t *testing.T) {
	e := newEnv(t, 1)
	id, _ := e.registry.Create("double end")

	path, _, err := e.chunks.SaveChunk(id, "audio/webm", strings.NewReader("audio"))
	if err != nil {
		t.Fatalf("save chunk: %v", err)
	}
	gate := e.transcriber.gate(path)
	e.transcriber.script(path, speakerResult("SPEAKER_00", "hi", 1))
	if _, err := e.registry.RecordChunk(id, path, "audio/webm", func(c session.Chunk) session.JobHandle {
		return e.dispatcher.Submit(c)
	}); err != nil {
		t.Fatalf("record chunk: %v", err)
	}

	rel, err := e.finalizer.Begin(id)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if rel != filepath.Join("double_end", "transcription.json") {
		t.Errorf("unexpected artifact location %q", rel)
	}

	if _, err := e.finalizer.Begin(id); !errors.Is(err, session.ErrAlreadyFinalizing) {
		t.Errorf("expected ErrAlreadyFinalizing, got %v", err)
	}

	close(gate)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := e.registry.Get(id); errors.Is(err, session.ErrNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session was not finalized in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := e.artifacts.ReadArtifact("double_end"); err != nil {
		t.Errorf("expected artifact written, got %v", err)
	}
}
