package session

import (
	"time"

	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/models"
)

// Chunk references one uploaded audio chunk, stored on disk.
type Chunk struct {
	SessionID string
	// Seq is the chunk's position in upload arrival order. Strictly
	// increasing per session, never reused.
	Seq      int
	Path     string
	MimeType string
}

// ChunkResult is the outcome of one chunk's transcription job: either a
// sequence of segments plus detected language, or an error.
type ChunkResult struct {
	Segments []models.TranscriptSegment
	Language string
	Err      error
}

// JobHandle is a handle to an in-flight transcription job. It resolves
// exactly once; after Done is closed, Result returns the final outcome.
type JobHandle interface {
	Seq() int
	Done() <-chan struct{}
	Result() ChunkResult
}

// Session is the registry-owned record for one recording session. All access
// goes through Registry methods; no other component holds a long-lived
// reference to it.
type Session struct {
	ID              string
	Title           string
	NormalizedTitle string
	State           State
	CreatedAt       time.Time

	chunks  []Chunk
	jobs    []JobHandle
	results map[int]ChunkResult
}

// Snapshot is an immutable copy of a session's state handed to the finalizer
// when finalization begins.
type Snapshot struct {
	ID              string
	Title           string
	NormalizedTitle string
	CreatedAt       time.Time
	Chunks          []Chunk
	Jobs            []JobHandle
}
