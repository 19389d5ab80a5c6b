// Package models defines the data structures for transcripts and session artifacts.
package models

// TranscriptSegment is one attributed utterance produced by the transcriber.
// Speaker is nil when diarization could not attribute the segment.
type TranscriptSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker *string `json:"speaker"`
	Text    string  `json:"text"`
}

// SessionMeta carries the session metadata persisted alongside the transcript.
type SessionMeta struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
}

// SessionArtifact is the final persisted transcript for one session.
// Segments retain the transcriber's original granularity; speaker coalescing
// is a read-side transform and is never written back to disk.
type SessionArtifact struct {
	Session      SessionMeta         `json:"session"`
	Segments     []TranscriptSegment `json:"segments"`
	FailedChunks []int               `json:"failed_chunks,omitempty"`
}
