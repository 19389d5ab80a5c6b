package models

// Session lifecycle event types.
const (
	EventSessionStarted    = "recording.session.started"
	EventFinalizeSucceeded = "recording.session.finalize.succeeded"
	EventFinalizeFailed    = "recording.session.finalize.failed"
	EventTranscriptReady   = "recording.transcript.final"
)

// SessionEvent is published on session lifecycle transitions.
type SessionEvent struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
	Timestamp int64  `json:"timestamp"`
	Detail    string `json:"detail,omitempty"`
}

// TranscriptReadyEvent is published once per successful finalization.
type TranscriptReadyEvent struct {
	EventType    string `json:"eventType"`
	SessionID    string `json:"sessionId"`
	Title        string `json:"title"`
	ArtifactPath string `json:"artifactPath"`
	SegmentCount int    `json:"segmentCount"`
	FailedChunks []int  `json:"failedChunks,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}
