// Package transcribe defines the interface for transcription providers.
package transcribe

import (
	"context"

	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/models"
)

// Result is the output of transcribing one audio file.
type Result struct {
	Segments []models.TranscriptSegment
	Language string
}

// Transcriber turns a stored audio file into an ordered sequence of timed,
// speaker-labeled segments. Implementations must handle their own model
// warm-up: the first call may take much longer, and concurrent first calls
// must share a single initialization.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}
