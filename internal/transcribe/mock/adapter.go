// Package mock provides a mock transcriber for local runs and tests without
// a GPU or the whisperx toolchain installed. Each call returns the next
// scripted utterance set, cycling through the defaults.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/models"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/transcribe"
)

func speaker(label string) *string { return &label }

// DefaultScripts provides sample per-chunk transcripts for simulation.
var DefaultScripts = [][]models.TranscriptSegment{
	{
		{Start: 0, End: 2.4, Speaker: speaker("SPEAKER_00"), Text: "Good morning everyone"},
		{Start: 2.4, End: 5.1, Speaker: speaker("SPEAKER_00"), Text: "let's get started"},
		{Start: 5.1, End: 8.0, Speaker: speaker("SPEAKER_01"), Text: "Sounds good to me"},
	},
	{
		{Start: 0, End: 3.2, Speaker: speaker("SPEAKER_01"), Text: "I looked at the numbers yesterday"},
		{Start: 3.2, End: 6.5, Speaker: speaker("SPEAKER_00"), Text: "Anything surprising?"},
	},
	{
		{Start: 0, End: 1.9, Speaker: nil, Text: "Not really"},
		{Start: 1.9, End: 4.4, Speaker: speaker("SPEAKER_01"), Text: "Mostly flat week over week"},
	},
}

// Adapter implements transcribe.Transcriber with scripted responses.
type Adapter struct {
	// Delay simulates transcription latency per call.
	Delay time.Duration

	mu    sync.Mutex
	calls int
}

var _ transcribe.Transcriber = (*Adapter)(nil)

// New creates a mock transcriber with a small simulated delay.
func New() *Adapter {
	return &Adapter{Delay: 50 * time.Millisecond}
}

// Transcribe returns the next scripted utterance set.
func (a *Adapter) Transcribe(ctx context.Context, audioPath string) (transcribe.Result, error) {
	a.mu.Lock()
	script := DefaultScripts[a.calls%len(DefaultScripts)]
	a.calls++
	a.mu.Unlock()

	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return transcribe.Result{}, ctx.Err()
		}
	}

	segments := make([]models.TranscriptSegment, len(script))
	copy(segments, script)
	return transcribe.Result{Segments: segments, Language: "en"}, nil
}

// Calls returns how many transcriptions have been requested.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
