// Package merge combines per-chunk transcription results into one ordered
// session transcript.
package merge

import (
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/models"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/session"
)

// Merged is the outcome of merging all chunk results for one session.
type Merged struct {
	Segments []models.TranscriptSegment
	Language string
	// Failed lists sequence indices whose transcription failed. Their
	// segments are absent from the transcript; the gap is explicit, never
	// silently treated as empty.
	Failed []int
}

// Merge reads chunk results out in sequence-index order and concatenates
// their segments. Chunk order is authoritative: segments are never re-sorted
// by timestamp. Per-chunk timestamps are chunk-relative, so each chunk's
// segments are rebased by the running end of the preceding chunks to give
// the merged transcript a single monotone time axis.
func Merge(results map[int]session.ChunkResult, chunkCount int) Merged {
	var m Merged
	offset := 0.0
	for seq := 0; seq < chunkCount; seq++ {
		res, ok := results[seq]
		if !ok || res.Err != nil {
			m.Failed = append(m.Failed, seq)
			continue
		}
		if m.Language == "" {
			m.Language = res.Language
		}
		chunkEnd := 0.0
		for _, seg := range res.Segments {
			if seg.End > chunkEnd {
				chunkEnd = seg.End
			}
			seg.Start += offset
			seg.End += offset
			m.Segments = append(m.Segments, seg)
		}
		offset += chunkEnd
	}
	return m
}

// CoalesceBySpeaker merges every run of consecutive segments sharing the
// same speaker label into one segment: start from the first, end from the
// last, text newline-joined in order. A nil speaker is its own distinct
// value. Pure and idempotent; the input is never mutated, so applying it to
// a stored artifact never changes what is on disk.
func CoalesceBySpeaker(segments []models.TranscriptSegment) []models.TranscriptSegment {
	if len(segments) == 0 {
		return nil
	}
	out := make([]models.TranscriptSegment, 0, len(segments))
	current := segments[0]
	for _, seg := range segments[1:] {
		if sameSpeaker(current.Speaker, seg.Speaker) {
			current.End = seg.End
			current.Text += "\n" + seg.Text
			continue
		}
		out = append(out, current)
		current = seg
	}
	return append(out, current)
}

func sameSpeaker(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
