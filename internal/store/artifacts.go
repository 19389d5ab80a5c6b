package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/models"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/observability/logging"
)

const (
	artifactFilename   = "transcription.json"
	screenshotPrefix   = "screenshot_"
	screenshotTimeFmt  = "2006.01.02.15.04"
	artifactPermission = 0o644
)

// ErrArtifactNotFound is returned when a meeting has no finalized transcript.
var ErrArtifactNotFound = errors.New("transcription not found")

// ArtifactStore persists finalized transcripts and screenshots under one
// directory per session, keyed by normalized title.
type ArtifactStore struct {
	outputDir string
	log       zerolog.Logger
}

// NewArtifactStore creates the output directory if needed.
func NewArtifactStore(outputDir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", outputDir, err)
	}
	return &ArtifactStore{
		outputDir: outputDir,
		log:       logging.WithComponent("artifact-store"),
	}, nil
}

// ArtifactPath returns the absolute path of a session's transcript document.
func (as *ArtifactStore) ArtifactPath(normTitle string) string {
	return filepath.Join(as.outputDir, normTitle, artifactFilename)
}

// RelArtifactPath returns the transcript path relative to the output root,
// as reported to API callers.
func (as *ArtifactStore) RelArtifactPath(normTitle string) string {
	return filepath.Join(normTitle, artifactFilename)
}

// WriteArtifact persists the final transcript document. Written exactly once
// per successful finalization; the stored form always retains the original
// segment granularity.
func (as *ArtifactStore) WriteArtifact(normTitle string, artifact models.SessionArtifact) (string, error) {
	dir := filepath.Join(as.outputDir, normTitle)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session output dir: %w", err)
	}

	payload, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}

	path := as.ArtifactPath(normTitle)
	if err := os.WriteFile(path, payload, artifactPermission); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	as.log.Info().Str("path", path).Int("segments", len(artifact.Segments)).Msg("Artifact written")
	return path, nil
}

// ReadArtifact loads a finalized transcript by meeting ID (the normalized
// title directory name).
func (as *ArtifactStore) ReadArtifact(meetingID string) (models.SessionArtifact, error) {
	data, err := os.ReadFile(as.ArtifactPath(meetingID))
	if errors.Is(err, os.ErrNotExist) {
		return models.SessionArtifact{}, ErrArtifactNotFound
	}
	if err != nil {
		return models.SessionArtifact{}, fmt.Errorf("read artifact: %w", err)
	}
	var artifact models.SessionArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return models.SessionArtifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	return artifact, nil
}

// SaveScreenshot stores a screenshot under the session's output directory
// with a timestamped filename, and returns the path relative to the output
// root. Screenshots are a side channel: they never enter the transcript
// merge path.
func (as *ArtifactStore) SaveScreenshot(normTitle, mimeType string, data []byte) (string, error) {
	ext, err := ExtensionForMIME(mimeType)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(as.outputDir, normTitle)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session output dir: %w", err)
	}

	name := fmt.Sprintf("%s%s.%s", screenshotPrefix, time.Now().Format(screenshotTimeFmt), ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, artifactPermission); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return filepath.Join(normTitle, name), nil
}

// MeetingSummary describes one finalized meeting for listings.
type MeetingSummary struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Date       float64 `json:"date"`
	Screenshot string  `json:"screenshot,omitempty"`
}

// ListMeetings scans the output directory for finalized transcripts, newest
// first. The representative screenshot is the middle one, where the meeting
// content usually is.
func (as *ArtifactStore) ListMeetings() ([]MeetingSummary, error) {
	entries, err := os.ReadDir(as.outputDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	meetings := make([]MeetingSummary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		artifact, err := as.ReadArtifact(entry.Name())
		if err != nil {
			if !errors.Is(err, ErrArtifactNotFound) {
				as.log.Error().Err(err).Str("meeting", entry.Name()).Msg("Skipping unreadable meeting")
			}
			continue
		}

		summary := MeetingSummary{
			ID:    entry.Name(),
			Title: artifact.Session.Title,
			Date:  artifact.Session.StartTime,
		}
		if names := as.screenshotNames(entry.Name()); len(names) > 0 {
			summary.Screenshot = names[len(names)/2]
		}
		meetings = append(meetings, summary)
	}

	sort.Slice(meetings, func(i, j int) bool { return meetings[i].Date > meetings[j].Date })
	return meetings, nil
}

// ScreenshotInfo describes one stored screenshot.
type ScreenshotInfo struct {
	Filename     string  `json:"filename"`
	Timestamp    float64 `json:"timestamp"`
	RelativeTime float64 `json:"relative_time"`
}

// ListScreenshots returns a meeting's screenshots ordered by capture time.
// The timestamp is parsed from the filename; file modification time is the
// fallback for names that do not parse.
func (as *ArtifactStore) ListScreenshots(meetingID string) ([]ScreenshotInfo, error) {
	artifact, err := as.ReadArtifact(meetingID)
	if err != nil {
		return nil, err
	}
	start := artifact.Session.StartTime

	infos := make([]ScreenshotInfo, 0)
	for _, name := range as.screenshotNames(meetingID) {
		ts, ok := parseScreenshotTime(name)
		if !ok {
			fi, err := os.Stat(filepath.Join(as.outputDir, meetingID, name))
			if err != nil {
				continue
			}
			ts = float64(fi.ModTime().Unix())
		}
		infos = append(infos, ScreenshotInfo{
			Filename:     name,
			Timestamp:    ts,
			RelativeTime: ts - start,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Timestamp < infos[j].Timestamp })
	return infos, nil
}

// ScreenshotPath resolves a screenshot file inside a meeting directory,
// rejecting names outside the screenshot namespace.
func (as *ArtifactStore) ScreenshotPath(meetingID, filename string) (string, error) {
	if !strings.HasPrefix(filename, screenshotPrefix) || filepath.Base(filename) != filename {
		return "", ErrArtifactNotFound
	}
	path := filepath.Join(as.outputDir, meetingID, filename)
	if _, err := os.Stat(path); err != nil {
		return "", ErrArtifactNotFound
	}
	return path, nil
}

func (as *ArtifactStore) screenshotNames(meetingID string) []string {
	entries, err := os.ReadDir(filepath.Join(as.outputDir, meetingID))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), screenshotPrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func parseScreenshotTime(name string) (float64, bool) {
	trimmed := strings.TrimPrefix(name, screenshotPrefix)
	if i := strings.LastIndex(trimmed, "."); i > 0 {
		trimmed = trimmed[:i]
	}
	t, err := time.ParseInLocation(screenshotTimeFmt, trimmed, time.Local)
	if err != nil {
		return 0, false
	}
	return float64(t.Unix()), true
}
