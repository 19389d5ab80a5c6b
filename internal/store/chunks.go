// Package store provides durable storage for uploaded chunks and finalized
// session artifacts.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/observability/logging"
)

// ErrUnsupportedMedia is returned for MIME types this service does not accept.
var ErrUnsupportedMedia = errors.New("unknown or unsupported MIME type")

var mimeExtensions = map[string]string{
	"audio/webm": "webm",
	"audio/ogg":  "ogg",
	"audio/mp4":  "mp4",
	"image/png":  "png",
	"image/jpeg": "jpg",
}

// ExtensionForMIME maps a MIME type (parameters stripped) to a file
// extension, or ErrUnsupportedMedia.
func ExtensionForMIME(mimeType string) (string, error) {
	simple := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	ext, ok := mimeExtensions[simple]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, mimeType)
	}
	return ext, nil
}

// ChunkStore holds raw uploaded audio chunks under a per-session directory
// until finalization cleans them up.
type ChunkStore struct {
	workingDir string
	log        zerolog.Logger
}

// NewChunkStore creates the working directory if needed.
func NewChunkStore(workingDir string) (*ChunkStore, error) {
	if err := os.MkdirAll(workingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working dir %s: %w", workingDir, err)
	}
	return &ChunkStore{
		workingDir: workingDir,
		log:        logging.WithComponent("chunk-store"),
	}, nil
}

// SaveChunk streams an uploaded chunk to disk under the session's directory
// and returns its path and size. The filename is unique per upload; ordering
// is tracked by the session registry, not the filesystem.
func (cs *ChunkStore) SaveChunk(sessionID, mimeType string, r io.Reader) (string, int64, error) {
	ext, err := ExtensionForMIME(mimeType)
	if err != nil {
		return "", 0, err
	}

	dir := cs.SessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create chunk dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("audio_%s.%s", uuid.NewString(), ext))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create chunk file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write chunk file: %w", err)
	}

	cs.log.Debug().Str("sessionId", sessionID).Str("path", path).Int64("bytes", n).Msg("Chunk stored")
	return path, n, nil
}

// Remove deletes a single stored chunk file. Used when the registry rejects
// a chunk after it was written.
func (cs *ChunkStore) Remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		cs.log.Warn().Err(err).Str("path", path).Msg("Failed to remove chunk file")
	}
}

// RemoveSession deletes a session's entire chunk directory.
func (cs *ChunkStore) RemoveSession(sessionID string) error {
	return os.RemoveAll(cs.SessionDir(sessionID))
}

// RelPath returns a stored chunk's path relative to the working root, as
// reported to API callers.
func (cs *ChunkStore) RelPath(path string) string {
	rel, err := filepath.Rel(cs.workingDir, path)
	if err != nil {
		return path
	}
	return rel
}

// SessionDir returns the directory holding a session's chunks.
func (cs *ChunkStore) SessionDir(sessionID string) string {
	return filepath.Join(cs.workingDir, sessionID)
}
