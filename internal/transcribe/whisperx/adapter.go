// Package whisperx shells out to the WhisperX CLI for transcription,
// alignment and speaker diarization.
package whisperx

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/models"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/observability/logging"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/transcribe"
)

// whisperx emits fractional-second timestamps; decode them as decimals to
// avoid float parsing surprises, then convert once.
type whisperxOutput struct {
	Segments []whisperxSegment `json:"segments"`
	Language string            `json:"language"`
}

type whisperxSegment struct {
	Start   decimal.Decimal `json:"start"`
	End     decimal.Decimal `json:"end"`
	Speaker *string         `json:"speaker"`
	Text    string          `json:"text"`
}

// Adapter runs the whisperx binary per audio file. Warm-up (binary and
// ffmpeg presence checks) happens lazily on the first call; concurrent first
// callers share one initialization.
type Adapter struct {
	bin      string
	modelDir string
	hfToken  string

	initOnce sync.Once
	initErr  error

	log zerolog.Logger
}

var _ transcribe.Transcriber = (*Adapter)(nil)

// New creates a WhisperX adapter. modelDir may be empty to use the CLI's
// default model cache.
func New(bin, modelDir string) *Adapter {
	return &Adapter{
		bin:      bin,
		modelDir: modelDir,
		hfToken:  os.Getenv("HF_TOKEN"),
		log:      logging.WithComponent("whisperx"),
	}
}

func (a *Adapter) ensureReady() error {
	a.initOnce.Do(func() {
		if _, err := exec.LookPath(a.bin); err != nil {
			a.initErr = fmt.Errorf("whisperx binary %q not found in PATH: %w", a.bin, err)
			return
		}
		if _, err := exec.LookPath("ffmpeg"); err != nil {
			a.initErr = fmt.Errorf("ffmpeg not found in PATH: %w", err)
			return
		}
		a.log.Info().Str("bin", a.bin).Str("modelDir", a.modelDir).Msg("WhisperX adapter ready")
	})
	return a.initErr
}

// Transcribe runs whisperx on the given audio file and parses its JSON
// output. Timestamps in the result are relative to the start of the file.
func (a *Adapter) Transcribe(ctx context.Context, audioPath string) (transcribe.Result, error) {
	if err := a.ensureReady(); err != nil {
		return transcribe.Result{}, err
	}

	outDir, err := os.MkdirTemp("", "whisperx-out-")
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("creating whisperx output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{audioPath, "--diarize", "--output_format", "json", "--output_dir", outDir}
	if a.modelDir != "" {
		args = append(args, "--model_dir", a.modelDir)
	}
	if a.hfToken != "" {
		args = append(args, "--hf_token", a.hfToken)
	}

	cmd := exec.CommandContext(ctx, a.bin, args...)

	stderr, _ := cmd.StderrPipe()
	if err := cmd.Start(); err != nil {
		return transcribe.Result{}, fmt.Errorf("starting whisperx: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			a.log.Debug().Str("audio", audioPath).Msg(scanner.Text())
		}
	}()

	if err := cmd.Wait(); err != nil {
		return transcribe.Result{}, fmt.Errorf("transcribing with whisperx: %w", err)
	}

	base := filepath.Base(audioPath)
	resultPath := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".json")
	f, err := os.Open(resultPath)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("opening whisperx result: %w", err)
	}
	defer f.Close()

	var out whisperxOutput
	if err := json.NewDecoder(f).Decode(&out); err != nil {
		return transcribe.Result{}, fmt.Errorf("decoding whisperx json result: %w", err)
	}

	return convert(out, a.log)
}

// convert validates the CLI output shape at the boundary so malformed
// payloads never reach the merge logic.
func convert(out whisperxOutput, log zerolog.Logger) (transcribe.Result, error) {
	res := transcribe.Result{
		Language: out.Language,
		Segments: make([]models.TranscriptSegment, 0, len(out.Segments)),
	}
	for i, s := range out.Segments {
		start := s.Start.InexactFloat64()
		end := s.End.InexactFloat64()
		if start < 0 || end < start {
			log.Warn().
				Int("index", i).
				Float64("start", start).
				Float64("end", end).
				Msg("Dropping segment with invalid time range")
			continue
		}
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		res.Segments = append(res.Segments, models.TranscriptSegment{
			Start:   start,
			End:     end,
			Speaker: s.Speaker,
			Text:    text,
		})
	}
	return res, nil
}
