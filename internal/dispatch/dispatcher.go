// Package dispatch runs transcription jobs in the background, bounded by a
// worker pool sized to the transcriber's real parallel capacity.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/observability/logging"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/observability/metrics"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/session"
	"github.com/ReallyLiri/meeting-attendee-chrome-extension/internal/transcribe"
)

// ResultRecorder receives each job's outcome as it completes. The session
// registry implements this.
type ResultRecorder interface {
	RecordJobResult(sessionID string, seq int, res session.ChunkResult)
}

// Job is a handle to one in-flight transcription job. It resolves exactly
// once: the result is written before the done channel is closed.
type Job struct {
	seq    int
	done   chan struct{}
	result session.ChunkResult
}

var _ session.JobHandle = (*Job)(nil)

// Seq returns the chunk sequence index this job transcribes.
func (j *Job) Seq() int { return j.seq }

// Done is closed once the job has resolved.
func (j *Job) Done() <-chan struct{} { return j.done }

// Result returns the job outcome. Only valid after Done is closed.
func (j *Job) Result() session.ChunkResult { return j.result }

// Dispatcher submits per-chunk transcription jobs. Jobs from any session
// share one bounded pool; a job failure or panic never affects siblings.
type Dispatcher struct {
	transcriber transcribe.Transcriber
	recorder    ResultRecorder
	sem         chan struct{}
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// New creates a dispatcher running at most workers transcriptions at once.
func New(t transcribe.Transcriber, recorder ResultRecorder, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		transcriber: t,
		recorder:    recorder,
		sem:         make(chan struct{}, workers),
		metrics:     metrics.DefaultMetrics,
		log:         logging.WithComponent("dispatcher"),
	}
}

// Submit enqueues a transcription job for a stored chunk and returns its
// handle immediately. The caller is never blocked on transcriber latency.
func (d *Dispatcher) Submit(chunk session.Chunk) *Job {
	job := &Job{seq: chunk.Seq, done: make(chan struct{})}
	d.metrics.RecordJobSubmitted()
	go d.run(chunk, job)
	return job
}

func (d *Dispatcher) run(chunk session.Chunk, job *Job) {
	defer close(job.done)
	defer func() {
		if r := recover(); r != nil {
			res := session.ChunkResult{Err: fmt.Errorf("transcription panicked: %v", r)}
			job.result = res
			d.record(chunk, res)
			d.log.Error().
				Str("sessionId", chunk.SessionID).
				Int("seq", chunk.Seq).
				Interface("panic", r).
				Msg("Transcription job panicked")
		}
	}()

	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	start := time.Now()
	// Jobs are never cancelled mid-flight: once submitted they run to
	// completion or failure.
	out, err := d.transcriber.Transcribe(context.Background(), chunk.Path)
	res := session.ChunkResult{Segments: out.Segments, Language: out.Language, Err: err}
	job.result = res

	d.metrics.RecordJobDone(err, time.Since(start).Seconds())
	d.record(chunk, res)

	evt := d.log.Info()
	if err != nil {
		evt = d.log.Warn().Err(err)
	}
	evt.Str("sessionId", chunk.SessionID).
		Int("seq", chunk.Seq).
		Int("segments", len(out.Segments)).
		Dur("duration", time.Since(start)).
		Msg("Transcription job resolved")
}

func (d *Dispatcher) record(chunk session.Chunk, res session.ChunkResult) {
	if d.recorder != nil {
		d.recorder.RecordJobResult(chunk.SessionID, chunk.Seq, res)
	}
}

// AwaitAll suspends the calling workflow until every handle resolves,
// preserving partial failures. The returned map is keyed by sequence index.
// Returns early with an error only if ctx is cancelled.
func AwaitAll(ctx context.Context, jobs []session.JobHandle) (map[int]session.ChunkResult, error) {
	results := make(map[int]session.ChunkResult, len(jobs))
	for _, job := range jobs {
		select {
		case <-job.Done():
			results[job.Seq()] = job.Result()
		case <-ctx.Done():
			return results, ctx.Err()
		}
	}
	return results, nil
}
