package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// fakeJob implements JobHandle for registry tests.
type fakeJob struct {
	seq  int
	done chan struct{}
	res  ChunkResult
}

func newFakeJob(seq int) *fakeJob {
	return &fakeJob{seq: seq, done: make(chan struct{})}
}

func (j *fakeJob) Seq() int              { return j.seq }
func (j *fakeJob) Done() <-chan struct{} { return j.done }
func (j *fakeJob) Result() ChunkResult   { return j.res }

func submitFake(c Chunk) JobHandle { return newFakeJob(c.Seq) }

func TestRegistry_Create(t *testing.T) {
	r := NewRegistry()

	id, err := r.Create("Team Sync!!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty session ID")
	}

	view, err := r.Get(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Title != "Team Sync!!" {
		t.Errorf("expected title preserved, got %q", view.Title)
	}
	if view.NormalizedTitle != "Team_Sync__" {
		t.Errorf("expected normalized title 'Team_Sync__', got %q", view.NormalizedTitle)
	}
	if view.State != StateActive {
		t.Errorf("expected StateActive, got %v", view.State)
	}
	if view.ChunkCount != 0 {
		t.Errorf("expected 0 chunks, got %d", view.ChunkCount)
	}
}

func TestRegistry_Create_EmptyTitle(t *testing.T) {
	r := NewRegistry()

	for _, title := range []string{"", "   ", "\t\n"} {
		if _, err := r.Create(title); !errors.Is(err, ErrEmptyTitle) {
			t.Errorf("Create(%q): expected ErrEmptyTitle, got %v", title, err)
		}
	}
}

func TestRegistry_Get_Unknown(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_RecordChunk_SequentialIndices(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("seq test")

	for want := 0; want < 5; want++ {
		seq, err := r.RecordChunk(id, fmt.Sprintf("/tmp/chunk-%d", want), "audio/webm", submitFake)
		if err != nil {
			t.Fatalf("chunk %d: unexpected error: %v", want, err)
		}
		if seq != want {
			t.Errorf("expected seq %d, got %d", want, seq)
		}
	}
}

func TestRegistry_RecordChunk_Unknown(t *testing.T) {
	r := NewRegistry()

	if _, err := r.RecordChunk("nope", "/tmp/x", "audio/webm", submitFake); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_RecordChunk_ConcurrentGapless(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("concurrent uploads")

	const n = 64
	seqs := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq, err := r.RecordChunk(id, fmt.Sprintf("/tmp/chunk-%d", i), "audio/webm", submitFake)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			seqs <- seq
		}(i)
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int]bool)
	for seq := range seqs {
		if seen[seq] {
			t.Errorf("duplicate sequence index %d", seq)
		}
		seen[seq] = true
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			t.Errorf("missing sequence index %d", i)
		}
	}
}

func TestRegistry_RecordChunk_RejectedAfterFinalizationBegins(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("closed")

	if _, err := r.BeginFinalization(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := r.RecordChunk(id, "/tmp/late", "audio/webm", submitFake); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestRegistry_BeginFinalization_Snapshot(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("snapshot")

	for i := 0; i < 3; i++ {
		if _, err := r.RecordChunk(id, fmt.Sprintf("/tmp/chunk-%d", i), "audio/webm", submitFake); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snap, err := r.BeginFinalization(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Chunks) != 3 {
		t.Errorf("expected 3 chunks in snapshot, got %d", len(snap.Chunks))
	}
	if len(snap.Jobs) != 3 {
		t.Errorf("expected 3 job handles in snapshot, got %d", len(snap.Jobs))
	}
	for i, c := range snap.Chunks {
		if c.Seq != i {
			t.Errorf("chunk %d has seq %d", i, c.Seq)
		}
	}
}

func TestRegistry_BeginFinalization_OnlyOneWins(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("double end")

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.BeginFinalization(id)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyFinalizing):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins)
	}
	if conflicts != n-1 {
		t.Errorf("expected %d conflicts, got %d", n-1, conflicts)
	}
}

func TestRegistry_BeginFinalization_Unknown(t *testing.T) {
	r := NewRegistry()

	if _, err := r.BeginFinalization("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_MarkFinalized_Evicts(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("finish")
	r.BeginFinalization(id)

	r.MarkFinalized(id)

	if _, err := r.Get(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected session evicted, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d sessions", r.Len())
	}
}

func TestRegistry_MarkFailed_RetainsAndAllowsRetry(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("flaky")
	r.BeginFinalization(id)

	r.MarkFailed(id)

	view, err := r.Get(id)
	if err != nil {
		t.Fatalf("expected session retained, got %v", err)
	}
	if view.State != StateFinalizationFailed {
		t.Errorf("expected StateFinalizationFailed, got %v", view.State)
	}

	// A failed session can be finalized again.
	if _, err := r.BeginFinalization(id); err != nil {
		t.Errorf("expected retry to be allowed, got %v", err)
	}
}

func TestRegistry_RecordJobResult_AfterEviction(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("gone")
	r.BeginFinalization(id)
	r.MarkFinalized(id)

	// Must not panic; the late result is dropped.
	r.RecordJobResult(id, 0, ChunkResult{})
}

func TestRegistry_Evict(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create("evict me")

	r.Evict(id)

	if _, err := r.Get(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after evict, got %v", err)
	}
}
