package round

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dreamware/cracker/internal/cipher"
	"github.com/dreamware/cracker/internal/logging"
	"github.com/dreamware/cracker/internal/printable"
)

// WorkerStats holds a worker's diagnostic counters.
type WorkerStats struct {
	ID              int    `json:"id"`
	LastGeneration  uint64 `json:"last_generation"`
	RoundsSeen      uint64 `json:"rounds_seen"`
	RoundIterations uint64 `json:"round_iterations"`
	TotalIterations uint64 `json:"total_iterations"`
	Submissions     uint64 `json:"submissions"`
	Wins            uint64 `json:"wins"`
	Mismatches      uint64 `json:"mismatches"`
	LateSubmissions uint64 `json:"late_submissions"`
}

type workerCounters struct {
	lastGeneration  atomic.Uint64
	roundsSeen      atomic.Uint64
	roundIterations atomic.Uint64
	totalIterations atomic.Uint64
	submissions     atomic.Uint64
	wins            atomic.Uint64
	mismatches      atomic.Uint64
	late            atomic.Uint64
}

// Worker guesses random keys against the current round's ciphertext.
// Workers never talk to each other; all coordination goes through State.
type Worker struct {
	state    *State
	cipher   cipher.Provider
	random   cipher.Random
	log      *logging.Logger
	counters workerCounters
	lastSeen uint64 // owned by the Run goroutine
	ID       int
}

// NewWorker creates worker id guessing against state.
func NewWorker(id int, state *State, provider cipher.Provider, random cipher.Random, log *logging.Logger) *Worker {
	return &Worker{
		ID:     id,
		state:  state,
		cipher: provider,
		random: random,
		log:    log,
	}
}

// Run guesses until ctx is cancelled. It returns nil on cancellation and an
// error if the random source or the cipher fails in an unexpected way.
func (w *Worker) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, w.state.wake)
	defer stop()

	for {
		snap, ok := w.awaitRound(ctx)
		if !ok {
			return nil
		}
		if err := w.guess(ctx, snap); err != nil {
			return err
		}
	}
}

// Stats returns a copy of the worker's counters.
func (w *Worker) Stats() WorkerStats {
	c := &w.counters
	return WorkerStats{
		ID:              w.ID,
		LastGeneration:  c.lastGeneration.Load(),
		RoundsSeen:      c.roundsSeen.Load(),
		RoundIterations: c.roundIterations.Load(),
		TotalIterations: c.totalIterations.Load(),
		Submissions:     c.submissions.Load(),
		Wins:            c.wins.Load(),
		Mismatches:      c.mismatches.Load(),
		LateSubmissions: c.late.Load(),
	}
}

// awaitRound blocks until a generation newer than the last one processed is
// published, then snapshots it. Returns false if ctx was cancelled first.
func (w *Worker) awaitRound(ctx context.Context) (Snapshot, bool) {
	s := w.state
	s.mu.Lock()
	defer s.mu.Unlock()

	for w.lastSeen == s.generation.Load() {
		if ctx.Err() != nil {
			return Snapshot{}, false
		}
		s.newRound.Wait()
	}
	if ctx.Err() != nil {
		return Snapshot{}, false
	}

	snap := s.snapshotLocked()
	w.lastSeen = snap.Generation
	w.counters.lastGeneration.Store(snap.Generation)
	w.counters.roundsSeen.Add(1)
	w.counters.roundIterations.Store(0)
	return snap, true
}

// guess samples keys until the round changes, is won, or ctx is cancelled.
// The generation and found checks are lock-free liveness checks; the
// correctness gate is the locked comparison in submit.
func (w *Worker) guess(ctx context.Context, snap Snapshot) error {
	s := w.state
	done := ctx.Done()
	var iterations uint64

	for s.generation.Load() == snap.Generation && !s.found.Load() {
		select {
		case <-done:
			return nil
		default:
		}

		key, err := w.random.Bytes(snap.KeyLength)
		if err != nil {
			return fmt.Errorf("client #%d: sample key: %w", w.ID, err)
		}
		iterations++
		w.counters.roundIterations.Store(iterations)
		w.counters.totalIterations.Add(1)

		candidate, err := w.cipher.Decrypt(key, snap.Ciphertext)
		if errors.Is(err, cipher.ErrNoMatch) {
			continue
		}
		if err != nil {
			return fmt.Errorf("client #%d: decrypt: %w", w.ID, err)
		}
		if !printable.IsPrintable(candidate) {
			continue
		}
		w.submit(key, candidate, iterations)
	}
	return nil
}

// submit hands a printable candidate to the round under the lock.
func (w *Worker) submit(key, candidate []byte, iterations uint64) {
	s := w.state
	s.mu.Lock()
	defer s.mu.Unlock()

	w.log.Client(w.ID, logging.Info, "After decryption(%s), key guessed(%s), sending to server after %d iterations",
		printable.Render(candidate), printable.Render(key), iterations)
	w.counters.submissions.Add(1)

	switch s.submitLocked(w.ID, candidate) {
	case SubmitWon:
		w.counters.wins.Add(1)
	case SubmitLate:
		w.counters.late.Add(1)
	case SubmitMismatch:
		w.counters.mismatches.Add(1)
		w.log.Server(logging.Error, "Wrong password received from client #%d (%s), should be (%s)",
			w.ID, printable.Render(candidate), printable.Render(s.secret))
	}
}
