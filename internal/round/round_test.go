package round

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/cracker/internal/cipher"
	"github.com/dreamware/cracker/internal/logging"
)

// syncBuffer is a bytes.Buffer safe for concurrent writes and reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// collector records finished rounds.
type collector struct {
	mu   sync.Mutex
	recs []Record
}

func (c *collector) Record(rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
}

func (c *collector) all() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.recs...)
}

func (c *collector) countOutcome(o Outcome) int {
	n := 0
	for _, rec := range c.all() {
		if rec.Outcome == o {
			n++
		}
	}
	return n
}

type failingCipher struct{ cipher.Stream }

func (failingCipher) Encrypt(key, plaintext []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: key rejected", cipher.ErrCrypto)
}

type failingRandom struct{}

func (failingRandom) Bytes(int) ([]byte, error) { return nil, errors.New("entropy exhausted") }

// publish installs a round directly, as the producer's GENERATE step would.
func publish(s *State, secret string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.publishLocked([]byte(secret), []byte{0x01}, []byte("ciphertext"))
	s.newRound.Broadcast()
	return gen
}

// runProducer starts p in the background and returns a function that
// cancels it and waits for Run to return.
func runProducer(t *testing.T, p *Producer) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("producer did not stop after cancellation")
			return nil
		}
	}
}

// TestNewState verifies the initial state before any round is published.
func TestNewState(t *testing.T) {
	s := NewState(16)

	assert.Equal(t, uint64(0), s.Generation())
	assert.False(t, s.Found())
	assert.Equal(t, 16, s.PasswordLength())
	assert.Equal(t, 2, s.KeyLength())

	v := s.View()
	assert.Equal(t, uint64(0), v.Generation)
	assert.Equal(t, NoWinner, v.WinnerID)
	assert.Empty(t, v.Winner)
}

// TestSnapshotIsCopy verifies a snapshot cannot alias the shared ciphertext.
func TestSnapshotIsCopy(t *testing.T) {
	s := NewState(8)
	publish(s, "abcdefgh")

	snap := s.Snapshot()
	require.Equal(t, uint64(1), snap.Generation)
	snap.Ciphertext[0] = 'X'

	assert.Equal(t, []byte("ciphertext"), s.Snapshot().Ciphertext)
}

// TestPublishResetsOutcome verifies each new round starts unsolved.
func TestPublishResetsOutcome(t *testing.T) {
	s := NewState(8)
	w := NewWorker(0, s, cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())

	publish(s, "abcdefgh")
	w.submit(nil, []byte("abcdefgh"), 1)
	require.True(t, s.Found())

	gen := publish(s, "hgfedcba")
	assert.Equal(t, uint64(2), gen)
	assert.False(t, s.Found())
	assert.Equal(t, NoWinner, s.View().WinnerID)
}

// TestProducerRegeneratesOnTimeout runs the producer with no workers: every
// round must end in a timeout and the generation must keep increasing.
func TestProducerRegeneratesOnTimeout(t *testing.T) {
	state := NewState(16)
	var out syncBuffer
	p := NewProducer(state, cipher.NewStream(), cipher.NewSystemRandom(), logging.New(&out))
	p.SetTimeout(40 * time.Millisecond)
	p.SetPause(10 * time.Millisecond)
	rounds := &collector{}
	p.SetRecorder(rounds)

	stop := runProducer(t, p)
	require.Eventually(t, func() bool {
		return rounds.countOutcome(OutcomeTimeout) >= 3
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	recs := rounds.all()
	for i, rec := range recs {
		assert.Equal(t, uint64(i+1), rec.Generation, "generations must be consecutive")
		assert.NotEqual(t, OutcomeWon, rec.Outcome)
		if rec.Outcome == OutcomeTimeout {
			assert.GreaterOrEqual(t, rec.Duration(), 40*time.Millisecond)
		}
	}

	logs := out.String()
	assert.Contains(t, logs, "No password received during the configured timeout period (40ms), regenerating password")
	assert.Contains(t, logs, "[SERVER] [INFO] New password generated: ")
	assert.NotContains(t, logs, "decrypted successfully")
}

// TestProducerToleratesSpuriousWakeups wakes the producer repeatedly before
// its deadline: the round must still run for the full timeout.
func TestProducerToleratesSpuriousWakeups(t *testing.T) {
	const timeout = 300 * time.Millisecond

	state := NewState(8)
	p := NewProducer(state, cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())
	p.SetTimeout(timeout)
	p.SetPause(time.Hour)
	rounds := &collector{}
	p.SetRecorder(rounds)

	stop := runProducer(t, p)
	require.Eventually(t, func() bool {
		return state.Generation() == 1
	}, time.Second, time.Millisecond)

	for i := 0; i < 20; i++ {
		state.wake()
		time.Sleep(5 * time.Millisecond)
	}
	assert.Empty(t, rounds.all(), "round ended before its deadline")

	require.Eventually(t, func() bool {
		return len(rounds.all()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	rec := rounds.all()[0]
	assert.Equal(t, OutcomeTimeout, rec.Outcome)
	assert.Equal(t, uint64(1), rec.Generation)
	assert.GreaterOrEqual(t, rec.Duration(), timeout)
}

// TestSingleWorkerRecoversPassword runs one worker against 8-byte passwords
// with no timeout: the worker must recover the exact secret.
func TestSingleWorkerRecoversPassword(t *testing.T) {
	state := NewState(8)
	var out syncBuffer
	logger := logging.New(&out)
	provider := cipher.NewStream()
	random := cipher.NewSystemRandom()

	p := NewProducer(state, provider, random, logger)
	p.SetPause(10 * time.Millisecond)
	rounds := &collector{}
	p.SetRecorder(rounds)

	pool := NewPool(1, state, provider, random, logger)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	stop := runProducer(t, p)
	require.Eventually(t, func() bool {
		return rounds.countOutcome(OutcomeWon) >= 1
	}, 10*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
	cancel()
	require.NoError(t, pool.Wait())

	first := rounds.all()[0]
	assert.Equal(t, OutcomeWon, first.Outcome)
	assert.Equal(t, uint64(1), first.Generation)
	assert.Equal(t, first.Secret, first.Plaintext)
	assert.Equal(t, 0, first.WinnerID)
	assert.Len(t, first.Key, 1)

	stats := pool.Stats()
	require.Len(t, stats, 1)
	assert.GreaterOrEqual(t, stats[0].Wins, uint64(1))
	assert.GreaterOrEqual(t, stats[0].TotalIterations, uint64(1))

	logs := out.String()
	assert.Contains(t, logs, "[SERVER] [OK] Password decrypted successfully, is ("+string(first.Secret)+")")
	assert.Contains(t, logs, "[CLIENT #0] [INFO] After decryption(")
}

// TestWinsMatchSecretOfTheirGeneration runs several workers over many rounds
// and checks every accepted win against the secret of its own round.
func TestWinsMatchSecretOfTheirGeneration(t *testing.T) {
	state := NewState(8)
	provider := cipher.NewStream()
	random := cipher.NewSystemRandom()
	logger := logging.Discard()

	p := NewProducer(state, provider, random, logger)
	p.SetPause(time.Millisecond)
	rounds := &collector{}
	p.SetRecorder(rounds)

	pool := NewPool(4, state, provider, random, logger)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	stop := runProducer(t, p)
	require.Eventually(t, func() bool {
		return rounds.countOutcome(OutcomeWon) >= 5
	}, 15*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
	cancel()
	require.NoError(t, pool.Wait())

	var prev uint64
	for _, rec := range rounds.all() {
		assert.Greater(t, rec.Generation, prev, "generation must strictly increase")
		prev = rec.Generation
		if rec.Outcome == OutcomeWon {
			assert.Equal(t, rec.Secret, rec.Plaintext)
			assert.GreaterOrEqual(t, rec.WinnerID, 0)
			assert.Less(t, rec.WinnerID, 4)
		}
	}

	var wins uint64
	for _, st := range pool.Stats() {
		wins += st.Wins
	}
	assert.GreaterOrEqual(t, wins, uint64(5))
}

// TestConcurrentCorrectSubmissions has two workers submit the correct
// plaintext at the same time: exactly one wins, the other is discarded.
func TestConcurrentCorrectSubmissions(t *testing.T) {
	for i := 0; i < 100; i++ {
		s := NewState(8)
		publish(s, "s3cr3t!!")
		w0 := NewWorker(0, s, cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())
		w1 := NewWorker(1, s, cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())

		start := make(chan struct{})
		var wg sync.WaitGroup
		for _, w := range []*Worker{w0, w1} {
			wg.Add(1)
			go func(w *Worker) {
				defer wg.Done()
				<-start
				w.submit([]byte{0x01}, []byte("s3cr3t!!"), 1)
			}(w)
		}
		close(start)
		wg.Wait()

		s0, s1 := w0.Stats(), w1.Stats()
		require.Equal(t, uint64(1), s0.Wins+s1.Wins, "exactly one winner")
		require.Equal(t, uint64(1), s0.LateSubmissions+s1.LateSubmissions, "loser is discarded")
		require.Zero(t, s0.Mismatches+s1.Mismatches)

		v := s.View()
		require.True(t, v.Found)
		require.Equal(t, "s3cr3t!!", v.Winner)
		if s0.Wins == 1 {
			require.Equal(t, 0, v.WinnerID)
		} else {
			require.Equal(t, 1, v.WinnerID)
		}
	}
}

// TestWinnerIsNotOverwritten verifies later submissions leave the winner alone.
func TestWinnerIsNotOverwritten(t *testing.T) {
	s := NewState(8)
	publish(s, "abcdefgh")
	w0 := NewWorker(0, s, cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())
	w1 := NewWorker(1, s, cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())

	w0.submit(nil, []byte("abcdefgh"), 10)
	w1.submit(nil, []byte("abcdefgh"), 3)
	w1.submit(nil, []byte("zzzzzzzz"), 4)

	v := s.View()
	assert.Equal(t, 0, v.WinnerID)
	assert.Equal(t, "abcdefgh", v.Winner)
	assert.Equal(t, uint64(2), w1.Stats().LateSubmissions)
	assert.Zero(t, w1.Stats().Mismatches)
}

// TestStaleGuessRejectedAfterNewRound verifies a correct guess for an old
// round is not a win once the next round has been generated.
func TestStaleGuessRejectedAfterNewRound(t *testing.T) {
	s := NewState(8)
	var out syncBuffer
	w := NewWorker(2, s, cipher.NewStream(), cipher.NewSystemRandom(), logging.New(&out))

	publish(s, "oldpass!")
	publish(s, "newpass!")
	w.submit([]byte{0x41}, []byte("oldpass!"), 7)

	assert.False(t, s.Found())
	assert.Equal(t, uint64(1), w.Stats().Mismatches)
	logs := out.String()
	assert.Contains(t, logs, "[CLIENT #2] [INFO] After decryption(oldpass!), key guessed(A), sending to server after 7 iterations")
	assert.Contains(t, logs, "[SERVER] [ERROR] Wrong password received from client #2 (oldpass!), should be (newpass!)")
}

// TestLateGuessBeforeNextRoundIsAccepted documents the bounded race: after a
// timeout and before the next GENERATE, the expired secret is still current.
func TestLateGuessBeforeNextRoundIsAccepted(t *testing.T) {
	s := NewState(8)
	w := NewWorker(0, s, cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())

	publish(s, "expired!")
	w.submit(nil, []byte("expired!"), 1)

	assert.True(t, s.Found())
	assert.Equal(t, uint64(1), w.Stats().Wins)
}

// TestWorkerWaitsForNewGeneration verifies a worker does not re-process a
// generation it already snapshotted.
func TestWorkerWaitsForNewGeneration(t *testing.T) {
	s := NewState(8)
	w := NewWorker(0, s, cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := context.AfterFunc(ctx, s.wake)
	defer stop()

	publish(s, "abcdefgh")
	snap, ok := w.awaitRound(ctx)
	require.True(t, ok)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 1, snap.KeyLength)

	got := make(chan Snapshot, 1)
	go func() {
		snap, ok := w.awaitRound(ctx)
		if ok {
			got <- snap
		}
	}()

	select {
	case <-got:
		t.Fatal("worker re-processed generation 1")
	case <-time.After(50 * time.Millisecond):
	}

	publish(s, "ijklmnop")
	select {
	case snap := <-got:
		assert.Equal(t, uint64(2), snap.Generation)
	case <-time.After(time.Second):
		t.Fatal("worker missed generation 2")
	}
	assert.Equal(t, uint64(2), w.Stats().RoundsSeen)
}

// TestWorkerIgnoresWakeupsWithoutNewGeneration verifies broadcasts that do
// not come with a new generation leave a waiting worker blocked.
func TestWorkerIgnoresWakeupsWithoutNewGeneration(t *testing.T) {
	s := NewState(8)
	w := NewWorker(0, s, cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := context.AfterFunc(ctx, s.wake)
	defer stop()

	publish(s, "abcdefgh")
	_, ok := w.awaitRound(ctx)
	require.True(t, ok)

	type result struct {
		snap Snapshot
		ok   bool
	}
	got := make(chan result, 1)
	go func() {
		snap, ok := w.awaitRound(ctx)
		got <- result{snap, ok}
	}()

	for i := 0; i < 20; i++ {
		s.wake()
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case r := <-got:
		t.Fatalf("awaitRound returned on a spurious wakeup (generation %d, ok %v)", r.snap.Generation, r.ok)
	default:
	}
	assert.Equal(t, uint64(1), w.Stats().RoundsSeen)

	cancel()
	select {
	case r := <-got:
		assert.False(t, r.ok)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

// TestWorkerStopsOnCancellation verifies a waiting worker unwinds cleanly.
func TestWorkerStopsOnCancellation(t *testing.T) {
	s := NewState(8)
	pool := NewPool(3, s, cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	time.Sleep(20 * time.Millisecond)
	cancel()

	done := make(chan error, 1)
	go func() { done <- pool.Wait() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop")
	}
}

// TestWorkerReportsRandomFailure verifies an unexpected random source error
// stops the worker and surfaces through the pool.
func TestWorkerReportsRandomFailure(t *testing.T) {
	s := NewState(8)
	publish(s, "abcdefgh")
	pool := NewPool(1, s, cipher.NewStream(), failingRandom{}, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	err := pool.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client #0: sample key")
	assert.Contains(t, err.Error(), "entropy exhausted")
}

// TestProducerCancelledWhileAwaiting verifies an indefinite wait ends on
// cancellation and is recorded as cancelled.
func TestProducerCancelledWhileAwaiting(t *testing.T) {
	state := NewState(16)
	p := NewProducer(state, cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())
	rounds := &collector{}
	p.SetRecorder(rounds)

	stop := runProducer(t, p)
	require.Eventually(t, func() bool { return state.Generation() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	recs := rounds.all()
	require.Len(t, recs, 1)
	assert.Equal(t, OutcomeCancelled, recs[0].Outcome)
	assert.Equal(t, NoWinner, recs[0].WinnerID)
}

// TestProducerEncryptionFailure verifies encryption failure is fatal, is
// logged distinctly from a timeout and publishes nothing.
func TestProducerEncryptionFailure(t *testing.T) {
	state := NewState(16)
	var out syncBuffer
	p := NewProducer(state, &failingCipher{}, cipher.NewSystemRandom(), logging.New(&out))
	p.SetTimeout(10 * time.Millisecond)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cipher.ErrCrypto)

	assert.Equal(t, uint64(0), state.Generation())
	logs := out.String()
	assert.Contains(t, logs, "[SERVER] [ERROR] Failed to generate password for round 1")
	assert.NotContains(t, logs, "regenerating")
}

// TestProducerStopsDuringPause verifies cancellation interrupts the pause.
func TestProducerStopsDuringPause(t *testing.T) {
	state := NewState(8)
	p := NewProducer(state, cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())
	p.SetTimeout(5 * time.Millisecond)
	p.SetPause(time.Hour)

	stop := runProducer(t, p)
	require.Eventually(t, func() bool { return state.Generation() == 1 && !state.Found() }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, stop())
	assert.Equal(t, uint64(1), state.Generation())
}

// TestPoolStats verifies worker numbering.
func TestPoolStats(t *testing.T) {
	pool := NewPool(3, NewState(8), cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())
	assert.Equal(t, 3, pool.Size())

	ids := []int{}
	for _, st := range pool.Stats() {
		ids = append(ids, st.ID)
		assert.Zero(t, st.TotalIterations)
	}
	assert.Equal(t, []int{0, 1, 2}, ids)

	empty := NewPool(0, NewState(8), cipher.NewStream(), cipher.NewSystemRandom(), logging.Discard())
	assert.Zero(t, empty.Size())
	assert.Empty(t, empty.Stats())
}

// TestFormatTimeout verifies whole seconds print as "N seconds" and other durations in Go form.
func TestFormatTimeout(t *testing.T) {
	assert.Equal(t, "1 seconds", formatTimeout(time.Second))
	assert.Equal(t, "30 seconds", formatTimeout(30*time.Second))
	assert.Equal(t, "1.5s", formatTimeout(1500*time.Millisecond))
	assert.True(t, strings.HasSuffix(formatTimeout(40*time.Millisecond), "ms"))
}
