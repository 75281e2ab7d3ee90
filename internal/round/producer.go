package round

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/cracker/internal/cipher"
	"github.com/dreamware/cracker/internal/logging"
	"github.com/dreamware/cracker/internal/printable"
)

// DefaultPause is the delay between the end of a round and the next one.
const DefaultPause = time.Second

// Producer is the round controller. It generates a secret, encrypts it,
// publishes the round and waits for a winner or for the timeout, forever.
//
// A Producer must only be run once at a time; configure it with the setters
// before calling Run.
type Producer struct {
	state    *State
	cipher   cipher.Provider
	random   cipher.Random
	log      *logging.Logger
	recorder Recorder
	timeout  time.Duration // <= 0 waits indefinitely
	pause    time.Duration
}

// NewProducer creates a producer publishing rounds into state.
// The producer waits indefinitely for a winner and pauses DefaultPause
// between rounds until configured otherwise.
//
// Example:
//
//	p := NewProducer(state, cipher.NewStream(), cipher.NewSystemRandom(), logger)
//	p.SetTimeout(5 * time.Second)
//	err := p.Run(ctx)
func NewProducer(state *State, provider cipher.Provider, random cipher.Random, log *logging.Logger) *Producer {
	return &Producer{
		state:  state,
		cipher: provider,
		random: random,
		log:    log,
		pause:  DefaultPause,
	}
}

// SetTimeout bounds how long a round may stay unsolved. A value <= 0 waits
// indefinitely.
func (p *Producer) SetTimeout(d time.Duration) {
	p.timeout = d
}

// SetPause sets the delay between rounds.
func (p *Producer) SetPause(d time.Duration) {
	p.pause = d
}

// SetRecorder registers a recorder for finished rounds.
func (p *Producer) SetRecorder(r Recorder) {
	p.recorder = r
}

// Run publishes rounds until ctx is cancelled.
//
// Returns nil on cancellation. Returns an error wrapping the provider's error
// if a round cannot be generated; there is no recovery from that.
func (p *Producer) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, p.state.wake)
	defer stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		rec, err := p.runRound(ctx)
		if err != nil {
			return err
		}
		if p.recorder != nil {
			p.recorder.Record(rec)
		}
		if rec.Outcome == OutcomeCancelled {
			return nil
		}

		if !sleep(ctx, p.pause) {
			return nil
		}
	}
}

// runRound performs GENERATE, PUBLISH and AWAIT_OUTCOME while holding the
// state lock (released only inside condition waits).
func (p *Producer) runRound(ctx context.Context) (Record, error) {
	s := p.state
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := p.generateLocked()
	if err != nil {
		p.log.Server(logging.Error, "Failed to generate password for round %d: %v", s.generation.Load()+1, err)
		return Record{}, err
	}
	p.log.Server(logging.Info, "New password generated: %s, key: %s, After encryption: %s",
		printable.Render(rec.Secret), printable.Render(rec.Key), printable.Render(rec.Ciphertext))

	s.newRound.Broadcast()

	rec.Outcome = p.awaitLocked(ctx)
	rec.Ended = time.Now()

	switch rec.Outcome {
	case OutcomeWon:
		rec.WinnerID = s.winnerID
		rec.Plaintext = slices.Clone(s.winner)
		p.log.Server(logging.OK, "Password decrypted successfully, is (%s)", printable.Render(rec.Plaintext))
	case OutcomeTimeout:
		p.log.Server(logging.Error,
			"No password received during the configured timeout period (%s), regenerating password",
			formatTimeout(p.timeout))
	}
	return rec, nil
}

// generateLocked samples a printable secret and a key, encrypts, and only on
// success publishes the result. A failed generation leaves the previous
// round untouched. The caller must hold the lock.
func (p *Producer) generateLocked() (Record, error) {
	s := p.state

	secret, err := printable.Fill(p.random, s.passwordLength)
	if err != nil {
		return Record{}, fmt.Errorf("sample password: %w", err)
	}
	key, err := p.random.Bytes(s.keyLength)
	if err != nil {
		return Record{}, fmt.Errorf("sample key: %w", err)
	}
	ciphertext, err := p.cipher.Encrypt(key, secret)
	if err != nil {
		return Record{}, fmt.Errorf("encrypt password: %w", err)
	}

	gen := s.publishLocked(secret, key, ciphertext)
	return Record{
		Generation: gen,
		Secret:     slices.Clone(secret),
		Key:        slices.Clone(key),
		Ciphertext: slices.Clone(ciphertext),
		WinnerID:   NoWinner,
		Started:    s.published,
	}, nil
}

// awaitLocked waits on roundWon until the round is won, the deadline passes
// or ctx is cancelled. Every wake re-checks all three, so spurious wakeups
// only cost another iteration. The caller must hold the lock.
func (p *Producer) awaitLocked(ctx context.Context) Outcome {
	s := p.state

	var deadline time.Time
	if p.timeout > 0 {
		deadline = time.Now().Add(p.timeout)
		timer := time.AfterFunc(p.timeout, s.wake)
		defer timer.Stop()
	}

	for {
		if s.found.Load() {
			return OutcomeWon
		}
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return OutcomeTimeout
		}
		s.roundWon.Wait()
	}
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func formatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d seconds", int64(d/time.Second))
	}
	return d.String()
}
