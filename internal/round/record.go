package round

import "time"

// Outcome is how a round ended.
type Outcome string

const (
	// OutcomeWon means a worker recovered the secret.
	OutcomeWon Outcome = "won"
	// OutcomeTimeout means the deadline passed with no winner.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeCancelled means the run was shut down mid-round.
	OutcomeCancelled Outcome = "cancelled"
)

// Record describes one finished round.
type Record struct {
	Started    time.Time
	Ended      time.Time
	Outcome    Outcome
	Secret     []byte
	Key        []byte
	Ciphertext []byte
	Plaintext  []byte // recovered plaintext, set only when Outcome is OutcomeWon
	Generation uint64
	WinnerID   int
}

// Duration returns how long the round lasted.
func (r Record) Duration() time.Duration {
	return r.Ended.Sub(r.Started)
}

// Recorder receives every finished round from the producer.
// Record is called without the state lock held.
type Recorder interface {
	Record(rec Record)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(rec Record)

// Record calls f(rec).
func (f RecorderFunc) Record(rec Record) { f(rec) }
