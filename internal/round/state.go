package round

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slices"
)

// NoWinner is the winner id reported while a round has not been won.
const NoWinner = -1

// State is the shared round state: the single source of truth for the
// current round's secret, ciphertext and outcome.
//
// Thread-safe: all fields are guarded by mu. Exported methods take the lock
// themselves; unexported *Locked methods expect the caller to hold it.
type State struct {
	mu       sync.Mutex
	newRound *sync.Cond // broadcast once per published round
	roundWon *sync.Cond // signaled once per winning submission

	generation atomic.Uint64 // written only under mu
	found      atomic.Bool   // written only under mu

	secret     []byte
	key        []byte
	ciphertext []byte
	winner     []byte
	winnerID   int
	published  time.Time

	passwordLength int
	keyLength      int
}

// Snapshot is a copy of the published round taken under the lock.
// It may be used freely once the lock is released.
type Snapshot struct {
	Ciphertext []byte
	Generation uint64
	KeyLength  int
}

// View is a point-in-time summary of the state for status reporting.
type View struct {
	Published      time.Time `json:"published"`
	Winner         string    `json:"winner,omitempty"`
	Generation     uint64    `json:"generation"`
	WinnerID       int       `json:"winner_id"`
	PasswordLength int       `json:"password_length"`
	KeyLength      int       `json:"key_length"`
	Found          bool      `json:"found"`
}

// SubmitResult is the outcome of submitting a candidate plaintext.
type SubmitResult int

const (
	// SubmitWon means the candidate matched and its submitter won the round.
	SubmitWon SubmitResult = iota
	// SubmitMismatch means the candidate did not match the current secret.
	SubmitMismatch
	// SubmitLate means the round was already won; the candidate was not compared.
	SubmitLate
)

// NewState returns the state for passwords of passwordLength bytes.
// The key length is passwordLength/8 and stays fixed for the state's lifetime.
// Generation starts at 0, meaning no round has been published yet.
func NewState(passwordLength int) *State {
	s := &State{
		passwordLength: passwordLength,
		keyLength:      passwordLength / 8,
		winnerID:       NoWinner,
	}
	s.newRound = sync.NewCond(&s.mu)
	s.roundWon = sync.NewCond(&s.mu)
	return s
}

// PasswordLength returns the configured secret length in bytes.
func (s *State) PasswordLength() int { return s.passwordLength }

// KeyLength returns the key length in bytes.
func (s *State) KeyLength() int { return s.keyLength }

// Generation returns the current round's generation.
func (s *State) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation.Load()
}

// Found reports whether the current round has been won.
func (s *State) Found() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.found.Load()
}

// Snapshot copies the current round out under the lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// View returns a status summary of the current round.
// The secret itself is never included.
func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Generation:     s.generation.Load(),
		Found:          s.found.Load(),
		WinnerID:       NoWinner,
		Published:      s.published,
		PasswordLength: s.passwordLength,
		KeyLength:      s.keyLength,
	}
	if v.Found {
		v.Winner = string(s.winner)
		v.WinnerID = s.winnerID
	}
	return v
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Generation: s.generation.Load(),
		Ciphertext: slices.Clone(s.ciphertext),
		KeyLength:  s.keyLength,
	}
}

// publishLocked installs a new round as one unit: the outcome is reset, the
// generation bumped and the secret, key and ciphertext replaced. It returns
// the new generation. The caller must hold mu and broadcast newRound
// before releasing it.
func (s *State) publishLocked(secret, key, ciphertext []byte) uint64 {
	s.found.Store(false)
	s.winner = nil
	s.winnerID = NoWinner
	s.secret = secret
	s.key = key
	s.ciphertext = ciphertext
	s.published = time.Now()
	return s.generation.Add(1)
}

// submitLocked compares candidate against the current secret on behalf of
// worker id. Only the first matching submission of a round is recorded;
// once found is set every later candidate is discarded without comparison.
// The caller must hold mu.
func (s *State) submitLocked(id int, candidate []byte) SubmitResult {
	if s.found.Load() {
		return SubmitLate
	}
	if !slices.Equal(candidate, s.secret) {
		return SubmitMismatch
	}
	s.found.Store(true)
	s.winner = slices.Clone(candidate)
	s.winnerID = id
	s.roundWon.Signal()
	return SubmitWon
}

// wake broadcasts both conditions so every waiter re-checks its predicate.
// Used for cancellation and for the producer's deadline.
func (s *State) wake() {
	s.mu.Lock()
	s.newRound.Broadcast()
	s.roundWon.Broadcast()
	s.mu.Unlock()
}
