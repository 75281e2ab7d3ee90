package history

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/cracker/internal/printable"
	"github.com/dreamware/cracker/internal/round"
)

// ErrRoundNotFound is returned when a generation is not in the store
var ErrRoundNotFound = errors.New("round not found")

// DefaultLimit is the number of rounds kept when no positive limit is given
const DefaultLimit = 1000

// Entry is the stored form of a finished round
type Entry struct {
	Started    time.Time     `json:"started" yaml:"started"`
	Ended      time.Time     `json:"ended" yaml:"ended"`
	Outcome    round.Outcome `json:"outcome" yaml:"outcome"`
	Secret     string        `json:"secret" yaml:"secret"`
	Plaintext  string        `json:"plaintext,omitempty" yaml:"plaintext,omitempty"`
	Key        string        `json:"key" yaml:"key"`               // hex
	Ciphertext string        `json:"ciphertext" yaml:"ciphertext"` // hex
	Generation uint64        `json:"generation" yaml:"generation"`
	Duration   time.Duration `json:"duration_ns" yaml:"duration"`
	WinnerID   int           `json:"winner_id" yaml:"winner_id"`
}

// NewEntry converts a round record to its stored form
func NewEntry(rec round.Record) Entry {
	e := Entry{
		Generation: rec.Generation,
		Outcome:    rec.Outcome,
		Secret:     printable.Render(rec.Secret),
		Key:        hex.EncodeToString(rec.Key),
		Ciphertext: hex.EncodeToString(rec.Ciphertext),
		WinnerID:   rec.WinnerID,
		Started:    rec.Started,
		Ended:      rec.Ended,
		Duration:   rec.Duration(),
	}
	if rec.Outcome == round.OutcomeWon {
		e.Plaintext = printable.Render(rec.Plaintext)
	}
	return e
}

// Stats summarizes the stored rounds
type Stats struct {
	Rounds    int `json:"rounds" yaml:"rounds"`       // Rounds currently stored
	Wins      int `json:"wins" yaml:"wins"`           // Stored rounds won by a worker
	Timeouts  int `json:"timeouts" yaml:"timeouts"`   // Stored rounds that timed out
	Cancelled int `json:"cancelled" yaml:"cancelled"` // Stored rounds interrupted by shutdown
	Evicted   int `json:"evicted" yaml:"evicted"`     // Rounds dropped to respect the limit
}

// MemoryStore keeps the most recent finished rounds in generation order
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryStore struct {
	mu      sync.RWMutex // Protects concurrent access
	entries []Entry      // Oldest first
	limit   int          // Maximum entries kept
	evicted int          // Entries dropped so far
}

// NewMemoryStore creates a store keeping at most limit rounds.
// A limit <= 0 selects DefaultLimit.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &MemoryStore{limit: limit}
}

// Record implements round.Recorder
func (m *MemoryStore) Record(rec round.Record) {
	m.Put(NewEntry(rec))
}

// Put stores an entry, dropping the oldest one when the limit is reached
func (m *MemoryStore) Put(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) >= m.limit {
		drop := len(m.entries) - m.limit + 1
		m.entries = slices.Delete(m.entries, 0, drop)
		m.evicted += drop
	}
	m.entries = append(m.entries, e)
}

// Get returns the entry for generation
// Returns ErrRoundNotFound if it was never stored or has been evicted
func (m *MemoryStore) Get(generation uint64) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := slices.BinarySearchFunc(m.entries, generation, func(e Entry, g uint64) int {
		switch {
		case e.Generation < g:
			return -1
		case e.Generation > g:
			return 1
		}
		return 0
	})
	if !ok {
		return Entry{}, ErrRoundNotFound
	}
	return m.entries[idx], nil
}

// List returns all stored entries, oldest first
// Returns a copy to prevent external modification
func (m *MemoryStore) List() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.entries)
}

// Stats returns store statistics
func (m *MemoryStore) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{Rounds: len(m.entries), Evicted: m.evicted}
	for _, e := range m.entries {
		switch e.Outcome {
		case round.OutcomeWon:
			st.Wins++
		case round.OutcomeTimeout:
			st.Timeouts++
		case round.OutcomeCancelled:
			st.Cancelled++
		}
	}
	return st
}

// Export is the document written by WriteYAML
type Export struct {
	RunID  string  `yaml:"run_id"`
	Stats  Stats   `yaml:"stats"`
	Rounds []Entry `yaml:"rounds"`
}

// WriteYAML writes every stored round as a YAML document tagged with runID
func (m *MemoryStore) WriteYAML(w io.Writer, runID string) error {
	doc := Export{
		RunID:  runID,
		Stats:  m.Stats(),
		Rounds: m.List(),
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return enc.Close()
}
