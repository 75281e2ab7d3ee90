package cipher

import (
	"crypto/rand"
	"fmt"
)

// Random yields uniformly random bytes.
// Implementations must be safe for concurrent use.
type Random interface {
	Bytes(n int) ([]byte, error)
}

// SystemRandom reads from the operating system's CSPRNG.
type SystemRandom struct{}

// NewSystemRandom returns a Random backed by crypto/rand.
func NewSystemRandom() *SystemRandom {
	return &SystemRandom{}
}

// Bytes returns n random bytes.
func (SystemRandom) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("random bytes: negative length %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("random bytes: %w", err)
	}
	return buf, nil
}
