// Package cipher provides the symmetric cipher and random source the round
// controller and the workers are built on.
//
// The contracts are deliberately small: Provider encrypts and decrypts whole
// messages under a short key, Random yields uniformly random bytes. The
// concrete Stream cipher is a keystream cipher over SHAKE-256 with a one-byte
// integrity tag, which makes most wrong keys fail fast with ErrNoMatch while
// still letting the occasional wrong key through as garbage plaintext. That
// is the behaviour a brute-force exercise wants from its cipher.
package cipher

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

var (
	// ErrCrypto is returned when a key or message is malformed.
	ErrCrypto = errors.New("crypto error")

	// ErrNoMatch is returned by Decrypt when the key does not invert the
	// ciphertext. It is the expected result of almost every guess.
	ErrNoMatch = errors.New("key does not match ciphertext")
)

// TagSize is the number of integrity bytes prepended to every ciphertext.
const TagSize = 1

// Provider encrypts and decrypts messages under a symmetric key.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Encrypt returns the ciphertext of plaintext under key.
	// Returns an error wrapping ErrCrypto if key or plaintext is malformed.
	Encrypt(key, plaintext []byte) ([]byte, error)

	// Decrypt returns the plaintext of ciphertext under key.
	// Returns an error wrapping ErrNoMatch if key is not the encryption key.
	Decrypt(key, ciphertext []byte) ([]byte, error)
}

// Stream is a SHAKE-256 keystream cipher.
//
// Layout:
//
//	ciphertext = tag || (plaintext XOR SHAKE-256("stream" || key))
//	tag        = first TagSize bytes of SHAKE-256("tag" || key || plaintext)
//
// Stream carries no state and is safe for concurrent use.
type Stream struct{}

// NewStream returns a Stream cipher.
func NewStream() *Stream {
	return &Stream{}
}

// Encrypt implements Provider.
func (s *Stream) Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrCrypto)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrCrypto)
	}

	out := make([]byte, TagSize+len(plaintext))
	tag(out[:TagSize], key, plaintext)
	keystream(out[TagSize:], key)
	for i, b := range plaintext {
		out[TagSize+i] ^= b
	}
	return out, nil
}

// Decrypt implements Provider.
func (s *Stream) Decrypt(key, ciphertext []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrCrypto)
	}
	if len(ciphertext) <= TagSize {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", ErrCrypto, len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext)-TagSize)
	keystream(plaintext, key)
	for i := range plaintext {
		plaintext[i] ^= ciphertext[TagSize+i]
	}

	var want [TagSize]byte
	tag(want[:], key, plaintext)
	if !bytes.Equal(want[:], ciphertext[:TagSize]) {
		return nil, ErrNoMatch
	}
	return plaintext, nil
}

func keystream(dst, key []byte) {
	h := sha3.NewShake256()
	h.Write([]byte("stream"))
	h.Write(key)
	h.Read(dst)
}

func tag(dst, key, plaintext []byte) {
	h := sha3.NewShake256()
	h.Write([]byte("tag"))
	h.Write(key)
	h.Write(plaintext)
	h.Read(dst)
}

// Init runs a round-trip self test of p using random material from r.
// A failure means the process cannot run rounds and should exit.
func Init(p Provider, r Random) error {
	key, err := r.Bytes(2)
	if err != nil {
		return fmt.Errorf("self test key: %w", err)
	}
	msg := []byte("self-test")

	ct, err := p.Encrypt(key, msg)
	if err != nil {
		return fmt.Errorf("self test encrypt: %w", err)
	}
	pt, err := p.Decrypt(key, ct)
	if err != nil {
		return fmt.Errorf("self test decrypt: %w", err)
	}
	if !bytes.Equal(pt, msg) {
		return fmt.Errorf("%w: self test round trip mismatch", ErrCrypto)
	}
	return nil
}
