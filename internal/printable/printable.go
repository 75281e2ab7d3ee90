// Package printable implements the printable-byte policy shared by the round
// controller, the workers and the log output.
//
// A byte is printable when it falls in the ASCII range 0x20 (space) through
// 0x7e (tilde), the same set the C locale's isprint accepts. Secrets are only
// ever generated from this set and workers only ever submit candidates made of
// it, so the policy doubles as a cheap filter on brute-force noise.
package printable

import "strings"

// Placeholder replaces non-printable bytes when rendering.
const Placeholder = '.'

// Source yields uniformly random bytes. cipher.Random satisfies it.
type Source interface {
	Bytes(n int) ([]byte, error)
}

// IsPrintableByte reports whether b is in the printable ASCII range.
func IsPrintableByte(b byte) bool {
	return b >= 0x20 && b <= 0x7e
}

// IsPrintable reports whether every byte of data is printable.
// An empty slice is considered printable.
func IsPrintable(data []byte) bool {
	for _, b := range data {
		if !IsPrintableByte(b) {
			return false
		}
	}
	return true
}

// Render returns data as a string with every non-printable byte replaced
// by Placeholder.
//
// Example:
//
//	Render([]byte{'a', 0x00, 'b'}) // "a.b"
func Render(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data))
	for _, b := range data {
		if IsPrintableByte(b) {
			sb.WriteByte(b)
		} else {
			sb.WriteByte(Placeholder)
		}
	}
	return sb.String()
}

// Fill returns n random printable bytes drawn from src.
//
// Implementation:
//  1. Draw n random bytes in one call
//  2. Resample each non-printable byte individually until it is printable
//
// Returns the first error reported by src.
func Fill(src Source, n int) ([]byte, error) {
	buf, err := src.Bytes(n)
	if err != nil {
		return nil, err
	}
	for i := range buf {
		for !IsPrintableByte(buf[i]) {
			one, err := src.Bytes(1)
			if err != nil {
				return nil, err
			}
			buf[i] = one[0]
		}
	}
	return buf, nil
}
