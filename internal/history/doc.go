// Package history keeps a bounded record of finished rounds.
//
// The producer hands every finished round to a Recorder; MemoryStore is the
// implementation used by the command. It keeps the most recent rounds in
// memory for the status API and can export them as YAML when the process
// shuts down.
//
// Stored entries are display-ready: the secret and the recovered plaintext
// are rendered with the printable policy, key and ciphertext as hex. Raw
// round bytes are never retained.
//
// Thread safety: all MemoryStore methods are safe for concurrent use. Read
// methods return copies.
package history
