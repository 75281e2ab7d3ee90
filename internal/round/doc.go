// Package round implements the round synchronization protocol between one
// producer and a pool of guessing workers.
//
// # Overview
//
// A round is one secret and its ciphertext, identified by a strictly
// increasing generation number. The Producer publishes a round, the Workers
// race to recover the secret by decrypting the ciphertext under random keys,
// and the first correct submission wins. If a timeout is configured and no
// worker wins in time, the producer abandons the round and publishes a new one.
//
// # Architecture
//
//	┌──────────────┐   publish (broadcast newRound)   ┌──────────────┐
//	│   Producer   │ ───────────────────────────────▶ │   Worker 0   │
//	│              │                                  │   Worker 1   │
//	│ GENERATE     │ ◀─────────────────────────────── │   ...        │
//	│ PUBLISH      │   win (signal roundWon)          │   Worker N-1 │
//	│ AWAIT_OUTCOME│                                  └──────────────┘
//	└──────┬───────┘                                         │
//	       │            ┌───────────────────────┐            │
//	       └──────────▶ │        State          │ ◀──────────┘
//	                    │ mu, newRound, roundWon│
//	                    │ generation, secret,   │
//	                    │ ciphertext, found,    │
//	                    │ winner                │
//	                    └───────────────────────┘
//
// # Synchronization
//
// State holds exactly one mutex and two condition variables bound to it.
// Every field of the round is read and written under that mutex, with two
// exceptions: generation and found are mirrored in atomics so a worker's
// guess loop can poll them without the lock. They are still only written
// while the mutex is held.
//
// The producer generates and publishes under the lock and broadcasts
// newRound before releasing it, so the generation bump and the wakeup are
// observed together. It then waits on roundWon, either indefinitely or until
// an absolute deadline. Waits are always loops over their predicate, so
// spurious wakeups and the deadline timer's broadcast are harmless.
//
// Workers wait on newRound until the generation differs from the last one
// they processed, copy the ciphertext out under the lock, and guess with the
// lock released. A printable candidate is submitted under the lock; if the
// round is already won the candidate is discarded before comparison, which
// makes the first submitter the only winner.
//
// # Late guesses
//
// A worker compares its candidate against whatever secret is current when it
// acquires the lock. A guess from a round that just timed out can therefore
// still win if it gets the lock before the producer generates the next
// round. The window is bounded by one round transition and is kept as is.
//
// # Cancellation
//
// Producer.Run and Worker.Run take a context. On cancellation both condition
// variables are broadcast so every suspended goroutine re-checks and returns.
package round
