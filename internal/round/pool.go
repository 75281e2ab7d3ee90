package round

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/dreamware/cracker/internal/cipher"
	"github.com/dreamware/cracker/internal/logging"
)

// Pool runs a fixed set of workers against one State.
// Thread-safe: Stats may be called while the pool is running.
type Pool struct {
	workers []*Worker
	errs    []error
	mu      sync.Mutex // protects errs
	wg      sync.WaitGroup
}

// NewPool creates n workers numbered 0..n-1. A pool of zero workers is
// valid; the producer then only ever times out.
func NewPool(n int, state *State, provider cipher.Provider, random cipher.Random, logger *logging.Logger) *Pool {
	p := &Pool{workers: make([]*Worker, 0, n)}
	for i := 0; i < n; i++ {
		p.workers = append(p.workers, NewWorker(i, state, provider, random, logger))
	}
	return p
}

// Start launches every worker in its own goroutine. Workers stop when ctx
// is cancelled; use Wait to block until they have all returned.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			if err := w.Run(ctx); err != nil {
				log.Printf("worker %d stopped: %v", w.ID, err)
				p.mu.Lock()
				p.errs = append(p.errs, err)
				p.mu.Unlock()
			}
		}(w)
	}
}

// Wait blocks until every worker has returned and reports their errors.
func (p *Pool) Wait() error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Stats returns every worker's counters ordered by worker id.
func (p *Pool) Stats() []WorkerStats {
	out := make([]WorkerStats, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.Stats()
	}
	return out
}
