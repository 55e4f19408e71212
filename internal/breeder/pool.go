package breeder

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/exp/constraints"
)

type span struct {
	lower, upper int
}

// partition splits [0, n) into workers contiguous spans. The last span absorbs
// the remainder.
func partition(n, workers int) []span {
	if workers > n {
		workers = n
	}
	if workers <= 0 {
		return nil
	}
	step := n / workers
	spans := make([]span, workers)
	for i := range spans {
		spans[i] = span{lower: i * step, upper: (i + 1) * step}
	}
	spans[workers-1].upper = n
	return spans
}

// workerPool scores a population with long-lived goroutines, each owning one
// span for its whole life. The mutex and cond guard only the processed flags;
// population writes are safe because spans are disjoint and the coordinator
// touches the population only between rounds.
type workerPool[G any, F constraints.Ordered] struct {
	population Population[G, F]
	scorer     Scorer[G, F]
	spans      []span

	mu        sync.Mutex
	cond      *sync.Cond
	processed []bool
	ctx       context.Context
	cancel    context.CancelFunc

	faults    []error
	round     sync.WaitGroup
	workers   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
	timeout   time.Duration
}

// newWorkerPool starts the workers. The population length must not change
// while the pool is alive.
func newWorkerPool[G any, F constraints.Ordered](population Population[G, F], scorer Scorer[G, F], workers int, timeout time.Duration) *workerPool[G, F] {
	spans := partition(len(population), workers)
	ctx, cancel := context.WithCancel(context.Background())
	p := &workerPool[G, F]{
		population: population,
		scorer:     scorer,
		spans:      spans,
		processed:  make([]bool, len(spans)),
		faults:     make([]error, len(spans)),
		ctx:        ctx,
		cancel:     cancel,
		timeout:    timeout,
	}
	p.cond = sync.NewCond(&p.mu)
	for i := range p.processed {
		p.processed[i] = true
	}

	p.workers.Add(len(spans))
	for i, s := range spans {
		go p.work(i, s)
	}
	return p
}

func (p *workerPool[G, F]) work(idx int, s span) {
	defer p.workers.Done()
	for {
		p.mu.Lock()
		for p.processed[idx] && p.ctx.Err() == nil {
			p.cond.Wait()
		}
		if p.ctx.Err() != nil {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		p.faults[idx] = scoreRange(p.population, p.scorer, s.lower, s.upper)

		p.mu.Lock()
		p.processed[idx] = true
		p.mu.Unlock()
		p.round.Done()
	}
}

// scoreAll runs one round and blocks until every worker has finished its span.
func (p *workerPool[G, F]) scoreAll() error {
	if p.ctx.Err() != nil {
		return errors.New("worker pool is closed")
	}
	p.round.Add(len(p.spans))
	p.mu.Lock()
	for i := range p.processed {
		p.processed[i] = false
	}
	p.cond.Broadcast()
	p.mu.Unlock()
	p.round.Wait()

	return errors.Join(p.faults...)
}

// idle reports whether every worker has flagged its span as processed.
func (p *workerPool[G, F]) idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, done := range p.processed {
		if !done {
			return false
		}
	}
	return true
}

// close signals every worker to exit and joins them. Only the first call has
// any effect; later calls return the first result.
func (p *workerPool[G, F]) close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.cancel()
		p.cond.Broadcast()
		p.mu.Unlock()

		joined := make(chan struct{})
		go func() {
			p.workers.Wait()
			close(joined)
		}()
		if p.timeout <= 0 {
			<-joined
			return
		}
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		select {
		case <-joined:
		case <-timer.C:
			p.closeErr = ErrShutdownTimeout
		}
	})
	return p.closeErr
}
