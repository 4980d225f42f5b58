package attempt

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxWorkers is used when a pool is created with no workers.
const DefaultMaxWorkers = 1

// Pool runs attempts on a fixed number of workers. Enqueue never blocks;
// attempts wait in a FIFO queue until a worker is free.
type Pool struct {
	runner *Runner
	policy RetryPolicy

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []string
	stopped bool

	jobs    sync.WaitGroup
	workers sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewPool starts workers that run attempts with r, retrying retryable errors
// under policy.
func NewPool(r *Runner, workers int, policy RetryPolicy) *Pool {
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{runner: r, policy: policy, ctx: ctx, cancel: cancel}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < workers; i++ {
		p.workers.Add(1)
		go p.runWorker()
	}
	return p
}

// Enqueue schedules attempt id. It returns false once the pool is stopped.
func (p *Pool) Enqueue(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.jobs.Add(1)
	p.queue = append(p.queue, id)
	p.cond.Signal()
	return true
}

// WaitUntilProcessed blocks until the queue is empty and all workers are idle.
func (p *Pool) WaitUntilProcessed() {
	p.jobs.Wait()
}

// Stop cancels running attempts, drops queued ones and waits for the workers
// to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	dropped := len(p.queue)
	p.queue = nil
	p.cond.Broadcast()
	p.mu.Unlock()
	for i := 0; i < dropped; i++ {
		p.jobs.Done()
	}
	p.cancel()
	p.workers.Wait()
}

func (p *Pool) next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.stopped {
		p.cond.Wait()
	}
	if p.stopped {
		return "", false
	}
	id := p.queue[0]
	p.queue = p.queue[1:]
	return id, true
}

func (p *Pool) runWorker() {
	defer p.workers.Done()
	for {
		id, ok := p.next()
		if !ok {
			return
		}
		p.run(id)
		p.jobs.Done()
	}
}

func (p *Pool) run(id string) {
	tries := 0
	err := Retry(p.ctx, p.policy, func() error {
		tries++
		if tries > 1 {
			p.runner.metrics.Retries.Inc(1)
		}
		return p.runOnce(id)
	})
	if err == nil {
		return
	}
	entry := log.WithError(err).WithFields(log.Fields{
		"attempt_id": id,
		"tries":      tries,
		"retryable":  IsRetryable(err),
	})
	if p.ctx.Err() != nil {
		entry.Warn("attempt interrupted by shutdown")
		return
	}
	entry.Error("attempt failed")
	if err := p.runner.Abandon(p.ctx, id, err); err != nil {
		log.WithError(err).WithField("attempt_id", id).Error("recording failed attempt")
	}
}

// runOnce turns a panic in the pipeline into an error that is not retried.
func (p *Pool) runOnce(id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("attempt panicked: %v", r)
		}
	}()
	return p.runner.Run(p.ctx, id)
}
