package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"neon-storyboard-server/modules/common/metrics"
)

// Pool runs each job in its own goroutine. At most maxConcurrent jobs run at
// once; 0 means unlimited.
type Pool struct {
	runner  Runner
	sem     *semaphore.Weighted
	log     *zap.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool - 인메모리 디스패처
func NewPool(runner Runner, maxConcurrent int, log *zap.Logger, m *metrics.Metrics) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		runner:  runner,
		log:     log,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
	if maxConcurrent > 0 {
		p.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return p
}

// Submit starts job in the background.
func (p *Pool) Submit(_ context.Context, job Job) error {
	if err := p.dispatch(job); err != nil {
		return err
	}
	p.metrics.JobEnqueued(string(job.Kind))
	return nil
}

func (p *Pool) dispatch(job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.wg.Add(1)
	go p.execute(job)
	return nil
}

func (p *Pool) execute(job Job) {
	defer p.wg.Done()
	log := p.log.With(
		zap.String("job_id", job.JobID),
		zap.String("session_id", job.SessionID),
		zap.String("scene_id", job.SceneID),
		zap.String("kind", string(job.Kind)),
	)

	if p.sem != nil {
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			log.Warn("Job dropped before start", zap.Error(err))
			return
		}
		defer p.sem.Release(1)
	}

	start := time.Now()
	log.Info("Processing job")
	if err := p.runner.Run(p.ctx, job); err != nil {
		log.Warn("Job finished with error", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	log.Info("Job completed", zap.Duration("elapsed", time.Since(start)))
}

// Shutdown stops accepting jobs and waits for running ones. When ctx expires
// first, running jobs are cancelled and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
