// Package pool runs extraction tasks on a fixed set of workers fed by a
// bounded queue. Every submission returns a Future.
package pool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkloader/internal/metrics"
)

// Task is a unit of work. It returns the produced file paths.
type Task func(ctx context.Context) ([]string, error)

// Result is what a Future resolves to.
type Result struct {
	Paths    []string
	Err      error
	Duration time.Duration
}

// Future resolves once its task has run (or was abandoned at shutdown).
type Future struct {
	done   chan struct{}
	result Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(r Result) {
	f.result = r
	close(f.done)
}

// Wait blocks until the task finishes. It takes no context: callers collect
// every dispatched job before deciding an outcome.
func (f *Future) Wait() Result {
	<-f.done
	return f.result
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Config controls pool sizing.
type Config struct {
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

// Pool fans queued tasks out to workers.
type Pool struct {
	cfg    Config
	queue  *queue
	logger *zap.Logger

	startOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Pool. Call Start (or Run) before submitting.
func New(cfg Config, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{cfg: cfg, queue: newQueue(cfg.QueueSize), logger: logger}
}

// Start launches the workers. It is safe to call more than once.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go func(id int) {
				defer p.wg.Done()
				p.work(id)
			}(i)
		}
	})
}

// Run starts the workers and blocks until ctx finishes, then drains and
// waits for in-flight tasks.
func (p *Pool) Run(ctx context.Context) {
	p.Start()
	<-ctx.Done()
	p.Close()
}

// Close stops accepting work, lets workers finish what is queued and fails
// anything left behind with ErrClosed.
func (p *Pool) Close() {
	p.queue.close()
	p.wg.Wait()
	for _, it := range p.queue.drain() {
		it.future.resolve(Result{Err: ErrClosed})
	}
}

// Submit enqueues a task. The task runs detached from ctx cancellation; ctx
// only bounds the wait for queue space and carries values.
func (p *Pool) Submit(ctx context.Context, name string, task Task) (*Future, error) {
	f := newFuture()
	if err := p.queue.enqueue(ctx, item{ctx: ctx, name: name, task: task, future: f}); err != nil {
		return nil, fmt.Errorf("submit %s: %w", name, err)
	}
	return f, nil
}

func (p *Pool) work(id int) {
	logger := p.logger.With(zap.Int("worker", id))
	for {
		it, err := p.queue.dequeue(context.Background())
		if err != nil {
			return
		}
		logger.Debug("dequeued task", zap.String("task", it.name))
		it.future.resolve(p.execute(it))
	}
}

func (p *Pool) execute(it item) (res Result) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	ctx := context.WithoutCancel(it.ctx)
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				zap.String("task", it.name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res = Result{Err: fmt.Errorf("task %s panicked: %v", it.name, r)}
		}
		res.Duration = time.Since(start)
	}()

	paths, err := it.task(ctx)
	return Result{Paths: paths, Err: err}
}
