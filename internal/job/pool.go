package job

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lajos93/canvas-tile-api/internal/tiles"
)

var errPoolClosed = errors.New("worker pool closed")

type request struct {
	ctx   context.Context
	task  Task
	reply chan Result
}

// Pool runs tasks on a fixed set of workers, each locked to its own OS thread
// so the CPU bound draw and encode of different tiles run in parallel.
// A panicking task is reported as a crash Failure; its worker keeps serving.
type Pool struct {
	handle   Handler
	requests chan request
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	log    logrus.FieldLogger
}

func NewPool(size int, handle Handler, log logrus.FieldLogger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{
		handle:   handle,
		requests: make(chan request),
		log:      log.WithField("component", "pool"),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	p.log.Debugf("worker pool started with %d threads", size)
	return p
}

func (p *Pool) worker(id int) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer p.wg.Done()

	for req := range p.requests {
		start := time.Now()
		req.reply <- run(req.ctx, p.handle, req.task)
		tileDuration.WithLabelValues(ModeThreads).Observe(time.Since(start).Seconds())
	}
	p.log.Debugf("worker %d exited", id)
}

// Execute hands task to a free worker and waits for its result.
func (p *Pool) Execute(ctx context.Context, task Task) Result {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return Failure{Reason: tiles.ReasonCrash, Err: errPoolClosed}
	}
	reply := make(chan Result, 1)
	p.requests <- request{ctx: ctx, task: task, reply: reply}
	p.mu.RUnlock()

	return <-reply
}

// Close stops the workers once the requests already handed over are done.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.requests)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
