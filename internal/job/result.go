package job

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/lajos93/canvas-tile-api/internal/tiles"
)

// Task one tile of a job
type Task struct {
	Target tiles.Target
	Tile   maptile.Tile
	Stitch bool
}

// Result outcome of a Task, either Success or Failure.
type Result interface {
	result()
}

// Success tile uploaded under Key
type Success struct {
	Key string
}

// Failure tile skipped
type Failure struct {
	Reason tiles.Reason
	Err    error
}

func (Success) result() {}
func (Failure) result() {}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

// Executor runs tasks; implementations differ only in where the work runs.
type Executor interface {
	Execute(ctx context.Context, task Task) Result
}

// Handler the work of one task
type Handler func(ctx context.Context, task Task) (string, error)

// Direct runs tasks on the calling goroutine.
type Direct struct {
	handle Handler
}

func NewDirect(handle Handler) *Direct {
	return &Direct{handle: handle}
}

func (d *Direct) Execute(ctx context.Context, task Task) Result {
	start := time.Now()
	defer func() { tileDuration.WithLabelValues(ModeQueue).Observe(time.Since(start).Seconds()) }()
	return run(ctx, d.handle, task)
}

// run calls handle, turning errors and panics into a Failure.
func run(ctx context.Context, handle Handler, task Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure{Reason: tiles.ReasonCrash, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	key, err := handle(ctx, task)
	if err != nil {
		return Failure{Reason: tiles.ReasonOf(err), Err: err}
	}
	return Success{Key: key}
}
