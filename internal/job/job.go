package job

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb/maptile"

	"github.com/lajos93/canvas-tile-api/internal/projection"
	"github.com/lajos93/canvas-tile-api/internal/tiles"
)

// Execution modes
const (
	ModeQueue   = "queue"
	ModeThreads = "threads"
)

// State of a job
type State string

const (
	Idle     State = "idle"
	Running  State = "running"
	Finished State = "finished"
	Stopped  State = "stopped"
	Failed   State = "failed"
)

// Coord explicit start coordinate
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Spec what a job renders
type Spec struct {
	Zooms      []int             `json:"zooms"`
	CategoryID *int              `json:"categoryId,omitempty"`
	Region     projection.Region `json:"region"`
	// Start overrides the stored resume anchor, single zoom jobs only
	Start *Coord `json:"start,omitempty"`
	Mode  string `json:"mode"`
	// Stitch renders through super-tile blocks
	Stitch bool `json:"stitch"`
	// Sparse renders only tiles holding at least one point
	Sparse bool `json:"sparse"`
}

// Snapshot point in time view of a job
type Snapshot struct {
	ID         string     `json:"id"`
	Spec       Spec       `json:"spec"`
	State      State      `json:"state"`
	Zoom       int        `json:"zoom"`
	TotalTiles int64      `json:"totalTiles"`
	Submitted  int64      `json:"submitted"`
	Completed  int64      `json:"completed"`
	Failed     int64      `json:"failed"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// TileHook observes every finished tile
type TileHook func(t maptile.Tile, res Result)

// Job a running or finished generation. Stop cancels only this job.
type Job struct {
	ID   string
	Spec Spec

	targets []tiles.Target
	rects   []projection.Rect

	total     atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	mu         sync.Mutex
	state      State
	zoom       int
	startedAt  time.Time
	finishedAt time.Time
	err        error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	hook   TileHook
}

// Stop sets the cancellation of this job; queued tiles still finish.
func (j *Job) Stop() {
	j.cancel()
}

// Done closed once the job reached Finished, Stopped or Failed.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job is over or ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnTile registers a hook, must be called before the job runs.
func (j *Job) OnTile(h TileHook) {
	j.hook = h
}

// Targets one per zoom, in run order
func (j *Job) Targets() []tiles.Target {
	return j.targets
}

// TotalTiles tiles the job covers, known before rendering starts
func (j *Job) TotalTiles() int64 {
	return j.total.Load()
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Snapshot{
		ID:         j.ID,
		Spec:       j.Spec,
		State:      j.state,
		Zoom:       j.zoom,
		TotalTiles: j.total.Load(),
		Submitted:  j.submitted.Load(),
		Completed:  j.completed.Load(),
		Failed:     j.failed.Load(),
		StartedAt:  j.startedAt,
	}
	if !j.finishedAt.IsZero() {
		at := j.finishedAt
		s.FinishedAt = &at
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	switch s {
	case Running:
		j.startedAt = time.Now()
	case Finished, Stopped, Failed:
		j.finishedAt = time.Now()
	}
	j.mu.Unlock()
}

func (j *Job) setZoom(z int) {
	j.mu.Lock()
	j.zoom = z
	j.mu.Unlock()
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	j.setState(Failed)
}

func (j *Job) record(t maptile.Tile, res Result) {
	switch r := res.(type) {
	case Success:
		j.completed.Add(1)
		tilesTotal.WithLabelValues("ok", "").Inc()
	case Failure:
		j.failed.Add(1)
		tilesTotal.WithLabelValues("failed", string(r.Reason)).Inc()
	}
	if j.hook != nil {
		j.hook(t, res)
	}
}
