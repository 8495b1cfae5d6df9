package job

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"

	"github.com/lajos93/canvas-tile-api/internal/payload"
	"github.com/lajos93/canvas-tile-api/internal/projection"
	"github.com/lajos93/canvas-tile-api/internal/status"
	"github.com/lajos93/canvas-tile-api/internal/storage"
	"github.com/lajos93/canvas-tile-api/internal/tiles"
)

// StatusUpdater persists job progress.
type StatusUpdater interface {
	Update(ctx context.Context, u status.Update) (status.Document, error)
}

// Options orchestrator wide settings
type Options struct {
	// Workers tiles in flight in queue mode
	Workers int
	// Threads OS threads of the worker pool in threads mode
	Threads int
	// Region used when a spec has none
	Region projection.Region
}

// Orchestrator walks the tile rectangles of a job and feeds the executor.
type Orchestrator struct {
	pipeline *tiles.Pipeline
	source   payload.Source
	status   StatusUpdater
	opts     Options
	log      logrus.FieldLogger

	// newExecutor replaces the mode based executor, tests only
	newExecutor func(mode string) (Executor, func())
}

func NewOrchestrator(pipeline *tiles.Pipeline, source payload.Source, st StatusUpdater, opts Options, log logrus.FieldLogger) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.Region.IsZero() {
		opts.Region = projection.Hungary
	}
	return &Orchestrator{
		pipeline: pipeline,
		source:   source,
		status:   st,
		opts:     opts,
		log:      log.WithField("component", "orchestrator"),
	}
}

// Prepare validates spec, resolves its targets and counts its tiles. The
// returned job lives until parent ends or Stop is called.
func (o *Orchestrator) Prepare(parent context.Context, spec Spec) (*Job, error) {
	if len(spec.Zooms) == 0 {
		return nil, fmt.Errorf("%w: no zoom level", tiles.ErrInvalidInput)
	}
	switch spec.Mode {
	case "":
		spec.Mode = ModeQueue
	case ModeQueue, ModeThreads:
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", tiles.ErrInvalidInput, spec.Mode)
	}
	if spec.Region.IsZero() {
		spec.Region = o.opts.Region
	}
	if err := spec.Region.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", tiles.ErrInvalidInput, err)
	}
	if spec.Start != nil && len(spec.Zooms) != 1 {
		return nil, fmt.Errorf("%w: start coordinate needs exactly one zoom", tiles.ErrInvalidInput)
	}
	if spec.CategoryID != nil {
		if err := o.pipeline.CheckIcon(*spec.CategoryID); err != nil {
			return nil, err
		}
	}

	job := &Job{
		Spec:  spec,
		state: Idle,
		done:  make(chan struct{}),
	}
	for _, z := range spec.Zooms {
		target, err := o.pipeline.Target(parent, z, spec.CategoryID)
		if err != nil {
			return nil, err
		}
		rect := spec.Region.Rect(z)
		if spec.Start != nil && !rect.Contains(spec.Start.X, spec.Start.Y) {
			return nil, fmt.Errorf("%w: start %d/%d outside %+v", tiles.ErrInvalidInput, spec.Start.X, spec.Start.Y, rect)
		}
		job.targets = append(job.targets, target)
		job.rects = append(job.rects, rect)
		if !spec.Sparse {
			job.total.Add(rect.Count())
		}
	}
	job.ctx, job.cancel = context.WithCancel(parent)
	return job, nil
}

// Run executes a prepared job to its end and returns once every submitted
// tile finished. Tile failures are logged and skipped.
func (o *Orchestrator) Run(job *Job) error {
	defer close(job.done)
	defer job.cancel()

	ctx := job.ctx
	// status writes and in-flight tiles outlive a stop
	bg := context.WithoutCancel(ctx)
	log := o.log.WithField("job", job.ID)

	exec, closeExec := o.executor(job.Spec.Mode)
	defer closeExec()

	jobsRunning.Inc()
	defer jobsRunning.Dec()

	job.setState(Running)
	o.updateStatus(bg, status.Update{Status: status.Running, StartedAt: job.Snapshot().StartedAt})

	var sparse [][]maptile.Tile
	if job.Spec.Sparse {
		var err error
		// a stop during planning is caught by the loop below
		if sparse, err = o.occupied(ctx, job); err != nil && ctx.Err() == nil {
			return o.abort(bg, job, err)
		}
	}
	log.Infof("job started, %d zoom levels, %d tiles, mode %s", len(job.targets), job.TotalTiles(), job.Spec.Mode)

	stopped := false
	for i, target := range job.targets {
		if ctx.Err() != nil {
			stopped = true
			break
		}
		job.setZoom(target.Zoom)

		var tilesOf []maptile.Tile
		if sparse != nil {
			tilesOf = sparse[i]
		}
		seq, err := o.sequence(ctx, job, i, tilesOf)
		if err != nil {
			if ctx.Err() != nil {
				stopped = true
				break
			}
			return o.abort(bg, job, err)
		}

		start := time.Now()
		if o.runTarget(ctx, job, target, seq, exec) {
			stopped = true
			break
		}
		zoom := target.Zoom
		o.updateStatus(bg, status.Update{CategoryKey: target.CategoryKey(), Zoom: &zoom})
		log.Infof("%s finished in %.3fs", target, time.Since(start).Seconds())
	}

	if stopped {
		job.setState(Stopped)
		o.updateStatus(bg, status.Update{Status: status.Stopped, FinishedAt: time.Now()})
		log.Infof("job stopped, %d of %d submitted tiles done, %d failed", job.completed.Load(), job.submitted.Load(), job.failed.Load())
		return nil
	}
	job.setState(Finished)
	o.updateStatus(bg, status.Update{Status: status.Finished, FinishedAt: time.Now()})
	log.Infof("job finished, %d tiles done, %d failed", job.completed.Load(), job.failed.Load())
	return nil
}

func (o *Orchestrator) abort(ctx context.Context, job *Job, err error) error {
	job.fail(err)
	o.updateStatus(ctx, status.Update{Status: status.Failed, FinishedAt: time.Now()})
	o.log.WithField("job", job.ID).Errorf("job failed, details: %s", err)
	return err
}

// runTarget submits the tiles of seq and waits for them. It reports whether
// the job was stopped before seq was exhausted.
func (o *Orchestrator) runTarget(ctx context.Context, job *Job, target tiles.Target, seq sequence, exec Executor) (stopped bool) {
	bound := o.opts.Workers
	if job.Spec.Mode == ModeThreads && o.opts.Threads > 0 {
		bound = o.opts.Threads
	}
	sem := make(chan struct{}, bound)
	taskCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup

	for {
		t, ok := seq.next()
		if !ok {
			break
		}
		// cooperative checkpoint, nothing is submitted after a stop
		if ctx.Err() != nil {
			stopped = true
		} else {
			select {
			case sem <- struct{}{}:
				if ctx.Err() != nil {
					<-sem
					stopped = true
				}
			case <-ctx.Done():
				stopped = true
			}
		}
		if stopped {
			o.log.WithField("job", job.ID).Infof("%s stopped before tile x=%d, y=%d", target, t.X, t.Y)
			break
		}

		job.submitted.Add(1)
		wg.Add(1)
		go func(t maptile.Tile) {
			defer func() {
				<-sem
				wg.Done()
			}()
			res := exec.Execute(taskCtx, Task{Target: target, Tile: t, Stitch: job.Spec.Stitch})
			if f, ok := res.(Failure); ok {
				o.log.WithFields(logrus.Fields{"z": t.Z, "x": t.X, "y": t.Y, "target": target.CategoryKey()}).
					Errorf("tile skipped, details: %s", f)
			}
			job.record(t, res)
		}(t)
	}

	wg.Wait()
	return stopped
}

// sequence resolves where target i starts: the explicit start, else the tile
// after the stored resume anchor, else the rectangle start.
func (o *Orchestrator) sequence(ctx context.Context, job *Job, i int, occupied []maptile.Tile) (sequence, error) {
	target, rect := job.targets[i], job.rects[i]
	log := o.log.WithField("job", job.ID)

	var (
		x, y int
		ok   = true
	)
	switch {
	case job.Spec.Start != nil:
		x, y = job.Spec.Start.X, job.Spec.Start.Y
	default:
		anchor, found, err := storage.LastTile(ctx, o.pipeline.Store(), target.Slug, target.Zoom)
		if err != nil {
			return nil, err
		}
		if found {
			x, y, ok = rect.ResumeAfter(int(anchor.X), int(anchor.Y))
			log.Infof("%s resuming after x=%d, y=%d", target, anchor.X, anchor.Y)
		} else {
			x, y = rect.Start()
		}
	}

	if occupied != nil {
		return newListSeq(occupied, x, y, ok), nil
	}
	return &rectSeq{rect: rect, x: x, y: y, ok: ok}, nil
}

// occupied tiles holding at least one point, per target, row-major sorted
func (o *Orchestrator) occupied(ctx context.Context, job *Job) ([][]maptile.Tile, error) {
	points, err := o.source.Points(ctx, payload.Query{BBox: job.Spec.Region.BBox(), CategoryID: job.Spec.CategoryID})
	if err != nil {
		return nil, fmt.Errorf("fetch region points: %w", err)
	}

	out := make([][]maptile.Tile, len(job.targets))
	for i, target := range job.targets {
		rect := job.rects[i]
		set := make(map[maptile.Tile]struct{})
		for _, p := range points {
			t := projection.TileAt(p.Lon, p.Lat, target.Zoom)
			if rect.Contains(int(t.X), int(t.Y)) {
				set[t] = struct{}{}
			}
		}
		list := make([]maptile.Tile, 0, len(set))
		for t := range set {
			list = append(list, t)
		}
		sort.Slice(list, func(a, b int) bool {
			if list[a].X != list[b].X {
				return list[a].X < list[b].X
			}
			return list[a].Y < list[b].Y
		})
		out[i] = list
		job.total.Add(int64(len(list)))
		o.log.WithField("job", job.ID).Infof("%s: %d tiles hold points", target, len(list))
	}
	return out, nil
}

func (o *Orchestrator) executor(mode string) (Executor, func()) {
	if o.newExecutor != nil {
		return o.newExecutor(mode)
	}
	handle := func(ctx context.Context, task Task) (string, error) {
		return o.pipeline.Generate(ctx, task.Target, task.Tile, task.Stitch)
	}
	if mode == ModeThreads {
		pool := NewPool(o.opts.Threads, handle, o.log)
		return pool, pool.Close
	}
	return NewDirect(handle), func() {}
}

func (o *Orchestrator) updateStatus(ctx context.Context, u status.Update) {
	if o.status == nil {
		return
	}
	if _, err := o.status.Update(ctx, u); err != nil {
		o.log.Warnf("status update error, details: %s", err)
	}
}

type sequence interface {
	next() (maptile.Tile, bool)
}

// rectSeq row-major walk of a rectangle from x/y
type rectSeq struct {
	rect    projection.Rect
	x, y    int
	ok      bool
	started bool
}

func (s *rectSeq) next() (maptile.Tile, bool) {
	if !s.ok {
		return maptile.Tile{}, false
	}
	if s.started {
		s.x, s.y, s.ok = s.rect.Next(s.x, s.y)
		if !s.ok {
			return maptile.Tile{}, false
		}
	}
	s.started = true
	return projection.Tile(s.x, s.y, s.rect.Z), true
}

// listSeq walks a sorted tile list from the first tile at or after x/y
type listSeq struct {
	tiles []maptile.Tile
	i     int
}

func newListSeq(list []maptile.Tile, x, y int, ok bool) *listSeq {
	if !ok {
		return &listSeq{}
	}
	i := sort.Search(len(list), func(i int) bool {
		t := list[i]
		return int(t.X) > x || (int(t.X) == x && int(t.Y) >= y)
	})
	return &listSeq{tiles: list, i: i}
}

func (s *listSeq) next() (maptile.Tile, bool) {
	if s.i >= len(s.tiles) {
		return maptile.Tile{}, false
	}
	t := s.tiles[s.i]
	s.i++
	return t, true
}
