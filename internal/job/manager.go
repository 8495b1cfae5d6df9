package job

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
)

// ErrNoJob no job with that id
var ErrNoJob = errors.New("no such job")

// Manager runs jobs in the background. Every job gets its own cancellation,
// so stopping one leaves the others running.
type Manager struct {
	orch *Orchestrator
	base context.Context
	log  logrus.FieldLogger

	mu   sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewManager jobs are children of base; cancelling base stops all of them.
func NewManager(base context.Context, orch *Orchestrator, log logrus.FieldLogger) *Manager {
	return &Manager{
		orch: orch,
		base: base,
		log:  log.WithField("component", "jobs"),
		jobs: make(map[string]*Job),
	}
}

// Start validates spec synchronously and runs the job asynchronously.
func (m *Manager) Start(spec Spec, hooks ...TileHook) (*Job, error) {
	job, err := m.orch.Prepare(m.base, spec)
	if err != nil {
		return nil, err
	}
	id, err := shortid.Generate()
	if err != nil {
		job.cancel()
		return nil, fmt.Errorf("job id: %w", err)
	}
	job.ID = id
	if len(hooks) > 0 {
		job.OnTile(func(t maptile.Tile, res Result) {
			for _, h := range hooks {
				h(t, res)
			}
		})
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.orch.Run(job)
	}()
	m.log.Infof("job %s started, zooms %v", id, spec.Zooms)
	return job, nil
}

// Get job by id
func (m *Manager) Get(id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoJob, id)
	}
	return job, nil
}

// Stop one job
func (m *Manager) Stop(id string) error {
	job, err := m.Get(id)
	if err != nil {
		return err
	}
	job.Stop()
	m.log.Infof("job %s stop requested", id)
	return nil
}

// StopAll stops every running job and returns how many were running.
func (m *Manager) StopAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, job := range m.jobs {
		select {
		case <-job.Done():
		default:
			job.Stop()
			n++
		}
	}
	m.log.Infof("stop requested for %d running jobs", n)
	return n
}

// List snapshots, newest first
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	out := make([]Snapshot, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.Snapshot())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Wait blocks until every started job returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}
