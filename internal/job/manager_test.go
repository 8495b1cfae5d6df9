package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lajos93/canvas-tile-api/internal/projection"
	"github.com/lajos93/canvas-tile-api/internal/tiles"
)

// zoomGate blocks every tile of one zoom until released
type zoomGate struct {
	zoom    int
	started chan struct{}
	release chan struct{}
}

func (g *zoomGate) Execute(ctx context.Context, task Task) Result {
	if int(task.Tile.Z) == g.zoom {
		g.started <- struct{}{}
		<-g.release
	}
	return Success{Key: task.Target.Key(task.Tile, "png")}
}

func waitDone(t *testing.T, job *Job) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, job.Wait(ctx))
}

func TestManagerStopsJobsIndependently(t *testing.T) {
	f := newFixture(t, nil)
	gate := &zoomGate{zoom: 10, started: make(chan struct{}, 512), release: make(chan struct{})}
	f.orch.newExecutor = func(string) (Executor, func()) { return gate, func() {} }
	m := NewManager(context.Background(), f.orch, testLogger())

	slow, err := m.Start(Spec{Zooms: []int{10}, Region: projection.Hungary})
	require.NoError(t, err)
	<-gate.started

	var (
		mu   sync.Mutex
		seen []maptile.Tile
	)
	fast, err := m.Start(budapest(11), func(tile maptile.Tile, res Result) {
		mu.Lock()
		seen = append(seen, tile)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.NotEqual(t, slow.ID, fast.ID)

	waitDone(t, fast)
	assert.Equal(t, Finished, fast.Snapshot().State)
	assert.Len(t, seen, int(fast.TotalTiles()))

	require.NoError(t, m.Stop(slow.ID))
	close(gate.release)
	waitDone(t, slow)
	assert.Equal(t, Stopped, slow.Snapshot().State)

	m.Wait()
	assert.Len(t, m.List(), 2)
}

func TestManagerErrors(t *testing.T) {
	f := newFixture(t, nil)
	m := NewManager(context.Background(), f.orch, testLogger())

	_, err := m.Start(Spec{})
	assert.ErrorIs(t, err, tiles.ErrInvalidInput)
	assert.ErrorIs(t, m.Stop("nope"), ErrNoJob)
	assert.Empty(t, m.List())
}

func TestManagerStopAll(t *testing.T) {
	f := newFixture(t, nil)
	gate := &zoomGate{zoom: 9, started: make(chan struct{}, 512), release: make(chan struct{})}
	f.orch.newExecutor = func(string) (Executor, func()) { return gate, func() {} }
	base, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager(base, f.orch, testLogger())

	a, err := m.Start(Spec{Zooms: []int{9}, Region: projection.Hungary})
	require.NoError(t, err)
	b, err := m.Start(Spec{Zooms: []int{9}, Region: projection.Hungary, CategoryID: intPtr(15)})
	require.NoError(t, err)
	<-gate.started
	<-gate.started

	assert.Equal(t, 2, m.StopAll())
	close(gate.release)
	waitDone(t, a)
	waitDone(t, b)
	assert.Equal(t, Stopped, a.Snapshot().State)
	assert.Equal(t, Stopped, b.Snapshot().State)
	assert.Zero(t, m.StopAll())
}

func intPtr(v int) *int { return &v }
