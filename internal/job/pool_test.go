package job

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lajos93/canvas-tile-api/internal/projection"
	"github.com/lajos93/canvas-tile-api/internal/tiles"
)

func TestPoolResults(t *testing.T) {
	pool := NewPool(3, func(ctx context.Context, task Task) (string, error) {
		switch task.Tile.X {
		case 1:
			return "", &tiles.Failure{Reason: tiles.ReasonStorage, Err: errors.New("denied")}
		case 2:
			panic("draw exploded")
		}
		return task.Target.Key(task.Tile, "png"), nil
	}, testLogger())
	defer pool.Close()

	ctx := context.Background()
	target := tiles.Default(4)

	assert.Equal(t, Success{Key: "tiles/4/0/0.png"}, pool.Execute(ctx, Task{Target: target, Tile: projection.Tile(0, 0, 4)}))

	res := pool.Execute(ctx, Task{Target: target, Tile: projection.Tile(1, 0, 4)})
	require.IsType(t, Failure{}, res)
	assert.Equal(t, tiles.ReasonStorage, res.(Failure).Reason)

	res = pool.Execute(ctx, Task{Target: target, Tile: projection.Tile(2, 0, 4)})
	require.IsType(t, Failure{}, res)
	assert.Equal(t, tiles.ReasonCrash, res.(Failure).Reason)
	assert.ErrorContains(t, res.(Failure).Err, "draw exploded")

	// the crashed worker keeps serving
	assert.IsType(t, Success{}, pool.Execute(ctx, Task{Target: target, Tile: projection.Tile(3, 0, 4)}))
}

func TestPoolRunsConcurrently(t *testing.T) {
	const size = 4
	var (
		mu      sync.Mutex
		active  int
		peak    int
		arrived = make(chan struct{}, size)
		release = make(chan struct{})
	)
	pool := NewPool(size, func(ctx context.Context, task Task) (string, error) {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		arrived <- struct{}{}
		<-release
		mu.Lock()
		active--
		mu.Unlock()
		return "ok", nil
	}, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pool.Execute(context.Background(), Task{Tile: projection.Tile(i, 0, 3)})
		}(i)
	}
	for i := 0; i < size; i++ {
		<-arrived
	}
	close(release)
	wg.Wait()
	pool.Close()

	assert.Equal(t, size, peak)
}

func TestPoolClosed(t *testing.T) {
	pool := NewPool(1, func(ctx context.Context, task Task) (string, error) { return "ok", nil }, testLogger())
	pool.Close()
	pool.Close()

	res := pool.Execute(context.Background(), Task{})
	require.IsType(t, Failure{}, res)
	assert.ErrorIs(t, res.(Failure).Err, errPoolClosed)
}

func TestDirectRecoversPanics(t *testing.T) {
	d := NewDirect(func(ctx context.Context, task Task) (string, error) {
		panic("boom")
	})

	res := d.Execute(context.Background(), Task{})
	require.IsType(t, Failure{}, res)
	assert.Equal(t, tiles.ReasonCrash, res.(Failure).Reason)
}
