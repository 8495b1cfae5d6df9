package appender

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/lajos93/canvas-tile-api/internal/payload"
	"github.com/lajos93/canvas-tile-api/internal/storage"
	"github.com/lajos93/canvas-tile-api/internal/tiles"
)

type creatorFunc func(ctx context.Context, t payload.NewTree) (payload.CreatedTree, error)

func (f creatorFunc) CreateTree(ctx context.Context, t payload.NewTree) (payload.CreatedTree, error) {
	return f(ctx, t)
}

var runAt = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func newWorkflow(f *fixture, creator TreeCreator) *Workflow {
	log := logrus.New()
	log.SetOutput(io.Discard)
	w := NewWorkflow(creator, f.appender, log)
	w.now = func() time.Time { return runAt }
	return w
}

func (f *fixture) addTreeRecord(t *testing.T) (string, AddTreeRecord) {
	t.Helper()
	keys, err := f.store.List(context.Background(), storage.AddTreeRoot+"/")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	data, err := f.store.Get(context.Background(), keys[0])
	require.NoError(t, err)
	var rec AddTreeRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	return keys[0], rec
}

func TestAddTree(t *testing.T) {
	f := newFixture(t)
	f.source.EXPECT().Points(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	var inserted payload.NewTree
	w := newWorkflow(f, creatorFunc(func(ctx context.Context, tree payload.NewTree) (payload.CreatedTree, error) {
		inserted = tree
		return payload.CreatedTree{ID: payload.IntPtr(41), CategoryID: payload.IntPtr(15)}, nil
	}))

	rec, err := w.AddTree(context.Background(), AddTreeRequest{Lat: budapest.Lat, Lon: budapest.Lon, SpeciesID: 3, County: "Pest"})
	require.NoError(t, err)

	assert.Equal(t, payload.NewTree{SpeciesID: 3, Lat: budapest.Lat, Lon: budapest.Lon, County: "Pest"}, inserted)
	assert.True(t, rec.Phases.DBInsert.OK)
	assert.True(t, rec.Phases.AppendIcon.OK)
	assert.Equal(t, 2*len(DefaultZooms()), rec.Phases.AppendIcon.TilesUpdated)
	assert.Equal(t, "alma", rec.Phases.AppendIcon.CategorySlug)
	assert.Equal(t, payload.IntPtr(41), rec.TreeID)

	key, stored := f.addTreeRecord(t)
	assert.Equal(t, storage.AddTreeKey(runAt, "41"), key)
	assert.Equal(t, "add-tree-workflow", stored.Type)
	assert.Empty(t, stored.Error)
}

func TestAddTreeInsertFails(t *testing.T) {
	f := newFixture(t)
	f.source.EXPECT().Points(gomock.Any(), gomock.Any()).Times(0)
	w := newWorkflow(f, creatorFunc(func(context.Context, payload.NewTree) (payload.CreatedTree, error) {
		return payload.CreatedTree{}, errors.New("payload create tree error: 500")
	}))

	rec, err := w.AddTree(context.Background(), AddTreeRequest{Lat: budapest.Lat, Lon: budapest.Lon, SpeciesID: 3})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPartial)
	assert.False(t, rec.Phases.DBInsert.OK)
	assert.False(t, rec.Phases.AppendIcon.OK)

	key, stored := f.addTreeRecord(t)
	assert.Equal(t, storage.AddTreeKey(runAt, "failed"), key)
	assert.Contains(t, stored.Error, "500")
}

func TestAddTreeAppendFailsIsPartial(t *testing.T) {
	f := newFixture(t)
	f.source.EXPECT().Points(gomock.Any(), gomock.Any()).Return(nil, payload.ErrTransient).AnyTimes()
	w := newWorkflow(f, creatorFunc(func(context.Context, payload.NewTree) (payload.CreatedTree, error) {
		return payload.CreatedTree{ID: payload.IntPtr(42)}, nil
	}))

	rec, err := w.AddTree(context.Background(), AddTreeRequest{Lat: budapest.Lat, Lon: budapest.Lon, SpeciesID: 3})
	require.ErrorIs(t, err, ErrPartial)
	assert.True(t, rec.Phases.DBInsert.OK)
	assert.False(t, rec.Phases.AppendIcon.OK)
	assert.NotEmpty(t, rec.Phases.AppendIcon.Error)

	key, _ := f.addTreeRecord(t)
	assert.Equal(t, storage.AddTreeKey(runAt, "42"), key)
}

func TestAddTreeValidation(t *testing.T) {
	f := newFixture(t)
	w := newWorkflow(f, creatorFunc(func(context.Context, payload.NewTree) (payload.CreatedTree, error) {
		t.Fatal("insert must not run")
		return payload.CreatedTree{}, nil
	}))

	for _, req := range []AddTreeRequest{
		{Lat: 47.5, Lon: 19.04},
		{Lat: 91, Lon: 19.04, SpeciesID: 3},
		{Lat: 47.5, Lon: -181, SpeciesID: 3},
	} {
		_, err := w.AddTree(context.Background(), req)
		assert.ErrorIs(t, err, tiles.ErrInvalidInput)
	}
	assert.Zero(t, f.store.Len())
}
