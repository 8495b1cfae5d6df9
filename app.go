package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lajos93/canvas-tile-api/internal/appender"
	"github.com/lajos93/canvas-tile-api/internal/cluster"
	"github.com/lajos93/canvas-tile-api/internal/codec"
	"github.com/lajos93/canvas-tile-api/internal/icons"
	"github.com/lajos93/canvas-tile-api/internal/job"
	"github.com/lajos93/canvas-tile-api/internal/payload"
	"github.com/lajos93/canvas-tile-api/internal/render"
	"github.com/lajos93/canvas-tile-api/internal/status"
	"github.com/lajos93/canvas-tile-api/internal/storage"
	"github.com/lajos93/canvas-tile-api/internal/tiles"
)

// App every long lived component, built once from conf
type App struct {
	Store    storage.Store
	Pipeline *tiles.Pipeline
	Status   *status.Store
	Jobs     *job.Manager
	Appender *appender.Appender
	Workflow *appender.Workflow
	Catalog  *payload.Catalog
}

// NewApp wires storage, the data service client, rendering and jobs.
func NewApp(ctx context.Context) (*App, error) {
	store, err := storage.Open(ctx, conf.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", conf.Storage.Backend, err)
	}

	client := payload.NewClient(payload.ClientOptions{
		BaseURL:    conf.Payload.URL,
		Retries:    conf.Task.Retries,
		RetryDelay: conf.Task.RetryDelay,
		Timeout:    conf.Payload.Timeout,
	}, log)
	catalog := payload.NewCatalog(client)

	iconSet := icons.New(os.DirFS(conf.Render.IconDir), nil)
	renderer := render.New(render.Options{
		TileSize:    conf.Render.TileSize,
		Supersample: conf.Render.Supersample,
		IconSize:    conf.Render.IconSize,
		SuperTile:   conf.Task.SuperTile,
	}, cluster.New(conf.Render.DenseThreshold), iconSet)

	c, err := codec.New(conf.Render.Format, conf.Render.Quality)
	if err != nil {
		return nil, err
	}

	region, err := conf.JobRegion()
	if err != nil {
		return nil, fmt.Errorf("job region: %w", err)
	}

	pipeline := tiles.NewPipeline(client, catalog, iconSet, renderer, c, store, log)
	st := status.New(store, log)
	orch := job.NewOrchestrator(pipeline, client, st, job.Options{
		Workers: conf.Task.Workers,
		Threads: conf.Task.Threads,
		Region:  region,
	}, log)

	app := appender.New(pipeline, iconSet, appender.Options{
		AppendZooms:     conf.Zooms.Append,
		RegenerateZooms: conf.Zooms.Regenerate,
	}, log)

	return &App{
		Store:    store,
		Pipeline: pipeline,
		Status:   st,
		Jobs:     job.NewManager(ctx, orch, log),
		Appender: app,
		Workflow: appender.NewWorkflow(client, app, log),
		Catalog:  catalog,
	}, nil
}
