package appender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lajos93/canvas-tile-api/internal/payload"
	"github.com/lajos93/canvas-tile-api/internal/storage"
	"github.com/lajos93/canvas-tile-api/internal/tiles"
)

// ErrPartial tree stored in the data service but its tiles were not updated
var ErrPartial = errors.New("tree stored, tiles not updated")

// TreeCreator inserts trees into the data service.
type TreeCreator interface {
	CreateTree(ctx context.Context, t payload.NewTree) (payload.CreatedTree, error)
}

// AddTreeRequest new tree of the add-tree workflow
type AddTreeRequest struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	SpeciesID int     `json:"speciesId"`
	County    string  `json:"county,omitempty"`
}

type InsertPhase struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	TreeID *int   `json:"treeId"`
}

type AppendPhase struct {
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
	TilesUpdated int    `json:"tilesUpdated"`
	ZoomLevels   []int  `json:"zoomLevels,omitempty"`
	CategoryID   *int   `json:"categoryId"`
	CategorySlug string `json:"categorySlug,omitempty"`
}

// Phases outcome of each workflow step
type Phases struct {
	DBInsert   InsertPhase `json:"dbInsert"`
	AppendIcon AppendPhase `json:"appendIcon"`
}

// AddTreeRecord one workflow run, stored under status/add-tree/
type AddTreeRecord struct {
	Type       string    `json:"type"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	SpeciesID  int       `json:"speciesId"`
	TreeID     *int      `json:"treeId"`
	Phases     Phases    `json:"phases"`
	Error      string    `json:"error,omitempty"`
}

// Workflow inserts a tree and appends it to the rendered tiles.
type Workflow struct {
	creator  TreeCreator
	appender *Appender
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewWorkflow(creator TreeCreator, appender *Appender, log logrus.FieldLogger) *Workflow {
	return &Workflow{
		creator:  creator,
		appender: appender,
		log:      log.WithField("component", "add-tree"),
		now:      time.Now,
	}
}

// AddTree runs insert then append and stores a record of the run. A failed
// insert returns its error; a failed append after a good insert returns
// ErrPartial. The record is returned in every case past validation.
func (w *Workflow) AddTree(ctx context.Context, req AddTreeRequest) (AddTreeRecord, error) {
	if math.IsNaN(req.Lat) || math.IsNaN(req.Lon) || req.Lat < -90 || req.Lat > 90 || req.Lon < -180 || req.Lon > 180 || req.SpeciesID <= 0 {
		return AddTreeRecord{}, fmt.Errorf("%w: lat (-90..90), lon (-180..180) and speciesId are required", tiles.ErrInvalidInput)
	}

	rec := AddTreeRecord{
		Type:      "add-tree-workflow",
		StartedAt: w.now().UTC(),
		Lat:       req.Lat,
		Lon:       req.Lon,
		SpeciesID: req.SpeciesID,
	}
	err := w.run(ctx, req, &rec)
	rec.FinishedAt = w.now().UTC()
	rec.TreeID = rec.Phases.DBInsert.TreeID
	if err != nil {
		rec.Error = err.Error()
		w.log.Errorf("add tree failed, details: %s", err)
	}
	w.save(ctx, &rec, err != nil)
	return rec, err
}

func (w *Workflow) run(ctx context.Context, req AddTreeRequest, rec *AddTreeRecord) error {
	created, err := w.creator.CreateTree(ctx, payload.NewTree{
		SpeciesID: req.SpeciesID,
		Lat:       req.Lat,
		Lon:       req.Lon,
		County:    req.County,
	})
	if err != nil {
		rec.Phases.DBInsert.Error = err.Error()
		return err
	}
	rec.Phases.DBInsert.OK = true
	rec.Phases.DBInsert.TreeID = created.ID

	res, err := w.appender.AppendPoint(ctx, payload.Point{Lat: req.Lat, Lon: req.Lon}, nil, created.CategoryID)
	if err == nil && res.TilesUpdated == 0 {
		err = errors.New("no tile could be updated")
	}
	phase := &rec.Phases.AppendIcon
	phase.TilesUpdated = res.TilesUpdated
	phase.ZoomLevels = res.ZoomLevels
	phase.CategoryID = res.CategoryID
	phase.CategorySlug = res.CategorySlug
	if err != nil {
		phase.Error = err.Error()
		return fmt.Errorf("%w: %s", ErrPartial, err)
	}
	phase.OK = true
	return nil
}

// save never overwrites an earlier record; a failure is only logged.
func (w *Workflow) save(ctx context.Context, rec *AddTreeRecord, failed bool) {
	suffix := "unknown"
	if failed {
		suffix = "failed"
	}
	if rec.TreeID != nil {
		suffix = strconv.Itoa(*rec.TreeID)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		w.log.Errorf("encode add tree record, details: %s", err)
		return
	}
	key := storage.AddTreeKey(rec.FinishedAt, suffix)
	if _, err := w.appender.pipeline.Store().Put(context.WithoutCancel(ctx), key, data, "application/json"); err != nil {
		w.log.Errorf("store add tree record %s, details: %s", key, err)
	}
}
