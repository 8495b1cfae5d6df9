package appender

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/lajos93/canvas-tile-api/internal/payload"
	"github.com/lajos93/canvas-tile-api/internal/projection"
	"github.com/lajos93/canvas-tile-api/internal/render"
	"github.com/lajos93/canvas-tile-api/internal/storage"
	"github.com/lajos93/canvas-tile-api/internal/tiles"
)

// DefaultZooms zoom levels patched when the caller names none
func DefaultZooms() []int {
	return []int{7, 8, 9, 10, 11, 12, 13, 14, 15}
}

// DefaultRegenerateZooms zoom levels re-rendered for one point
func DefaultRegenerateZooms() []int {
	return []int{13, 14, 15, 16}
}

// Options zoom levels used when a request names none
type Options struct {
	AppendZooms     []int
	RegenerateZooms []int
}

// Result tiles written for one point
type Result struct {
	TilesUpdated int      `json:"tilesUpdated"`
	Keys         []string `json:"keys"`
	ZoomLevels   []int    `json:"zoomLevels"`
	CategoryID   *int     `json:"categoryId,omitempty"`
	CategorySlug string   `json:"categorySlug,omitempty"`
}

// Appender puts a single new point onto already rendered tiles.
//
// The patch path composites one icon onto the stored raster. It does not
// fetch points, recompute clusters or touch badges of neighbouring points,
// and never removes icons; Regenerate is the exact path.
type Appender struct {
	pipeline *tiles.Pipeline
	icons    render.IconSource
	iconSize int
	opts     Options
	log      logrus.FieldLogger
}

func New(pipeline *tiles.Pipeline, icons render.IconSource, opts Options, log logrus.FieldLogger) *Appender {
	if len(opts.AppendZooms) == 0 {
		opts.AppendZooms = DefaultZooms()
	}
	if len(opts.RegenerateZooms) == 0 {
		opts.RegenerateZooms = DefaultRegenerateZooms()
	}
	return &Appender{
		pipeline: pipeline,
		icons:    icons,
		iconSize: pipeline.Renderer().Options().IconSize,
		opts:     opts,
		log:      log.WithField("component", "appender"),
	}
}

// AppendPoint updates the covering tile of p at every zoom, for the default
// target and, when categoryID (or p.CategoryID) resolves, the category target.
func (a *Appender) AppendPoint(ctx context.Context, p payload.Point, zoomLevels []int, categoryID *int) (Result, error) {
	zooms, catID, err := a.prepare(p, zoomLevels, categoryID, a.opts.AppendZooms)
	if err != nil {
		return Result{}, err
	}
	res := Result{ZoomLevels: zooms, CategoryID: catID}

	for _, target := range a.targets(ctx, zooms, &res) {
		t := projection.TileAt(p.Lon, p.Lat, target.Zoom)
		key, path, err := a.appendTile(ctx, target, t, p.Lon, p.Lat, res.CategoryID)
		if err != nil {
			appendTilesTotal.WithLabelValues("failed").Inc()
			a.log.WithFields(tileFields(target, t)).Errorf("append tile error, details: %s", err)
			continue
		}
		appendTilesTotal.WithLabelValues(path).Inc()
		res.Keys = append(res.Keys, key)
	}
	res.TilesUpdated = len(res.Keys)
	a.log.Infof("point (%.6f, %.6f) appended, %d tiles updated", p.Lat, p.Lon, res.TilesUpdated)
	return res, nil
}

// Regenerate fully re-renders the covering tiles of p, refreshing clusters
// and badge counts around it.
func (a *Appender) Regenerate(ctx context.Context, p payload.Point, zoomLevels []int, categoryID *int) (Result, error) {
	zooms, catID, err := a.prepare(p, zoomLevels, categoryID, a.opts.RegenerateZooms)
	if err != nil {
		return Result{}, err
	}
	res := Result{ZoomLevels: zooms, CategoryID: catID}

	for _, target := range a.targets(ctx, zooms, &res) {
		t := projection.TileAt(p.Lon, p.Lat, target.Zoom)
		key, err := a.pipeline.Generate(ctx, target, t, false)
		if err != nil {
			regenerateTilesTotal.WithLabelValues("failed").Inc()
			a.log.WithFields(tileFields(target, t)).Errorf("regenerate tile error, details: %s", err)
			continue
		}
		regenerateTilesTotal.WithLabelValues("ok").Inc()
		res.Keys = append(res.Keys, key)
	}
	res.TilesUpdated = len(res.Keys)
	return res, nil
}

func (a *Appender) prepare(p payload.Point, zoomLevels []int, categoryID *int, defaults []int) ([]int, *int, error) {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return nil, nil, fmt.Errorf("%w: point (%v, %v) outside lat [-90,90] / lon [-180,180]", tiles.ErrInvalidInput, p.Lat, p.Lon)
	}
	if len(zoomLevels) == 0 {
		zoomLevels = defaults
	}
	zooms := make([]int, 0, len(zoomLevels))
	for _, z := range zoomLevels {
		if z >= 0 && z <= projection.MaxZoom {
			zooms = append(zooms, z)
		}
	}
	if len(zooms) == 0 {
		return nil, nil, fmt.Errorf("%w: no valid zoom level in %v", tiles.ErrInvalidInput, zoomLevels)
	}
	if categoryID == nil {
		categoryID = p.CategoryID
	}
	return zooms, categoryID, nil
}

// targets default target per zoom, then the category target when its slug
// resolves. An unknown category drops the category targets and is cleared
// from res, so the default tiles are rendered instead of patched.
func (a *Appender) targets(ctx context.Context, zooms []int, res *Result) []tiles.Target {
	out := make([]tiles.Target, 0, 2*len(zooms))
	for _, z := range zooms {
		out = append(out, tiles.Default(z))
	}
	if res.CategoryID == nil {
		return out
	}
	for _, z := range zooms {
		target, err := a.pipeline.Target(ctx, z, res.CategoryID)
		if err != nil {
			if errors.Is(err, tiles.ErrUnknownCategory) {
				a.log.Warnf("category %d unknown, only default tiles are updated", *res.CategoryID)
				res.CategoryID = nil
			} else {
				a.log.Warnf("category %d not resolved, details: %s", *res.CategoryID, err)
			}
			return out
		}
		res.CategorySlug = target.Slug
		out = append(out, target)
	}
	return out
}

// appendTile patches the stored tile when possible, otherwise renders it.
func (a *Appender) appendTile(ctx context.Context, target tiles.Target, t maptile.Tile, lon, lat float64, categoryID *int) (key, path string, err error) {
	c := a.pipeline.Codec()
	key = target.Key(t, c.Ext())

	data, exists, err := storage.GetIfExists(ctx, a.pipeline.Store(), key)
	if err != nil {
		return "", "", err
	}
	var icon image.Image
	iconOK := false
	if a.icons != nil {
		icon, iconOK = a.icons.Icon(categoryID, a.iconSize)
	}

	if exists && iconOK {
		perr := a.patch(ctx, key, data, icon, t, lon, lat)
		if perr == nil {
			return key, "patched", nil
		}
		a.log.WithFields(tileFields(target, t)).Warnf("patch failed, rendering instead, details: %s", perr)
	}

	key, err = a.pipeline.Generate(ctx, target, t, false)
	if err != nil {
		return "", "", err
	}
	return key, "rendered", nil
}

func (a *Appender) patch(ctx context.Context, key string, data []byte, icon image.Image, t maptile.Tile, lon, lat float64) error {
	c := a.pipeline.Codec()
	src, err := c.Decode(data)
	if err != nil {
		return err
	}
	canvas := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	// no clamping, an icon on the tile edge may be cut off
	px, py := projection.BBoxOf(t).Pixel(lon, lat, float64(canvas.Bounds().Dx()), float64(canvas.Bounds().Dy()))
	ib := icon.Bounds()
	at := image.Pt(int(math.Round(px))-ib.Dx()/2, int(math.Round(py))-ib.Dy()/2)
	draw.Draw(canvas, ib.Sub(ib.Min).Add(at), icon, ib.Min, draw.Over)

	out, err := c.Encode(canvas)
	if err != nil {
		return err
	}
	_, err = a.pipeline.Store().Put(ctx, key, out, c.ContentType())
	return err
}

func tileFields(target tiles.Target, t maptile.Tile) logrus.Fields {
	return logrus.Fields{"z": t.Z, "x": t.X, "y": t.Y, "target": target.CategoryKey()}
}
