package tiles

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/maptile"
	"github.com/sirupsen/logrus"

	"github.com/lajos93/canvas-tile-api/internal/codec"
	"github.com/lajos93/canvas-tile-api/internal/payload"
	"github.com/lajos93/canvas-tile-api/internal/projection"
	"github.com/lajos93/canvas-tile-api/internal/render"
	"github.com/lajos93/canvas-tile-api/internal/storage"
)

// Slugger resolves category ids to storage key slugs.
type Slugger interface {
	Slug(ctx context.Context, id int) (string, error)
}

// IconChecker verifies that a category can be drawn with its own icon.
type IconChecker interface {
	Check(categoryID int) error
}

// Pipeline fetch -> cluster/render -> encode -> upload, shared by every
// target, batch job and the append fallback.
type Pipeline struct {
	source   payload.Source
	slugs    Slugger
	icons    IconChecker
	renderer *render.Renderer
	codec    codec.Codec
	store    storage.Store
	log      logrus.FieldLogger
}

func NewPipeline(source payload.Source, slugs Slugger, icons IconChecker, renderer *render.Renderer, c codec.Codec, store storage.Store, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		source:   source,
		slugs:    slugs,
		icons:    icons,
		renderer: renderer,
		codec:    c,
		store:    store,
		log:      log.WithField("component", "pipeline"),
	}
}

func (p *Pipeline) Store() storage.Store { return p.store }

func (p *Pipeline) Codec() codec.Codec { return p.codec }

func (p *Pipeline) Renderer() *render.Renderer { return p.renderer }

// Target validates zoom and resolves the slug of an optional category.
func (p *Pipeline) Target(ctx context.Context, zoom int, categoryID *int) (Target, error) {
	if zoom < 0 || zoom > projection.MaxZoom {
		return Target{}, fmt.Errorf("%w: zoom %d outside [0,%d]", ErrInvalidInput, zoom, projection.MaxZoom)
	}
	t := Default(zoom)
	if categoryID == nil {
		return t, nil
	}
	if p.slugs == nil {
		return Target{}, fmt.Errorf("%w: %d", ErrUnknownCategory, *categoryID)
	}
	slug, err := p.slugs.Slug(ctx, *categoryID)
	if err != nil {
		return Target{}, err
	}
	t.CategoryID = payload.IntPtr(*categoryID)
	t.Slug = slug
	return t, nil
}

// CheckIcon rejects category jobs whose icon mapping or file is missing.
func (p *Pipeline) CheckIcon(categoryID int) error {
	if p.icons == nil {
		return nil
	}
	if err := p.icons.Check(categoryID); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	return nil
}

// Render fetches and draws one tile. With stitch the whole super-tile block
// around it is fetched and drawn, and the tile is cropped out of it.
func (p *Pipeline) Render(ctx context.Context, target Target, t maptile.Tile, stitch bool) (render.Result, error) {
	if err := projection.ValidTile(int(t.X), int(t.Y), int(t.Z)); err != nil {
		return render.Result{}, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	if !stitch {
		bbox := projection.BBoxOf(t)
		points, err := p.source.Points(ctx, payload.Query{BBox: bbox, CategoryID: target.CategoryID})
		if err != nil {
			return render.Result{}, fail(ReasonFetch, err)
		}
		return p.renderer.Render(points, bbox, int(t.Z)), nil
	}

	block := p.renderer.BlockOf(t)
	points, err := p.source.Points(ctx, payload.Query{BBox: block.BBox(), CategoryID: target.CategoryID})
	if err != nil {
		return render.Result{}, fail(ReasonFetch, err)
	}
	return p.renderer.RenderBlock(points, block, t), nil
}

// Generate renders, encodes and uploads one tile, returning its key. Errors
// are *Failure values naming the stage.
func (p *Pipeline) Generate(ctx context.Context, target Target, t maptile.Tile, stitch bool) (string, error) {
	res, err := p.Render(ctx, target, t, stitch)
	if err != nil {
		return "", err
	}

	data, err := p.codec.Encode(res.Image)
	if err != nil {
		return "", fail(ReasonEncode, err)
	}

	key := target.Key(t, p.codec.Ext())
	if _, err := p.store.Put(ctx, key, data, p.codec.ContentType()); err != nil {
		return "", fail(ReasonStorage, err)
	}
	p.log.Debugf("tile(z:%d, x:%d, y:%d) %s, %d markers, %.2f kb", t.Z, t.X, t.Y, target.CategoryKey(), res.Markers, float32(len(data))/1024.0)
	return key, nil
}
