package render

import (
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/image/draw"

	"github.com/lajos93/canvas-tile-api/internal/cluster"
	"github.com/lajos93/canvas-tile-api/internal/payload"
	"github.com/lajos93/canvas-tile-api/internal/projection"
)

// TileSize default output tile edge
const TileSize = 256

var (
	markerColor      = color.RGBA{R: 46, G: 125, B: 50, A: 255}
	badgeColor       = color.RGBA{R: 211, G: 47, B: 47, A: 255}
	badgeStrokeColor = color.White
)

// IconSource resolves category icons at a pixel size.
type IconSource interface {
	Icon(categoryID *int, size int) (image.Image, bool)
}

// Options fixed renderer geometry
type Options struct {
	TileSize    int
	Supersample int
	IconSize    int
	SuperTile   int
}

func (o *Options) setDefaults() {
	if o.TileSize <= 0 {
		o.TileSize = TileSize
	}
	if o.Supersample <= 0 {
		o.Supersample = 2
	}
	if o.IconSize <= 0 {
		o.IconSize = 24
	}
	if o.SuperTile <= 0 {
		o.SuperTile = 10
	}
}

// Result rendered tile plus what was drawn on it
type Result struct {
	Image   *image.RGBA
	Markers int
	Badges  int
}

// Renderer draws clustered points onto tiles.
type Renderer struct {
	opts      Options
	clusterer *cluster.Clusterer
	icons     IconSource
}

// New renderer; icons may be nil, every marker is then drawn generic.
func New(opts Options, clusterer *cluster.Clusterer, icons IconSource) *Renderer {
	opts.setDefaults()
	if clusterer == nil {
		clusterer = cluster.New(0)
	}
	return &Renderer{opts: opts, clusterer: clusterer, icons: icons}
}

// Options geometry in use
func (r *Renderer) Options() Options {
	return r.opts
}

// Render draws points inside bbox at zoom onto one output tile.
func (r *Renderer) Render(points []payload.Point, bbox projection.BBox, zoom int) Result {
	canvas, res := r.draw(points, bbox, zoom, 1, 1)
	res.Image = r.downsample(canvas, canvas.Bounds())
	return res
}

// RenderBlock draws points of the whole block and crops tile t out of it, so
// clusters crossing tile borders come out identical on every tile of the block.
// Markers and Badges count the whole block.
func (r *Renderer) RenderBlock(points []payload.Point, b Block, t maptile.Tile) Result {
	canvas, res := r.draw(points, b.BBox(), b.Z, b.W, b.H)

	edge := r.opts.TileSize * r.opts.Supersample
	ox, oy := (int(t.X)-b.X)*edge, (int(t.Y)-b.Y)*edge
	res.Image = r.downsample(canvas, image.Rect(ox, oy, ox+edge, oy+edge))
	return res
}

func (r *Renderer) draw(points []payload.Point, bbox projection.BBox, zoom, tilesW, tilesH int) (*image.RGBA, Result) {
	ss := float64(r.opts.Supersample)
	w := tilesW * r.opts.TileSize * r.opts.Supersample
	h := tilesH * r.opts.TileSize * r.opts.Supersample
	dc := gg.NewContext(w, h)

	vp := cluster.Viewport{BBox: bbox, Width: float64(w), Height: float64(h), Scale: ss}
	markers := r.clusterer.Markers(r.clusterer.Cluster(points, vp, zoom), zoom)

	iconPx := r.opts.IconSize * r.opts.Supersample
	half := float64(iconPx) / 2

	var res Result
	var badges *badgeFace
	for _, m := range markers {
		px, py := bbox.Pixel(m.Lon, m.Lat, vp.Width, vp.Height)
		px = clamp(px, half, vp.Width-half)
		py = clamp(py, half, vp.Height-half)

		if icon, ok := r.lookupIcon(m.CategoryID, iconPx); ok {
			dc.DrawImageAnchored(icon, int(math.Round(px)), int(math.Round(py)), 0.5, 0.5)
		} else {
			dc.SetColor(markerColor)
			dc.DrawCircle(px, py, 2*ss)
			dc.Fill()
		}
		res.Markers++

		if m.Count > 1 {
			if badges == nil {
				badges = newBadgeFace(ss)
			}
			badges.draw(dc, px+half*0.6, py-half*0.6, m.Count)
			res.Badges++
		}
	}

	return dc.Image().(*image.RGBA), res
}

func (r *Renderer) lookupIcon(categoryID *int, size int) (image.Image, bool) {
	if r.icons == nil {
		return nil, false
	}
	return r.icons.Icon(categoryID, size)
}

func (r *Renderer) downsample(src *image.RGBA, sr image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.opts.TileSize, r.opts.TileSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sr, draw.Src, nil)
	return dst
}

// BadgeLabel text of a count badge
func BadgeLabel(count int) string {
	if count > 99 {
		return "99+"
	}
	return strconv.Itoa(count)
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}
