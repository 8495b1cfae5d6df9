package render

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lajos93/canvas-tile-api/internal/cluster"
	"github.com/lajos93/canvas-tile-api/internal/payload"
	"github.com/lajos93/canvas-tile-api/internal/projection"
)

type solidIcons struct {
	c color.Color
}

func (s solidIcons) Icon(categoryID *int, size int) (image.Image, bool) {
	if categoryID == nil {
		return nil, false
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(s.c), image.Point{}, draw.Src)
	return img, true
}

func newTestRenderer(icons IconSource) *Renderer {
	return New(Options{}, cluster.New(5), icons)
}

func alphaAt(img image.Image, x, y int) uint32 {
	_, _, _, a := img.At(x, y).RGBA()
	return a
}

func TestRenderEmptyTileIsTransparent(t *testing.T) {
	res := newTestRenderer(nil).Render(nil, projection.TileBBox(565, 357, 10), 10)

	require.Equal(t, image.Rect(0, 0, 256, 256), res.Image.Bounds())
	for i := 3; i < len(res.Image.Pix); i += 4 {
		if res.Image.Pix[i] != 0 {
			t.Fatalf("pixel %d not transparent", i/4)
		}
	}
	assert.Zero(t, res.Markers)
}

func TestRenderGenericMarker(t *testing.T) {
	bbox := projection.TileBBox(565, 357, 10)
	lon, lat := bbox.Center()

	res := newTestRenderer(nil).Render([]payload.Point{{Lon: lon, Lat: lat}}, bbox, 10)

	assert.Equal(t, 1, res.Markers)
	assert.Zero(t, res.Badges)
	px, py := bbox.Pixel(lon, lat, 256, 256)
	assert.NotZero(t, alphaAt(res.Image, int(px), int(py)))
}

func TestRenderClampsIconsInsideTile(t *testing.T) {
	bbox := projection.TileBBox(565, 357, 10)
	points := []payload.Point{{Lon: bbox.LonLeft, Lat: bbox.LatTop, CategoryID: payload.IntPtr(15)}}

	res := newTestRenderer(solidIcons{c: color.RGBA{R: 255, A: 255}}).Render(points, bbox, 10)

	// a 24px icon pushed inward covers the whole corner square
	assert.NotZero(t, alphaAt(res.Image, 1, 1))
	assert.NotZero(t, alphaAt(res.Image, 20, 20))
	assert.Zero(t, alphaAt(res.Image, 40, 40))
}

func TestRenderBadges(t *testing.T) {
	bbox := projection.TileBBox(565, 357, 10)
	lon, lat := bbox.Center()
	cat := payload.IntPtr(15)
	r := newTestRenderer(solidIcons{c: color.Black})

	single := r.Render([]payload.Point{{Lon: lon, Lat: lat, CategoryID: cat}}, bbox, 10)
	assert.Zero(t, single.Badges)

	pair := r.Render([]payload.Point{
		{Lon: lon, Lat: lat, CategoryID: cat},
		{Lon: lon + 1e-5, Lat: lat, CategoryID: cat},
	}, bbox, 10)
	assert.Equal(t, 1, pair.Markers)
	assert.Equal(t, 1, pair.Badges)
}

func TestRenderHybridZoom(t *testing.T) {
	bbox := projection.TileBBox(18117, 11458, 15)
	lon, lat := bbox.Center()
	cat := payload.IntPtr(15)
	r := newTestRenderer(solidIcons{c: color.Black})

	points := func(n int) []payload.Point {
		out := make([]payload.Point, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, payload.Point{Lon: lon + float64(i)*1e-7, Lat: lat, CategoryID: cat})
		}
		return out
	}

	sparse := r.Render(points(3), bbox, 15)
	assert.Equal(t, 3, sparse.Markers)
	assert.Zero(t, sparse.Badges)

	dense := r.Render(points(5), bbox, 15)
	assert.Equal(t, 1, dense.Markers)
	assert.Equal(t, 1, dense.Badges)
}

func TestBadgeLabel(t *testing.T) {
	assert.Equal(t, "2", BadgeLabel(2))
	assert.Equal(t, "99", BadgeLabel(99))
	assert.Equal(t, "99+", BadgeLabel(100))
	assert.Equal(t, "99+", BadgeLabel(12345))
}

func TestBlockOf(t *testing.T) {
	tests := []struct {
		name string
		x, y int
		z    int
		want Block
	}{
		{name: "inner", x: 23, y: 7, z: 5, want: Block{Z: 5, X: 20, Y: 0, W: 10, H: 10}},
		{name: "clipped at map edge", x: 31, y: 31, z: 5, want: Block{Z: 5, X: 30, Y: 30, W: 2, H: 2}},
		{name: "whole world", x: 0, y: 0, z: 0, want: Block{Z: 0, X: 0, Y: 0, W: 1, H: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := BlockOf(projection.Tile(tt.x, tt.y, tt.z), 10)

			assert.Equal(t, tt.want, b)
			assert.True(t, b.Contains(projection.Tile(tt.x, tt.y, tt.z)))
		})
	}
}

func TestBlockBBox(t *testing.T) {
	b := Block{Z: 10, X: 560, Y: 350, W: 10, H: 10}
	bbox := b.BBox()

	assert.Equal(t, projection.TileBBox(560, 350, 10).LonLeft, bbox.LonLeft)
	assert.Equal(t, projection.TileBBox(569, 350, 10).LonRight, bbox.LonRight)
	assert.Equal(t, projection.TileBBox(560, 350, 10).LatTop, bbox.LatTop)
	assert.Equal(t, projection.TileBBox(560, 359, 10).LatBottom, bbox.LatBottom)
}

func TestStitchingKeepsClustersAcrossBorders(t *testing.T) {
	// at zoom 13 cells are 96px and straddle the border between tile 1000 and 1001
	r := newTestRenderer(solidIcons{c: color.Black})
	left := projection.Tile(1000, 1000, 13)
	block := r.BlockOf(left)
	require.Equal(t, 1000, block.X)

	bbox := block.BBox()
	width := float64(block.W * 512)
	lonAt := func(px float64) float64 {
		return bbox.LonLeft + px/width*(bbox.LonRight-bbox.LonLeft)
	}
	_, lat := projection.BBoxOf(left).Center()
	cat := payload.IntPtr(15)
	points := []payload.Point{
		{Lon: lonAt(500), Lat: lat, CategoryID: cat},
		{Lon: lonAt(520), Lat: lat, CategoryID: cat},
	}

	stitched := r.RenderBlock(points, block, left)
	assert.Equal(t, 1, stitched.Badges, "one cluster spanning both tiles")

	alone := r.Render(points[:1], projection.BBoxOf(left), 13)
	assert.Zero(t, alone.Badges)

	right := r.RenderBlock(points, block, projection.Tile(1001, 1000, 13))
	assert.Equal(t, stitched.Badges, right.Badges)
}
