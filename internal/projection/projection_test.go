package projection

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileBBoxRoundTrip(t *testing.T) {
	for z := 0; z <= 20; z++ {
		n := 1 << uint(z)
		samples := []int{0, n / 3, n / 2, n - 1}
		for _, x := range samples {
			for _, y := range samples {
				b := TileBBox(x, y, z)
				lon, _ := b.Center()
				midLat := (b.LatTop + b.LatBottom) / 2

				assert.Equal(t, x, Lon2Tile(lon, z), "x at z=%d", z)
				assert.Equal(t, y, Lat2Tile(midLat, z), "y at z=%d", z)
			}
		}
	}
}

func TestWholeWorld(t *testing.T) {
	b := TileBBox(0, 0, 0)

	assert.InDelta(t, -180, b.LonLeft, 1e-9)
	assert.InDelta(t, 180, b.LonRight, 1e-9)
	assert.InDelta(t, MaxLatitude, b.LatTop, 1e-9)
	assert.InDelta(t, -MaxLatitude, b.LatBottom, 1e-9)
}

func TestIndicesClampAtEdges(t *testing.T) {
	assert.Equal(t, 1023, Lon2Tile(180, 10))
	assert.Equal(t, 0, Lon2Tile(-180, 10))
	assert.Equal(t, 0, Lat2Tile(90, 10))
	assert.Equal(t, 1023, Lat2Tile(-90, 10))
}

func TestTileAtMatchesMaptile(t *testing.T) {
	tile := TileAt(19.04, 47.5, 15)

	assert.Equal(t, maptile.New(18117, 11458, 15), tile)
}

func TestValidTile(t *testing.T) {
	require.NoError(t, ValidTile(3, 4, 3))
	assert.Error(t, ValidTile(8, 0, 3))
	assert.Error(t, ValidTile(0, -1, 3))
	assert.Error(t, ValidTile(0, 0, MaxZoom+1))
}

func TestPixel(t *testing.T) {
	b := TileBBox(565, 357, 10)

	px, py := b.Pixel(b.LonLeft, b.LatTop, 512, 512)
	assert.InDelta(t, 0, px, 1e-6)
	assert.InDelta(t, 0, py, 1e-6)

	px, py = b.Pixel(b.LonRight, b.LatBottom, 512, 512)
	assert.InDelta(t, 512, px, 1e-6)
	assert.InDelta(t, 512, py, 1e-6)
}

func TestPixelIsSeamlessAcrossBlocks(t *testing.T) {
	// a point projected on a 2x2 block must land where it lands on its own tile
	block := TileBBox(100, 200, 12).Union(TileBBox(101, 201, 12))
	tile := TileBBox(101, 201, 12)
	lon, lat := tile.LonLeft+0.3*(tile.LonRight-tile.LonLeft), tile.LatBottom+0.4*(tile.LatTop-tile.LatBottom)

	bx, by := block.Pixel(lon, lat, 512, 512)
	tx, ty := tile.Pixel(lon, lat, 256, 256)

	assert.InDelta(t, tx+256, bx, 1e-6)
	assert.InDelta(t, ty+256, by, 1e-6)
}

func TestBudapestRectAtZoom10(t *testing.T) {
	r := Budapest.Rect(10)

	assert.Equal(t, Rect{Z: 10, MinX: 565, MaxX: 566, MinY: 357, MaxY: 358}, r)
	assert.Equal(t, int64(4), r.Count())
}

func TestHungaryRectAtZoom10(t *testing.T) {
	r := Hungary.Rect(10)

	assert.Equal(t, Rect{Z: 10, MinX: 557, MaxX: 577, MinY: 353, MaxY: 365}, r)
	assert.Equal(t, int64(21*13), r.Count())
}

func TestRectIteration(t *testing.T) {
	r := Rect{Z: 5, MinX: 2, MaxX: 3, MinY: 7, MaxY: 8}

	var got [][2]int
	x, y := r.Start()
	for ok := true; ok; x, y, ok = r.Next(x, y) {
		got = append(got, [2]int{x, y})
	}

	assert.Equal(t, [][2]int{{2, 7}, {2, 8}, {3, 7}, {3, 8}}, got)
}

func TestResumeAfter(t *testing.T) {
	r := Rect{Z: 12, MinX: 5, MaxX: 7, MinY: 0, MaxY: 11}

	tests := []struct {
		name   string
		x, y   int
		wantX  int
		wantY  int
		wantOK bool
	}{
		{name: "next row", x: 6, y: 0, wantX: 6, wantY: 1, wantOK: true},
		{name: "wraps column", x: 5, y: 11, wantX: 6, wantY: 0, wantOK: true},
		{name: "last tile done", x: 7, y: 11, wantOK: false},
		{name: "anchor before rect", x: 1, y: 3, wantX: 5, wantY: 0, wantOK: true},
		{name: "anchor after rect", x: 9, y: 3, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, ok := r.ResumeAfter(tt.x, tt.y)

			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantX, x)
				assert.Equal(t, tt.wantY, y)
			}
		})
	}
}

func TestRegionValidate(t *testing.T) {
	assert.NoError(t, Budapest.Validate())
	assert.Error(t, Region{LatMin: 2, LatMax: 1, LonMin: 0, LonMax: 1}.Validate())
	assert.Error(t, Region{LatMin: 0, LatMax: 1, LonMin: -200, LonMax: 1}.Validate())
}

func TestLoadRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hu.geojson")
	doc := `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[16,45.7],[22.9,45.7],[22.9,48.6],[16,48.6],[16,45.7]]]}}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	r, err := LoadRegion(path)
	require.NoError(t, err)

	assert.Equal(t, Hungary, r)
}

func TestLoadRegionUnionsFeatures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parts.geojson")
	doc := `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{},"geometry":null},
{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[18.9,47.4],[19.1,47.4],[19.1,47.5],[18.9,47.4]]]}},
{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[19.3,47.6]}}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	r, err := LoadRegion(path)
	require.NoError(t, err)

	assert.Equal(t, Region{LatMin: 47.4, LatMax: 47.6, LonMin: 18.9, LonMax: 19.3}, r)
}

func TestLoadRegionWithoutGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[]}`), 0o600))

	_, err := LoadRegion(path)
	assert.Error(t, err)
}
