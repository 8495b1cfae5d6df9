package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lajos93/canvas-tile-api/internal/payload"
	"github.com/lajos93/canvas-tile-api/internal/projection"
)

// viewport of tile 565/357/10 at 2x supersampling
func testViewport() Viewport {
	return Viewport{BBox: projection.TileBBox(565, 357, 10), Width: 512, Height: 512, Scale: 2}
}

// pointAt places a point at canvas pixel px/py of the test viewport.
func pointAt(px, py float64, category *int) payload.Point {
	vp := testViewport()
	b := vp.BBox
	lon := b.LonLeft + px/vp.Width*(b.LonRight-b.LonLeft)
	// invert the mercator row by bisection, good enough for tests
	lo, hi := b.LatBottom, b.LatTop
	for i := 0; i < 80; i++ {
		mid := (lo + hi) / 2
		_, y := b.Pixel(lon, mid, vp.Width, vp.Height)
		if y > py {
			lo = mid
		} else {
			hi = mid
		}
	}
	return payload.Point{Lon: lon, Lat: (lo + hi) / 2, CategoryID: category}
}

func TestCellSize(t *testing.T) {
	tests := []struct {
		zoom int
		want float64
	}{
		{zoom: 7, want: 32},
		{zoom: 12, want: 32},
		{zoom: 13, want: 48},
		{zoom: 14, want: 48},
		{zoom: 15, want: 32},
		{zoom: 16, want: 0},
		{zoom: 19, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CellSize(tt.zoom), "zoom %d", tt.zoom)
	}
}

func TestSameCellSameCategoryMerges(t *testing.T) {
	cat := payload.IntPtr(15)
	points := []payload.Point{
		pointAt(10, 10, cat),
		pointAt(20, 30, cat),
		pointAt(60, 5, cat),
	}

	clusters := New(0).Cluster(points, testViewport(), 10)

	require.Len(t, clusters, 1)
	assert.Equal(t, 3, clusters[0].Count)
	assert.InDelta(t, (points[0].Lon+points[1].Lon+points[2].Lon)/3, clusters[0].Lon, 1e-12)
	assert.InDelta(t, (points[0].Lat+points[1].Lat+points[2].Lat)/3, clusters[0].Lat, 1e-12)
	assert.Equal(t, 15, *clusters[0].CategoryID)
	assert.Empty(t, clusters[0].Members)
}

func TestDifferentCategoriesNeverMerge(t *testing.T) {
	points := []payload.Point{
		pointAt(10, 10, payload.IntPtr(15)),
		pointAt(12, 12, payload.IntPtr(16)),
		pointAt(14, 14, nil),
	}

	clusters := New(0).Cluster(points, testViewport(), 10)

	require.Len(t, clusters, 3)
	for _, c := range clusters {
		assert.Equal(t, 1, c.Count)
	}
}

func TestDifferentCellsStaySeparate(t *testing.T) {
	cat := payload.IntPtr(15)
	points := []payload.Point{pointAt(10, 10, cat), pointAt(70, 10, cat), pointAt(10, 70, cat)}

	clusters := New(0).Cluster(points, testViewport(), 10)

	assert.Len(t, clusters, 3)
}

func TestCoarserCellsAtZoom13(t *testing.T) {
	cat := payload.IntPtr(15)
	// 64px cells split these, 96px cells do not
	points := []payload.Point{pointAt(10, 10, cat), pointAt(80, 10, cat)}

	assert.Len(t, New(0).Cluster(points, testViewport(), 12), 2)
	assert.Len(t, New(0).Cluster(points, testViewport(), 13), 1)
}

func TestDetailZoomSkipsClustering(t *testing.T) {
	cat := payload.IntPtr(15)
	points := []payload.Point{pointAt(10, 10, cat), pointAt(11, 11, cat)}

	clusters := New(0).Cluster(points, testViewport(), 16)

	require.Len(t, clusters, 2)
	assert.Equal(t, points[0].Lon, clusters[0].Lon)
	assert.Equal(t, 1, clusters[1].Count)
}

func TestHybridZoomMarkers(t *testing.T) {
	cat := payload.IntPtr(15)
	c := New(5)

	t.Run("sparse cell renders members", func(t *testing.T) {
		points := []payload.Point{pointAt(10, 10, cat), pointAt(12, 12, cat), pointAt(14, 14, cat)}

		clusters := c.Cluster(points, testViewport(), HybridZoom)
		require.Len(t, clusters, 1)
		require.Len(t, clusters[0].Members, 3)

		markers := c.Markers(clusters, HybridZoom)
		require.Len(t, markers, 3)
		for _, m := range markers {
			assert.Equal(t, 1, m.Count)
		}
	})

	t.Run("dense cell renders one badge", func(t *testing.T) {
		var points []payload.Point
		for i := 0; i < 5; i++ {
			points = append(points, pointAt(10+float64(i), 10, cat))
		}

		markers := c.Markers(c.Cluster(points, testViewport(), HybridZoom), HybridZoom)

		require.Len(t, markers, 1)
		assert.Equal(t, 5, markers[0].Count)
	})
}

func TestMarkersBelowHybridZoomKeepClusters(t *testing.T) {
	cat := payload.IntPtr(15)
	c := New(5)
	points := []payload.Point{pointAt(10, 10, cat), pointAt(12, 12, cat)}

	markers := c.Markers(c.Cluster(points, testViewport(), 12), 12)

	require.Len(t, markers, 1)
	assert.Equal(t, 2, markers[0].Count)
}
