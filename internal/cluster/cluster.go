package cluster

import (
	"math"

	"github.com/lajos93/canvas-tile-api/internal/payload"
	"github.com/lajos93/canvas-tile-api/internal/projection"
)

const (
	// HybridZoom clusters are kept with their members and only drawn as one
	// glyph when dense
	HybridZoom = 15
	// DetailZoom and above every point is drawn on its own
	DetailZoom = 16
	// DefaultDenseThreshold minimum member count drawn as a cluster at HybridZoom
	DefaultDenseThreshold = 5
)

// CellSize grid cell edge in output-tile pixels for a zoom, 0 when points are
// not clustered at all.
func CellSize(zoom int) float64 {
	switch {
	case zoom >= DetailZoom:
		return 0
	case zoom == HybridZoom:
		return 32
	case zoom >= 13:
		return 48
	default:
		return 32
	}
}

// Viewport canvas the points are clustered on
type Viewport struct {
	BBox   projection.BBox
	Width  float64
	Height float64
	// Scale canvas pixels per output pixel (the supersampling factor)
	Scale float64
}

// Cluster same-category points sharing one grid cell
type Cluster struct {
	Lon        float64
	Lat        float64
	CategoryID *int
	Count      int
	Members    []payload.Point
}

// Marker one glyph to draw; Count > 1 gets a badge.
type Marker struct {
	Lon        float64
	Lat        float64
	CategoryID *int
	Count      int
}

type cellKey struct {
	cx, cy   int
	category int
	hasCat   bool
}

type accumulator struct {
	sumLon, sumLat float64
	category       *int
	members        []payload.Point
	count          int
}

// Clusterer groups points on a zoom dependent grid.
type Clusterer struct {
	DenseThreshold int
}

// New clusterer, threshold <= 0 selects DefaultDenseThreshold
func New(denseThreshold int) *Clusterer {
	if denseThreshold <= 0 {
		denseThreshold = DefaultDenseThreshold
	}
	return &Clusterer{DenseThreshold: denseThreshold}
}

// Cluster assigns every point to the cell (px/cell, py/cell) of the viewport
// and returns one cluster per (cell, category) in first-seen order. Above
// HybridZoom every point becomes its own cluster.
func (c *Clusterer) Cluster(points []payload.Point, vp Viewport, zoom int) []Cluster {
	size := CellSize(zoom) * scale(vp)
	if size == 0 {
		out := make([]Cluster, 0, len(points))
		for _, p := range points {
			out = append(out, Cluster{Lon: p.Lon, Lat: p.Lat, CategoryID: p.CategoryID, Count: 1})
		}
		return out
	}

	keepMembers := zoom == HybridZoom
	cells := make(map[cellKey]*accumulator)
	order := make([]cellKey, 0)

	for _, p := range points {
		px, py := vp.BBox.Pixel(p.Lon, p.Lat, vp.Width, vp.Height)
		key := cellKey{
			cx: int(math.Floor(px / size)),
			cy: int(math.Floor(py / size)),
		}
		if p.CategoryID != nil {
			key.category, key.hasCat = *p.CategoryID, true
		}

		acc, ok := cells[key]
		if !ok {
			acc = &accumulator{category: p.CategoryID}
			cells[key] = acc
			order = append(order, key)
		}
		acc.sumLon += p.Lon
		acc.sumLat += p.Lat
		acc.count++
		if keepMembers {
			acc.members = append(acc.members, p)
		}
	}

	out := make([]Cluster, 0, len(order))
	for _, key := range order {
		acc := cells[key]
		out = append(out, Cluster{
			Lon:        acc.sumLon / float64(acc.count),
			Lat:        acc.sumLat / float64(acc.count),
			CategoryID: acc.category,
			Count:      acc.count,
			Members:    acc.members,
		})
	}
	return out
}

// Markers turns clusters into glyphs. At HybridZoom sparse clusters
// (count < DenseThreshold) are expanded back into their members.
func (c *Clusterer) Markers(clusters []Cluster, zoom int) []Marker {
	out := make([]Marker, 0, len(clusters))
	for _, cl := range clusters {
		if zoom == HybridZoom && cl.Count < c.DenseThreshold && len(cl.Members) > 0 {
			for _, m := range cl.Members {
				out = append(out, Marker{Lon: m.Lon, Lat: m.Lat, CategoryID: m.CategoryID, Count: 1})
			}
			continue
		}
		out = append(out, Marker{Lon: cl.Lon, Lat: cl.Lat, CategoryID: cl.CategoryID, Count: cl.Count})
	}
	return out
}

func scale(vp Viewport) float64 {
	if vp.Scale <= 0 {
		return 1
	}
	return vp.Scale
}
