package projection

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Region lat/lon rectangle a batch job covers
type Region struct {
	LatMin float64 `json:"latMin" mapstructure:"latMin"`
	LatMax float64 `json:"latMax" mapstructure:"latMax"`
	LonMin float64 `json:"lonMin" mapstructure:"lonMin"`
	LonMax float64 `json:"lonMax" mapstructure:"lonMax"`
}

// Hungary default country extent
var Hungary = Region{LatMin: 45.7, LatMax: 48.6, LonMin: 16.0, LonMax: 22.9}

// Budapest default extent for region generation
var Budapest = Region{LatMin: 47.43, LatMax: 47.56, LonMin: 18.92, LonMax: 19.25}

// Validate requires min < max on both axes and coordinates on the globe.
func (r Region) Validate() error {
	if r.LatMin >= r.LatMax || r.LonMin >= r.LonMax {
		return fmt.Errorf("region requires latMin < latMax and lonMin < lonMax, got %+v", r)
	}
	if r.LatMin < -90 || r.LatMax > 90 || r.LonMin < -180 || r.LonMax > 180 {
		return fmt.Errorf("region %+v outside lat [-90,90] / lon [-180,180]", r)
	}
	return nil
}

// Rect tile index rectangle of the region at zoom z
func (r Region) Rect(z int) Rect {
	return Rect{
		Z:    z,
		MinX: Lon2Tile(r.LonMin, z),
		MaxX: Lon2Tile(r.LonMax, z),
		MinY: Lat2Tile(r.LatMax, z),
		MaxY: Lat2Tile(r.LatMin, z),
	}
}

// BBox the region as a bounding box
func (r Region) BBox() BBox {
	return BBox{LonLeft: r.LonMin, LonRight: r.LonMax, LatTop: r.LatMax, LatBottom: r.LatMin}
}

// IsZero reports whether no bounds are set.
func (r Region) IsZero() bool {
	return r == Region{}
}

// LoadRegion reads a GeoJSON feature collection (e.g. a country outline) and
// returns its bounding region.
func LoadRegion(path string) (Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Region{}, fmt.Errorf("read region %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return Region{}, fmt.Errorf("unmarshal region %s: %w", path, err)
	}

	var collection orb.Collection
	for _, f := range fc.Features {
		if f.Geometry != nil {
			collection = append(collection, f.Geometry)
		}
	}
	if len(collection) == 0 {
		return Region{}, fmt.Errorf("region %s has no geometry", path)
	}
	bound := collection.Bound()

	return Region{
		LatMin: bound.Min.Y(),
		LatMax: bound.Max.Y(),
		LonMin: bound.Min.X(),
		LonMax: bound.Max.X(),
	}, nil
}

// Rect inclusive tile index rectangle for one zoom
type Rect struct {
	Z    int `json:"z"`
	MinX int `json:"minX"`
	MaxX int `json:"maxX"`
	MinY int `json:"minY"`
	MaxY int `json:"maxY"`
}

// Count number of tiles in the rectangle
func (r Rect) Count() int64 {
	if r.MaxX < r.MinX || r.MaxY < r.MinY {
		return 0
	}
	return int64(r.MaxX-r.MinX+1) * int64(r.MaxY-r.MinY+1)
}

// Contains reports whether x/y lies inside the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// Start first coordinate in row-major order (x outer, y inner)
func (r Rect) Start() (x, y int) {
	return r.MinX, r.MinY
}

// Next row-major successor of x/y; ok is false once the rectangle is exhausted.
func (r Rect) Next(x, y int) (nx, ny int, ok bool) {
	nx, ny = x, y+1
	if ny > r.MaxY {
		nx, ny = x+1, r.MinY
	}
	return nx, ny, nx <= r.MaxX
}

// ResumeAfter returns where iteration continues once x/y is already done.
// Anchors left of the rectangle start at its beginning, anchors right of it
// leave nothing to do.
func (r Rect) ResumeAfter(x, y int) (nx, ny int, ok bool) {
	switch {
	case x < r.MinX:
		return r.MinX, r.MinY, r.Count() > 0
	case x > r.MaxX:
		return 0, 0, false
	case y < r.MinY:
		return x, r.MinY, true
	}
	return r.Next(x, y)
}
