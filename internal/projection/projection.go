package projection

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxLatitude web mercator latitude limit
const MaxLatitude = 85.05112877980659

// MaxZoom highest zoom level accepted anywhere in the pipeline
const MaxZoom = 22

// BBox geographic bounds of a tile or a block of tiles
type BBox struct {
	LonLeft   float64 `json:"lonLeft"`
	LonRight  float64 `json:"lonRight"`
	LatTop    float64 `json:"latTop"`
	LatBottom float64 `json:"latBottom"`
}

// Lon2Tile longitude to tile column
func Lon2Tile(lon float64, z int) int {
	n := math.Exp2(float64(z))
	return clampIndex(int(math.Floor((lon+180)/360*n)), z)
}

// Lat2Tile latitude to tile row
func Lat2Tile(lat float64, z int) int {
	n := math.Exp2(float64(z))
	return clampIndex(int(math.Floor(MercatorY(lat)*n)), z)
}

// MercatorY returns the normalized mercator y of lat, 0 at the top edge and 1 at the bottom.
func MercatorY(lat float64) float64 {
	lat = math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
	latRad := lat * math.Pi / 180
	return (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2
}

// TileBBox inverse of Lon2Tile/Lat2Tile
func TileBBox(x, y, z int) BBox {
	n := math.Exp2(float64(z))
	return BBox{
		LonLeft:   float64(x)/n*360 - 180,
		LonRight:  float64(x+1)/n*360 - 180,
		LatTop:    tile2lat(float64(y), n),
		LatBottom: tile2lat(float64(y+1), n),
	}
}

func tile2lat(y, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180 / math.Pi
}

func clampIndex(i, z int) int {
	last := (1 << uint(z)) - 1
	if i < 0 {
		return 0
	}
	if i > last {
		return last
	}
	return i
}

// Tile builds a tile coordinate from plain ints
func Tile(x, y, z int) maptile.Tile {
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
}

// TileAt covering tile of a point
func TileAt(lon, lat float64, z int) maptile.Tile {
	return Tile(Lon2Tile(lon, z), Lat2Tile(lat, z), z)
}

// BBoxOf bounds of a maptile
func BBoxOf(t maptile.Tile) BBox {
	return TileBBox(int(t.X), int(t.Y), int(t.Z))
}

// ValidTile checks z and the x/y range of a coordinate.
func ValidTile(x, y, z int) error {
	if z < 0 || z > MaxZoom {
		return fmt.Errorf("zoom %d out of range [0,%d]", z, MaxZoom)
	}
	n := 1 << uint(z)
	if x < 0 || x >= n || y < 0 || y >= n {
		return fmt.Errorf("tile %d/%d out of range for zoom %d", x, y, z)
	}
	return nil
}

// Bound as orb.Bound
func (b BBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.LonLeft, b.LatBottom},
		Max: orb.Point{b.LonRight, b.LatTop},
	}
}

// Union smallest box covering both
func (b BBox) Union(o BBox) BBox {
	return BBox{
		LonLeft:   math.Min(b.LonLeft, o.LonLeft),
		LonRight:  math.Max(b.LonRight, o.LonRight),
		LatTop:    math.Max(b.LatTop, o.LatTop),
		LatBottom: math.Min(b.LatBottom, o.LatBottom),
	}
}

// Center of the box in lon/lat
func (b BBox) Center() (lon, lat float64) {
	c := b.Bound().Center()
	return c.X(), c.Y()
}

// Pixel projects lon/lat onto a width x height canvas spanning the box.
// x is linear in longitude, y follows the mercator curve so that boxes made of
// several tiles line up with the tiles rendered on their own.
func (b BBox) Pixel(lon, lat float64, width, height float64) (px, py float64) {
	px = (lon - b.LonLeft) / (b.LonRight - b.LonLeft) * width
	top, bottom := MercatorY(b.LatTop), MercatorY(b.LatBottom)
	py = (MercatorY(lat) - top) / (bottom - top) * height
	return px, py
}
