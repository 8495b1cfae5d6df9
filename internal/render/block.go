package render

import (
	"github.com/paulmach/orb/maptile"

	"github.com/lajos93/canvas-tile-api/internal/projection"
)

// Block N x N tiles aligned to the super-tile grid, clipped at the map edge
type Block struct {
	Z int
	X int
	Y int
	W int
	H int
}

// BlockOf super-tile containing t
func (r *Renderer) BlockOf(t maptile.Tile) Block {
	return BlockOf(t, r.opts.SuperTile)
}

// BlockOf super-tile of size n containing t
func BlockOf(t maptile.Tile, n int) Block {
	z := int(t.Z)
	limit := 1 << uint(z)
	bx := int(t.X) / n * n
	by := int(t.Y) / n * n
	return Block{
		Z: z,
		X: bx,
		Y: by,
		W: min(n, limit-bx),
		H: min(n, limit-by),
	}
}

// BBox geographic bounds of the whole block
func (b Block) BBox() projection.BBox {
	return projection.TileBBox(b.X, b.Y, b.Z).Union(projection.TileBBox(b.X+b.W-1, b.Y+b.H-1, b.Z))
}

// Contains reports whether t lies inside the block.
func (b Block) Contains(t maptile.Tile) bool {
	x, y := int(t.X), int(t.Y)
	return int(t.Z) == b.Z && x >= b.X && x < b.X+b.W && y >= b.Y && y < b.Y+b.H
}
