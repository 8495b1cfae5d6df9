package tiles

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb/maptile"

	"github.com/lajos93/canvas-tile-api/internal/payload"
	"github.com/lajos93/canvas-tile-api/internal/storage"
)

// DefaultCategoryKey status key of the all-categories target
const DefaultCategoryKey = "all"

var (
	// ErrInvalidInput bad zoom, coordinates or request; nothing was started.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownCategory category id cannot be resolved to a slug
	ErrUnknownCategory = payload.ErrUnknownCategory
)

// Target selects the points a render draws and the key prefix it writes to.
// A nil CategoryID is the default target drawing every category.
type Target struct {
	Zoom       int
	CategoryID *int
	Slug       string
}

// Default all-categories target of a zoom
func Default(zoom int) Target {
	return Target{Zoom: zoom}
}

// IsCategory reports whether the target is scoped to one category.
func (t Target) IsCategory() bool {
	return t.CategoryID != nil
}

// Prefix key prefix of the target's zoom
func (t Target) Prefix() string {
	return storage.TilePrefix(t.Slug, t.Zoom)
}

// Key storage key of one tile
func (t Target) Key(tile maptile.Tile, ext string) string {
	return storage.TileKey(t.Slug, tile, ext)
}

// CategoryKey key of the target in the status record
func (t Target) CategoryKey() string {
	if t.Slug == "" {
		return DefaultCategoryKey
	}
	return t.Slug
}

func (t Target) String() string {
	return fmt.Sprintf("%s@%d", t.CategoryKey(), t.Zoom)
}
