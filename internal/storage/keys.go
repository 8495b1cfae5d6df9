package storage

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/maptile"
)

const (
	// TilesRoot prefix of every tile key
	TilesRoot = "tiles"
	// StatusKey single status record object
	StatusKey = "status.json"
	// AddTreeRoot prefix of the per-run add-tree workflow records
	AddTreeRoot = "status/add-tree"
)

// AddTreeKey status/add-tree/{unix millis}-{suffix}.json, one object per run
func AddTreeKey(at time.Time, suffix string) string {
	return fmt.Sprintf("%s/%d-%s.json", AddTreeRoot, at.UnixMilli(), suffix)
}

// TilePrefix key prefix of one zoom; slug "" selects the default target.
//
//	tiles/{z}/
//	tiles/category/{slug}/{z}/
func TilePrefix(slug string, z int) string {
	if slug == "" {
		return fmt.Sprintf("%s/%d/", TilesRoot, z)
	}
	return fmt.Sprintf("%s/category/%s/%d/", TilesRoot, slug, z)
}

// TileKey tiles/{z}/{x}/{y}.{ext} or tiles/category/{slug}/{z}/{x}/{y}.{ext}
func TileKey(slug string, t maptile.Tile, ext string) string {
	return fmt.Sprintf("%s%d/%d.%s", TilePrefix(slug, int(t.Z)), t.X, t.Y, ext)
}

// ParseTileKey reads x and y from the last two path elements of a tile key,
// the extension is ignored.
func ParseTileKey(key string) (x, y int, ok bool) {
	dir, file := path.Split(key)
	if i := strings.IndexByte(file, '.'); i >= 0 {
		file = file[:i]
	}
	col := path.Base(strings.TrimSuffix(dir, "/"))

	x, err := strconv.Atoi(col)
	if err != nil || x < 0 {
		return 0, 0, false
	}
	y, err = strconv.Atoi(file)
	if err != nil || y < 0 {
		return 0, 0, false
	}
	return x, y, true
}

// LastTile resume anchor of a zoom: the stored tile with maximal x, then
// maximal y, compared numerically. ok is false when nothing is stored yet.
func LastTile(ctx context.Context, s Store, slug string, z int) (t maptile.Tile, ok bool, err error) {
	prefix := TilePrefix(slug, z)
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return t, false, fmt.Errorf("list %s: %w", prefix, err)
	}

	bx, by := -1, -1
	for _, key := range keys {
		// only {x}/{y}.{ext} below the prefix
		rest := strings.TrimPrefix(key, prefix)
		if strings.Count(rest, "/") != 1 {
			continue
		}
		x, y, valid := ParseTileKey(key)
		if !valid {
			continue
		}
		if x > bx || (x == bx && y > by) {
			bx, by = x, y
		}
	}
	if bx < 0 {
		return t, false, nil
	}
	return maptile.New(uint32(bx), uint32(by), maptile.Zoom(z)), true, nil
}
