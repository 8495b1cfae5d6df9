package payload

import (
	"github.com/lajos93/canvas-tile-api/internal/projection"
)

// Point one tree as returned by the data service
type Point struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	CategoryID *int    `json:"categoryId,omitempty"`
}

// Category is a species category of the catalog.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Query selects the points inside a box, optionally of one category.
type Query struct {
	BBox       projection.BBox
	CategoryID *int
}

// IntPtr helper for optional category ids
func IntPtr(v int) *int {
	return &v
}

// SameCategory compares two optional category ids.
func SameCategory(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
