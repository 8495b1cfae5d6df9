package payload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUnknownCategory category id missing from the catalog
var ErrUnknownCategory = errors.New("unknown category")

// Categories lists the species category catalog.
type Categories interface {
	Categories(ctx context.Context) ([]Category, error)
}

// Categories first page of species categories, enough for the whole catalog.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var body struct {
		Docs []Category `json:"docs"`
	}
	if err := c.getJSON(ctx, c.base+"/api/species-categories?limit=100&sort=name", &body); err != nil {
		return nil, err
	}
	return body.Docs, nil
}

// Catalog caches the category list after its first successful load.
type Catalog struct {
	src Categories

	mu     sync.Mutex
	loaded bool
	byID   map[int]Category
}

func NewCatalog(src Categories) *Catalog {
	return &Catalog{src: src}
}

func (c *Catalog) load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	list, err := c.src.Categories(ctx)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	c.byID = make(map[int]Category, len(list))
	for _, cat := range list {
		c.byID[cat.ID] = cat
	}
	c.loaded = true
	return nil
}

// Lookup category by id, ErrUnknownCategory when absent.
func (c *Catalog) Lookup(ctx context.Context, id int) (Category, error) {
	if err := c.load(ctx); err != nil {
		return Category{}, err
	}
	c.mu.Lock()
	cat, ok := c.byID[id]
	c.mu.Unlock()
	if !ok {
		return Category{}, fmt.Errorf("%w: %d", ErrUnknownCategory, id)
	}
	return cat, nil
}

// Slug storage key segment of a category id
func (c *Catalog) Slug(ctx context.Context, id int) (string, error) {
	cat, err := c.Lookup(ctx, id)
	if err != nil {
		return "", err
	}
	slug := Slugify(cat.Name)
	if slug == "" {
		return "", fmt.Errorf("%w: %d has no usable name %q", ErrUnknownCategory, id, cat.Name)
	}
	return slug, nil
}

// List cached categories, sorted by name
func (c *Catalog) List(ctx context.Context) ([]Category, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Category, 0, len(c.byID))
	for _, cat := range c.byID {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Slugify strips accents, lowercases, turns whitespace runs into one dash and
// drops everything outside [a-z0-9-].
//
//	"Körte fák" -> "korte-fak"
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}
	plain = strings.ToLower(strings.TrimSpace(plain))

	var b strings.Builder
	space := false
	for _, r := range plain {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case space:
			b.WriteByte('-')
		}
		space = false
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
