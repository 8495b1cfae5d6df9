package icons

import (
	"errors"
	"fmt"
	"image"
	_ "image/png" // icon assets are PNG
	"io/fs"
	"sync"

	"golang.org/x/image/draw"
)

// ErrNoIcon category has no icon mapping
var ErrNoIcon = errors.New("no icon mapping")

// DefaultFiles category id -> icon file of the species catalog
func DefaultFiles() map[int]string {
	return map[int]string{
		15: "apple.png",
		16: "pear.png",
		17: "cherry.png",
		18: "plum.png",
		19: "walnut.png",
		20: "medlar.png",
		21: "quince.png",
		22: "fig.png",
		23: "pomegranate.png",
		24: "grapes.png",
		25: "elaeagnus.png",
		29: "peach.png",
		30: "apricot.png",
		38: "almond.png",
	}
}

type scaledKey struct {
	file string
	size int
}

// Set resolves category icons from an asset filesystem. Decoded and scaled
// images are memoized by file name for the lifetime of the Set; concurrent
// first loads of one file may decode it twice, both results are identical.
type Set struct {
	fsys   fs.FS
	files  map[int]string
	source sync.Map // file -> image.Image
	scaled sync.Map // scaledKey -> image.Image
}

// New icon set over fsys
func New(fsys fs.FS, files map[int]string) *Set {
	if files == nil {
		files = DefaultFiles()
	}
	return &Set{fsys: fsys, files: files}
}

// File icon file name of a category
func (s *Set) File(categoryID int) (string, bool) {
	f, ok := s.files[categoryID]
	return f, ok
}

// Check verifies that a category has a mapping and that its file exists.
func (s *Set) Check(categoryID int) error {
	file, ok := s.File(categoryID)
	if !ok {
		return fmt.Errorf("category %d: %w", categoryID, ErrNoIcon)
	}
	if _, err := fs.Stat(s.fsys, file); err != nil {
		return fmt.Errorf("icon file %s for category %d: %w", file, categoryID, err)
	}
	return nil
}

// Icon returns the icon of a category scaled to size x size pixels. ok is
// false when the category is nil, unmapped, or its file cannot be decoded;
// callers draw a generic marker instead.
func (s *Set) Icon(categoryID *int, size int) (image.Image, bool) {
	if categoryID == nil || s == nil {
		return nil, false
	}
	file, ok := s.File(*categoryID)
	if !ok {
		return nil, false
	}

	key := scaledKey{file: file, size: size}
	if img, ok := s.scaled.Load(key); ok {
		return img.(image.Image), true
	}

	src, err := s.load(file)
	if err != nil {
		return nil, false
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	img, _ := s.scaled.LoadOrStore(key, image.Image(dst))
	return img.(image.Image), true
}

func (s *Set) load(file string) (image.Image, error) {
	if img, ok := s.source.Load(file); ok {
		return img.(image.Image), nil
	}

	f, err := s.fsys.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode icon %s: %w", file, err)
	}
	actual, _ := s.source.LoadOrStore(file, img)
	return actual.(image.Image), nil
}
