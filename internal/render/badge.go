package render

import (
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

var (
	badgeFontOnce sync.Once
	badgeFont     *opentype.Font
	badgeFontErr  error
)

// badgeFace is per draw call, font.Face values are not safe for concurrent use.
type badgeFace struct {
	face   font.Face
	radius float64
}

func newBadgeFace(scale float64) *badgeFace {
	badgeFontOnce.Do(func() {
		badgeFont, badgeFontErr = opentype.Parse(goregular.TTF)
	})

	b := &badgeFace{radius: 8 * scale}
	if badgeFontErr != nil {
		return b
	}
	face, err := opentype.NewFace(badgeFont, &opentype.FaceOptions{
		Size:    9 * scale,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err == nil {
		b.face = face
	}
	return b
}

func (b *badgeFace) draw(dc *gg.Context, cx, cy float64, count int) {
	label := BadgeLabel(count)
	radius := b.radius
	if len(label) > 2 {
		radius *= 1.25
	}

	dc.SetColor(badgeColor)
	dc.DrawCircle(cx, cy, radius)
	dc.FillPreserve()
	dc.SetColor(badgeStrokeColor)
	dc.SetLineWidth(radius / 6)
	dc.Stroke()

	if b.face == nil {
		return
	}
	dc.SetFontFace(b.face)
	dc.SetColor(badgeStrokeColor)
	dc.DrawStringAnchored(label, cx, cy, 0.5, 0.35)
}
