package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/avif"
)

// Constants representing tile formats
const (
	AVIF = "avif"
	PNG  = "png"
	JPG  = "jpg"
)

// Codec converts rasters to stored tile bytes and back.
type Codec interface {
	Encode(img image.Image) ([]byte, error)
	Decode(data []byte) (image.Image, error)
	// Ext file extension used in storage keys, without the dot
	Ext() string
	ContentType() string
}

// New codec for format; quality applies to lossy formats (1..100).
func New(format string, quality int) (Codec, error) {
	if quality <= 0 || quality > 100 {
		quality = 72
	}
	switch format {
	case AVIF, "":
		return avifCodec{quality: quality}, nil
	case PNG:
		return pngCodec{}, nil
	case JPG, "jpeg":
		return jpegCodec{quality: quality}, nil
	}
	return nil, fmt.Errorf("unsupported tile format %q", format)
}

type avifCodec struct {
	quality int
}

func (c avifCodec) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := avif.Encode(&buf, img, avif.Options{Quality: c.quality, QualityAlpha: c.quality, Speed: 8}); err != nil {
		return nil, fmt.Errorf("avif encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (avifCodec) Decode(data []byte) (image.Image, error) {
	img, err := avif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("avif decode: %w", err)
	}
	return img, nil
}

func (avifCodec) Ext() string         { return AVIF }
func (avifCodec) ContentType() string { return "image/avif" }

type pngCodec struct{}

func (pngCodec) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (pngCodec) Decode(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("png decode: %w", err)
	}
	return img, nil
}

func (pngCodec) Ext() string         { return PNG }
func (pngCodec) ContentType() string { return "image/png" }

type jpegCodec struct {
	quality int
}

func (c jpegCodec) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (jpegCodec) Decode(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("jpeg decode: %w", err)
	}
	return img, nil
}

func (jpegCodec) Ext() string         { return JPG }
func (jpegCodec) ContentType() string { return "image/jpeg" }
