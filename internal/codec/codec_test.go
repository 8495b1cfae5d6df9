package codec

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		format  string
		ext     string
		ctype   string
		wantErr bool
	}{
		{format: "avif", ext: "avif", ctype: "image/avif"},
		{format: "", ext: "avif", ctype: "image/avif"},
		{format: "png", ext: "png", ctype: "image/png"},
		{format: "jpeg", ext: "jpg", ctype: "image/jpeg"},
		{format: "pbf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			c, err := New(tt.format, 0)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ext, c.Ext())
			assert.Equal(t, tt.ctype, c.ContentType())
		})
	}
}

func TestPNGKeepsPixels(t *testing.T) {
	c, err := New(PNG, 0)
	require.NoError(t, err)

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	data, err := c.Encode(img)
	require.NoError(t, err)
	out, err := c.Decode(data)
	require.NoError(t, err)

	r, g, b, a := out.At(1, 2).RGBA()
	assert.Equal(t, []uint32{10, 20, 30, 255}, []uint32{r >> 8, g >> 8, b >> 8, a >> 8})
}

func TestDecodeGarbage(t *testing.T) {
	c, err := New(PNG, 0)
	require.NoError(t, err)

	_, err = c.Decode([]byte("not an image"))
	assert.Error(t, err)
}
