package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// WriteZip streams every object under prefix into a zip archive on w, entry
// names relative to prefix. It returns the number of entries written.
func WriteZip(ctx context.Context, s Store, prefix string, w io.Writer) (int, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	n := 0
	for _, key := range keys {
		data, err := s.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			// removed since the listing
			continue
		}
		if err != nil {
			zw.Close()
			return n, err
		}
		name := strings.TrimPrefix(key, prefix)
		if name == "" {
			continue
		}
		f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			zw.Close()
			return n, wrap("zip", key, err)
		}
		if _, err := f.Write(data); err != nil {
			zw.Close()
			return n, wrap("zip", key, err)
		}
		n++
	}
	return n, zw.Close()
}
