package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound object does not exist
var ErrNotFound = errors.New("object not found")

// Store key addressed blob storage. Puts overwrite, last write wins per key.
type Store interface {
	// Put writes data under key and returns its public url.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get returns ErrNotFound for absent keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// List every key under prefix, paging through the backend until exhausted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// GetIfExists maps ErrNotFound to (nil, false, nil).
func GetIfExists(ctx context.Context, s Store, key string) ([]byte, bool, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func publicURL(base, key string) string {
	if base == "" {
		return key
	}
	return strings.TrimSuffix(base, "/") + "/" + key
}

func sortedKeys(keys []string) []string {
	sort.Strings(keys)
	return keys
}

func wrap(op, key string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}
