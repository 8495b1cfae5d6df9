package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	fieldBody        = "body"
	fieldContentType = "content_type"
	scanCount        = 500
)

// Redis keeps every object in a hash {body, content_type} under namespace+key.
type Redis struct {
	client    redis.UniversalClient
	namespace string
	baseURL   string
}

func NewRedis(client redis.UniversalClient, namespace, baseURL string) *Redis {
	return &Redis{client: client, namespace: namespace, baseURL: baseURL}
}

func (s *Redis) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	err := s.client.HSet(ctx, s.namespace+key, fieldBody, data, fieldContentType, contentType).Err()
	if err != nil {
		return "", wrap("put", key, err)
	}
	return publicURL(s.baseURL, key), nil
}

func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.namespace+key, fieldBody).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, wrap("get", key, err)
}

// List pages through SCAN until the cursor wraps to 0.
func (s *Redis) List(ctx context.Context, prefix string) ([]string, error) {
	match := globEscape(s.namespace+prefix) + "*"

	var (
		keys   []string
		cursor uint64
	)
	for {
		page, next, err := s.client.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return nil, wrap("list", prefix, err)
		}
		for _, k := range page {
			keys = append(keys, strings.TrimPrefix(k, s.namespace))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return sortedKeys(dedup(keys)), nil
}

// SCAN may return a key more than once
func dedup(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
