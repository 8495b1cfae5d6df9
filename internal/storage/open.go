package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by Open
const (
	BackendFS     = "fs"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendS3     = "s3"
)

// Options selects and configures one backend.
type Options struct {
	Backend string `mapstructure:"backend"`
	BaseURL string `mapstructure:"baseURL"`

	Directory string `mapstructure:"directory"`

	RedisAddr      string `mapstructure:"redisAddr"`
	RedisPassword  string `mapstructure:"redisPassword"`
	RedisDB        int    `mapstructure:"redisDB"`
	RedisNamespace string `mapstructure:"redisNamespace"`

	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// Open builds the configured store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFS, "":
		dir := opts.Directory
		if dir == "" {
			dir = "output"
		}
		return NewFS(dir, opts.BaseURL)
	case BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis %s: %w", opts.RedisAddr, err)
		}
		return NewRedis(client, opts.RedisNamespace, opts.BaseURL), nil
	case BackendS3:
		return NewS3(ctx, S3Options{
			Bucket:   opts.Bucket,
			Region:   opts.Region,
			Endpoint: opts.Endpoint,
			BaseURL:  opts.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
