package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lajos93/canvas-tile-api/internal/codec"
	"github.com/lajos93/canvas-tile-api/internal/projection"
	"github.com/lajos93/canvas-tile-api/internal/storage"
)

// Config whole service configuration, loaded once at startup
type Config struct {
	App struct {
		Version string `mapstructure:"version"`
		Title   string `mapstructure:"title"`
	} `mapstructure:"app"`
	Output struct {
		LogDir         string `mapstructure:"logDir"`
		OutputTerminal bool   `mapstructure:"outputTerminal"`
	} `mapstructure:"output"`
	Server struct {
		Addr    string `mapstructure:"addr"`
		GinMode string `mapstructure:"ginMode"`
	} `mapstructure:"server"`
	Payload struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"payload"`
	Storage storage.Options `mapstructure:"storage"`
	Task    struct {
		Workers    int           `mapstructure:"workers"`
		Threads    int           `mapstructure:"threads"`
		Retries    int           `mapstructure:"retries"`
		RetryDelay time.Duration `mapstructure:"retryDelay"`
		Stitch     bool          `mapstructure:"stitch"`
		SuperTile  int           `mapstructure:"superTile"`
		Mode       string        `mapstructure:"mode"`
		Sparse     bool          `mapstructure:"sparse"`
	} `mapstructure:"task"`
	Render struct {
		TileSize       int    `mapstructure:"tileSize"`
		Supersample    int    `mapstructure:"supersample"`
		IconSize       int    `mapstructure:"iconSize"`
		DenseThreshold int    `mapstructure:"denseThreshold"`
		Format         string `mapstructure:"format"`
		Quality        int    `mapstructure:"quality"`
		IconDir        string `mapstructure:"iconDir"`
	} `mapstructure:"render"`
	Region struct {
		projection.Region `mapstructure:",squash"`
		Geojson           string `mapstructure:"geojson"`
	} `mapstructure:"region"`
	Zooms struct {
		Append     []int `mapstructure:"append"`
		Regenerate []int `mapstructure:"regenerate"`
		Batch      []int `mapstructure:"batch"`
	} `mapstructure:"zooms"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.version", "v 0.1.0")
	v.SetDefault("app.title", "Canvas Tile API")
	v.SetDefault("output.logDir", "")
	v.SetDefault("output.outputTerminal", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.ginMode", "release")
	v.SetDefault("payload.url", "")
	v.SetDefault("payload.timeout", "30s")
	v.SetDefault("storage.backend", storage.BackendFS)
	v.SetDefault("storage.directory", "output")
	v.SetDefault("storage.baseURL", "")
	v.SetDefault("storage.redisAddr", "localhost:6379")
	v.SetDefault("storage.redisNamespace", "canvas:")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "eu-central-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("task.workers", 5)
	v.SetDefault("task.threads", runtime.NumCPU())
	v.SetDefault("task.retries", 3)
	v.SetDefault("task.retryDelay", "500ms")
	v.SetDefault("task.stitch", false)
	v.SetDefault("task.superTile", 10)
	v.SetDefault("task.mode", "queue")
	v.SetDefault("task.sparse", false)
	v.SetDefault("render.tileSize", 256)
	v.SetDefault("render.supersample", 2)
	v.SetDefault("render.iconSize", 24)
	v.SetDefault("render.denseThreshold", 5)
	v.SetDefault("render.format", codec.AVIF)
	v.SetDefault("render.quality", 30)
	v.SetDefault("render.iconDir", "assets/icons")
	v.SetDefault("region.latMin", projection.Hungary.LatMin)
	v.SetDefault("region.latMax", projection.Hungary.LatMax)
	v.SetDefault("region.lonMin", projection.Hungary.LonMin)
	v.SetDefault("region.lonMax", projection.Hungary.LonMax)
	v.SetDefault("region.geojson", "")
	v.SetDefault("zooms.append", []int{7, 8, 9, 10, 11, 12, 13, 14, 15})
	v.SetDefault("zooms.regenerate", []int{13, 14, 15, 16})
	v.SetDefault("zooms.batch", []int{13})
}

// Load reads the TOML file at path; environment variables such as
// PAYLOAD_URL or STORAGE_BUCKET override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "conf.toml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file(%s) not exist", path)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file(%s) error, details: %w", v.ConfigFileUsed(), err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations no job could run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Payload.URL == "" {
		errs = append(errs, errors.New("payload.url is required"))
	}
	if _, err := codec.New(c.Render.Format, c.Render.Quality); err != nil {
		errs = append(errs, fmt.Errorf("render.format: %w", err))
	}
	switch c.Storage.Backend {
	case storage.BackendFS, storage.BackendMemory, storage.BackendRedis:
	case storage.BackendS3:
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q unknown", c.Storage.Backend))
	}
	if c.Task.Workers <= 0 {
		errs = append(errs, fmt.Errorf("task.workers must be positive, got %d", c.Task.Workers))
	}
	if c.Task.Retries <= 0 {
		errs = append(errs, fmt.Errorf("task.retries must be positive, got %d", c.Task.Retries))
	}
	if c.Render.Supersample < 1 {
		errs = append(errs, fmt.Errorf("render.supersample must be at least 1, got %d", c.Render.Supersample))
	}
	if c.Region.Geojson == "" {
		if err := c.Region.Region.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for name, zooms := range map[string][]int{"append": c.Zooms.Append, "regenerate": c.Zooms.Regenerate, "batch": c.Zooms.Batch} {
		for _, z := range zooms {
			if z < 0 || z > projection.MaxZoom {
				errs = append(errs, fmt.Errorf("zooms.%s: %d outside [0,%d]", name, z, projection.MaxZoom))
			}
		}
	}
	return errors.Join(errs...)
}

// JobRegion region of batch jobs: the GeoJSON outline when configured,
// otherwise the configured bounds.
func (c *Config) JobRegion() (projection.Region, error) {
	if c.Region.Geojson != "" {
		return projection.LoadRegion(c.Region.Geojson)
	}
	return c.Region.Region, nil
}
