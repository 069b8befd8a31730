package ingest

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/topkapi"
	"github.com/hupe1980/topkapi/resource"
	"github.com/hupe1980/topkapi/snapshot"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers   = errors.New("ingest: workers must be positive")
	ErrInvalidBatchSize = errors.New("ingest: batch size must be positive")
	ErrInvalidStore     = errors.New("ingest: invalid store config")
	ErrMemoryLimit      = errors.New("ingest: memory limit too small for one shard")
)

// Default configuration values.
const (
	defaultWidth     = 1024
	defaultDepth     = 4
	defaultMaxKeyLen = 32
	defaultBatchSize = 256
)

// Config describes an ingest job.
type Config struct {
	// Workers is the number of private shards. Default: GOMAXPROCS.
	Workers int `yaml:"workers"`
	// BatchSize is the number of records handed to a worker at a time.
	BatchSize int `yaml:"batch_size"`

	Width     uint64  `yaml:"width"`
	Depth     uint64  `yaml:"depth"`
	MaxKeyLen uint64  `yaml:"max_key_len"`
	Phi       float64 `yaml:"phi"`

	// Ngram > 0 adds every ngram-byte window of a record instead of the
	// whole record.
	Ngram uint64 `yaml:"ngram"`

	// Output saves the merged sketch to this path when set.
	Output string `yaml:"output"`

	// Publish uploads the merged sketch as a snapshot when Publish.Name is set.
	Publish PublishConfig `yaml:"publish"`

	Resources ResourceConfig `yaml:"resources"`
}

// PublishConfig selects where and how the result is published.
type PublishConfig struct {
	Name        string               `yaml:"name"`
	Compression snapshot.Compression `yaml:"compression"`
	Store       StoreConfig          `yaml:"store"`
}

// ResourceConfig mirrors resource.Config.
type ResourceConfig struct {
	MemoryLimitBytes     int64 `yaml:"memory_limit_bytes"`
	MaxBackgroundWorkers int64 `yaml:"max_background_workers"`
	IOLimitBytesPerSec   int64 `yaml:"io_limit_bytes_per_sec"`
}

func (c ResourceConfig) enabled() bool {
	return c.MemoryLimitBytes > 0 || c.MaxBackgroundWorkers > 0 || c.IOLimitBytesPerSec > 0
}

// controller returns nil when no limit is configured.
func (c ResourceConfig) controller() *resource.Controller {
	if !c.enabled() {
		return nil
	}
	return resource.NewController(resource.Config{
		MemoryLimitBytes:     c.MemoryLimitBytes,
		MaxBackgroundWorkers: c.MaxBackgroundWorkers,
		IOLimitBytesPerSec:   c.IOLimitBytesPerSec,
	})
}

// LoadConfig reads a YAML job file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("ingest: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML, applies defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("ingest: parse config: %w", err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Width == 0 {
		c.Width = defaultWidth
	}
	if c.Depth == 0 {
		c.Depth = defaultDepth
	}
	if c.MaxKeyLen == 0 {
		c.MaxKeyLen = defaultMaxKeyLen
	}
	return c
}

// Validate checks the job and the sketch shape it describes.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, c.BatchSize)
	}

	if err := topkapi.Validate(c.Width, c.Depth, c.MaxKeyLen, c.sketchOptions()...); err != nil {
		return err
	}

	if c.Publish.Name != "" {
		if err := c.Publish.Store.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) sketchOptions() []topkapi.Option {
	if c.Phi == 0 {
		return nil
	}
	return []topkapi.Option{topkapi.WithPhi(c.Phi)}
}
