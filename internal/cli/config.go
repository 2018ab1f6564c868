package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	backend "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/skald-lang/skald/pkg/adapters/file"
	"github.com/skald-lang/skald/pkg/adapters/memory"
	"github.com/skald-lang/skald/pkg/adapters/redis"
	"github.com/skald-lang/skald/pkg/adapters/sqlite"
	"github.com/skald-lang/skald/pkg/ports"
)

// ServeConfig configures the HTTP host. Flags override file values.
type ServeConfig struct {
	Addr      string      `mapstructure:"addr"`
	BundleDir string      `mapstructure:"bundle_dir"`
	StepLimit int         `mapstructure:"step_limit"`
	Store     StoreConfig `mapstructure:"store"`
}

// StoreConfig selects and configures the snapshot backend.
type StoreConfig struct {
	Backend string      `mapstructure:"backend"` // memory, file, redis or sqlite
	Path    string      `mapstructure:"path"`    // file directory or sqlite database
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds redis connection settings for the store backend.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// DefaultServeConfig is the configuration used when no file is given.
func DefaultServeConfig() ServeConfig {
	return ServeConfig{
		Addr:      ":8080",
		BundleDir: ".",
		StepLimit: 100000,
		Store:     StoreConfig{Backend: "memory"},
	}
}

// LoadServeConfig reads a YAML config file over the defaults.
func LoadServeConfig(path string) (ServeConfig, error) {
	cfg := DefaultServeConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &cfg,
		ErrorUnused: true,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// OpenStore builds the configured snapshot store. The returned close
// function releases backend resources.
func (c StoreConfig) OpenStore() (ports.SnapshotStore, func() error, error) {
	noop := func() error { return nil }

	switch c.Backend {
	case "", "memory":
		return memory.NewStore(), noop, nil
	case "file":
		return file.New(c.Path), noop, nil
	case "sqlite":
		path := c.Path
		if path == "" {
			path = filepath.Join(".skald", "sessions.db")
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "redis":
		opts := []redis.Option{}
		if c.Redis.TTL > 0 {
			opts = append(opts, redis.WithTTL(c.Redis.TTL))
		}
		if c.Redis.Prefix != "" {
			opts = append(opts, redis.WithPrefix(c.Redis.Prefix))
		}
		store := redis.New(c.Redis.Addr, c.Redis.Password, c.Redis.DB, opts...)
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", c.Backend)
	}
}

// OpenLocker returns a cross-instance session locker for backends
// that support one, or nil when in-process locking suffices.
func (c StoreConfig) OpenLocker() ports.DistributedLocker {
	if c.Backend != "redis" {
		return nil
	}
	prefix := c.Redis.Prefix
	if prefix == "" {
		prefix = "skald:session:"
	}
	client := backend.NewClient(&backend.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
	return redis.NewLocker(client, prefix)
}

// LoadBundleDir builds an in-memory bundle registry from every YAML
// document in dir, keyed by file name without extension.
func LoadBundleDir(dir string) (*memory.Loader, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle directory: %w", err)
	}

	bundles := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle %s: %w", entry.Name(), err)
		}
		bundles[strings.TrimSuffix(entry.Name(), ext)] = string(data)
	}

	if len(bundles) == 0 {
		return nil, fmt.Errorf("no bundles found in %s", dir)
	}
	return memory.NewLoader(bundles), nil
}
