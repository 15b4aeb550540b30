// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"bytes"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Inferara/web3-canvas-sub000/internal/chain"
	"github.com/Inferara/web3-canvas-sub000/internal/logging"
	"github.com/Inferara/web3-canvas-sub000/internal/persist"
	"github.com/Inferara/web3-canvas-sub000/internal/pricefeed"
)

// EnvPrefix namespaces the environment overrides
const EnvPrefix = "WEB3CANVAS_"

// Storage drivers
const (
	DriverMemory = "memory"
	DriverBadger = "badger"
)

type Config struct {
	Server   ServerConfig     `yaml:"server"`
	Ethereum chain.Config     `yaml:"ethereum"`
	Price    pricefeed.Config `yaml:"price"`
	Storage  StorageConfig    `yaml:"storage"`
	Log      logging.Config   `yaml:"log"`
	Queue    QueueConfig      `yaml:"queue"`
	Engine   EngineConfig     `yaml:"engine"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
	// BaseURL prefixes generated share links
	BaseURL         string        `yaml:"base_url" validate:"omitempty,url"`
	Mode            string        `yaml:"mode" validate:"oneof=debug release test"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

type StorageConfig struct {
	Driver string               `yaml:"driver" validate:"oneof=memory badger"`
	Badger persist.BadgerConfig `yaml:"badger"`
}

type QueueConfig struct {
	// Manual holds messages until explicitly processed
	Manual bool `yaml:"manual"`
}

type EngineConfig struct {
	NodeTimeout time.Duration `yaml:"node_timeout" validate:"gte=0"`
	// Timers runs interval nodes on their period
	Timers bool `yaml:"timers"`
}

// Default returns a configuration that runs without a config file
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			BaseURL:         "http://127.0.0.1:8080/",
			Mode:            "release",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Ethereum: chain.DefaultConfig(),
		Price:    pricefeed.DefaultConfig(),
		Storage: StorageConfig{
			Driver: DriverMemory,
			Badger: persist.DefaultBadgerConfig("./data/web3canvas"),
		},
		Log:    logging.DefaultConfig(),
		Engine: EngineConfig{NodeTimeout: 30 * time.Second, Timers: true},
	}
}

// LookupFunc resolves an environment variable
type LookupFunc func(key string) (string, bool)

// Load reads path over the defaults, applies the process environment and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment
func LoadWithEnv(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "config %s", path)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, rejecting unknown keys
func Parse(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return errors.Wrap(err, "decode yaml")
	}
	return nil
}

var validate = validator.New()

// Validate checks struct constraints
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if cfg.Storage.Driver == DriverBadger && !cfg.Storage.Badger.InMemory && cfg.Storage.Badger.Path == "" {
		return errors.New("invalid config: storage.badger.path is required")
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	strs := map[string]*string{
		"SERVER_ADDR":     &cfg.Server.Addr,
		"SERVER_BASE_URL": &cfg.Server.BaseURL,
		"SERVER_MODE":     &cfg.Server.Mode,
		"ETH_RPC_URL":     &cfg.Ethereum.URL,
		"PRICE_URL":       &cfg.Price.URL,
		"STORAGE_DRIVER":  &cfg.Storage.Driver,
		"STORAGE_PATH":    &cfg.Storage.Badger.Path,
		"LOG_LEVEL":       &cfg.Log.Level,
		"LOG_OUTPUT":      &cfg.Log.Output,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"LOG_JSON":      &cfg.Log.JSON,
		"QUEUE_MANUAL":  &cfg.Queue.Manual,
		"ENGINE_TIMERS": &cfg.Engine.Timers,
	}
	for key, dst := range bools {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "%s%s", EnvPrefix, key)
		}
		*dst = b
	}

	if v, ok := lookup(EnvPrefix + "ENGINE_NODE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "%sENGINE_NODE_TIMEOUT", EnvPrefix)
		}
		cfg.Engine.NodeTimeout = d
	}
	return nil
}
