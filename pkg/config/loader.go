// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from YAML files and environment variables,
// validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		// missing env files are fine; everything has a YAML default
		_ = err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	v.SetConfigFile(fmt.Sprintf("./configs/%s.yaml", env))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := unmarshal(v, env)
	if err != nil {
		return nil, nil, err
	}

	return cfg, v, nil
}

func unmarshal(v *viper.Viper, env string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AppEnv = env
	cfg.ApplyDefaults()

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Watcher re-reads the config file when it changes on disk and hands the
// fresh Config to subscribers. Only tunables read through the watcher (the
// product catalog, preview lengths, rate limit rules) pick up changes;
// connection settings require a restart.
type Watcher struct {
	mu          sync.RWMutex
	current     *Config
	subscribers []func(*Config)
	log         *slog.Logger
}

// NewWatcher starts watching the config file backing v. The initial Config
// is served immediately.
func NewWatcher(v *viper.Viper, initial *Config, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}

	w := &Watcher{current: initial, log: log}

	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}

		cfg, err := unmarshal(v, initial.AppEnv)
		if err != nil {
			w.log.Error("config reload rejected", slog.String("file", e.Name), slog.Any("error", err))
			return
		}

		w.mu.Lock()
		w.current = cfg
		subs := append(([]func(*Config))(nil), w.subscribers...)
		w.mu.Unlock()

		w.log.Info("config reloaded", slog.String("file", e.Name))

		for _, fn := range subs {
			fn(cfg)
		}
	})
	v.WatchConfig()

	return w
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe registers a callback invoked after every successful reload.
func (w *Watcher) Subscribe(fn func(*Config)) {
	if fn == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}
