// Package config implements the proxy's FileBasedConfiguration-style
// loader, grounded on the teacher's pkg/gateway/configuration_workingset.go
// and config.go: a YAML file read via gopkg.in/yaml.v3, with an optional
// fsnotify watcher driving hot reload.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the proxy's static runtime configuration.
type Config struct {
	Port              int               `yaml:"port"`
	Transport         string            `yaml:"transport"`
	LogFile           string            `yaml:"logFile"`
	DatabaseFile      string            `yaml:"databaseFile"`
	SessionIdleTimeout time.Duration    `yaml:"sessionIdleTimeout"`
	ReverseTimeouts   ReverseTimeouts   `yaml:"reverseTimeouts"`
}

// ReverseTimeouts configures the per-kind reverse-request timeout, per
// spec.md §5.
type ReverseTimeouts struct {
	SamplingMs    int `yaml:"samplingMs"`
	RootsMs       int `yaml:"rootsMs"`
	ElicitationMs int `yaml:"elicitationMs"`
}

// Defaults returns the zero-file baseline Config (port 8080, streamable
// HTTP, the spec.md §5 reverse-timeout defaults), for callers that build a
// Config from flags rather than a YAML file.
func Defaults() Config {
	return defaults()
}

func defaults() Config {
	return Config{
		Port:      8080,
		Transport: "streamable_http",
		ReverseTimeouts: ReverseTimeouts{
			SamplingMs:    30_000,
			RootsMs:       10_000,
			ElicitationMs: 30_000,
		},
	}
}

// Load reads and parses a YAML config file, applying defaults for unset
// fields, following the teacher's FileBasedConfiguration shape.
func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Watcher hot-reloads a Config file via fsnotify, per the teacher's
// config.go watch loop, and invokes onChange with the newly parsed Config
// whenever the file is written.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu  sync.RWMutex
	cur Config
}

// WatchFile starts watching path for writes and returns a Watcher seeded
// with the initial parse.
func WatchFile(path string, onChange func(Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{path: path, watcher: fw, cur: cfg}

	go func() {
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if updated, err := Load(path); err == nil {
					w.mu.Lock()
					w.cur = updated
					w.mu.Unlock()
					if onChange != nil {
						onChange(updated)
					}
				}
			case _, ok := <-fw.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return w, nil
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
