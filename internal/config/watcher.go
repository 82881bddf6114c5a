package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher reloads the config file when its content changes and hands the
// difference from the running config to an apply callback. Edits that fail
// validation are logged and leave the running config in place.
type Watcher struct {
	path     string
	interval time.Duration
	apply    func(ConfigDiff)

	mu      sync.Mutex
	current *Config
	sum     [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets how often [Watcher.Run] rereads the file. The default is
// 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path once and returns a Watcher holding it. apply may be
// nil.
func NewWatcher(path string, apply func(ConfigDiff), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: 5 * time.Second, apply: apply}
	for _, opt := range opts {
		opt(w)
	}
	cfg, sum, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.sum = cfg, sum
	return w, nil
}

// Current returns the last config that loaded and validated.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run rereads the file every interval until ctx is cancelled, calling apply
// for each reload that changes something.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d, changed, err := w.Reload()
		if err != nil {
			slog.Warn("config watcher: keeping running config", "path", w.path, "err", err)
			continue
		}
		if !changed {
			continue
		}
		slog.Info("config watcher: configuration reloaded", "path", w.path,
			"bot_changed", d.BotChanged, "log_level_changed", d.LogLevelChanged)
		if w.apply != nil {
			w.apply(d)
		}
	}
}

// Reload reads the file once. changed is false when the bytes are identical
// or the new config differs from the running one in no compared field; in
// the latter case the new config still becomes current.
func (w *Watcher) Reload() (d ConfigDiff, changed bool, err error) {
	cfg, sum, err := w.read()
	if err != nil {
		return ConfigDiff{}, false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if sum == w.sum {
		return ConfigDiff{}, false, nil
	}
	d = Diff(w.current, cfg)
	w.current, w.sum = cfg, sum
	return d, !d.Empty(), nil
}

func (w *Watcher) read() (*Config, [sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	return cfg, sha256.Sum256(data), nil
}
