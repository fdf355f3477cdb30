package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"catbot/pkg/logx"
)

// Manager loads the config file and watches it for changes.
// Subscribers receive a fresh *Config only after it parsed and validated;
// a broken edit keeps the last good config in place.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	subsMu sync.Mutex
	subs   []chan *Config

	log logx.Logger

	// lastHash tracks the last committed config content to avoid
	// redundant publishes when editors fire multiple write events.
	lastHash uint64
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop()}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, err := toStrictJSON(m.path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Telegram.Tokens) == 0 {
		return errors.New("telegram.tokens: at least one bot token is required")
	}
	for i, t := range cfg.Telegram.Tokens {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("telegram.tokens[%d]: empty token", i)
		}
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"delivery.product.batch_delay", cfg.Delivery.Product.BatchDelay},
		{"delivery.custom.batch_delay", cfg.Delivery.Custom.BatchDelay},
		{"delivery.stagger_interval", cfg.Delivery.StaggerInterval},
		{"delivery.page_pause", cfg.Delivery.PagePause},
		{"translate.timeout", cfg.Translate.Timeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	counts := []struct {
		path string
		v    int
	}{
		{"delivery.product.max_per_hour", cfg.Delivery.Product.MaxPerHour},
		{"delivery.product.batch_size", cfg.Delivery.Product.BatchSize},
		{"delivery.custom.max_per_hour", cfg.Delivery.Custom.MaxPerHour},
		{"delivery.custom.batch_size", cfg.Delivery.Custom.BatchSize},
		{"delivery.stagger_group_size", cfg.Delivery.StaggerGroupSize},
		{"delivery.page_size", cfg.Delivery.PageSize},
		{"delivery.max_iterations", cfg.Delivery.MaxIterations},
		{"delivery.send_rate_per_sec", cfg.Delivery.SendRatePerSec},
	}
	for _, c := range counts {
		if c.v < 0 {
			return fmt.Errorf("%s: must be >= 0", c.path)
		}
	}
	return nil
}

func (m *Manager) commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
		default:
			// subscriber lagging; it will pick up the next reload
		}
	}
}

// Watch blocks until ctx is done, reloading the config on file changes.
// Editors replace files via rename, so the watch is on the directory.
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		return err
	}

	base := filepath.Base(m.path)
	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Coalesce the event burst a single save produces.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("config watcher error", logx.Err(err))
		case <-reload:
			cfg, err := m.Parse()
			if err != nil {
				m.log.Error("config reload rejected, keeping previous", logx.Err(err))
				continue
			}
			m.mu.RLock()
			prev := m.lastHash
			m.mu.RUnlock()
			if hashConfig(cfg) == prev {
				continue
			}
			m.commit(cfg)
			m.publish(cfg)
			m.log.Info("config reloaded", logx.String("path", m.path))
		}
	}
}
