package config

import (
	"sync"

	"github.com/dshills/tsbridge/internal/event"
)

// Store holds the current configuration loaded from a file.
type Store struct {
	mu      sync.RWMutex
	path    string
	current *Config

	changed event.Emitter[*Config]
}

// NewStore loads path and returns a store holding the result.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, current: cfg}, nil
}

// NewStoreWith returns a store holding cfg that is not backed by a file.
func NewStoreWith(cfg *Config) *Store {
	return &Store{current: cfg}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Current returns a copy of the current configuration.
func (s *Store) Current() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Reload re-reads the backing file. On failure the current configuration is
// kept. Subscribers are notified after a successful reload.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.Set(cfg)
	return nil
}

// Set replaces the configuration and notifies subscribers.
func (s *Store) Set(cfg *Config) {
	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()

	s.changed.Emit(cfg.Clone())
}

// OnDidChange subscribes fn to configuration changes. fn runs on the
// goroutine that reloaded the store.
func (s *Store) OnDidChange(fn func()) *event.Subscription {
	return s.changed.Subscribe(func(*Config) { fn() })
}

// OnDidReload subscribes fn to configuration changes with the new value.
func (s *Store) OnDidReload(fn func(*Config)) *event.Subscription {
	return s.changed.Subscribe(fn)
}

// ValidationSettings returns whether JavaScript and TypeScript diagnostics
// are enabled.
func (s *Store) ValidationSettings() (javascript, typescript bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.JavaScript.Validate.Enable, s.current.TypeScript.Validate.Enable
}
