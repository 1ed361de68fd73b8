package config

import "sync/atomic"

// Store holds the active configuration snapshot. Reads are lock-free;
// administrative reloads swap the pointer atomically so in-flight
// requests keep the snapshot they started with.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Current returns the active snapshot.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Reload loads a fresh snapshot and swaps it in. The previous snapshot
// remains valid for requests already holding it.
func (s *Store) Reload() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	s.current.Store(cfg)
	return cfg, nil
}

// Swap installs a pre-built snapshot, for tests and admin tooling.
func (s *Store) Swap(cfg *Config) {
	s.current.Store(cfg)
}
