package config

import "sync/atomic"

// Store holds the live configuration snapshot in two fixed slots behind an
// atomic index, the literal realization of the original Config class's
// `ConfigData m_data[2]` + `atomic<int> m_dataIdx`: a reload fills the
// inactive slot, then flips the index, so Current never observes a
// partially-written snapshot and never blocks a concurrent reload.
type Store struct {
	slots [2]atomic.Pointer[Config]
	idx   atomic.Int32
}

// NewStore builds a Store whose initial snapshot is cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.slots[0].Store(cfg)
	s.idx.Store(0)
	return s
}

// Current returns the live snapshot.
func (s *Store) Current() *Config {
	return s.slots[s.idx.Load()].Load()
}

// Replace publishes cfg as the new live snapshot by writing it into the
// inactive slot and then flipping the index.
func (s *Store) Replace(cfg *Config) {
	active := s.idx.Load()
	inactive := 1 - active
	s.slots[inactive].Store(cfg)
	s.idx.Store(inactive)
}

// ReloadFrom reads and validates path, then atomically publishes it as the
// new live snapshot. The previous snapshot is left untouched on failure.
func (s *Store) ReloadFrom(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s.Replace(cfg)
	return cfg, nil
}
