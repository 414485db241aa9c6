package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jasonwang1/registercenter/pkg/metrics"
)

// RedisConn describes one named Redis connection as listed under
// redis_list in the configuration file.
type RedisConn struct {
	Name         string
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Manager owns one Store per configured Redis connection and resolves a
// group_tab to its bound connection via the configured group_list.
type Manager struct {
	mu      sync.RWMutex
	stores  map[string]Store
	clients map[string]*redis.Client
	groups  map[string]string // group_tab -> redis connection name
	metrics *metrics.StoreMetrics
}

// NewManager builds the named connections and the group binding table. m
// may be nil in tests that don't care about instrumentation.
func NewManager(conns []RedisConn, groups map[string]string, m *metrics.StoreMetrics) (*Manager, error) {
	mgr := &Manager{
		stores:  make(map[string]Store, len(conns)),
		clients: make(map[string]*redis.Client, len(conns)),
		groups:  groups,
		metrics: m,
	}
	for _, c := range conns {
		if c.Name == "" {
			return nil, fmt.Errorf("store manager: redis connection with empty name")
		}
		client := redis.NewClient(&redis.Options{
			Addr:         c.Addr,
			Password:     c.Password,
			DB:           c.DB,
			PoolSize:     c.PoolSize,
			MinIdleConns: c.MinIdleConns,
			DialTimeout:  c.DialTimeout,
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
		})
		mgr.clients[c.Name] = client
		mgr.stores[c.Name] = NewRedisStore(client, m)
	}
	return mgr, nil
}

// ForGroup resolves a group_tab to its bound Store.
func (m *Manager) ForGroup(group string) (Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.groups[group]
	if !ok {
		return nil, fmt.Errorf("store manager: unknown group_tab %q", group)
	}
	st, ok := m.stores[name]
	if !ok {
		return nil, fmt.Errorf("store manager: group_tab %q bound to unconfigured connection %q", group, name)
	}
	return st, nil
}

// Groups returns every configured group_tab, for components that must
// iterate all groups (the liveness and dependency monitors).
func (m *Manager) Groups() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.groups))
	for g := range m.groups {
		out = append(out, g)
	}
	return out
}

// Rebind atomically swaps in a new connection set and group table, used by
// SIGHUP config reload. Every connection is rebuilt from conns, including
// unchanged ones, and all previous clients are closed after the swap.
func (m *Manager) Rebind(conns []RedisConn, groups map[string]string) error {
	next, err := NewManager(conns, groups, m.metrics)
	if err != nil {
		return err
	}
	m.mu.Lock()
	old := m.clients
	m.stores = next.stores
	m.clients = next.clients
	m.groups = next.groups
	m.mu.Unlock()
	for _, c := range old {
		_ = c.Close()
	}
	return nil
}

// Close releases every underlying client connection.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var firstErr error
	for _, c := range m.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
