// Package metrics provides centralized Prometheus metrics for the
// registry coordination plane.
//
// Metrics are organized by category (Store, Lock, Engine, Liveness,
// Propagate, Dependency), each lazily initialized the first time it's
// accessed. All names follow the convention
// registrycenter_<category>_<metric_name>_<unit>.
//
// Adapted from the teacher's MetricsRegistry lazy sync.Once pattern
// (pkg/metrics/registry.go), with the alert-history business categories
// replaced by registry-coordinator ones.
package metrics

import "sync"

// Registry is the central registry for all Prometheus metrics, providing
// organized access to metrics by category. Thread-safe; use
// DefaultRegistry for the process-wide singleton.
type Registry struct {
	namespace string

	store      *StoreMetrics
	lock       *LockMetrics
	engine     *EngineMetrics
	liveness   *LivenessMetrics
	propagate  *PropagateMetrics
	dependency *DependencyMetrics

	storeOnce      sync.Once
	lockOnce       sync.Once
	engineOnce     sync.Once
	livenessOnce   sync.Once
	propagateOnce  sync.Once
	dependencyOnce sync.Once
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the global singleton Registry.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry("registrycenter")
	})
	return defaultRegistry
}

// NewRegistry builds a Registry with the given metric name prefix. Most
// callers should use DefaultRegistry; NewRegistry exists for tests that
// need an isolated registry.
func NewRegistry(namespace string) *Registry {
	return &Registry{namespace: namespace}
}

// Store returns the store-operation metrics, initializing them on first
// use.
func (r *Registry) Store() *StoreMetrics {
	r.storeOnce.Do(func() {
		r.store = newStoreMetrics(r.namespace)
	})
	return r.store
}

// Lock returns the lock-manager metrics, initializing them on first use.
func (r *Registry) Lock() *LockMetrics {
	r.lockOnce.Do(func() {
		r.lock = newLockMetrics(r.namespace)
	})
	return r.lock
}

// Engine returns the refresh-engine metrics, initializing them on first
// use.
func (r *Registry) Engine() *EngineMetrics {
	r.engineOnce.Do(func() {
		r.engine = newEngineMetrics(r.namespace)
	})
	return r.engine
}

// Liveness returns the liveness-monitor metrics, initializing them on
// first use.
func (r *Registry) Liveness() *LivenessMetrics {
	r.livenessOnce.Do(func() {
		r.liveness = newLivenessMetrics(r.namespace)
	})
	return r.liveness
}

// Propagate returns the change-propagator metrics, initializing them on
// first use.
func (r *Registry) Propagate() *PropagateMetrics {
	r.propagateOnce.Do(func() {
		r.propagate = newPropagateMetrics(r.namespace)
	})
	return r.propagate
}

// Dependency returns the dependency-monitor metrics, initializing them on
// first use.
func (r *Registry) Dependency() *DependencyMetrics {
	r.dependencyOnce.Do(func() {
		r.dependency = newDependencyMetrics(r.namespace)
	})
	return r.dependency
}
