package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_LazyInitReturnsSameInstance(t *testing.T) {
	r := NewRegistry("test_registrycenter")

	s1 := r.Store()
	s2 := r.Store()
	assert.Same(t, s1, s2)

	l1 := r.Lock()
	l2 := r.Lock()
	assert.Same(t, l1, l2)
}

func TestRegistry_CategoriesAreIndependent(t *testing.T) {
	r := NewRegistry("test_registrycenter2")

	assert.NotNil(t, r.Engine())
	assert.NotNil(t, r.Liveness())
	assert.NotNil(t, r.Propagate())
	assert.NotNil(t, r.Dependency())
}

func TestDefaultRegistry_Singleton(t *testing.T) {
	a := DefaultRegistry()
	b := DefaultRegistry()
	assert.Same(t, a, b)
}
