package policy

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateCheck(t *testing.T) {
	gate, err := NewGate(ModeLimited, 16)
	require.NoError(t, err)
	assert.Equal(t, ModeLimited, gate.Mode())

	first := gate.Check("DELETE FROM t")
	assert.False(t, first.Allowed)
	assert.Equal(t, ReasonNoWhere, first.Reason)

	// Cached path returns the identical decision.
	assert.Equal(t, first, gate.Check("DELETE FROM t"))

	allowed := gate.Check("SELECT 1")
	assert.True(t, allowed.Allowed)
}

func TestGateCacheEviction(t *testing.T) {
	gate, err := NewGate(ModeReadonly, 2)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		d := gate.Check(fmt.Sprintf("SELECT %d", i))
		assert.True(t, d.Allowed)
	}
	// Evicted entries reclassify to the same decision.
	d := gate.Check("SELECT 0")
	assert.True(t, d.Allowed)
	assert.Equal(t, KindRead, d.Kind)
}

func TestGateConcurrent(t *testing.T) {
	gate, err := NewGate(ModeLimited, 0) // falls back to the default size
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d := gate.Check(fmt.Sprintf("UPDATE t SET a = %d", i))
				assert.False(t, d.Allowed)
				assert.Equal(t, ReasonNoWhere, d.Reason)
			}
		}(i)
	}
	wg.Wait()
}
