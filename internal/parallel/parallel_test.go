package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	for _, workers := range []int{1, 2, 7} {
		for _, n := range []int{0, 1, 8, 9, 1000} {
			cfg := NewConfig(workers)
			counts := make([]atomic.Int32, n)
			For(n, func(i int) { counts[i].Add(1) }, cfg)
			for i := range counts {
				assert.Equal(t, int32(1), counts[i].Load(), "workers=%d n=%d i=%d", workers, n, i)
			}
		}
	}
}

func TestConfig(t *testing.T) {
	assert.Positive(t, NewConfig(0).NumWorkers)
	assert.True(t, NewConfig(1).Sequential(1000))
	assert.True(t, NewConfig(4).Sequential(8))
	assert.False(t, NewConfig(4).Sequential(9))
}
