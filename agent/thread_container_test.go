package agent

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadContainer_SpawnAndDrain(t *testing.T) {
	c := NewThreadContainer(4)
	var ran int32
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		err := c.Spawn(func() {
			defer wg.Done()
			atomic.AddInt32(&ran, 1)
		})
		require.NoError(t, err)
	}

	wg.Wait()
	c.Shutdown(time.Second)
	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))
}

func TestThreadContainer_CapacityError(t *testing.T) {
	c := NewThreadContainer(1)
	block := make(chan struct{})

	require.NoError(t, c.Spawn(func() { <-block }))

	err := c.Spawn(func() {})
	require.Error(t, err)
	var capErr *CapacityError
	assert.ErrorAs(t, err, &capErr)

	close(block)
	c.Shutdown(time.Second)
}

func TestThreadContainer_ShutdownAbandonsSlowWorkers(t *testing.T) {
	c := NewThreadContainer(2)
	require.NoError(t, c.Spawn(func() {
		time.Sleep(500 * time.Millisecond)
	}))

	start := time.Now()
	c.Shutdown(50 * time.Millisecond)
	assert.Less(t, time.Since(start), 400*time.Millisecond, "shutdown must not wait past the drain timeout")
}
