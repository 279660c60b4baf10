package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateAdmitsUpToCapacity(t *testing.T) {
	gate := NewGate(2)

	assert.True(t, gate.TryEnter())
	assert.True(t, gate.TryEnter())
	assert.False(t, gate.TryEnter(), "third entry should be rejected at capacity 2")

	gate.Leave()
	assert.True(t, gate.TryEnter(), "slot should be reusable after Leave")
}

func TestGateUnbounded(t *testing.T) {
	gate := NewGate(0)

	for i := 0; i < 100; i++ {
		assert.True(t, gate.TryEnter())
	}
	assert.Equal(t, 0, gate.Depth())
}

func TestGateConcurrentAdmission(t *testing.T) {
	const capacity = 8
	const attempts = 200

	gate := NewGate(capacity)
	var admitted int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gate.TryEnter() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, admitted, int64(capacity), "admissions must never exceed capacity")
	assert.Equal(t, int(admitted), gate.Depth())
}
