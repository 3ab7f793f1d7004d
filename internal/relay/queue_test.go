package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_FIFO(t *testing.T) {
	var q Queue[string]

	_, ok := q.Pop()
	assert.False(t, ok)

	q.Push("a", "b")
	q.Push("c")
	assert.Equal(t, 3, q.Len())

	first, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "a", first)

	assert.Equal(t, []string{"b", "c"}, q.DrainAll())
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.DrainAll())
}

func TestQueue_BatchesAreNotInterleaved(t *testing.T) {
	var q Queue[int]
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			q.Push(base, base+1, base+2)
		}(w * 10)
	}
	wg.Wait()

	items := q.DrainAll()
	assert.Len(t, items, 24)
	for i := 0; i < len(items); i += 3 {
		assert.Equal(t, items[i]+1, items[i+1])
		assert.Equal(t, items[i]+2, items[i+2])
	}
}
