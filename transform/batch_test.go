package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk(t *testing.T) {
	batches := Chunk([]int{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, batches)

	assert.Empty(t, Chunk([]int{}, 10))
	assert.Len(t, Chunk([]int{1, 2, 3}, 0), 3, "non-positive size falls back to 1")
}

func TestChunkKeepsOrderAndRemainder(t *testing.T) {
	batches := Chunk([]string{"a", "b", "c", "d", "e", "f", "g"}, 3)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"d", "e", "f"}, {"g"}}, batches)
}

func TestChunkBatchesDoNotShareSpareCapacity(t *testing.T) {
	items := []int{1, 2, 3, 4}
	batches := Chunk(items, 2)
	require.Len(t, batches, 2)

	_ = append(batches[0], 99)
	assert.Equal(t, []int{3, 4}, batches[1])
	assert.Equal(t, []int{1, 2, 3, 4}, items)
}
