// ABOUTME: Splits pending records into push batches
// ABOUTME: Batches are capacity-capped views over the input slice
package transform

// Chunk splits items into consecutive runs of at most size elements. A size
// below one pushes records one at a time. Each batch is capped at its own
// length, so appending to one never overwrites the next.
func Chunk[T any](items []T, size int) [][]T {
	size = max(size, 1)

	var batches [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		batches = append(batches, items[:n:n])
		items = items[n:]
	}
	return batches
}
