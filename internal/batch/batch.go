// Package batch partitions a job's work set into bounded batches.
package batch

import (
	"iter"
	"slices"
	"time"

	"github.com/tendant/simple-doc-converter/internal/job"
)

// Plan lazily partitions items into consecutive batches of at most size
// elements. Order is preserved, the last batch may be short, and an empty
// work set yields no batches. The sequence can be ranged over more than once;
// each pass re-partitions the same backing slice. size must be at least 1.
func Plan(items []job.WorkItem, size int) iter.Seq[[]job.WorkItem] {
	return slices.Chunk(items, size)
}

// Count returns the number of batches Plan yields for n items.
func Count(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Estimate approximates the wall-clock duration of a job: per-item processing
// plus one pacing delay between consecutive batches, never after the last.
func Estimate(n, size int, perItem, delay time.Duration) time.Duration {
	batches := Count(n, size)
	if batches == 0 {
		return 0
	}
	return time.Duration(n)*perItem + time.Duration(batches-1)*delay
}
