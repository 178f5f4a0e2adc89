// Package parallel runs a finite collection of work items through a
// bounded worker pool. One item's failure never cancels its siblings; the
// caller observes failures through logs and the returned summary.
package parallel

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// DefaultWorkers is the default pool size: available parallelism capped
// at 16, since the work is I/O bound.
func DefaultWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n > 16 {
		n = 16
	}
	return n
}

// Progress exposes a monotonically increasing completed-count.
type Progress struct {
	done  atomic.Int64
	total int
}

// Completed returns how many items have finished (successfully or not).
func (p *Progress) Completed() int {
	return int(p.done.Load())
}

// Total returns the number of submitted items.
func (p *Progress) Total() int {
	return p.total
}

// Summary reports the outcome of one Run call.
type Summary struct {
	Completed int
	Failed    int
}

// Run processes every item with fn on a pool of the given size, blocking
// until all items complete. Errors and panics are logged per item and
// counted; they do not abort the batch. The optional progress pointer is
// updated as items finish.
func Run[T any](items []T, workers int, progress *Progress, fn func(T) error) *Summary {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if progress != nil {
		progress.total = len(items)
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, workers)
	var failed atomic.Int64

	for i, item := range items {
		wg.Add(1)
		go func(idx int, item T) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release
			defer func() {
				if r := recover(); r != nil {
					failed.Add(1)
					slog.Error("Panic while processing item", "item", fmt.Sprintf("%v", item), "panic", r)
				}
				if progress != nil {
					progress.done.Add(1)
				}
			}()

			if err := fn(item); err != nil {
				failed.Add(1)
				slog.Error("Error while processing item", "item", fmt.Sprintf("%v", item), "error", err)
				return
			}
			slog.Debug("Item done", "progress", fmt.Sprintf("%d/%d", idx+1, len(items)))
		}(i, item)
	}

	wg.Wait()
	return &Summary{
		Completed: len(items),
		Failed:    int(failed.Load()),
	}
}
