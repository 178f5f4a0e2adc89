package parallel

import (
	"fmt"
	"sync"
	"testing"
)

func TestRunProcessesAllItems(t *testing.T) {
	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}

	var mu sync.Mutex
	seen := make(map[int]bool)

	var progress Progress
	summary := Run(items, 4, &progress, func(n int) error {
		mu.Lock()
		seen[n] = true
		mu.Unlock()
		return nil
	})

	if summary.Completed != 20 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 20 completed and 0 failed", summary)
	}
	if len(seen) != 20 {
		t.Errorf("processed %d distinct items, want 20", len(seen))
	}
	if progress.Completed() != 20 || progress.Total() != 20 {
		t.Errorf("progress = %d/%d, want 20/20", progress.Completed(), progress.Total())
	}
}

func TestRunFailureDoesNotAbortSiblings(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	var mu sync.Mutex
	var succeeded int

	summary := Run(items, 3, nil, func(n int) error {
		if n == 3 {
			return fmt.Errorf("item %d failed", n)
		}
		mu.Lock()
		succeeded++
		mu.Unlock()
		return nil
	})

	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
	if succeeded != 9 {
		t.Errorf("succeeded = %d, want 9", succeeded)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	items := []int{0, 1, 2}

	summary := Run(items, 2, nil, func(n int) error {
		if n == 1 {
			panic("boom")
		}
		return nil
	})

	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
}

func TestRunHonorsWorkerBound(t *testing.T) {
	items := make([]int, 50)

	var mu sync.Mutex
	var active, peak int

	Run(items, 5, nil, func(int) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})

	if peak > 5 {
		t.Errorf("peak concurrency = %d, want at most 5", peak)
	}
}

func TestRunEmptyInput(t *testing.T) {
	summary := Run(nil, 4, nil, func(int) error { return nil })
	if summary.Completed != 0 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want empty", summary)
	}
}
