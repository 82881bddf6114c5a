package mru_test

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/PennyNeko/Soph/internal/mru"
)

func TestGetMiss(t *testing.T) {
	t.Parallel()

	c := mru.New[string, int](2)
	if v, ok := c.Get("absent"); ok || v != 0 {
		t.Fatalf("Get(absent) = (%d, %v), want (0, false)", v, ok)
	}
	if got := c.Stats().Misses; got != 1 {
		t.Errorf("Misses = %d, want 1", got)
	}
}

func TestInsertEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := mru.New[string, int](3)
	c.Insert("a", 1)
	c.Insert("b", 2)
	c.Insert("c", 3)

	// Touch "a" so that "b" becomes the least recently used entry.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("Get(a): expected hit")
	}
	c.Insert("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestInsertExistingKeyRefreshes(t *testing.T) {
	t.Parallel()

	c := mru.New[string, int](2)
	c.Insert("a", 1)
	c.Insert("b", 2)
	c.Insert("a", 10)
	c.Insert("c", 3)

	if v, ok := c.Get("a"); !ok || v != 10 {
		t.Fatalf("Get(a) = (%d, %v), want (10, true)", v, ok)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestCapacityClamp(t *testing.T) {
	t.Parallel()

	c := mru.New[int, int](0)
	if c.Capacity() != 1 {
		t.Fatalf("Capacity = %d, want 1", c.Capacity())
	}
	c.Insert(1, 1)
	c.Insert(2, 2)
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

// TestNeverExceedsCapacity replays random operation sequences against a
// reference recency list and checks both the size bound and the identity of
// every evicted key.
func TestNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	for capacity := 1; capacity <= 5; capacity++ {
		t.Run(fmt.Sprintf("capacity=%d", capacity), func(t *testing.T) {
			t.Parallel()

			rng := rand.New(rand.NewPCG(uint64(capacity), 7))
			c := mru.New[int, int](capacity)
			var ref []int // front = most recent

			touch := func(k int) {
				ref = slices.DeleteFunc(ref, func(x int) bool { return x == k })
				ref = append([]int{k}, ref...)
			}

			for step := 0; step < 500; step++ {
				k := rng.IntN(8)
				if rng.IntN(2) == 0 {
					_, hit := c.Get(k)
					if hit != slices.Contains(ref, k) {
						t.Fatalf("step %d: Get(%d) hit=%v, reference says %v", step, k, hit, !hit)
					}
					if hit {
						touch(k)
					}
					continue
				}
				c.Insert(k, step)
				touch(k)
				if len(ref) > capacity {
					ref = ref[:capacity]
				}
				if c.Len() > capacity {
					t.Fatalf("step %d: Len = %d exceeds capacity %d", step, c.Len(), capacity)
				}
				if got := c.Keys(); !slices.Equal(got, ref) {
					t.Fatalf("step %d: keys = %v, want %v", step, got, ref)
				}
			}
		})
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := mru.New[int, int](4)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Insert((g+i)%10, i)
				c.Get(i % 10)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 4 {
		t.Fatalf("Len = %d, want <= 4", c.Len())
	}
}
