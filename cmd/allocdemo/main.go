// Command allocdemo drives the buddy and slab tiers against a host-backed
// region, running a few rounds of randomized allocate/free traffic and
// reporting summary statistics per round.
package main

import (
	"fmt"
	"math/rand"
	"time"
	"unsafe"

	"github.com/V01D-NULL/firefly-alloc/buddy"
	"github.com/V01D-NULL/firefly-alloc/internal/logging"
	"github.com/V01D-NULL/firefly-alloc/onceinit"
	"github.com/V01D-NULL/firefly-alloc/slab"
	"github.com/V01D-NULL/firefly-alloc/synclock"
)

const (
	regionOrder   = 24 // 128 MiB region (2^(regionOrder+3) bytes); targetOrder passed to buddy.Init is regionOrder+3.
	testIteration = 3
	opsPerRound   = 20000
)

// cacheSizes lists one slab cache per size class, all labeled "heap".
var cacheSizes = []uint64{8, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// iterationResult stores one round's allocation/free statistics.
type iterationResult struct {
	Iteration   int
	Allocations uint64
	Frees       uint64
	SlabsLive   int
	Duration    time.Duration
}

var region onceinit.Cell[uintptr]

func acquireRegion(order int) uintptr {
	size := uint64(1) << uint(order+3)
	buf := make([]byte, size)
	return uintptr(unsafe.Pointer(&buf[0]))
}

func runRound(iteration int, bud *buddy.Allocator, caches []*slab.Cache) iterationResult {
	live := make([]struct {
		cache *slab.Cache
		addr  uintptr
	}, 0, opsPerRound)

	start := time.Now()
	var allocs, frees uint64

	for i := 0; i < opsPerRound; i++ {
		if len(live) == 0 || rand.Float64() < 0.7 {
			c := caches[rand.Intn(len(caches))]
			addr, err := c.Allocate()
			if err != nil {
				logging.Error("allocdemo: allocate failed", "cache", c.Label(), "size", c.ObjectSize(), "err", err)
				continue
			}
			live = append(live, struct {
				cache *slab.Cache
				addr  uintptr
			}{c, addr})
			allocs++
			continue
		}

		idx := rand.Intn(len(live))
		entry := live[idx]
		live[idx] = live[len(live)-1]
		live = live[:len(live)-1]
		if err := entry.cache.Deallocate(entry.addr); err != nil {
			logging.Error("allocdemo: deallocate failed", "cache", entry.cache.Label(), "err", err)
			continue
		}
		frees++
	}

	for _, entry := range live {
		_ = entry.cache.Deallocate(entry.addr)
		frees++
	}

	slabsLive := 0
	for _, c := range caches {
		slabsLive += c.SlabCount()
	}

	_ = bud

	return iterationResult{
		Iteration:   iteration,
		Allocations: allocs,
		Frees:       frees,
		SlabsLive:   slabsLive,
		Duration:    time.Since(start),
	}
}

func main() {
	logging.SetLevel(logging.LevelInfo)

	base := acquireRegion(regionOrder)
	region.Set(base)

	bud := buddy.New(&synclock.MutexLock{})
	bud.Init(region.Get(), regionOrder+3)

	backing := &slab.BuddyBacking{Buddy: bud}

	caches := make([]*slab.Cache, 0, len(cacheSizes))
	for _, size := range cacheSizes {
		caches = append(caches, slab.NewCache(size, "heap", backing, &synclock.MutexLock{}))
	}

	fmt.Printf("Starting allocator demo with %d iterations\n", testIteration)
	fmt.Printf("Region size: %d bytes, max order %d\n", uint64(1)<<uint(regionOrder+3), bud.MaxOrder())
	fmt.Printf("Cache sizes: %v\n\n", cacheSizes)

	results := make([]iterationResult, 0, testIteration)
	for i := 0; i < testIteration; i++ {
		fmt.Printf("Running iteration %d...\n", i+1)
		result := runRound(i+1, bud, caches)
		results = append(results, result)

		fmt.Printf("Iteration %d results:\n", i+1)
		fmt.Printf("  Allocations: %d\n", result.Allocations)
		fmt.Printf("  Frees: %d\n", result.Frees)
		fmt.Printf("  Slabs live: %d\n", result.SlabsLive)
		fmt.Printf("  Duration: %v\n\n", result.Duration)
	}

	var avgAllocs, avgFrees, avgDuration float64
	for _, r := range results {
		avgAllocs += float64(r.Allocations)
		avgFrees += float64(r.Frees)
		avgDuration += r.Duration.Seconds()
	}
	n := float64(len(results))

	fmt.Println("Average results:")
	fmt.Printf("  Average allocations: %.2f\n", avgAllocs/n)
	fmt.Printf("  Average frees: %.2f\n", avgFrees/n)
	fmt.Printf("  Average duration: %.4f seconds\n", avgDuration/n)
}
