// benchmark.go
// A reusable benchmarking module for metabuddy
// Measures execution time and memory usage for any wrapped tool run

package benchmark

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
)

// Usage is the resource report of one benchmarked run.
type Usage struct {
	Label          string
	Elapsed        time.Duration
	MemoryUsedMB   float64
	TotalAllocMB   float64
	PeakHeapMB     float64
	GCCycles       uint32
	CPUCores       int
	GoroutineStart int
	GoroutineEnd   int
}

const mb = 1024.0 * 1024.0

// Measure runs f and returns its resource usage.
func Measure(label string, f func()) Usage {
	runtime.GC()
	var memStart, memEnd runtime.MemStats
	runtime.ReadMemStats(&memStart)
	u := Usage{
		Label:          label,
		CPUCores:       runtime.NumCPU(),
		GoroutineStart: runtime.NumGoroutine(),
	}
	start := time.Now()

	f()

	u.Elapsed = time.Since(start)
	runtime.ReadMemStats(&memEnd)
	u.GoroutineEnd = runtime.NumGoroutine()
	// Alloc can shrink across a GC; report growth only.
	if memEnd.Alloc > memStart.Alloc {
		u.MemoryUsedMB = float64(memEnd.Alloc-memStart.Alloc) / mb
	}
	u.TotalAllocMB = float64(memEnd.TotalAlloc-memStart.TotalAlloc) / mb
	u.PeakHeapMB = float64(memEnd.HeapAlloc) / mb
	u.GCCycles = memEnd.NumGC - memStart.NumGC
	return u
}

// Run wraps any function to measure its runtime and memory usage and logs the result.
func Run(label string, f func()) {
	host, _ := os.Hostname()
	log.Info().
		Str("label", label).
		Str("host", host).
		Str("go", runtime.Version()).
		Str("os_arch", runtime.GOOS+"/"+runtime.GOARCH).
		Msg("[Benchmark] Running")

	u := Measure(label, f)

	log.Info().
		Str("label", u.Label).
		Dur("elapsed", u.Elapsed).
		Float64("memory_used_mb", u.MemoryUsedMB).
		Float64("total_alloc_mb", u.TotalAllocMB).
		Float64("peak_heap_mb", u.PeakHeapMB).
		Uint32("gc_cycles", u.GCCycles).
		Int("cpu_cores", u.CPUCores).
		Int("goroutines_start", u.GoroutineStart).
		Int("goroutines_end", u.GoroutineEnd).
		Msg("[Benchmark] Finished")
}
