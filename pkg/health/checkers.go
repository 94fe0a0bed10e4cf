package health

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// GoroutineCountCheck fails when the process has more than threshold
// goroutines, a cheap proxy for leaks.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return fmt.Errorf("too many goroutines: %d > %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when the most recent garbage collection pause
// exceeded threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)

		last := time.Duration(stats.PauseNs[(stats.NumGC+255)%256])
		if last > threshold {
			return fmt.Errorf("last GC pause %s exceeds %s", last, threshold)
		}
		return nil
	}
}
