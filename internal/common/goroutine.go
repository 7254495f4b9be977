// -----------------------------------------------------------------------
// Safe Goroutine - Panic-protected goroutine wrappers
// -----------------------------------------------------------------------

package common

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

var goroutineCounter int64

// GetGoroutineCount returns the number of goroutines spawned via SafeGo
func GetGoroutineCount() int64 {
	return atomic.LoadInt64(&goroutineCounter)
}

// SafeGo runs fn in a goroutine. A panic is recovered and logged with its stack,
// and onPanic (when non-nil) receives the recovered value.
//
// Example:
//
//	common.SafeGo(logger, "job:"+id, func() {
//	    runner.Run(ctx, input)
//	}, nil)
func SafeGo(logger arbor.ILogger, name string, fn func(), onPanic func(recovered interface{})) {
	atomic.AddInt64(&goroutineCounter, 1)

	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logPanic(logger, name, r)
			if onPanic != nil {
				onPanic(r)
			}
		}()

		fn()
	}()
}

// SafeGoWithContext is SafeGo that skips fn when ctx is already done
func SafeGoWithContext(ctx context.Context, logger arbor.ILogger, name string, fn func()) {
	SafeGo(logger, name, func() {
		select {
		case <-ctx.Done():
			if logger != nil {
				logger.Debug().Str("goroutine", name).Msg("Goroutine cancelled before start")
			}
			return
		default:
		}
		fn()
	}, nil)
}

func logPanic(logger arbor.ILogger, name string, r interface{}) {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	stackTrace := string(buf[:n])

	if logger == nil {
		fmt.Fprintf(os.Stderr, "PANIC in goroutine %s: %v\n%s\n", name, r, stackTrace)
		return
	}
	logger.Error().
		Str("goroutine", name).
		Str("panic", fmt.Sprintf("%v", r)).
		Str("stack", stackTrace).
		Msg("Recovered from panic in goroutine - continuing service operation")
}
