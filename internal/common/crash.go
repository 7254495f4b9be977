// -----------------------------------------------------------------------
// Crash Protection - Fatal error handling and crash file generation
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// CrashLogDir is the directory where crash files are written
var CrashLogDir = "./logs"

// InstallCrashHandler sets the crash directory and makes sure it exists
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		CrashLogDir = logDir
	}
	if err := os.MkdirAll(CrashLogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to create log directory: %v\n", err)
	}
}

// WriteCrashFile writes a crash report and returns its path, or "" when the write failed
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	now := time.Now()
	crashPath := filepath.Join(CrashLogDir, fmt.Sprintf("crash-%s.log", now.Format("2006-01-02T15-04-05")))

	var report strings.Builder
	fmt.Fprintf(&report, "=== COVERA CRASH REPORT ===\n")
	fmt.Fprintf(&report, "Time: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&report, "Version: %s\n", GetFullVersion())
	fmt.Fprintf(&report, "Go: %s %s/%s\n\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&report, "=== PANIC VALUE ===\n%v\n\n", panicVal)
	fmt.Fprintf(&report, "=== STACK TRACE ===\n%s\n\n", stackTrace)
	fmt.Fprintf(&report, "=== ALL GOROUTINES (%d) ===\n%s\n", runtime.NumGoroutine(), GetAllGoroutineStacks())

	if err := os.WriteFile(crashPath, []byte(report.String()), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to write crash file: %v\n%s", err, report.String())
		return ""
	}
	return crashPath
}

// GetAllGoroutineStacks returns the stacks of every goroutine, growing the buffer as needed
func GetAllGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 8*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

// GetStackTrace returns the stack of the calling goroutine
func GetStackTrace() string {
	buf := make([]byte, 16*1024)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// RecoverWithCrashFile is deferred at the top of main. It writes a crash file and exits non-zero.
func RecoverWithCrashFile() {
	r := recover()
	if r == nil {
		return
	}
	path := WriteCrashFile(r, GetStackTrace())
	fmt.Fprintf(os.Stderr, "FATAL: covera crashed: %v\n", r)
	if path != "" {
		fmt.Fprintf(os.Stderr, "Crash report: %s\n", path)
	}
	os.Exit(2)
}
