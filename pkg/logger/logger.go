// Package logger is the process-wide run log. Lines go to a file in the
// output directory and, in verbose mode, to stderr as well.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	globalLogger *log.Logger
	logFile      *os.File
	verbose      bool
	mu           sync.Mutex

	// stderr is swapped in tests.
	stderr io.Writer = os.Stderr
)

// Init opens (or appends to) the log file at logPath.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logFile = f
	globalLogger = log.New(currentWriter(), "", log.Ltime|log.Lmicroseconds)

	return nil
}

// SetVerbose enables debug lines and mirrors every line to stderr.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()

	verbose = v
	if logFile != nil || verbose {
		globalLogger = log.New(currentWriter(), "", log.Ltime|log.Lmicroseconds)
	} else {
		globalLogger = nil
	}
}

// Close closes the log file. Verbose stderr output keeps working.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	if verbose {
		globalLogger = log.New(currentWriter(), "", log.Ltime|log.Lmicroseconds)
	} else {
		globalLogger = nil
	}
}

// currentWriter must be called with mu held.
func currentWriter() io.Writer {
	switch {
	case logFile != nil && verbose:
		return io.MultiWriter(logFile, stderr)
	case logFile != nil:
		return logFile
	case verbose:
		return stderr
	default:
		return io.Discard
	}
}

func printf(level, format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		globalLogger.Printf("["+level+"] "+format, v...)
	}
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	printf("INFO", format, v...)
}

// Debug logs a debug message. Dropped unless verbose.
func Debug(format string, v ...interface{}) {
	mu.Lock()
	on := verbose
	mu.Unlock()
	if on {
		printf("DEBUG", format, v...)
	}
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	printf("ERROR", format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	printf("WARN", format, v...)
}

// GetWriter returns the underlying log writer.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	return currentWriter()
}
