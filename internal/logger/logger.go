// Package logger is a small leveled logger shared by every component.
// Output goes to stderr and, when configured, to a rotating log file.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	std     = log.New(os.Stderr, "", log.LstdFlags)
	verbose bool
	file    io.WriteCloser
)

// SetVerbose flips the Debug gate.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// SetLogFile mirrors output into a rotating file. Pass "" to disable.
func SetLogFile(path string) {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
	if path == "" {
		std.SetOutput(os.Stderr)
		return
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	file = lj
	std.SetOutput(io.MultiWriter(os.Stderr, lj))
}

// Close flushes and releases the log file, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
		std.SetOutput(os.Stderr)
	}
}

func output(level, format string, args ...interface{}) {
	std.Printf("[%-5s] %s", level, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...interface{}) {
	mu.Lock()
	v := verbose
	mu.Unlock()
	if v {
		output("DEBUG", format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	output("INFO", format, args...)
}

func Warnf(format string, args ...interface{}) {
	output("WARN", format, args...)
}

func Errorf(format string, args ...interface{}) {
	output("ERROR", format, args...)
}
