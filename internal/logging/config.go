// Package logging provides structured logging for tablesource.
package logging

import (
	"os"
	"path/filepath"
)

// Config holds logging configuration.
type Config struct {
	// Enabled determines whether logging is active.
	Enabled bool
	// Level is the minimum log level to record.
	Level string
	// Format is "text" (default) or "json".
	Format string
	// File is an optional path; when empty, logs go to the writer given to New.
	File string
	// Command is the name of the command being executed.
	Command string
	// PID is the process ID.
	PID int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Level:   "warn",
		Format:  "text",
		Command: filepath.Base(os.Args[0]),
		PID:     os.Getpid(),
	}
}
