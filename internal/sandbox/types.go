package sandbox

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/gmapi"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/script"
)

var (
	// ErrClosed is returned by Execute after Close.
	ErrClosed = errors.New("sandbox: page closed")
	// ErrNotCallable means the wrapped script did not evaluate to a function.
	ErrNotCallable = errors.New("sandbox: wrapper is not callable")
)

// Config defines page configuration
type Config struct {
	Timeout       time.Duration // Bound on one Execute, including pending work
	StackSize     int           // Maximum call stack depth
	EnableConsole bool          // Capture console.log/warn/error
	BaseURL       string        // Page URL relative requests resolve against
	Host          gmapi.HostInfo
}

// Job is one script to run on a page.
type Job struct {
	Script *script.Script
	Code   string
	// Resources serves @resource content; nil means none were loaded.
	Resources gmapi.ResourceSource
}

// Result holds execution result
type Result struct {
	Value    interface{}   // Return value of the script body
	Console  []LogEntry    // Console and GM_log output
	Duration time.Duration // Execution time, including drained tasks
	Error    error         // Execution error
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, warn, error, info, debug, gm
	Message string    // Log message
	Time    time.Time // Timestamp
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		StackSize:     1024,
		EnableConsole: true,
		BaseURL:       "about:blank",
	}
}
