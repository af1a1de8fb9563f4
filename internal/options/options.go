// Package options loads the user options consulted by the host (for now the
// install pipeline) from a YAML file.
package options

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-yaml"
)

// Options are the user-tunable switches.
type Options struct {
	// HelpForLocalFile starts the confirmation flow for local .user.js files
	// the browser cannot read directly.
	HelpForLocalFile bool `yaml:"helpForLocalFile"`
	// Autoclose keeps the tab-replace behaviour of the confirmation flow.
	Autoclose bool `yaml:"autoclose"`
	// TrackLocalFile re-checks local scripts opened in a confirm tab.
	TrackLocalFile bool `yaml:"trackLocalFile"`
}

// Defaults returns the options used when no file exists.
func Defaults() Options {
	return Options{
		HelpForLocalFile: true,
		Autoclose:        true,
	}
}

// Store holds the current options. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	opts Options
	path string
}

// NewStore wraps opts.
func NewStore(opts Options) *Store {
	return &Store{opts: opts}
}

// Load reads path into a Store. A missing file yields Defaults; an empty
// path does the same without touching the filesystem.
func Load(path string) (*Store, error) {
	s := &Store{opts: Defaults(), path: path}
	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the backing file.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read options: %w", err)
	}

	opts := Defaults()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return fmt.Errorf("parse options %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
	return nil
}

// Get returns a snapshot of the options.
func (s *Store) Get() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// HelpForLocalFile reports the helpForLocalFile switch.
func (s *Store) HelpForLocalFile() bool {
	return s.Get().HelpForLocalFile
}

// Set replaces the options in memory.
func (s *Store) Set(opts Options) {
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}
