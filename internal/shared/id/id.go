// Package id provides identifier generation for the host.
//
// Confirmation tokens are ULIDs: unique, unguessable enough for a short-lived
// lookup key, and lexicographically sortable so logs read in creation order.
// Trusted-side request ids are a plain monotonic sequence because the page
// side correlates them with its FIFO queue.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ConfirmKey identifies a pending install confirmation.
type ConfirmKey string

// ConnID identifies a bridge connection.
type ConnID string

const (
	ConfirmPrefix = "confirm"
	ConnPrefix    = "conn"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewConfirmKey generates a fresh confirmation token.
func NewConfirmKey() ConfirmKey {
	return ConfirmKey(Default().GenerateString())
}

// NewConnID generates a bridge connection id.
func NewConnID() ConnID {
	return ConnID(ConnPrefix + "_" + uuid.NewString())
}

func (k ConfirmKey) String() string { return string(k) }
func (c ConnID) String() string     { return string(c) }

// IsValid checks if an ID string is a valid ULID.
func IsValid(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}

// Timestamp extracts the creation time from a ULID string.
func Timestamp(s string) (time.Time, error) {
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// Sequence issues strictly increasing int64 ids starting at 1.
type Sequence struct {
	last atomic.Int64
}

// Next returns the next id.
func (s *Sequence) Next() int64 {
	return s.last.Add(1)
}
