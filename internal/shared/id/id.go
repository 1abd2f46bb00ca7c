// Package id generates sortable identifiers for resolution runs and sandboxes.
//
// IDs are prefixed ULIDs (run_*, sbx_*) so log lines from one resolution run
// can be grepped and ordered by creation time.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunID identifies one dependency resolution run
type RunID string

// SandboxID identifies one provisioned sandbox
type SandboxID string

const (
	RunPrefix     = "run"
	SandboxPrefix = "sbx"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewRunID generates a resolution run ID
func NewRunID() RunID {
	return RunID(Default().GenerateWithPrefix(RunPrefix))
}

// NewSandboxID generates a sandbox ID
func NewSandboxID() SandboxID {
	return SandboxID(Default().GenerateWithPrefix(SandboxPrefix))
}

func (id RunID) String() string     { return string(id) }
func (id SandboxID) String() string { return string(id) }

// IsValid checks whether a (optionally prefixed) ID carries a valid ULID
func IsValid(id string) bool {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the creation time from a (optionally prefixed) ID
func Timestamp(id string) (time.Time, error) {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
