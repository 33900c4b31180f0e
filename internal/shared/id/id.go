// Package id provides centralized ID generation for the host shell.
//
// Worker incarnations get prefixed ULIDs so logs sort by spawn time and
// a restarted worker is distinguishable from its predecessor. Bus
// correlation ids are random UUIDs: they only need to be unique while a
// request is pending.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// InstanceID identifies one incarnation of a worker
type InstanceID string

// CorrelationID ties a bus response to its pending request
type CorrelationID string

const (
	InstancePrefix = "wrk"
	TracePrefix    = "trc"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewInstanceID generates a new worker incarnation ID
func NewInstanceID() InstanceID {
	return InstanceID(Default().GenerateWithPrefix(InstancePrefix))
}

// NewTraceID generates a trace or span ID
func NewTraceID() string {
	return Default().GenerateWithPrefix(TracePrefix)
}

// NewCorrelationID generates a new request correlation ID
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

func (id InstanceID) String() string    { return string(id) }
func (id CorrelationID) String() string { return string(id) }

// Timestamp extracts the spawn time from an instance ID
func (id InstanceID) Timestamp() (time.Time, error) {
	parts := strings.SplitN(string(id), "_", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("malformed instance id %q", id)
	}
	parsed, err := ulid.Parse(parts[1])
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}
