// Package idgenerator produces the 128-bit identifiers assigned to clients,
// servers and sessions. Identifiers are random (version 4) UUIDs rendered in
// canonical form by their String method.
package idgenerator

import (
	"io"
	"sync"

	"github.com/google/uuid"
)

// IdGenerator generates UUIDs in a concurrency-safe manner. The zero value is
// not usable; construct with NewIdGenerator or NewIdGeneratorFromReader.
type IdGenerator struct {
	mu   sync.Mutex
	rand io.Reader
}

// NewIdGenerator creates an IdGenerator backed by the uuid package's
// cryptographic random source.
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator() *IdGenerator {
	return &IdGenerator{}
}

// NewIdGeneratorFromReader creates an IdGenerator that draws its randomness
// from r. It is meant for deterministic identifiers in tests; r must yield at
// least 16 bytes per Id call.
//
// Parameters:
//   - r: The source of random bytes
//
// Returns:
//   - A new IdGenerator instance
func NewIdGeneratorFromReader(r io.Reader) *IdGenerator {
	return &IdGenerator{rand: r}
}

// Id returns the next identifier. It is safe for concurrent use. If the
// configured reader fails, a UUID from the default source is returned so an
// identifier is always produced.
//
// Returns:
//   - A new version 4 UUID
func (g *IdGenerator) Id() uuid.UUID {
	if g.rand == nil {
		return uuid.New()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := uuid.NewRandomFromReader(g.rand)
	if err != nil {
		return uuid.New()
	}

	return id
}

// Parse converts a canonical UUID string back into an identifier.
//
// Parameters:
//   - s: The UUID string
//
// Returns:
//   - The parsed identifier
//   - An error if s is not a valid UUID
func Parse(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
