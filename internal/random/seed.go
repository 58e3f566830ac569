// Package random provides seeding helpers for the loot allocator's
// pseudo-random source.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// New returns a PCG generator seeded from crypto/rand.
func New() (*rand.Rand, error) {
	hi, err := NewSeed()
	if err != nil {
		return nil, err
	}
	lo, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return rand.New(rand.NewPCG(hi, lo)), nil
}

// Seeded returns a deterministic generator for reproducible runs.
func Seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
