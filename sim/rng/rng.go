// Package rng hands out independent, seeded random streams so that a single
// master seed reproduces a whole simulation run.
package rng

import (
	"hash/fnv"
	"math/rand"
)

// Stream names used across the repository.
const (
	StreamLoss     = "loss"
	StreamDelay    = "delay"
	StreamMobility = "mobility"
	StreamPosition = "position"
)

// Source is the subset of *rand.Rand the models depend on.
type Source interface {
	Float64() float64
}

// Partitioned provides deterministic, isolated RNG instances per stream.
//
// A stream seed is the master seed XOR fnv1a64(stream name). The same stream
// name always returns the same *rand.Rand instance.
//
// Not safe for concurrent use; the simulation is single-threaded.
type Partitioned struct {
	seed    int64
	streams map[string]*rand.Rand
}

// NewPartitioned creates a Partitioned RNG from a master seed.
func NewPartitioned(seed int64) *Partitioned {
	return &Partitioned{
		seed:    seed,
		streams: make(map[string]*rand.Rand),
	}
}

// Stream returns the RNG for the named stream, creating it on first use.
func (p *Partitioned) Stream(name string) *rand.Rand {
	if r, ok := p.streams[name]; ok {
		return r
	}

	r := rand.New(rand.NewSource(p.seed ^ fnv1a64(name)))
	p.streams[name] = r

	return r
}

// Seed returns the master seed.
func (p *Partitioned) Seed() int64 {
	return p.seed
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))

	return int64(h.Sum64())
}
