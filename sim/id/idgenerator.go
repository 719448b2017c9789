// Package id generates identifiers for packets, events and recordings.
package id

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator can generate IDs
type IDGenerator interface {
	// Generate an ID
	Generate() string
}

var (
	generatorMutex sync.Mutex
	generator      IDGenerator
)

// NewIDGenerator returns a sequential generator. Two generators created the
// same way produce the same ID sequence, which keeps runs reproducible.
func NewIDGenerator() IDGenerator {
	return &sequentialIDGenerator{}
}

// NewParallelIDGenerator returns a generator backed by xid. The IDs are
// globally unique but not deterministic.
func NewParallelIDGenerator() IDGenerator {
	return parallelIDGenerator{}
}

// Generate returns an ID from the process-wide generator. The sequential
// generator is used unless UseGenerator has replaced it.
func Generate() string {
	generatorMutex.Lock()
	if generator == nil {
		generator = NewIDGenerator()
	}
	g := generator
	generatorMutex.Unlock()

	return g.Generate()
}

// UseGenerator replaces the process-wide generator.
func UseGenerator(g IDGenerator) {
	generatorMutex.Lock()
	generator = g
	generatorMutex.Unlock()
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)
	id := strconv.FormatUint(idNumber, 10)

	return id
}

type parallelIDGenerator struct{}

func (g parallelIDGenerator) Generate() string {
	return xid.New().String()
}
