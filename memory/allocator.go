// Package memory provides the allocator every heap allocation in the runtime
// flows through. It keeps a running byte count, triggers collections when the
// count crosses a threshold, and recycles small blocks through a fixed-size
// free list.
package memory

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

const (
	// SmallBlockSize is the single size class served by the pool. Requests at
	// or below this size receive a block of exactly this capacity.
	SmallBlockSize = 64

	// SmallPoolCapacity is the number of free small blocks kept for reuse.
	SmallPoolCapacity = 1024

	// DefaultThreshold is the number of allocated bytes that triggers the
	// first collection.
	DefaultThreshold = 1024 * 1024

	// ExhaustedExitCode is the process exit status used when the allocator
	// cannot satisfy a request.
	ExhaustedExitCode = 1
)

// ErrExhausted is reported when a request exceeds the configured limit.
var ErrExhausted = errors.New("memory exhausted")

// Collector reclaims unreachable memory. It is invoked synchronously from
// Resize and is expected to release blocks back through the same allocator.
type Collector interface {
	Collect()
}

// Stats is a snapshot of allocator accounting.
type Stats struct {
	Allocated int
	NextGC    int
	Limit     int
	PoolSize  int
	PoolHits  int
	PoolMiss  int
}

// Allocator is the single chokepoint for allocate, grow, shrink and free.
// It is not safe for concurrent use.
type Allocator struct {
	allocated   int
	nextGC      int
	limit       int
	stress      bool
	collecting  bool
	collector   Collector
	pool        pool
	onExhausted func(err error)
	logger      zerolog.Logger
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithThreshold sets the byte count that triggers the first collection.
func WithThreshold(n int) Option {
	return func(a *Allocator) {
		a.nextGC = n
	}
}

// WithLimit caps the number of bytes that may be allocated at once. Zero
// means no limit.
func WithLimit(n int) Option {
	return func(a *Allocator) {
		a.limit = n
	}
}

// WithStress makes every growing request trigger a collection.
func WithStress(enabled bool) Option {
	return func(a *Allocator) {
		a.stress = enabled
	}
}

// WithExhaustedHandler replaces the default handler, which terminates the
// process. If the handler returns, Resize panics with the error.
func WithExhaustedHandler(fn func(err error)) Option {
	return func(a *Allocator) {
		a.onExhausted = fn
	}
}

// WithLogger sets the logger used for allocator diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Allocator) {
		a.logger = logger
	}
}

// New returns an Allocator with no collector attached.
func New(options ...Option) *Allocator {
	a := &Allocator{
		nextGC: DefaultThreshold,
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(a)
	}
	if a.onExhausted == nil {
		a.onExhausted = a.exit
	}
	return a
}

// SetCollector attaches the collector invoked when the threshold is crossed.
func (a *Allocator) SetCollector(c Collector) {
	a.collector = c
}

// Allocated returns the number of bytes currently accounted for.
func (a *Allocator) Allocated() int {
	return a.allocated
}

// NextGC returns the byte count above which the next collection fires.
func (a *Allocator) NextGC() int {
	return a.nextGC
}

// SetNextGC sets the collection threshold.
func (a *Allocator) SetNextGC(n int) {
	a.nextGC = n
}

// Stats returns a snapshot of the allocator accounting.
func (a *Allocator) Stats() Stats {
	return Stats{
		Allocated: a.allocated,
		NextGC:    a.nextGC,
		Limit:     a.limit,
		PoolSize:  a.pool.len(),
		PoolHits:  a.pool.hits,
		PoolMiss:  a.pool.misses,
	}
}

// Resize allocates, grows, shrinks or frees a block. A nil block with
// oldSize 0 allocates; newSize 0 frees and returns nil. The returned slice
// has length newSize. Existing content is preserved up to the smaller size.
//
// When the request grows the accounted total past the threshold, the
// collector runs before the request is serviced.
func (a *Allocator) Resize(block []byte, oldSize, newSize int) []byte {
	a.allocated += newSize - oldSize

	if newSize > oldSize {
		if a.collector != nil && !a.collecting && (a.stress || a.allocated > a.nextGC) {
			a.collect()
		}
		if a.limit > 0 && a.allocated > a.limit {
			err := fmt.Errorf("%w: %d bytes requested with %d of %d in use",
				ErrExhausted, newSize, a.allocated-newSize+oldSize, a.limit)
			a.allocated -= newSize - oldSize
			a.onExhausted(err)
			panic(err)
		}
	}

	if newSize == 0 {
		a.release(block)
		return nil
	}

	if newSize <= SmallBlockSize {
		if cap(block) == SmallBlockSize {
			return block[:newSize]
		}
		result := a.pool.get()
		if result == nil {
			result = make([]byte, SmallBlockSize)
		}
		copy(result, block)
		a.release(block)
		return result[:newSize]
	}

	if cap(block) >= newSize && cap(block) != SmallBlockSize {
		return block[:newSize]
	}
	result := make([]byte, newSize)
	copy(result, block)
	a.release(block)
	return result
}

func (a *Allocator) collect() {
	a.collecting = true
	defer func() { a.collecting = false }()
	a.collector.Collect()
}

// release hands a block back. Only blocks of exactly the small size class
// are pooled; everything else is left to the Go runtime.
func (a *Allocator) release(block []byte) {
	if cap(block) != SmallBlockSize {
		return
	}
	block = block[:SmallBlockSize]
	clear(block)
	a.pool.put(block)
}

func (a *Allocator) exit(err error) {
	a.logger.Error().Err(err).Msg("allocator exhausted")
	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	os.Exit(ExhaustedExitCode)
}
