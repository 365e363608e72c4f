// Package bufpool pools byte slices in three size classes so frame
// bodies and transfer copy chunks do not churn the garbage collector.
//
// The classes follow the server's traffic: most control frames fit the
// small class, the transfer adapter copies in medium-class chunks, and
// the large class absorbs oversized frame payloads. Anything beyond
// the large class is allocated directly and never pooled.
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
package bufpool

import (
	"sync"
)

const (
	// DefaultSmallSize covers typical control frame bodies.
	DefaultSmallSize = 4 << 10

	// DefaultMediumSize matches the transfer copy chunk.
	DefaultMediumSize = 64 << 10

	// DefaultLargeSize covers big frame payloads such as file lists.
	DefaultLargeSize = 1 << 20
)

// Pool hands out byte slices from per-class sync.Pools.
type Pool struct {
	small      sync.Pool
	medium     sync.Pool
	large      sync.Pool
	smallSize  int
	mediumSize int
	largeSize  int
}

// Config overrides the class sizes; zero values keep the defaults.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// NewPool builds a pool with the given class sizes. A nil config uses
// the defaults.
func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		cfg = &Config{}
	}
	p := &Pool{
		smallSize:  cfg.SmallSize,
		mediumSize: cfg.MediumSize,
		largeSize:  cfg.LargeSize,
	}
	if p.smallSize <= 0 {
		p.smallSize = DefaultSmallSize
	}
	if p.mediumSize <= 0 {
		p.mediumSize = DefaultMediumSize
	}
	if p.largeSize <= 0 {
		p.largeSize = DefaultLargeSize
	}

	p.small.New = func() any {
		buf := make([]byte, p.smallSize)
		return &buf
	}
	p.medium.New = func() any {
		buf := make([]byte, p.mediumSize)
		return &buf
	}
	p.large.New = func() any {
		buf := make([]byte, p.largeSize)
		return &buf
	}
	return p
}

// Get returns a slice of exactly the requested length, backed by a
// pooled buffer whose capacity is the class size. Requests beyond the
// large class are allocated directly and will not be pooled by Put.
func (p *Pool) Get(size int) []byte {
	var bufPtr *[]byte
	switch {
	case size <= p.smallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= p.mediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= p.largeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// Put returns a buffer obtained from Get. Buffers whose capacity does
// not match a class, including direct allocations, are left to the
// garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}

	full := buf[:cap(buf)]
	switch cap(buf) {
	case p.smallSize:
		p.small.Put(&full)
	case p.mediumSize:
		p.medium.Put(&full)
	case p.largeSize:
		p.large.Put(&full)
	}
}

var globalPool = NewPool(nil)

// Get returns a slice of at least size bytes from the shared pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns a slice obtained from Get to the shared pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}

// GetUint32 accepts the uint32 sizes frame and fork headers carry on
// the wire.
func GetUint32(size uint32) []byte {
	return globalPool.Get(int(size))
}
