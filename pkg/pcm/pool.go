package pcm

import (
	"sync"
	"time"
)

// Pool defaults. All three are overridable via [PoolConfig].
const (
	DefaultMaxPoolBytes     = 50 * 1024 * 1024
	DefaultMaxBucketEntries = 32
	DefaultIdleEvict        = 60 * time.Second

	// minBucketLen is the smallest pooled buffer length in samples. Smaller
	// requests round up to it.
	minBucketLen = 1024

	// maxPooledLen keeps pathological one-off allocations out of the pool.
	maxPooledLen = 5 * 1024 * 1024

	// cleanupCheckInterval rate-limits idle-eviction checks.
	cleanupCheckInterval = 30 * time.Second
)

// PoolConfig bounds a [Pool]. Zero values select the defaults above.
type PoolConfig struct {
	MaxBytes         int
	MaxBucketEntries int
	IdleEvict        time.Duration
}

// Pool recycles int16 sample buffers in power-of-two size buckets. Buffers
// released while the pool is over its byte cap, or into a full bucket, go back
// to the allocator instead. An idle pool evicts everything after IdleEvict.
//
// All methods are safe for concurrent use.
type Pool struct {
	mu           sync.Mutex
	buckets      map[int][][]int16
	totalBytes   int
	lastActivity time.Time
	lastCleanup  time.Time

	maxBytes         int
	maxBucketEntries int
	idleEvict        time.Duration
}

// NewPool creates a pool with the given bounds.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxPoolBytes
	}
	if cfg.MaxBucketEntries <= 0 {
		cfg.MaxBucketEntries = DefaultMaxBucketEntries
	}
	if cfg.IdleEvict <= 0 {
		cfg.IdleEvict = DefaultIdleEvict
	}
	now := time.Now()
	return &Pool{
		buckets:          make(map[int][][]int16),
		lastActivity:     now,
		lastCleanup:      now,
		maxBytes:         cfg.MaxBytes,
		maxBucketEntries: cfg.MaxBucketEntries,
		idleEvict:        cfg.IdleEvict,
	}
}

// alignedLen rounds n up to the next power of two, with a floor of 1024.
func alignedLen(n int) int {
	if n < minBucketLen {
		n = minBucketLen
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Get returns a [Buffer] of exactly n samples, zeroed, backed by a pooled or
// freshly allocated slice.
func (p *Pool) Get(n int) *Buffer {
	aligned := alignedLen(n)

	p.mu.Lock()
	p.lastActivity = time.Now()
	p.cleanupLocked()

	var backing []int16
	if bucket := p.buckets[aligned]; len(bucket) > 0 {
		backing = bucket[len(bucket)-1]
		p.buckets[aligned] = bucket[:len(bucket)-1]
		p.totalBytes -= aligned * 2
	}
	p.mu.Unlock()

	if backing == nil {
		backing = make([]int16, aligned)
	} else {
		clear(backing)
	}
	return &Buffer{Samples: backing[:n], backing: backing, pool: p}
}

// put returns a backing slice to its bucket. Over-cap slices are dropped.
func (p *Pool) put(backing []int16) {
	n := cap(backing)
	if n < minBucketLen || n > maxPooledLen {
		return
	}
	// Only slices that still match their bucket size exactly are reusable.
	if n != alignedLen(n) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActivity = time.Now()

	if p.totalBytes+n*2 > p.maxBytes {
		return
	}
	bucket := p.buckets[n]
	if len(bucket) >= p.maxBucketEntries {
		return
	}
	p.buckets[n] = append(bucket, backing[:n])
	p.totalBytes += n * 2
}

// cleanupLocked evicts everything once the pool has been idle past the
// configured interval. Checks are rate-limited. Caller holds p.mu.
func (p *Pool) cleanupLocked() {
	if p.totalBytes == 0 {
		return
	}
	now := time.Now()
	if now.Sub(p.lastCleanup) < cleanupCheckInterval {
		return
	}
	p.lastCleanup = now
	if now.Sub(p.lastActivity) >= p.idleEvict {
		p.buckets = make(map[int][][]int16)
		p.totalBytes = 0
	}
}

// Stats is a snapshot of pool occupancy.
type Stats struct {
	TotalBytes int
	Buckets    int
	Entries    int
}

// Stats returns the current pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{TotalBytes: p.totalBytes, Buckets: len(p.buckets)}
	for _, b := range p.buckets {
		s.Entries += len(b)
	}
	return s
}

// Buffer is a pooled slice of interleaved int16 samples. Release returns the
// backing storage to the pool; the Buffer must not be used afterwards.
type Buffer struct {
	Samples []int16

	backing []int16
	pool    *Pool
	once    sync.Once
}

// Release hands the backing storage back to the pool. Safe to call more than
// once; only the first call has an effect.
func (b *Buffer) Release() {
	b.once.Do(func() {
		if b.pool != nil && b.backing != nil {
			b.pool.put(b.backing)
		}
		b.Samples = nil
		b.backing = nil
	})
}

// defaultPool is the process-wide pool used by the engine hot path. Size
// limits come from configuration at startup via [InitDefaultPool].
var (
	defaultPool     = NewPool(PoolConfig{})
	defaultPoolOnce sync.Once
)

// InitDefaultPool replaces the process-wide pool bounds. Only the first call
// has an effect; it should happen before any audio engine starts.
func InitDefaultPool(cfg PoolConfig) {
	defaultPoolOnce.Do(func() {
		defaultPool = NewPool(cfg)
	})
}

// DefaultPool returns the process-wide sample pool.
func DefaultPool() *Pool {
	return defaultPool
}

// GetFrame returns a pooled all-zero frame of [FrameSamples] samples from the
// default pool.
func GetFrame() *Buffer {
	return defaultPool.Get(FrameSamples)
}
