package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
)

type PoolConfig struct {
	BinaryPath string
	// PerOptionsCapacity bounds the number of live processes sharing one
	// option set. Zero picks a CPU-derived default.
	PerOptionsCapacity int
}

// Pool keeps warm engine processes grouped by their setoption values so a
// search never has to re-tune a process for another difficulty.
type Pool struct {
	binaryPath string
	capacity   int

	mu       sync.Mutex
	closed   bool
	buckets  map[string]*sessionBucket
	sessions map[*Session]*sessionBucket
}

var ErrPoolClosed = errors.New("engine pool closed")

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}

	capacity := cfg.PerOptionsCapacity
	if capacity <= 0 {
		capacity = defaultCapacity()
	}

	return &Pool{
		binaryPath: cfg.BinaryPath,
		capacity:   capacity,
		buckets:    make(map[string]*sessionBucket),
		sessions:   make(map[*Session]*sessionBucket),
	}, nil
}

// Acquire hands out an idle process for opt, starting a new one while the
// bucket is below capacity and otherwise waiting for a release.
func (p *Pool) Acquire(ctx context.Context, opt Options) (*Session, error) {
	bucket, err := p.bucketFor(opt)
	if err != nil {
		return nil, err
	}

	for {
		if session, ok := bucket.tryIdle(); ok {
			if p.revive(ctx, session, bucket) {
				return session, nil
			}
			continue
		}

		session, err := bucket.create(ctx)
		if err == nil {
			p.track(session, bucket)
			return session, nil
		}
		if !errors.Is(err, errBucketAtCapacity) {
			return nil, err
		}

		select {
		case session := <-bucket.idle:
			if session == nil {
				continue
			}
			if p.revive(ctx, session, bucket) {
				return session, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) revive(ctx context.Context, session *Session, bucket *sessionBucket) bool {
	if err := session.EnsureReady(ctx); err != nil {
		bucket.discard(session)
		return false
	}
	p.track(session, bucket)
	return true
}

// Release returns a session to its bucket. A non-nil err marks the process as
// unusable: its output stream may still hold lines from the failed search.
func (p *Pool) Release(session *Session, err error) {
	if session == nil {
		return
	}

	p.mu.Lock()
	bucket, ok := p.sessions[session]
	delete(p.sessions, session)
	closed := p.closed
	p.mu.Unlock()

	if !ok {
		_ = session.Close()
		return
	}
	if err != nil || closed || !bucket.put(session) {
		bucket.discard(session)
	}
}

type PoolStats struct {
	Buckets int
	Live    int
	Idle    int
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{Buckets: len(p.buckets)}
	for _, b := range p.buckets {
		b.mu.Lock()
		stats.Live += b.total
		b.mu.Unlock()
		stats.Idle += len(b.idle)
	}
	return stats
}

func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	buckets := make([]*sessionBucket, 0, len(p.buckets))
	for _, b := range p.buckets {
		buckets = append(buckets, b)
	}
	p.mu.Unlock()

	var errs []error
	for _, bucket := range buckets {
		for {
			session, ok := bucket.tryIdle()
			if !ok {
				break
			}
			if err := session.Close(); err != nil {
				errs = append(errs, err)
			}
			bucket.decrement()
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) track(session *Session, bucket *sessionBucket) {
	p.mu.Lock()
	p.sessions[session] = bucket
	p.mu.Unlock()
}

func (p *Pool) bucketFor(opt Options) (*sessionBucket, error) {
	key := optionsKey(opt)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	bucket, ok := p.buckets[key]
	if !ok {
		bucket = newSessionBucket(p.binaryPath, opt, p.capacity)
		p.buckets[key] = bucket
	}
	return bucket, nil
}

type sessionBucket struct {
	opt        Options
	capacity   int
	binaryPath string

	mu    sync.Mutex
	total int
	idle  chan *Session
}

var errBucketAtCapacity = errors.New("session bucket at capacity")

func newSessionBucket(binaryPath string, opt Options, capacity int) *sessionBucket {
	if capacity <= 0 {
		capacity = 1
	}
	return &sessionBucket{
		opt:        opt,
		capacity:   capacity,
		binaryPath: binaryPath,
		idle:       make(chan *Session, capacity),
	}
}

func (b *sessionBucket) tryIdle() (*Session, bool) {
	for {
		select {
		case session := <-b.idle:
			if session == nil {
				continue
			}
			return session, true
		default:
			return nil, false
		}
	}
}

func (b *sessionBucket) create(ctx context.Context) (*Session, error) {
	b.mu.Lock()
	if b.total >= b.capacity {
		b.mu.Unlock()
		return nil, errBucketAtCapacity
	}
	b.total++
	b.mu.Unlock()

	session, err := NewSession(ctx, b.binaryPath, b.opt)
	if err != nil {
		b.decrement()
		return nil, err
	}
	return session, nil
}

func (b *sessionBucket) put(session *Session) bool {
	select {
	case b.idle <- session:
		return true
	default:
		return false
	}
}

func (b *sessionBucket) discard(session *Session) {
	if session != nil {
		_ = session.Close()
	}
	b.decrement()
}

func (b *sessionBucket) decrement() {
	b.mu.Lock()
	if b.total > 0 {
		b.total--
	}
	b.mu.Unlock()
}

func optionsKey(opt Options) string {
	return fmt.Sprintf("thr=%d|skill=%d|hash=%d", opt.Threads, opt.SkillLevel, opt.HashMB)
}

func defaultCapacity() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}
