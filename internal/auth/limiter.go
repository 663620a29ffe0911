package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL     = 10 * time.Minute
	defaultSweepPeriod = time.Minute
)

type bucket struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per participant. Buckets idle for longer
// than the TTL are evicted by a background sweep started on first use.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*bucket
	rps   float64
	burst int
	now   func() time.Time

	ttl       time.Duration
	period    time.Duration
	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
}

// NewLimiter returns a pool allowing rps sustained and burst peak
// mutations per participant. Non-positive values fall back to 5 and 10.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &Limiter{
		m:      make(map[string]*bucket),
		rps:    rps,
		burst:  burst,
		now:    time.Now,
		ttl:    defaultIdleTTL,
		period: defaultSweepPeriod,
		stop:   make(chan struct{}),
	}
}

func (p *Limiter) get(key string) *rate.Limiter {
	p.startOnce.Do(func() { go p.sweepLoop() })

	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if b, ok := p.m[key]; ok {
		b.lastSeen = now
		return b.l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = &bucket{l: l, lastSeen: now}
	return l
}

// Allow reports whether participant may perform one more mutation now.
func (p *Limiter) Allow(participant string) bool {
	return p.get(participant).Allow()
}

// Len reports the number of tracked participants.
func (p *Limiter) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// Close stops the background sweep.
func (p *Limiter) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Limiter) sweepLoop() {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep removes buckets not used within the TTL.
func (p *Limiter) sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := p.now().Add(-p.ttl)
	n := 0
	for k, b := range p.m {
		if b.lastSeen.Before(cutoff) {
			delete(p.m, k)
			n++
		}
	}
	return n
}
