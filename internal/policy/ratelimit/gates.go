package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/product-extractor/internal/metrics"
)

// Gate names used in metrics and errors.
const (
	GateGlobal = "global"
	GateDomain = "domain"
	GateHeavy  = "heavy"
)

// GatesConfig sizes the admission gates.
type GatesConfig struct {
	Global    int
	PerDomain int
	Heavy     int
	// DomainRPS paces requests per domain once the domain gate is held.
	DomainRPS float64
}

// Gates bounds in-flight work. Acquire takes the global gate and then the
// gate of the URL's domain; AcquireHeavy is taken separately around a render.
// Domain gates are created on first use and live as long as the Gates.
type Gates struct {
	global    *semaphore.Weighted
	heavy     *semaphore.Weighted
	perDomain int64
	pacer     *Limiter

	mu      sync.Mutex
	domains map[string]*semaphore.Weighted
}

// NewGates builds the gates. Sizes below one are raised to one.
func NewGates(cfg GatesConfig) *Gates {
	return &Gates{
		global:    semaphore.NewWeighted(atLeastOne(cfg.Global)),
		heavy:     semaphore.NewWeighted(atLeastOne(cfg.Heavy)),
		perDomain: atLeastOne(cfg.PerDomain),
		pacer:     New(Config{DefaultRPS: cfg.DomainRPS}),
		domains:   make(map[string]*semaphore.Weighted),
	}
}

// Acquire admits one pipeline for rawURL. The returned release frees both
// gates and is safe to call more than once.
func (g *Gates) Acquire(ctx context.Context, rawURL string) (func(), error) {
	releaseGlobal, err := g.take(ctx, GateGlobal, g.global)
	if err != nil {
		return nil, err
	}
	releaseDomain, err := g.take(ctx, GateDomain, g.domain(Domain(rawURL)))
	if err != nil {
		releaseGlobal()
		return nil, err
	}
	if err := g.pacer.Wait(ctx, rawURL); err != nil {
		releaseDomain()
		releaseGlobal()
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			releaseDomain()
			releaseGlobal()
		})
	}, nil
}

// AcquireHeavy admits one render.
func (g *Gates) AcquireHeavy(ctx context.Context) (func(), error) {
	release, err := g.take(ctx, GateHeavy, g.heavy)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

// Domains reports how many domain gates exist.
func (g *Gates) Domains() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.domains)
}

func (g *Gates) domain(name string) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	sem, ok := g.domains[name]
	if !ok {
		sem = semaphore.NewWeighted(g.perDomain)
		g.domains[name] = sem
	}
	return sem
}

func (g *Gates) take(ctx context.Context, name string, sem *semaphore.Weighted) (func(), error) {
	start := time.Now()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire %s gate: %w", name, err)
	}
	metrics.ObserveGateWait(name, time.Since(start))
	metrics.IncGate(name)
	return func() {
		metrics.DecGate(name)
		sem.Release(1)
	}, nil
}

func atLeastOne(n int) int64 {
	if n < 1 {
		return 1
	}
	return int64(n)
}
