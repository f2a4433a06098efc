package estimate

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"tabour/internal/models"
)

const (
	cacheTTL        = 60 * time.Second
	minWaitMinutes  = 5
	fallbackPerHead = 5
)

// Input is the queue snapshot handed to a wait-time provider.
type Input struct {
	BranchName          string
	QueueLength         int
	AverageVisitMinutes float64
	AverageWaitMinutes  float64
	MaxWaitMinutes      float64
	Weekday             string
	TimeOfDay           string
}

// Provider produces a wait estimate in minutes for one queue snapshot.
type Provider interface {
	Estimate(ctx context.Context, in Input) (int, error)
}

type cacheEntry struct {
	minutes int
	at      time.Time
}

// Estimator caches provider results per branch so a burst of lookups
// does not hammer the upstream model. A nil provider degrades to the
// queue-length heuristic.
type Estimator struct {
	mu       sync.Mutex
	provider Provider
	clock    func() time.Time
	cache    map[string]cacheEntry
}

type Option func(*Estimator)

func WithClock(clock func() time.Time) Option {
	return func(e *Estimator) { e.clock = clock }
}

func New(provider Provider, opts ...Option) *Estimator {
	e := &Estimator{
		provider: provider,
		clock:    time.Now,
		cache:    make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WaitTime returns the estimated wait in minutes for a new arrival at
// the branch. Provider responses are clamped to a five minute floor and
// cached for 60 seconds per branch. A missing or failing provider falls
// back to five minutes per party ahead; fallbacks are never cached, so
// a transient failure does not suppress retries for the cache window.
func (e *Estimator) WaitTime(ctx context.Context, branch models.Branch, queue []models.Booking, avgVisitMinutes float64) int {
	now := e.clock()

	e.mu.Lock()
	if entry, ok := e.cache[branch.ID]; ok && now.Sub(entry.at) < cacheTTL {
		e.mu.Unlock()
		return entry.minutes
	}
	e.mu.Unlock()

	if e.provider == nil {
		return len(queue) * fallbackPerHead
	}

	minutes, err := e.estimate(ctx, branch, queue, avgVisitMinutes, now)
	if err != nil {
		log.Printf("msg=\"wait estimate provider failed, using fallback\" branch_id=%s error=%q", branch.ID, err)
		return len(queue) * fallbackPerHead
	}
	if minutes < minWaitMinutes {
		minutes = minWaitMinutes
	}

	e.mu.Lock()
	e.cache[branch.ID] = cacheEntry{minutes: minutes, at: now}
	e.mu.Unlock()
	return minutes
}

func (e *Estimator) estimate(ctx context.Context, branch models.Branch, queue []models.Booking, avgVisitMinutes float64, now time.Time) (int, error) {
	var totalWait, maxWait float64
	for _, b := range queue {
		wait := now.Sub(b.CreatedAt).Minutes()
		totalWait += wait
		if wait > maxWait {
			maxWait = wait
		}
	}
	avgWait := 0.0
	if len(queue) > 0 {
		avgWait = totalWait / float64(len(queue))
	}

	return e.provider.Estimate(ctx, Input{
		BranchName:          branch.Name,
		QueueLength:         len(queue),
		AverageVisitMinutes: avgVisitMinutes,
		AverageWaitMinutes:  math.Round(avgWait),
		MaxWaitMinutes:      math.Round(maxWait),
		Weekday:             now.Weekday().String(),
		TimeOfDay:           now.Format("15:04"),
	})
}
