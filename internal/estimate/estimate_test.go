package estimate

import (
	"context"
	"errors"
	"testing"
	"time"

	"tabour/internal/models"
)

type fakeProvider struct {
	minutes int
	err     error
	calls   int
}

func (f *fakeProvider) Estimate(_ context.Context, _ Input) (int, error) {
	f.calls++
	return f.minutes, f.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestWaitTimeUsesProvider(t *testing.T) {
	provider := &fakeProvider{minutes: 22}
	e := New(provider, WithClock(fixedClock(time.Now())))

	got := e.WaitTime(context.Background(), models.Branch{ID: "b1"}, make([]models.Booking, 3), 45)
	if got != 22 {
		t.Fatalf("WaitTime() = %d, want 22", got)
	}
	if provider.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", provider.calls)
	}
}

func TestWaitTimeCachesPerBranch(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{minutes: 30}
	e := New(provider, WithClock(fixedClock(now)))

	e.WaitTime(context.Background(), models.Branch{ID: "b1"}, nil, 45)
	e.WaitTime(context.Background(), models.Branch{ID: "b1"}, nil, 45)
	if provider.calls != 1 {
		t.Fatalf("provider calls = %d, want 1 cache hit", provider.calls)
	}

	// A different branch misses the cache.
	e.WaitTime(context.Background(), models.Branch{ID: "b2"}, nil, 45)
	if provider.calls != 2 {
		t.Fatalf("provider calls = %d, want 2", provider.calls)
	}
}

func TestWaitTimeCacheExpires(t *testing.T) {
	now := time.Now()
	provider := &fakeProvider{minutes: 30}
	e := New(provider, WithClock(fixedClock(now)))

	e.WaitTime(context.Background(), models.Branch{ID: "b1"}, nil, 45)

	e.clock = fixedClock(now.Add(61 * time.Second))
	e.WaitTime(context.Background(), models.Branch{ID: "b1"}, nil, 45)
	if provider.calls != 2 {
		t.Fatalf("provider calls = %d, want refresh after ttl", provider.calls)
	}
}

func TestWaitTimeProviderFailureFallsBack(t *testing.T) {
	provider := &fakeProvider{err: errors.New("quota exceeded")}
	e := New(provider, WithClock(fixedClock(time.Now())))

	got := e.WaitTime(context.Background(), models.Branch{ID: "b1"}, make([]models.Booking, 4), 45)
	if got != 20 {
		t.Fatalf("WaitTime() = %d, want 4*5 fallback", got)
	}

	// Fallback results stay out of the cache, so the provider is retried
	// on the next lookup.
	e.WaitTime(context.Background(), models.Branch{ID: "b1"}, make([]models.Booking, 4), 45)
	if provider.calls != 2 {
		t.Fatalf("provider calls = %d, want retry after failure", provider.calls)
	}

	// Once the provider recovers, its response is cached again.
	provider.err = nil
	provider.minutes = 25
	e.WaitTime(context.Background(), models.Branch{ID: "b1"}, nil, 45)
	got = e.WaitTime(context.Background(), models.Branch{ID: "b1"}, nil, 45)
	if got != 25 || provider.calls != 3 {
		t.Fatalf("WaitTime() = %d calls = %d, want cached 25 after recovery", got, provider.calls)
	}
}

func TestWaitTimeClampsToMinimum(t *testing.T) {
	provider := &fakeProvider{minutes: 1}
	e := New(provider, WithClock(fixedClock(time.Now())))

	got := e.WaitTime(context.Background(), models.Branch{ID: "b1"}, nil, 45)
	if got != 5 {
		t.Fatalf("WaitTime() = %d, want clamp to 5", got)
	}
}

func TestWaitTimeNilProvider(t *testing.T) {
	e := New(nil, WithClock(fixedClock(time.Now())))

	if got := e.WaitTime(context.Background(), models.Branch{ID: "b1"}, make([]models.Booking, 2), 45); got != 10 {
		t.Fatalf("WaitTime() = %d, want 10", got)
	}
	// The heuristic is unclamped; an empty queue means no wait.
	if got := e.WaitTime(context.Background(), models.Branch{ID: "b2"}, nil, 45); got != 0 {
		t.Fatalf("WaitTime() empty queue = %d, want 0", got)
	}
}
