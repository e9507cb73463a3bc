package scheduler

import (
	"context"
	"testing"
	"time"

	"pitboss/internal/domain"
	"pitboss/internal/fields"
)

func TestComputeIntervalWithinBounds(t *testing.T) {
	cases := []PollResult{
		{Panic: true},
		{GrillOn: true, Preheating: true},
		{GrillOn: true},
		{},
	}
	for _, r := range cases {
		iv := ComputeInterval(domain.DefaultRefreshInterval, r)
		if iv < domain.MinHealthCheckInterval || iv > domain.MaxHealthCheckInterval {
			t.Errorf("ComputeInterval(%+v) = %v, out of bounds [%v,%v]", r, iv, domain.MinHealthCheckInterval, domain.MaxHealthCheckInterval)
		}
	}
}

func TestComputeIntervalPanicIsShortest(t *testing.T) {
	panicIv := ComputeInterval(domain.DefaultRefreshInterval, PollResult{Panic: true})
	activeIv := ComputeInterval(domain.DefaultRefreshInterval, PollResult{GrillOn: true})
	if panicIv >= activeIv {
		t.Fatalf("expected panic interval (%v) to be shorter than active interval (%v)", panicIv, activeIv)
	}
}

func TestComputeIntervalInactiveIsLongest(t *testing.T) {
	inactiveIv := ComputeInterval(domain.DefaultRefreshInterval, PollResult{})
	activeIv := ComputeInterval(domain.DefaultRefreshInterval, PollResult{GrillOn: true})
	if inactiveIv <= activeIv {
		t.Fatalf("expected inactive interval (%v) to be longer than active interval (%v)", inactiveIv, activeIv)
	}
}

func TestSingleOutstandingTimerAcrossTicks(t *testing.T) {
	store := fields.NewMemStore()
	calls := 0
	s := New("dev1", store, func(ctx context.Context) PollResult {
		calls++
		return PollResult{}
	})
	s.SetBaseInterval(20 * time.Millisecond)

	ctx := context.Background()
	s.Init(ctx)

	_, ok := store.Get("dev1", fields.KeyLastHealthScheduled)
	if !ok {
		t.Fatalf("expected a timer record after Init")
	}

	// Driving Tick directly simulates the timer firing: it must clear
	// the previous record before (re)arming the next one, so at most
	// one record ever exists.
	s.Tick(ctx)
	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	_, ok = store.Get("dev1", fields.KeyLastHealthScheduled)
	if !ok {
		t.Fatalf("expected a new timer record armed after Tick")
	}

	s.Cancel()
	_, ok = store.Get("dev1", fields.KeyLastHealthScheduled)
	if ok {
		t.Fatalf("expected no timer record after Cancel")
	}
}

func TestTickSkipsWhenPollAlreadyInFlight(t *testing.T) {
	store := fields.NewMemStore()
	running := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	s := New("dev1", store, func(ctx context.Context) PollResult {
		calls++
		close(running)
		<-release
		return PollResult{}
	})
	s.SetBaseInterval(20 * time.Millisecond)
	ctx := context.Background()

	go s.Tick(ctx)
	<-running

	// a second tick while the first is still in flight must not run
	// the handler again.
	s.Tick(ctx)
	close(release)

	time.Sleep(10 * time.Millisecond)
	if calls != 1 {
		t.Fatalf("expected handler to run exactly once despite overlapping ticks, ran %d times", calls)
	}
}

func TestEnsureActiveRearmsAfterStaleness(t *testing.T) {
	store := fields.NewMemStore()
	s := New("dev1", store, func(ctx context.Context) PollResult { return PollResult{} })
	fakeNow := time.Now()
	s.now = func() time.Time { return fakeNow }
	s.SetBaseInterval(20 * time.Millisecond)

	ctx := context.Background()
	s.Init(ctx)

	staleAfter := domain.MaxHealthCheckInterval * time.Duration(domain.InactiveMultiplier)
	fakeNow = fakeNow.Add(staleAfter + time.Second)

	s.EnsureActive(ctx)

	scheduled, ok := store.Get("dev1", fields.KeyLastHealthScheduled)
	if !ok {
		t.Fatalf("expected a fresh timer record after EnsureActive")
	}
	if ts, ok := scheduled.(time.Time); !ok || !ts.Equal(fakeNow) {
		t.Fatalf("expected the new record to be timestamped at the current fake time")
	}
}
