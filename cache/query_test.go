package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robby3000/luxicle/internal/apperr"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Capacity = 1000
	cfg.NumShards = 8
	cfg.RetryBaseDelay = time.Millisecond
	return cfg
}

func newTestQueryCache(t *testing.T, clock *fakeClock) *QueryCache {
	t.Helper()
	q, err := New(testConfig(), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("failed to create query cache: %v", err)
	}
	return q
}

// countingFetcher returns value and counts calls.
type countingFetcher struct {
	calls atomic.Int32
	value string
	err   error
}

func (f *countingFetcher) fetch(ctx context.Context) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.value, nil
}

func TestRead_CoalescesConcurrentFetches(t *testing.T) {
	q := newTestQueryCache(t, newFakeClock())
	key := DetailKey(EntityChallenges, "c1")

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "challenge", nil
	}

	const readers = 10
	var wg sync.WaitGroup
	results := make([]string, readers)
	errs := make([]error, readers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = Read(context.Background(), q, key, fetch)
	}()
	<-started

	for i := 1; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = Read(context.Background(), q, key, fetch)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected fetcher to run once, ran %d times", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Errorf("reader %d: unexpected error %v", i, errs[i])
		}
		if results[i] != "challenge" {
			t.Errorf("reader %d: expected challenge, got %q", i, results[i])
		}
	}
}

func TestRead_StalenessWindow(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueryCache(t, clock)
	ctx := context.Background()
	key := DetailKey(EntityUsers, "u1")
	f := &countingFetcher{value: "alice"}

	for i := 0; i < 3; i++ {
		if _, err := Read(ctx, q, key, f.fetch); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		clock.Advance(time.Minute)
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("expected one fetch inside the window, got %d", got)
	}

	clock.Advance(testConfig().DetailStaleTime)
	if _, err := Read(ctx, q, key, f.fetch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("expected exactly one refetch after the window, got %d total", got)
	}
}

func TestRead_ListsGoStaleBeforeDetails(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueryCache(t, clock)
	ctx := context.Background()

	listKey := ListKey(EntityChallenges, nil)
	detailKey := DetailKey(EntityChallenges, "c1")
	list := &countingFetcher{value: "list"}
	detail := &countingFetcher{value: "detail"}

	_, _ = Read(ctx, q, listKey, list.fetch)
	_, _ = Read(ctx, q, detailKey, detail.fetch)

	clock.Advance(testConfig().ListStaleTime)

	if !q.IsStale(ctx, listKey) {
		t.Error("expected list key to be stale after the list window")
	}
	if q.IsStale(ctx, detailKey) {
		t.Error("expected detail key to still be fresh")
	}

	_, _ = Read(ctx, q, listKey, list.fetch)
	_, _ = Read(ctx, q, detailKey, detail.fetch)

	if list.calls.Load() != 2 {
		t.Errorf("expected list to refetch, got %d calls", list.calls.Load())
	}
	if detail.calls.Load() != 1 {
		t.Errorf("expected detail to be served from cache, got %d calls", detail.calls.Load())
	}
}

func TestRead_StaleTimeOverride(t *testing.T) {
	q := newTestQueryCache(t, newFakeClock())
	ctx := context.Background()
	key := DetailKey(EntityTags, "t1")
	f := &countingFetcher{value: "tag"}

	_, _ = Read(ctx, q, key, f.fetch, StaleTime(0))
	_, _ = Read(ctx, q, key, f.fetch, StaleTime(0))

	if got := f.calls.Load(); got != 2 {
		t.Errorf("expected zero stale time to always refetch, got %d calls", got)
	}
}

func TestInvalidate_MarksStaleWithoutRemoving(t *testing.T) {
	q := newTestQueryCache(t, newFakeClock())
	ctx := context.Background()

	listA := ListKey(EntityLuxicles, map[string]string{"category": "music"})
	listB := SearchKey(EntityLuxicles, map[string]string{"q": "art"})
	detail := DetailKey(EntityLuxicles, "l1")
	other := ListKey(EntityChallenges, nil)

	for _, k := range []Key{listA, listB, detail, other} {
		f := &countingFetcher{value: k.String()}
		if _, err := Read(ctx, q, k, f.fetch); err != nil {
			t.Fatalf("seed read failed: %v", err)
		}
	}

	marked := q.Invalidate(ctx, ScopePrefix(EntityLuxicles, ScopeList), ScopePrefix(EntityLuxicles, ScopeSearch))
	if marked != 2 {
		t.Errorf("expected 2 entries marked, got %d", marked)
	}

	if !q.IsStale(ctx, listA) || !q.IsStale(ctx, listB) {
		t.Error("expected luxicle lists to be stale")
	}
	if q.IsStale(ctx, detail) {
		t.Error("expected luxicle detail to stay fresh")
	}
	if q.IsStale(ctx, other) {
		t.Error("expected challenge list to stay fresh")
	}

	if v, ok := Peek[string](ctx, q, listA); !ok || v != listA.String() {
		t.Errorf("expected stale value to remain cached, got %q (ok=%v)", v, ok)
	}

	f := &countingFetcher{value: "refetched"}
	got, err := Read(ctx, q, listA, f.fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "refetched" || f.calls.Load() != 1 {
		t.Errorf("expected one refetch returning new value, got %q after %d calls", got, f.calls.Load())
	}
}

func TestPrefixMatchesOnSegmentBoundary(t *testing.T) {
	tests := []struct {
		prefix Prefix
		key    string
		want   bool
	}{
		{EntityPrefix(EntityUsers), "users::detail::u1", true},
		{EntityPrefix(EntityUsers), "users", true},
		{EntityPrefix(EntityUsers), "usersx::detail::u1", false},
		{ScopePrefix(EntityLuxicles, ScopeList), "luxicles::list::struct:{}", true},
		{ScopePrefix(EntityLuxicles, ScopeList), "luxicles::listing", false},
		{DetailKey(EntityUsers, "u1").Exact(), "users::detail::u10", false},
		{DetailKey(EntityUsers, "u1").Exact(), "users::detail::u1", true},
		{"", "anything", true},
	}

	for _, tt := range tests {
		if got := tt.prefix.Matches(tt.key); got != tt.want {
			t.Errorf("Prefix(%q).Matches(%q) = %v, want %v", tt.prefix, tt.key, got, tt.want)
		}
	}
}

func TestRead_DisabledNeverFetchesOrServes(t *testing.T) {
	q := newTestQueryCache(t, newFakeClock())
	ctx := context.Background()
	key := DetailKey(EntityUsers, "u1")
	f := &countingFetcher{value: "alice"}

	if _, err := Read(ctx, q, key, f.fetch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := Read(ctx, q, key, f.fetch, Enabled(false))
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if got != "" {
		t.Errorf("expected no data from a disabled read, got %q", got)
	}

	missing := DetailKey(EntityUsers, "u2")
	if _, err := Read(ctx, q, missing, f.fetch, Enabled(false)); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("expected disabled reads not to fetch, got %d calls", got)
	}
}

func TestRead_FailureLeavesCacheUntouched(t *testing.T) {
	q := newTestQueryCache(t, newFakeClock())
	ctx := context.Background()
	key := DetailKey(EntityChallenges, "c1")

	Seed(ctx, q, key, "old")
	q.Invalidate(ctx, key.Exact())

	wantErr := apperr.NewNotFound("challenge", "c1")
	f := &countingFetcher{err: wantErr}

	if _, err := Read(ctx, q, key, f.fetch); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}

	got, ok := Peek[string](ctx, q, key)
	if !ok || got != "old" {
		t.Errorf("expected previous value to survive a failed fetch, got %q (ok=%v)", got, ok)
	}
	if !q.IsStale(ctx, key) {
		t.Error("expected entry to remain stale")
	}
}

func TestRead_RetryPolicy(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		err       error
		opts      []ReadOption
		wantCalls int32
	}{
		{name: "store error retried once", err: apperr.FromStore(errors.New("connection reset"), "tag", "t1"), wantCalls: 2},
		{name: "unclassified error retried once", err: errors.New("boom"), wantCalls: 2},
		{name: "validation never retried", err: apperr.NewValidation("bad"), wantCalls: 1},
		{name: "not found never retried", err: apperr.NewNotFound("tag", "t1"), wantCalls: 1},
		{name: "retries disabled", err: errors.New("boom"), opts: []ReadOption{Retries(0)}, wantCalls: 1},
		{name: "retries raised", err: errors.New("boom"), opts: []ReadOption{Retries(3)}, wantCalls: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newTestQueryCache(t, newFakeClock())
			f := &countingFetcher{err: tt.err}

			_, err := Read(ctx, q, DetailKey(EntityTags, "t1"), f.fetch, tt.opts...)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := f.calls.Load(); got != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, got)
			}
		})
	}
}

func TestRead_RetrySucceedsOnSecondAttempt(t *testing.T) {
	q := newTestQueryCache(t, newFakeClock())
	var calls atomic.Int32

	got, err := Read(context.Background(), q, DetailKey(EntityTags, "t1"), func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("transient")
		}
		return "tag", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "tag" {
		t.Errorf("expected tag, got %q", got)
	}
}

func TestRead_BackgroundRefreshServesStaleValue(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueryCache(t, clock)
	ctx := context.Background()
	key := ListKey(EntityCategories, nil)

	Seed(ctx, q, key, "v1")
	clock.Advance(testConfig().ListStaleTime + time.Second)

	refreshed := make(chan struct{})
	got, err := Read(ctx, q, key, func(ctx context.Context) (string, error) {
		defer close(refreshed)
		return "v2", nil
	}, RefreshInBackground())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "v1" {
		t.Errorf("expected stale value v1 to be served, got %q", got)
	}

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("expected background refresh to run")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v, _ := Peek[string](ctx, q, key); v == "v2" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("expected refreshed value to be stored")
}

func TestInvalidate_DuringFlightStoresStale(t *testing.T) {
	q := newTestQueryCache(t, newFakeClock())
	ctx := context.Background()
	key := DetailKey(EntityLuxicles, "l1")

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = Read(ctx, q, key, func(ctx context.Context) (string, error) {
			close(started)
			<-release
			return "pre-mutation", nil
		})
	}()

	<-started
	q.Invalidate(ctx, EntityPrefix(EntityLuxicles))
	close(release)
	<-done

	if !q.IsStale(ctx, key) {
		t.Error("expected result of an invalidated flight to be stored stale")
	}
}

func TestSeed_SupersedesInFlightFetch(t *testing.T) {
	q := newTestQueryCache(t, newFakeClock())
	ctx := context.Background()
	key := DetailKey(EntityLuxicles, "l1")

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = Read(ctx, q, key, func(ctx context.Context) (string, error) {
			close(started)
			<-release
			return "old", nil
		})
	}()

	<-started
	Seed(ctx, q, key, "new")
	close(release)
	<-done

	if got, _ := Peek[string](ctx, q, key); got != "new" {
		t.Errorf("expected seeded value to win over the older fetch, got %q", got)
	}
}

func TestMerge(t *testing.T) {
	q := newTestQueryCache(t, newFakeClock())
	ctx := context.Background()
	key := DetailKey(EntityUsers, "u1")

	type profile struct {
		Bio       string
		Followers int
	}

	Merge(ctx, q, key, func(prev profile, cached bool) profile {
		if cached {
			t.Error("expected nothing cached yet")
		}
		return profile{Bio: "first"}
	})

	q.Invalidate(ctx, key.Exact())

	Merge(ctx, q, key, func(prev profile, cached bool) profile {
		if !cached {
			t.Error("expected previous value")
		}
		prev.Bio = "second"
		prev.Followers = 3
		return prev
	})

	got, ok := Peek[profile](ctx, q, key)
	if !ok {
		t.Fatal("expected merged value")
	}
	if got.Bio != "second" || got.Followers != 3 {
		t.Errorf("unexpected merged value %+v", got)
	}
	if q.IsStale(ctx, key) {
		t.Error("expected merged entry to be fresh")
	}
}

func TestRemove(t *testing.T) {
	q := newTestQueryCache(t, newFakeClock())
	ctx := context.Background()
	key := Key{Entity: EntityUsers, Scope: ScopeUsername, ID: "alice"}

	Seed(ctx, q, key, "u1")
	q.Remove(ctx, key)

	if _, ok := Peek[string](ctx, q, key); ok {
		t.Error("expected entry to be removed")
	}
}

func TestRead_CallerCancellationDoesNotAbortFetch(t *testing.T) {
	q := newTestQueryCache(t, newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawCancelled bool
	got, err := Read(ctx, q, DetailKey(EntityChallenges, "c1"), func(ctx context.Context) (string, error) {
		sawCancelled = ctx.Err() != nil
		return "challenge", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sawCancelled {
		t.Error("expected fetch context to be detached from caller cancellation")
	}
	if got != "challenge" {
		t.Errorf("expected challenge, got %q", got)
	}
}

func TestRead_InvalidResultType(t *testing.T) {
	q := newTestQueryCache(t, newFakeClock())
	ctx := context.Background()
	key := DetailKey(EntityTags, "t1")

	Seed(ctx, q, key, 42)

	_, err := Read(ctx, q, key, func(ctx context.Context) (string, error) { return "tag", nil })
	if !errors.Is(err, ErrInvalidResultType) {
		t.Errorf("expected ErrInvalidResultType, got %v", err)
	}
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingRecorder) record(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingRecorder) Hit(e Entity)        { r.record("hit:" + string(e)) }
func (r *recordingRecorder) Miss(e Entity)       { r.record("miss:" + string(e)) }
func (r *recordingRecorder) FetchError(e Entity) { r.record("error:" + string(e)) }

func TestRead_ReportsToRecorder(t *testing.T) {
	rec := &recordingRecorder{}
	q, err := New(testConfig(), WithRecorder(rec), WithClock(newFakeClock().Now))
	if err != nil {
		t.Fatalf("failed to create query cache: %v", err)
	}
	ctx := context.Background()

	ok := &countingFetcher{value: "x"}
	_, _ = Read(ctx, q, DetailKey(EntityTags, "t1"), ok.fetch)
	_, _ = Read(ctx, q, DetailKey(EntityTags, "t1"), ok.fetch)
	bad := &countingFetcher{err: apperr.NewValidation("bad")}
	_, _ = Read(ctx, q, DetailKey(EntityTags, "t2"), bad.fetch)

	want := []string{"miss:tags", "hit:tags", "miss:tags", "error:tags"}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, rec.events)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], rec.events[i])
		}
	}
}
