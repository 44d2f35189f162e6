//nolint:exhaustruct // tests
package boundres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/n-r-w/boundres/memstore"
)

// logCounts is what mockLogger has recorded.
type logCounts struct {
	name string

	cacheHit  int
	cacheMiss int

	fetchOK  int
	fetchErr int
}

// mockLogger is a mock implementation of the ILogger interface for testing purposes.
type mockLogger struct {
	counts logCounts
	mu     sync.Mutex
}

func (m *mockLogger) LogCacheHitRatio(_ context.Context, name string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts.name = name
	if hit {
		m.counts.cacheHit++
	} else {
		m.counts.cacheMiss++
	}
}

func (m *mockLogger) LogFetchResult(_ context.Context, name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts.name = name
	if err == nil {
		m.counts.fetchOK++
	} else {
		m.counts.fetchErr++
	}
}

func (m *mockLogger) snapshot() logCounts {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.counts
}

type testUser struct {
	Login string
	Name  string
}

const testKey = "foo"

// testEnv wires a mediator to an in-memory store and counts calls to the remote side.
type testEnv struct {
	store      *memstore.Store[string, testUser]
	fetchCalls atomic.Int32
	saveCalls  atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := memstore.New[string, testUser](10)
	require.NoError(t, err)

	return &testEnv{store: store}
}

// config returns a config fetching with fetch when the cache is empty.
func (e *testEnv) config(fetch func(ctx context.Context) (testUser, error)) Config[testUser, testUser] {
	return Config[testUser, testUser]{
		ReadCache: func(ctx context.Context) (<-chan *testUser, error) {
			return e.store.Read(ctx, testKey)
		},
		ShouldFetch: func(u *testUser) bool {
			return u == nil
		},
		Fetch: func(ctx context.Context) (testUser, error) {
			e.fetchCalls.Add(1)
			return fetch(ctx)
		},
		Save: func(ctx context.Context, u testUser) error {
			e.saveCalls.Add(1)
			return e.store.Write(ctx, testKey, &u)
		},
	}
}

func instant() []Option {
	return []Option{WithNetworkExecutor(NewInstantExecutor()), WithDiskExecutor(NewInstantExecutor())}
}

func next[T any](t *testing.T, sub *Subscription[T]) Resource[T] {
	t.Helper()

	select {
	case r, ok := <-sub.Updates():
		require.True(t, ok, "updates channel closed")
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}

	return Resource[T]{}
}

func fetchUser(u testUser) func(context.Context) (testUser, error) {
	return func(context.Context) (testUser, error) {
		return u, nil
	}
}

func TestNew_MissingHooks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	full := env.config(fetchUser(testUser{}))

	tests := []struct {
		name   string
		modify func(c *Config[testUser, testUser])
	}{
		{"read cache", func(c *Config[testUser, testUser]) { c.ReadCache = nil }},
		{"should fetch", func(c *Config[testUser, testUser]) { c.ShouldFetch = nil }},
		{"fetch", func(c *Config[testUser, testUser]) { c.Fetch = nil }},
		{"save", func(c *Config[testUser, testUser]) { c.Save = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := full
			tt.modify(&cfg)

			_, err := New(cfg)
			require.ErrorIs(t, err, ErrMissingHook)
		})
	}

	m, err := New(full)
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestMediator_FetchWhenCacheEmpty(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	user := testUser{Login: testKey, Name: "Foo"}

	m, err := New(env.config(fetchUser(user)), instant()...)
	require.NoError(t, err)

	sub := m.Run(context.Background())
	defer sub.Close()

	require.Equal(t, Loading[testUser](nil), next(t, sub))
	require.Equal(t, Success(&user), next(t, sub))
	require.Equal(t, int32(1), env.fetchCalls.Load())
	require.Equal(t, int32(1), env.saveCalls.Load())
}

func TestMediator_CacheTrusted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	existing := testUser{Login: testKey, Name: "Cached"}
	require.NoError(t, env.store.Write(context.Background(), testKey, &existing))

	m, err := New(env.config(fetchUser(testUser{Name: "Remote"})), instant()...)
	require.NoError(t, err)

	sub := m.Run(context.Background())
	defer sub.Close()

	require.Equal(t, Loading[testUser](nil), next(t, sub))
	require.Equal(t, Success(&existing), next(t, sub))

	// later cache changes keep flowing as success
	changed := testUser{Login: testKey, Name: "Changed"}
	require.NoError(t, env.store.Write(context.Background(), testKey, &changed))
	require.Equal(t, Success(&changed), next(t, sub))

	require.Equal(t, int32(0), env.fetchCalls.Load(), "fetch must not be called when the cache is trusted")
}

func TestMediator_FetchFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	var failed atomic.Value

	cfg := env.config(func(context.Context) (testUser, error) {
		return testUser{}, &APIError{StatusCode: 404, Message: "not found"}
	})
	cfg.OnFetchFailed = func(_ context.Context, err error) {
		failed.Store(err)
	}

	m, err := New(cfg, instant()...)
	require.NoError(t, err)

	sub := m.Run(context.Background())
	defer sub.Close()

	require.Equal(t, Loading[testUser](nil), next(t, sub))
	require.Equal(t, Error[testUser]("not found", nil), next(t, sub))
	require.Equal(t, int32(1), env.fetchCalls.Load())
	require.Equal(t, int32(0), env.saveCalls.Load())

	var apiErr *APIError
	require.ErrorAs(t, failed.Load().(error), &apiErr)
	require.Equal(t, 404, apiErr.StatusCode)
}

func TestMediator_FetchFailureKeepsCachedValue(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	stale := testUser{Login: testKey, Name: "Stale"}
	require.NoError(t, env.store.Write(context.Background(), testKey, &stale))

	cfg := env.config(func(context.Context) (testUser, error) {
		return testUser{}, errors.New("boom")
	})
	cfg.ShouldFetch = func(*testUser) bool { return true }

	m, err := New(cfg, instant()...)
	require.NoError(t, err)

	sub := m.Run(context.Background())
	defer sub.Close()

	require.Equal(t, Loading[testUser](nil), next(t, sub))
	require.Equal(t, Loading(&stale), next(t, sub))
	require.Equal(t, Error("boom", &stale), next(t, sub))
}

func TestMediator_ResultRoundTripsThroughCache(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	payload := testUser{Login: testKey, Name: "payload"}

	cfg := env.config(fetchUser(payload))
	cfg.MapFetchResult = func(u testUser) testUser {
		u.Name += " mapped"
		return u
	}
	cfg.Save = func(ctx context.Context, u testUser) error {
		u.Name += " saved"
		return env.store.Write(ctx, testKey, &u)
	}

	m, err := New(cfg, instant()...)
	require.NoError(t, err)

	sub := m.Run(context.Background())
	defer sub.Close()

	res, err := sub.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, Success(&testUser{Login: testKey, Name: "payload mapped saved"}), res)
}

func TestMediator_LoadingForwardsCacheChanges(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	old := testUser{Login: testKey, Name: "old"}
	require.NoError(t, env.store.Write(ctx, testKey, &old))

	release := make(chan struct{})
	fresh := testUser{Login: testKey, Name: "fresh"}

	cfg := env.config(func(context.Context) (testUser, error) {
		<-release
		return fresh, nil
	})
	cfg.ShouldFetch = func(*testUser) bool { return true }

	m, err := New(cfg, WithDiskExecutor(NewInstantExecutor()))
	require.NoError(t, err)

	sub := m.Run(ctx)
	defer sub.Close()

	require.Equal(t, Loading[testUser](nil), next(t, sub))
	require.Equal(t, Loading(&old), next(t, sub))

	newer := testUser{Login: testKey, Name: "newer"}
	require.NoError(t, env.store.Write(ctx, testKey, &newer))
	require.Equal(t, Loading(&newer), next(t, sub))

	close(release)
	require.Equal(t, Success(&fresh), next(t, sub))
	require.Equal(t, int32(1), env.fetchCalls.Load())
}

func TestMediator_EmptyResponse(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	m, err := New(env.config(func(context.Context) (testUser, error) {
		return testUser{}, ErrEmptyResponse
	}), instant()...)
	require.NoError(t, err)

	sub := m.Run(context.Background())
	defer sub.Close()

	require.Equal(t, Loading[testUser](nil), next(t, sub))
	require.Equal(t, Success[testUser](nil), next(t, sub))
	require.Equal(t, int32(0), env.saveCalls.Load(), "empty response must not be saved")
}

func TestMediator_SaveFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	cfg := env.config(fetchUser(testUser{Login: testKey}))
	cfg.Save = func(context.Context, testUser) error {
		return errors.New("disk full")
	}

	m, err := New(cfg, instant()...)
	require.NoError(t, err)

	sub := m.Run(context.Background())
	defer sub.Close()

	res, err := sub.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, Error[testUser]("disk full", nil), res)
}

func TestMediator_ReadCacheFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	cfg := env.config(fetchUser(testUser{}))
	cfg.ReadCache = func(context.Context) (<-chan *testUser, error) {
		return nil, errors.New("db locked")
	}

	m, err := New(cfg, instant()...)
	require.NoError(t, err)

	sub := m.Run(context.Background())
	defer sub.Close()

	require.Equal(t, Loading[testUser](nil), next(t, sub))
	require.Equal(t, Error[testUser]("db locked", nil), next(t, sub))
	require.Equal(t, int32(0), env.fetchCalls.Load())
}

func TestMediator_CacheClosedBeforeFirstValue(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	cfg := env.config(fetchUser(testUser{}))
	cfg.ReadCache = func(context.Context) (<-chan *testUser, error) {
		ch := make(chan *testUser)
		close(ch)
		return ch, nil
	}

	m, err := New(cfg, instant()...)
	require.NoError(t, err)

	sub := m.Run(context.Background())
	defer sub.Close()

	require.Equal(t, Loading[testUser](nil), next(t, sub))
	require.Equal(t, Error[testUser](ErrCacheClosed.Error(), nil), next(t, sub))

	_, ok := <-sub.Updates()
	require.False(t, ok, "updates should be closed once nothing can be emitted")
}

func TestMediator_CloseCancelsFetch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	started := make(chan struct{})
	cancelled := make(chan error, 1)

	m, err := New(env.config(func(ctx context.Context) (testUser, error) {
		close(started)
		<-ctx.Done()
		cancelled <- ctx.Err()
		return testUser{}, ctx.Err()
	}))
	require.NoError(t, err)

	sub := m.Run(context.Background())
	require.Equal(t, Loading[testUser](nil), next(t, sub))
	<-started

	sub.Close()

	select {
	case err := <-cancelled:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not cancelled")
	}

	_, ok := <-sub.Updates()
	require.False(t, ok)
	require.Equal(t, int32(0), env.saveCalls.Load())

	// Close is idempotent
	sub.Close()
}

func TestMediator_RetryRunsAgain(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	user := testUser{Login: testKey, Name: "Foo"}

	var fail atomic.Bool
	fail.Store(true)

	m, err := New(env.config(func(context.Context) (testUser, error) {
		if fail.Load() {
			return testUser{}, errors.New("offline")
		}
		return user, nil
	}), instant()...)
	require.NoError(t, err)

	sub := m.Run(context.Background())
	res, err := sub.Wait(context.Background())
	sub.Close()
	require.NoError(t, err)
	require.Equal(t, Error[testUser]("offline", nil), res)
	require.Equal(t, int32(1), env.fetchCalls.Load(), "no automatic retry")

	fail.Store(false)

	sub = m.Run(context.Background())
	res, err = sub.Wait(context.Background())
	sub.Close()
	require.NoError(t, err)
	require.Equal(t, Success(&user), res)
	require.Equal(t, int32(2), env.fetchCalls.Load())
}

func TestMediator_Idempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	existing := testUser{Login: testKey, Name: "Cached"}
	require.NoError(t, env.store.Write(context.Background(), testKey, &existing))

	m, err := New(env.config(fetchUser(testUser{})))
	require.NoError(t, err)

	for range 5 {
		sub := m.Run(context.Background())
		res, err := sub.Wait(context.Background())
		sub.Close()

		require.NoError(t, err)
		require.Equal(t, Success(&existing), res)
	}

	require.Equal(t, int32(0), env.fetchCalls.Load())
}

func TestMediator_HitRatio(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	logger := &mockLogger{}

	m, err := New(env.config(fetchUser(testUser{Login: testKey})), append(instant(), WithLogger("users", logger))...)
	require.NoError(t, err)

	// miss: cache is empty, fetch succeeds
	sub := m.Run(context.Background())
	_, err = sub.Wait(context.Background())
	sub.Close()
	require.NoError(t, err)
	require.Equal(t, logCounts{name: "users", cacheMiss: 1, fetchOK: 1}, logger.snapshot())

	// hit: the saved value is trusted
	sub = m.Run(context.Background())
	_, err = sub.Wait(context.Background())
	sub.Close()
	require.NoError(t, err)
	require.Equal(t, logCounts{name: "users", cacheHit: 1, cacheMiss: 1, fetchOK: 1}, logger.snapshot())
}

func TestSubscription_WaitContext(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	m, err := New(env.config(func(ctx context.Context) (testUser, error) {
		<-ctx.Done()
		return testUser{}, ctx.Err()
	}))
	require.NoError(t, err)

	sub := m.Run(context.Background())
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = sub.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAsyncMediator(t *testing.T) {
	t.Parallel()

	const nParallel = 50

	var (
		errGroup errgroup.Group
		env      = newTestEnv(t)
		user     = testUser{Login: testKey, Name: "Foo"}
	)

	m, err := New(env.config(fetchUser(user)))
	require.NoError(t, err)

	// Ensure that concurrent runs are independent and all converge on the cached value
	for range nParallel {
		errGroup.Go(func() error {
			sub := m.Run(context.Background())
			defer sub.Close()

			res, err := sub.Wait(context.Background())
			if err != nil {
				return err
			}

			if res.Status != StatusSuccess || res.Data == nil || *res.Data != user {
				return errors.New("unexpected terminal state: " + res.Status.String())
			}

			return nil
		})
	}

	require.NoError(t, errGroup.Wait())

	calls := env.fetchCalls.Load()
	require.GreaterOrEqual(t, calls, int32(1))
	require.LessOrEqual(t, calls, int32(nParallel))
}

func TestMediator_EmptyCachePolicy(t *testing.T) {
	t.Parallel()

	user := testUser{Login: testKey, Name: "Remote"}

	tests := []struct {
		name        string
		shouldFetch func(*testUser) bool
		want        Resource[testUser]
		wantFetches int32
	}{
		{
			name:        "trusted empty cache",
			shouldFetch: func(*testUser) bool { return false },
			want:        Success[testUser](nil),
			wantFetches: 0,
		},
		{
			name:        "empty cache fetched",
			shouldFetch: func(u *testUser) bool { return u == nil },
			want:        Success(&user),
			wantFetches: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)

			cfg := env.config(fetchUser(user))
			cfg.ShouldFetch = tt.shouldFetch

			m, err := New(cfg, instant()...)
			require.NoError(t, err)

			sub := m.Run(context.Background())
			defer sub.Close()

			require.Equal(t, Loading[testUser](nil), next(t, sub))
			require.Equal(t, tt.want, next(t, sub))
			require.Equal(t, tt.wantFetches, env.fetchCalls.Load())
		})
	}
}
