/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"
)

func TestRedisFixedWindowLimiter_Allow(t *testing.T) {
	clock := newManualClock()
	windowMs := DefaultWindow.Milliseconds()

	t.Run("first request opens window", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		limiter, err := NewRedisFixedWindowLimiter(client, DefaultLimits(), WithRedisClock(clock))
		require.NoError(t, err)

		mock.ExpectEvalSha(fixedWindowScript.Hash(), []string{DefaultRedisKeyPrefix + "1.2.3.4|general"},
			int64(DefaultGeneralLimit), windowMs).SetVal([]interface{}{int64(1), int64(1), windowMs})

		d, err := limiter.Allow(context.Background(), MakeClientKey("1.2.3.4", RouteCategoryGeneral), RouteCategoryGeneral)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 1, d.Count)
		require.Equal(t, DefaultGeneralLimit-1, d.Remaining())
		require.Equal(t, clock.Now().Add(DefaultWindow), d.ResetAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejected request", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		limiter, err := NewRedisFixedWindowLimiter(client, DefaultLimits(),
			WithRedisClock(clock), WithRedisKeyPrefix("test:"))
		require.NoError(t, err)

		mock.ExpectEvalSha(fixedWindowScript.Hash(), []string{"test:1.2.3.4|sensitive"},
			int64(DefaultSensitiveLimit), windowMs).SetVal([]interface{}{int64(0), int64(10), int64(12500)})

		d, err := limiter.Allow(context.Background(), MakeClientKey("1.2.3.4", RouteCategorySensitive), RouteCategorySensitive)
		require.NoError(t, err)
		require.False(t, d.Allowed)
		require.Equal(t, 10, d.Count)
		require.Equal(t, 0, d.Remaining())
		require.Equal(t, 12500*time.Millisecond, d.RetryAfter)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		limiter, err := NewRedisFixedWindowLimiter(client, DefaultLimits())
		require.NoError(t, err)

		mock.ExpectEvalSha(fixedWindowScript.Hash(), []string{DefaultRedisKeyPrefix + "1.2.3.4|general"},
			int64(DefaultGeneralLimit), windowMs).SetErr(errors.New("connection refused"))

		_, err = limiter.Allow(context.Background(), MakeClientKey("1.2.3.4", RouteCategoryGeneral), RouteCategoryGeneral)
		require.ErrorContains(t, err, "connection refused")
	})

	t.Run("invalid input", func(t *testing.T) {
		client, _ := redismock.NewClientMock()
		limiter, err := NewRedisFixedWindowLimiter(client, DefaultLimits())
		require.NoError(t, err)

		_, err = limiter.Allow(context.Background(), "", RouteCategoryGeneral)
		require.ErrorIs(t, err, ErrEmptyClientKey)
		_, err = limiter.Allow(context.Background(), "key", "other")
		require.ErrorIs(t, err, ErrUnknownRouteCategory)
		require.Equal(t, 0, limiter.Sweep(time.Now()))
	})
}

func TestNewRedisFixedWindowLimiter_InvalidWindow(t *testing.T) {
	client, _ := redismock.NewClientMock()
	_, err := NewRedisFixedWindowLimiter(client, Limits{Window: time.Microsecond, General: 1, Sensitive: 1, CleanupInterval: time.Minute})
	require.ErrorContains(t, err, "at least 1ms")
}

// RedisFixedWindowScriptTestSuite runs the limiter script on an in-process Redis server.
type RedisFixedWindowScriptTestSuite struct {
	suite.Suite
	server  *miniredis.Miniredis
	client  *redis.Client
	limiter *RedisFixedWindowLimiter
}

func TestRedisFixedWindowScript(t *testing.T) {
	suite.Run(t, new(RedisFixedWindowScriptTestSuite))
}

func (ts *RedisFixedWindowScriptTestSuite) SetupTest() {
	ts.server = miniredis.RunT(ts.T())
	ts.client = redis.NewClient(&redis.Options{Addr: ts.server.Addr()})
	var err error
	ts.limiter, err = NewRedisFixedWindowLimiter(ts.client, DefaultLimits())
	ts.Require().NoError(err)
}

func (ts *RedisFixedWindowScriptTestSuite) TearDownTest() {
	ts.Require().NoError(ts.client.Close())
}

func (ts *RedisFixedWindowScriptTestSuite) allow(identity string, category RouteCategory) Decision {
	d, err := ts.limiter.Allow(context.Background(), MakeClientKey(identity, category), category)
	ts.Require().NoError(err)
	return d
}

func (ts *RedisFixedWindowScriptTestSuite) counter(identity string, category RouteCategory) string {
	val, err := ts.server.Get(DefaultRedisKeyPrefix + MakeClientKey(identity, category))
	ts.Require().NoError(err)
	return val
}

func (ts *RedisFixedWindowScriptTestSuite) TestFirstRequestOpensWindow() {
	d := ts.allow("1.2.3.4", RouteCategoryGeneral)
	ts.True(d.Allowed)
	ts.Equal(1, d.Count)
	ts.Equal("1", ts.counter("1.2.3.4", RouteCategoryGeneral))
	ts.Equal(DefaultWindow, ts.server.TTL(DefaultRedisKeyPrefix+MakeClientKey("1.2.3.4", RouteCategoryGeneral)))
}

func (ts *RedisFixedWindowScriptTestSuite) TestRejectAfterLimit() {
	for i := 1; i <= DefaultSensitiveLimit; i++ {
		d := ts.allow("1.2.3.4", RouteCategorySensitive)
		ts.Require().True(d.Allowed, "request %d", i)
		ts.Require().Equal(i, d.Count)
	}

	ts.server.FastForward(20 * time.Second)
	d := ts.allow("1.2.3.4", RouteCategorySensitive)
	ts.False(d.Allowed)
	ts.Equal(DefaultSensitiveLimit, d.Count)
	ts.Equal(DefaultWindow-20*time.Second, d.RetryAfter)

	ts.False(ts.allow("1.2.3.4", RouteCategorySensitive).Allowed)
	ts.Equal("10", ts.counter("1.2.3.4", RouteCategorySensitive))
}

func (ts *RedisFixedWindowScriptTestSuite) TestWindowReset() {
	for i := 0; i < DefaultSensitiveLimit; i++ {
		ts.allow("1.2.3.4", RouteCategorySensitive)
	}
	ts.Require().False(ts.allow("1.2.3.4", RouteCategorySensitive).Allowed)

	ts.server.FastForward(DefaultWindow)
	d := ts.allow("1.2.3.4", RouteCategorySensitive)
	ts.True(d.Allowed)
	ts.Equal(1, d.Count)
	ts.Equal("1", ts.counter("1.2.3.4", RouteCategorySensitive))
}

func (ts *RedisFixedWindowScriptTestSuite) TestIndependentBuckets() {
	for i := 0; i < DefaultSensitiveLimit; i++ {
		ts.allow("1.2.3.4", RouteCategorySensitive)
	}
	ts.Require().False(ts.allow("1.2.3.4", RouteCategorySensitive).Allowed)

	ts.True(ts.allow("1.2.3.4", RouteCategoryGeneral).Allowed)
	ts.True(ts.allow("5.6.7.8", RouteCategorySensitive).Allowed)
}

func (ts *RedisFixedWindowScriptTestSuite) TestConcurrent() {
	const extra = 15
	var admitted, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < DefaultGeneralLimit+extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := ts.limiter.Allow(context.Background(), MakeClientKey("1.2.3.4", RouteCategoryGeneral), RouteCategoryGeneral)
			if err != nil {
				return
			}
			if d.Allowed {
				admitted.Inc()
			} else {
				rejected.Inc()
			}
		}()
	}
	wg.Wait()

	ts.EqualValues(DefaultGeneralLimit, admitted.Load())
	ts.EqualValues(extra, rejected.Load())
	ts.Equal("50", ts.counter("1.2.3.4", RouteCategoryGeneral))
}
