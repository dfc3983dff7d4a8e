package lock_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/bazaar-labs/bazaar-api/internal/lock"
)

func testLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}
}

func TestWithLockSerializesCheckoutsForSameUser(t *testing.T) {
	locker := testLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const key = "checkout:user-42"
	var inFlight, overlaps int32
	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			done <- locker.WithLock(ctx, key, time.Second, func(context.Context) error {
				if atomic.AddInt32(&inFlight, 1) > 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-done)
	}
	require.Zero(t, atomic.LoadInt32(&overlaps), "checkouts for one user must not overlap")
}

func TestWithLockIndependentUsersDoNotBlock(t *testing.T) {
	locker := testLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locker.WithLock(ctx, "checkout:user-a", time.Second, func(context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding
	defer close(release)

	// A different user's key is free while user-a holds theirs.
	err := locker.WithLock(ctx, "checkout:user-b", time.Second, func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestWithLockGivesUpWhenContextExpires(t *testing.T) {
	locker := testLocker(t)

	hold, cancelHold := context.WithCancel(context.Background())
	defer cancelHold()
	holding := make(chan struct{})
	go func() {
		_ = locker.WithLock(hold, "checkout:user-7", time.Minute, func(context.Context) error {
			close(holding)
			<-hold.Done()
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, "checkout:user-7", time.Minute, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithLockReleasedAfterCallbackError(t *testing.T) {
	locker := testLocker(t)
	ctx := context.Background()

	wantErr := errors.New("insufficient stock")
	err := locker.WithLock(ctx, "checkout:user-9", time.Second, func(context.Context) error { return wantErr })
	require.ErrorIs(t, err, wantErr)

	// The failed attempt must not leave the lease behind.
	reacquired := false
	require.NoError(t, locker.WithLock(ctx, "checkout:user-9", time.Second, func(context.Context) error {
		reacquired = true
		return nil
	}))
	require.True(t, reacquired)
}
