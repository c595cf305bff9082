//
// Copyright 2023 Bytedance Ltd. and/or its affiliates
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyhooked/ordercore"
)

func newServer(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	srv := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	return srv, cli
}

func TestRedisLock(t *testing.T) {
	ctx := context.Background()
	srv, cli := newServer(t)
	lock := NewRedisLock(cli, time.Second, WithPrefix("test:"), WithRetryStrategy(redislock.NoRetry()))

	l, err := lock.Lock(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, srv.Exists("test:abc"))
	_, err = lock.Lock(ctx, "abc")
	assert.ErrorIs(t, err, ordercore.ErrLocked)
	require.NoError(t, lock.UnLock(ctx, l))
	assert.False(t, srv.Exists("test:abc"))

	// 过期后可以被重新获取
	_, err = lock.Lock(ctx, "ttl")
	require.NoError(t, err)
	srv.FastForward(2 * time.Second)
	_, err = lock.Lock(ctx, "ttl")
	assert.NoError(t, err)

	assert.Error(t, lock.UnLock(ctx, "not a lock"))
}

func TestRedisLockRun(t *testing.T) {
	ctx := context.Background()
	srv, cli := newServer(t)
	lock := NewRedisLock(cli, time.Second,
		WithPrefix("test:"),
		WithRetryStrategy(redislock.NoRetry()),
		WithRenewInterval(20*time.Millisecond),
	)

	err := lock.Run(ctx, "abc", func(ctx context.Context) error {
		_, err := lock.Lock(ctx, "abc")
		assert.ErrorIs(t, err, ordercore.ErrLocked)
		// 续期会把 ttl 拉回到完整时长
		srv.FastForward(900 * time.Millisecond)
		assert.Eventually(t, func() bool {
			return srv.TTL("test:abc") > 500*time.Millisecond
		}, time.Second, 10*time.Millisecond)
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, srv.Exists("test:abc"))

	// 锁丢失后取消 fn 的 ctx
	err = lock.Run(ctx, "lost", func(ctx context.Context) error {
		srv.Del("test:lost")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
}
