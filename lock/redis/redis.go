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
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/skyhooked/ordercore"
	"github.com/skyhooked/ordercore/logger/stdr"
)

var defaultLogger = stdr.NewStdr("redis_lock")

type Options struct {
	Prefix        string
	RetryStrategy redislock.RetryStrategy
	RenewInterval time.Duration
	Logger        logr.Logger
}

type Option func(opt *Options)

func WithPrefix(prefix string) Option {
	return func(opt *Options) {
		opt.Prefix = prefix
	}
}

func WithRetryStrategy(s redislock.RetryStrategy) Option {
	return func(opt *Options) {
		opt.RetryStrategy = s
	}
}

// WithRenewInterval Run 期间的续期间隔，默认 ttl/3
func WithRenewInterval(d time.Duration) Option {
	return func(opt *Options) {
		opt.RenewInterval = d
	}
}

func WithLogger(l logr.Logger) Option {
	return func(opt *Options) {
		opt.Logger = l
	}
}

type RedisLock struct {
	ttl    time.Duration
	cli    *redislock.Client
	logger logr.Logger
	opt    Options
}

func NewRedisLock(cli redis.UniversalClient, ttl time.Duration, options ...Option) *RedisLock {
	opt := Options{
		Prefix: "ordercore:lock:",
		// 默认固定间隔重试，最多 30 次
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 30),
		RenewInterval: ttl / 3,
		Logger:        defaultLogger,
	}
	for _, o := range options {
		o(&opt)
	}
	return &RedisLock{cli: redislock.New(cli), ttl: ttl, logger: opt.Logger, opt: opt}
}

func (r *RedisLock) Lock(ctx context.Context, key string) (keyLock interface{}, err error) {
	l, err := r.cli.Obtain(ctx, r.opt.Prefix+key, r.ttl, &redislock.Options{RetryStrategy: r.opt.RetryStrategy})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ordercore.ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return l, nil
}

func (r *RedisLock) UnLock(ctx context.Context, keyLock interface{}) error {
	l, ok := keyLock.(*redislock.Lock)
	if !ok {
		return fmt.Errorf("unexpected lock type %T", keyLock)
	}
	return l.Release(ctx)
}

// Run 持有锁执行 fn，期间定时 Refresh；续期失败会取消 fn 的 ctx
func (r *RedisLock) Run(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	keyLock, err := r.Lock(ctx, key)
	if err != nil {
		return err
	}
	l := keyLock.(*redislock.Lock)
	defer func() {
		if err := l.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.logger.Error(err, "failed to release lock", "key", key)
		}
	}()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.opt.RenewInterval > 0 {
		go func() {
			ticker := time.NewTicker(r.opt.RenewInterval)
			defer ticker.Stop()
			for {
				select {
				case <-subCtx.Done():
					return
				case <-ticker.C:
					if err := l.Refresh(ctx, r.ttl, nil); err != nil {
						r.logger.Info("lock refresh failed, cancelling", "key", key, "err", err.Error())
						cancel()
						return
					}
				}
			}
		}()
	}
	return fn(subCtx)
}
