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

package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/skyhooked/ordercore/coupon"
	"github.com/skyhooked/ordercore/logger/stdr"
)

var defaultLogger = stdr.NewStdr("coupon_cache")

type Options struct {
	Prefix string
	TTL    time.Duration
	Logger logr.Logger
}

type Option func(opt *Options)

func WithPrefix(prefix string) Option {
	return func(opt *Options) {
		opt.Prefix = prefix
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(opt *Options) {
		opt.TTL = ttl
	}
}

func WithLogger(l logr.Logger) Option {
	return func(opt *Options) {
		opt.Logger = l
	}
}

// CouponCache 券查询的读缓存，redis 不可用时退化为直接查库
type CouponCache struct {
	cli    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger logr.Logger
}

func New(cli redis.UniversalClient, options ...Option) *CouponCache {
	opt := Options{
		Prefix: "ordercore:coupon:",
		TTL:    time.Minute,
		Logger: defaultLogger,
	}
	for _, o := range options {
		o(&opt)
	}
	return &CouponCache{cli: cli, prefix: opt.Prefix, ttl: opt.TTL, logger: opt.Logger}
}

func (c *CouponCache) key(code string) string {
	return c.prefix + coupon.NormalizeCode(code)
}

func (c *CouponCache) Get(ctx context.Context, code string) (*coupon.Coupon, bool) {
	data, err := c.cli.Get(ctx, c.key(code)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Error(err, "cache get failed", "code", code)
		}
		return nil, false
	}
	cp := &coupon.Coupon{}
	if err := json.Unmarshal(data, cp); err != nil {
		c.logger.Error(err, "cache decode failed", "code", code)
		return nil, false
	}
	return cp, true
}

func (c *CouponCache) Set(ctx context.Context, cp *coupon.Coupon) {
	data, err := json.Marshal(cp)
	if err != nil {
		c.logger.Error(err, "cache encode failed", "code", cp.Code)
		return
	}
	if err := c.cli.Set(ctx, c.key(cp.Code), data, c.ttl).Err(); err != nil {
		c.logger.Error(err, "cache set failed", "code", cp.Code)
	}
}

func (c *CouponCache) Delete(ctx context.Context, code string) {
	if err := c.cli.Del(ctx, c.key(code)).Err(); err != nil {
		c.logger.Error(err, "cache delete failed", "code", code)
	}
}
