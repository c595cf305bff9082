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

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-logr/logr"
	"github.com/rs/xid"
	"gorm.io/gorm"

	"github.com/skyhooked/ordercore"
	"github.com/skyhooked/ordercore/logger/stdr"
)

var defaultLogger = stdr.NewStdr("db_lock")

const (
	// 续期间隔必须小于 ttl
	renewInterval = 1 * time.Second
)

type Options struct {
	RenewInterval time.Duration
	Retry         bool
	Attempts      uint
	Delay         time.Duration
	Logger        logr.Logger
}

type Option func(opt *Options)

func WithoutRetry() Option {
	return func(opt *Options) {
		opt.Retry = false
	}
}

func WithRetry(attempts uint, delay time.Duration) Option {
	return func(opt *Options) {
		opt.Retry = true
		opt.Attempts = attempts
		opt.Delay = delay
	}
}

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

// DBLock 基于唯一索引的分布式锁，用于后台单例任务和同一交易的串行处理
type DBLock struct {
	ttl    time.Duration
	db     *gorm.DB
	logger logr.Logger
	opt    Options
}

func NewDBLock(db *gorm.DB, ttl time.Duration, options ...Option) *DBLock {
	opt := Options{
		RenewInterval: renewInterval,
		Retry:         true,
		Attempts:      5,
		Delay:         100 * time.Millisecond,
		Logger:        defaultLogger,
	}
	for _, o := range options {
		o(&opt)
	}
	if ttl < opt.RenewInterval {
		panic(fmt.Sprintf("ttl can not less than %f seconds", opt.RenewInterval.Seconds()))
	}
	return &DBLock{db: db, ttl: ttl, logger: opt.Logger, opt: opt}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&LockRecord{})
}

func (r *DBLock) Lock(ctx context.Context, key string) (keyLock interface{}, err error) {
	if !r.opt.Retry {
		return r.acquire(ctx, key)
	}
	err = retry.Do(
		func() error {
			keyLock, err = r.acquire(ctx, key)
			return err
		},
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ordercore.ErrLocked)
		}),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(r.opt.Delay),
		retry.Attempts(r.opt.Attempts),
		retry.LastErrorOnly(true),
	)
	return
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}

func (r *DBLock) acquire(ctx context.Context, key string) (*LockRecord, error) {
	owner := xid.New().String()
	now := time.Now()
	var rec LockRecord
	err := r.db.WithContext(ctx).Where("resource = ?", key).First(&rec).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to get lock %s: %w", key, err)
		}
		l := &LockRecord{Resource: key, Owner: owner, ExpiresAt: now.Add(r.ttl)}
		if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
			if isDuplicate(err) {
				return nil, ordercore.ErrLocked
			}
			return nil, fmt.Errorf("failed to create lock %s: %w", key, err)
		}
		return l, nil
	}
	if now.Before(rec.ExpiresAt) {
		return nil, ordercore.ErrLocked
	}
	// 锁已过期，按原持有者做条件更新，抢占失败视为已被他人持有
	res := r.db.WithContext(ctx).Model(&LockRecord{}).
		Where("resource = ? AND owner = ?", key, rec.Owner).
		Updates(map[string]interface{}{"owner": owner, "expires_at": now.Add(r.ttl), "updated_at": now})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to take over lock %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ordercore.ErrLocked
	}
	rec.Owner = owner
	rec.ExpiresAt = now.Add(r.ttl)
	return &rec, nil
}

func (r *DBLock) UnLock(ctx context.Context, keyLock interface{}) error {
	l, ok := keyLock.(*LockRecord)
	if !ok {
		return fmt.Errorf("unexpected lock type %T", keyLock)
	}
	res := r.db.WithContext(ctx).Where("resource = ? AND owner = ?", l.Resource, l.Owner).Delete(&LockRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected <= 0 {
		return fmt.Errorf("lock %s no longer held by %s", l.Resource, l.Owner)
	}
	return nil
}

func (r *DBLock) renew(ctx context.Context, l *LockRecord) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&LockRecord{}).
		Where("resource = ? AND owner = ?", l.Resource, l.Owner).
		Updates(map[string]interface{}{"expires_at": now.Add(r.ttl), "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("failed to renew lock %s: %w", l.Resource, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("lock %s taken by others", l.Resource)
	}
	return nil
}

// Run 持有锁执行 fn，期间定时续期；续期失败会取消 fn 的 ctx
func (r *DBLock) Run(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	keyLock, err := r.Lock(ctx, key)
	if err != nil {
		return err
	}
	l := keyLock.(*LockRecord)
	defer func() {
		if err := r.UnLock(ctx, l); err != nil {
			r.logger.Error(err, "failed to unlock", "key", key)
		}
	}()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(r.opt.RenewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
				if err := r.renew(ctx, l); err != nil {
					r.logger.Info("lock renew failed, cancelling", "key", key, "err", err.Error())
					cancel()
					return
				}
			}
		}
	}()
	return fn(subCtx)
}
