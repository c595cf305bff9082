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

package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-logr/logr"
	"github.com/robfig/cron"
	"gorm.io/gorm"

	"github.com/skyhooked/ordercore"
	"github.com/skyhooked/ordercore/logger/stdr"
	"github.com/skyhooked/ordercore/metrics"
	"github.com/skyhooked/ordercore/notify"
	"github.com/skyhooked/ordercore/order"
)

const retryInterval = time.Second * 3
const retryLimit = 5
const runInterval = time.Millisecond * 500

// 每天凌晨三点执行清理，秒级表达式
const cleanCron = "0 0 3 * * *"

// 投递成功的通知保留一段时间以便追查问题
const retentionTime = 48 * time.Hour
const limitPerRun = 100
const maxErrorLen = 512

// 多实例部署时只有一个实例在投递
const relayLockKey = "notification-outbox-relay"

var ErrMessageNotFound = errors.New("dead letter not found")

var defaultLogger = stdr.NewStdr("outbox")

type Options struct {
	// 重试策略：RetryStrategy 优先，其次 CustomRetry，最后 RetryInterval + RetryLimit
	RetryLimit    int
	RetryInterval time.Duration
	CustomRetry   []time.Duration
	RetryStrategy IRetryStrategy

	RunInterval   time.Duration
	CleanCron     string
	RetentionTime time.Duration
	LimitPerRun   int
	Lock          ordercore.ILock
	Metrics       *metrics.Registry
	Logger        logr.Logger
}

type Option func(opt *Options)

func WithRetry(interval time.Duration, limit int) Option {
	return func(opt *Options) {
		opt.RetryInterval = interval
		opt.RetryLimit = limit
	}
}

func WithCustomRetry(intervals ...time.Duration) Option {
	return func(opt *Options) {
		opt.CustomRetry = intervals
	}
}

func WithRetryStrategy(s IRetryStrategy) Option {
	return func(opt *Options) {
		opt.RetryStrategy = s
	}
}

func WithRunInterval(d time.Duration) Option {
	return func(opt *Options) {
		opt.RunInterval = d
	}
}

func WithCleanCron(spec string) Option {
	return func(opt *Options) {
		opt.CleanCron = spec
	}
}

func WithRetentionTime(d time.Duration) Option {
	return func(opt *Options) {
		opt.RetentionTime = d
	}
}

func WithLimitPerRun(n int) Option {
	return func(opt *Options) {
		opt.LimitPerRun = n
	}
}

// WithLock 多实例部署时必须设置分布式锁
func WithLock(l ordercore.ILock) Option {
	return func(opt *Options) {
		opt.Lock = l
	}
}

func WithMetrics(r *metrics.Registry) Option {
	return func(opt *Options) {
		opt.Metrics = r
	}
}

func WithLogger(l logr.Logger) Option {
	return func(opt *Options) {
		opt.Logger = l
	}
}

// Outbox 通知先落库，再由后台任务投递到 sink，失败按策略重试，重试耗尽转为死信
// 用法：ob := NewOutbox(db, sink); ordercore.NewReconciler(repo, ordercore.WithDispatcher(ob)); ob.Start(ctx)
type Outbox struct {
	db            *gorm.DB
	sink          notify.Sink
	logger        logr.Logger
	opt           Options
	retryStrategy IRetryStrategy
	cleanCron     *cron.Cron
	once          sync.Once
	done          chan struct{}
}

func NewOutbox(db *gorm.DB, sink notify.Sink, options ...Option) *Outbox {
	opt := Options{
		RunInterval:   runInterval,
		CleanCron:     cleanCron,
		RetentionTime: retentionTime,
		LimitPerRun:   limitPerRun,
		Logger:        defaultLogger,
	}
	for _, o := range options {
		o(&opt)
	}
	if _, err := cron.Parse(opt.CleanCron); err != nil {
		panic(fmt.Sprintf("cron expression %s is invalid", opt.CleanCron))
	}
	if opt.RetentionTime < 0 {
		panic(fmt.Sprintf("retentionTime %v can not be negative", opt.RetentionTime))
	}
	var strategy IRetryStrategy
	if opt.RetryStrategy != nil {
		strategy = opt.RetryStrategy
	} else if len(opt.CustomRetry) > 0 {
		strategy = &CustomRetry{Intervals: opt.CustomRetry}
	} else if opt.RetryInterval > 0 || opt.RetryLimit > 0 {
		strategy = &IntervalRetry{Interval: opt.RetryInterval, Limit: opt.RetryLimit}
	} else {
		strategy = &IntervalRetry{Interval: retryInterval, Limit: retryLimit}
	}
	return &Outbox{
		db:            db,
		sink:          sink,
		logger:        opt.Logger,
		opt:           opt,
		retryStrategy: strategy,
		cleanCron:     cron.New(),
		done:          make(chan struct{}),
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&MessagePO{})
}

// Send 实现 ordercore.Dispatcher，只负责落库
func (o *Outbox) Send(ctx context.Context, kind order.NotificationKind, ord *order.Order, extra map[string]string) error {
	msg := notify.NewMessage(kind, ord, extra)
	if err := o.db.WithContext(ctx).Create(messagePersist(msg)).Error; err != nil {
		return fmt.Errorf("save notification %s: %w", msg.ID, err)
	}
	return nil
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxErrorLen {
		return s
	}
	return string([]rune(s)[:maxErrorLen])
}

// RelayOnce 投递一批到期的通知，返回成功条数
func (o *Outbox) RelayOnce(ctx context.Context) (int, error) {
	var pos []*MessagePO
	err := o.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", StatusPending, time.Now()).
		Order("id").Limit(o.opt.LimitPerRun).Find(&pos).Error
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, po := range pos {
		updates := map[string]interface{}{}
		if err := o.sink.Deliver(ctx, po.Message); err == nil {
			updates["status"] = StatusSent
			updates["last_error"] = ""
			delivered++
			o.opt.Metrics.IncOutboxDelivered()
		} else if next := o.retryStrategy.Next(&RetryInfo{RetryCount: po.RetryCount, RetryTime: po.NextRetryAt}); next != nil {
			updates["retry_count"] = next.RetryCount
			updates["next_retry_at"] = next.RetryTime
			updates["last_error"] = truncate(err.Error())
			o.logger.V(1).Info("notification delivery failed, will retry",
				"id", po.MessageID, "retry", next.RetryCount, "err", err.Error())
		} else {
			updates["status"] = StatusDead
			updates["last_error"] = truncate(err.Error())
			o.opt.Metrics.IncOutboxDeadLetter()
			o.logger.Error(err, "notification moved to dead letter", "id", po.MessageID, "kind", po.Kind, "order", po.OrderID)
		}
		err := o.db.WithContext(ctx).Model(&MessagePO{}).
			Where("id = ? AND status = ?", po.ID, StatusPending).
			Updates(updates).Error
		if err != nil {
			return delivered, fmt.Errorf("update notification %s: %w", po.MessageID, err)
		}
	}

	if o.opt.Metrics != nil {
		var pending int64
		if err := o.db.WithContext(ctx).Model(&MessagePO{}).Where("status = ?", StatusPending).Count(&pending).Error; err == nil {
			o.opt.Metrics.SetOutboxPending(int(pending))
		}
	}
	return delivered, nil
}

// relay 持有分布式锁时投递，锁被占用说明其他实例在处理
func (o *Outbox) relay(ctx context.Context) error {
	if o.opt.Lock == nil {
		_, err := o.RelayOnce(ctx)
		return err
	}
	if rl, ok := o.opt.Lock.(ordercore.IRenewLock); ok {
		err := rl.Run(ctx, relayLockKey, func(ctx context.Context) error {
			_, err := o.RelayOnce(ctx)
			return err
		})
		if errors.Is(err, ordercore.ErrLocked) {
			return nil
		}
		return err
	}
	keyLock, err := o.opt.Lock.Lock(ctx, relayLockKey)
	if err != nil {
		if errors.Is(err, ordercore.ErrLocked) {
			return nil
		}
		return err
	}
	defer func() {
		if err := o.opt.Lock.UnLock(ctx, keyLock); err != nil {
			o.logger.Error(err, "unlock relay failed")
		}
	}()
	_, err = o.RelayOnce(ctx)
	return err
}

// Clean 删除超过保留期的已投递通知，死信不清理
func (o *Outbox) Clean(ctx context.Context) (int64, error) {
	res := o.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", StatusSent, time.Now().Add(-o.opt.RetentionTime)).
		Delete(&MessagePO{})
	return res.RowsAffected, res.Error
}

// DeadLetters 列出重试耗尽的通知
func (o *Outbox) DeadLetters(ctx context.Context, limit int) ([]*MessagePO, error) {
	var pos []*MessagePO
	err := o.db.WithContext(ctx).Where("status = ?", StatusDead).Order("id").Limit(limit).Find(&pos).Error
	return pos, err
}

// Requeue 把死信重新放回投递队列
func (o *Outbox) Requeue(ctx context.Context, messageID string) error {
	res := o.db.WithContext(ctx).Model(&MessagePO{}).
		Where("message_id = ? AND status = ?", messageID, StatusDead).
		Updates(map[string]interface{}{"status": StatusPending, "retry_count": 0, "next_retry_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	return nil
}

// Start 启动投递循环和定时清理，ctx 结束后退出
func (o *Outbox) Start(ctx context.Context) {
	run := func() {
		defer close(o.done)
		ticker := time.NewTicker(o.opt.RunInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				o.cleanCron.Stop()
				return
			case <-ticker.C:
				if err := o.relay(ctx); err != nil && ctx.Err() == nil {
					o.logger.Error(err, "relay notifications failed")
				}
			}
		}
	}
	// 确保只启动一次
	o.once.Do(func() {
		if err := o.cleanCron.AddFunc(o.opt.CleanCron, func() {
			n, err := o.Clean(context.Background())
			if err != nil {
				o.logger.Error(err, "clean notifications failed")
				return
			}
			o.logger.Info("clean notifications", "deleted", n)
		}); err != nil {
			panic(err)
		}
		o.cleanCron.Start()
		go run()
	})
}

// Done 投递循环退出后关闭
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}
