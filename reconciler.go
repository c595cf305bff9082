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

package ordercore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-logr/logr"

	"github.com/skyhooked/ordercore/coupon"
	"github.com/skyhooked/ordercore/logger"
	"github.com/skyhooked/ordercore/logger/stdr"
	"github.com/skyhooked/ordercore/metrics"
	"github.com/skyhooked/ordercore/order"
)

var defaultLogger = stdr.NewStdr("reconciler")

var errCASLost = errors.New("order status changed concurrently")

type Outcome string

const (
	OutcomeCreated      Outcome = "created"      // 新建订单，状态未再推进
	OutcomeTransitioned Outcome = "transitioned" // 状态已推进
	OutcomeUnchanged    Outcome = "unchanged"    // 状态相同，仅可能更新元数据
	OutcomeSkipped      Outcome = "skipped"      // 终态或不允许的迁移，仅可能更新元数据
	OutcomeIgnored      Outcome = "ignored"      // 取消/退款类事件找不到订单，不建单
)

type Result struct {
	Order    *order.Order // OutcomeIgnored 时为 nil
	Created  bool
	Changed  bool
	From     order.Status
	To       order.Status
	Outcome  Outcome
	Notified order.NotificationKind // 空串表示未触发通知
}

// fieldsFunc 基于最新的订单计算待写入字段，CAS 失败回读后会重新计算
type fieldsFunc func(current *order.Order) order.Fields

func staticFields(f order.Fields) fieldsFunc {
	return func(*order.Order) order.Fields { return f }
}

type Reconciler struct {
	repo       OrderRepository
	dispatcher Dispatcher
	locker     ILock
	idGen      IIDGenerator
	coupons    *coupon.Service
	metrics    *metrics.Registry
	logger     logr.Logger
	options    Options
}

func NewReconciler(repo OrderRepository, opts ...Option) *Reconciler {
	options := Options{
		Logger:      defaultLogger,
		Dispatcher:  noDispatcher{},
		IDGenerator: &defaultIDGenerator{},
		CASAttempts: 3,
		CASDelay:    10 * time.Millisecond,
		Now:         time.Now,
	}
	for _, opt := range opts {
		opt.ApplyToOptions(&options)
	}
	if options.CASAttempts == 0 {
		options.CASAttempts = 1
	}
	return &Reconciler{
		repo:       repo,
		dispatcher: options.Dispatcher,
		locker:     options.Locker,
		idGen:      options.IDGenerator,
		coupons:    options.Coupons,
		metrics:    options.Metrics,
		logger:     options.Logger,
		options:    options,
	}
}

// Reconcile 将渠道事件合并到订单：查找或创建，按状态机推进，持久化后发送通知
func (r *Reconciler) Reconcile(ctx context.Context, d *order.Delta) (*Result, error) {
	if err := d.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}
	log := r.logger.WithValues("provider", d.Provider, "txn", d.ProviderTransactionID, "event", d.EventType)
	if d.Unmapped {
		log.Info("unmapped provider status", "raw_status", d.RawStatus, "status", d.Status)
		r.metrics.IncUnmapped(string(d.Provider))
	}

	unlock, err := r.lock(ctx, lockKey(d.Provider, d.ProviderTransactionID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := r.reconcile(ctx, log, d, nil)
	if err != nil {
		log.Error(err, "reconcile failed")
		return nil, err
	}
	r.metrics.ObserveReconcile(string(d.Provider), string(res.Outcome))
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context, log logr.Logger, d *order.Delta, prepare func(o *order.Order)) (*Result, error) {
	current, err := r.repo.FindByProviderTxn(ctx, d.Provider, d.ProviderTransactionID)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}

	created := false
	if current == nil {
		if !d.Status.CreatesOrder() {
			log.Info("no order for delta, ignored", "status", d.Status)
			return &Result{To: d.Status, Outcome: OutcomeIgnored}, nil
		}
		current, created, err = r.create(ctx, log, d, prepare)
		if err != nil {
			return nil, err
		}
	}

	fields := d.MetadataFields
	if created {
		fields = staticFields(order.Fields{})
	}
	res, err := r.apply(ctx, log, current, d.Status, fields, false)
	if err != nil {
		return nil, err
	}
	if created {
		res.Created = true
		if !res.Changed {
			res.From = ""
			res.Outcome = OutcomeCreated
		}
	}
	return res, nil
}

func (r *Reconciler) create(ctx context.Context, log logr.Logger, d *order.Delta, prepare func(o *order.Order)) (*order.Order, bool, error) {
	initial := d.Status
	if initial != order.StatusPending && initial != order.StatusProcessing {
		initial = d.Provider.InitialStatus()
	}
	o := d.NewOrder(initial)
	id, err := r.idGen.NewID()
	if err != nil {
		return nil, false, fmt.Errorf("generate order id: %w", err)
	}
	o.ID = id
	now := r.options.Now()
	o.CreatedAt, o.UpdatedAt = now, now
	if prepare != nil {
		prepare(o)
	}
	if err := o.Validate(); err != nil {
		return nil, false, &ValidationError{Err: err}
	}

	err = r.repo.Create(ctx, o)
	if err == nil {
		log.Info("order created", "id", o.ID, "status", o.Status)
		return o, true, nil
	}
	if !errors.Is(err, ErrDuplicateKey) {
		return nil, false, fmt.Errorf("create order: %w", err)
	}

	// 并发投递的另一方已建单，回读后按已存在处理
	conflict := &ConflictError{Provider: d.Provider, ProviderTransactionID: d.ProviderTransactionID}
	r.metrics.IncConflict(string(d.Provider))
	log.V(logger.LevelDebug).Info("create conflict, re-reading", "reason", conflict.Error())
	existing, err := r.repo.FindByProviderTxn(ctx, d.Provider, d.ProviderTransactionID)
	if err != nil {
		return nil, false, fmt.Errorf("re-read after conflict: %w", err)
	}
	if existing == nil {
		return nil, false, fmt.Errorf("order missing after %w", conflict)
	}
	return existing, false, nil
}

// apply 在状态机允许时推进到 target，同时写入 fields；strict 为 true 时非法迁移返回错误
func (r *Reconciler) apply(ctx context.Context, log logr.Logger, current *order.Order, target order.Status, fields fieldsFunc, strict bool) (*Result, error) {
	res := &Result{}
	err := retry.Do(
		func() error {
			res.From = current.Status
			f := fields(current)
			if current.Status == target || current.IsTerminal() || !current.Status.CanTransition(target) {
				if current.Status == target {
					res.Outcome = OutcomeUnchanged
				} else {
					if strict {
						if current.IsTerminal() {
							return fmt.Errorf("%w: %s", ErrTerminalOrder, current.Status)
						}
						return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, target)
					}
					log.Info("status change skipped", "id", current.ID, "from", current.Status, "to", target)
					res.Outcome = OutcomeSkipped
				}
				o, err := r.updateDetails(ctx, current, f)
				if err != nil {
					return err
				}
				res.Order = o
				return nil
			}

			updated, err := r.repo.UpdateStatus(ctx, current.ID, current.Status, target, f)
			if err != nil {
				return fmt.Errorf("update status: %w", err)
			}
			if updated == nil {
				fresh, err := r.repo.FindByID(ctx, current.ID)
				if err != nil {
					return fmt.Errorf("reload order: %w", err)
				}
				if fresh == nil {
					return ErrNotFound
				}
				log.V(logger.LevelDebug).Info("status compare-and-set lost", "id", current.ID, "expected", current.Status, "actual", fresh.Status)
				current = fresh
				return errCASLost
			}
			res.Order = updated
			res.Changed = true
			res.Outcome = OutcomeTransitioned
			return nil
		},
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errCASLost)
		}),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(r.options.CASDelay),
		retry.Attempts(r.options.CASAttempts),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if errors.Is(err, errCASLost) {
			return nil, fmt.Errorf("order %s: %w", current.ID, err)
		}
		return nil, err
	}

	res.To = res.Order.Status
	if res.Changed {
		log.Info("order status changed", "id", res.Order.ID, "from", res.From, "to", res.To)
		res.Notified = r.notify(ctx, log, res.Order)
	}
	return res, nil
}

func (r *Reconciler) updateDetails(ctx context.Context, current *order.Order, f order.Fields) (*order.Order, error) {
	if !f.Apply(current.Clone()) {
		return current, nil
	}
	updated, err := r.repo.UpdateDetails(ctx, current.ID, f)
	if err != nil {
		return nil, fmt.Errorf("update order details: %w", err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}
	return updated, nil
}

// notify 在状态持久化之后调用，失败只记录
func (r *Reconciler) notify(ctx context.Context, log logr.Logger, o *order.Order) order.NotificationKind {
	kind, ok := order.NotificationFor(o.Status)
	if !ok {
		return ""
	}
	extra := map[string]string{}
	if kind == order.NotifyShipped && o.TrackingNumber != "" {
		extra["tracking_number"] = o.TrackingNumber
	}
	if err := r.dispatcher.Send(ctx, kind, o.Clone(), extra); err != nil {
		log.Error(&NotificationError{Kind: kind, OrderID: o.ID, Err: err}, "notification failed")
		r.metrics.IncNotificationFailure(string(kind))
	}
	return kind
}

func lockKey(provider order.Provider, txnID string) string {
	return fmt.Sprintf("order:%s:%s", provider, txnID)
}

func (r *Reconciler) lock(ctx context.Context, key string) (func(), error) {
	if r.locker == nil {
		return func() {}, nil
	}
	keyLock, err := r.locker.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return func() {
		if err := r.locker.UnLock(ctx, keyLock); err != nil {
			r.logger.Error(err, "unlock failed", "key", key)
		}
	}, nil
}
