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

package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/rs/xid"

	"github.com/skyhooked/ordercore/logger"
	"github.com/skyhooked/ordercore/logger/stdr"
	"github.com/skyhooked/ordercore/order"
)

var defaultLogger = stdr.NewStdr("coupon")

// Store 券的持久化，IncrementUsage 需要在存储层原子地校验次数上限
type Store interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	SetActive(ctx context.Context, code string, active bool) error
	IncrementUsage(ctx context.Context, code string) (bool, error)
}

// Cache 券查询缓存，仅用于 Apply 的读路径
type Cache interface {
	Get(ctx context.Context, code string) (*Coupon, bool)
	Set(ctx context.Context, c *Coupon)
	Delete(ctx context.Context, code string)
}

type ApplyRequest struct {
	Code      string
	Subtotal  int64 // 为 0 时由 Items 计算
	ItemCount int   // 为 0 时由 Items 计算
	Items     []order.Item
	Now       time.Time
	// Redeemed 订单已占用过这张券，校验次数时扣除自身的一次
	Redeemed bool
}

type ApplyResult struct {
	Coupon    *Coupon
	Result    Result
	Rejection *Rejection
}

func (r *ApplyResult) Accepted() bool {
	return r.Rejection == nil
}

type ServiceOptions struct {
	Logger    logr.Logger
	Cache     Cache
	Evaluator *Evaluator
	Now       func() time.Time
}

type ServiceOption func(opts *ServiceOptions)

func WithLogger(l logr.Logger) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Logger = l
	}
}

func WithCache(c Cache) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Cache = c
	}
}

func WithEvaluator(e *Evaluator) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Evaluator = e
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Now = now
	}
}

type Service struct {
	store     Store
	cache     Cache
	evaluator *Evaluator
	logger    logr.Logger
	now       func() time.Time
}

func NewService(store Store, opts ...ServiceOption) *Service {
	o := &ServiceOptions{
		Logger:    defaultLogger,
		Evaluator: defaultEvaluator,
		Now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Service{
		store:     store,
		cache:     o.Cache,
		evaluator: o.Evaluator,
		logger:    o.Logger,
		now:       o.Now,
	}
}

func (s *Service) lookup(ctx context.Context, code string) (*Coupon, error) {
	if s.cache != nil {
		if c, ok := s.cache.Get(ctx, code); ok {
			return c, nil
		}
	}
	c, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, c)
	}
	return c, nil
}

// Apply 查询并计算折扣，不占用次数；券不可用时返回 Rejection 而非 error
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return &ApplyResult{Rejection: &Rejection{Reason: ReasonNotFound}}, nil
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	c, err := s.lookup(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return &ApplyResult{Rejection: &Rejection{Reason: ReasonNotFound, Detail: code}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup coupon %s: %w", code, err)
	}

	subtotal, count := req.Subtotal, req.ItemCount
	if subtotal == 0 {
		subtotal = order.Subtotal(req.Items)
	}
	if count == 0 {
		count = order.ItemCount(req.Items)
	}
	now := req.Now
	if now.IsZero() {
		now = s.now()
	}
	eval := c
	if req.Redeemed && c.UsageCount > 0 {
		eval = c.Clone()
		eval.UsageCount--
	}
	ctxEval := Context{Subtotal: subtotal, ItemCount: count, Now: now}
	if c.Type == TypeBundleDeal {
		ctxEval.Lines = lines(req.Items)
	}
	res, rej := s.evaluator.Evaluate(eval, ctxEval)
	if rej != nil {
		s.logger.V(logger.LevelDebug).Info("coupon rejected", "code", code, "reason", rej.Reason)
	}
	return &ApplyResult{Coupon: c, Result: res, Rejection: rej}, nil
}

func validateRequest(req ApplyRequest) error {
	if req.Subtotal < 0 || req.ItemCount < 0 {
		return fmt.Errorf("%w: subtotal and item count must not be negative", ErrInvalidItems)
	}
	if err := order.ValidateItems(req.Items); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidItems, err)
	}
	return nil
}

func lines(items []order.Item) []Line {
	out := make([]Line, 0, len(items))
	for _, item := range items {
		out = append(out, Line{UnitPrice: item.UnitPrice, Quantity: int(item.Quantity)})
	}
	return out
}

// Redeem 确认使用一次，次数已满返回 ErrUsageExhausted
func (s *Service) Redeem(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	ok, err := s.store.IncrementUsage(ctx, code)
	if s.cache != nil {
		s.cache.Delete(ctx, code)
	}
	if err != nil {
		return fmt.Errorf("redeem coupon %s: %w", code, err)
	}
	if !ok {
		return ErrUsageExhausted
	}
	return nil
}

func (s *Service) Create(ctx context.Context, c *Coupon) (*Coupon, error) {
	c = c.Clone()
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.ID == "" {
		c.ID = xid.New().String()
	}
	if c.ValidFrom.IsZero() {
		c.ValidFrom = s.now()
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("coupon created", "code", c.Code, "type", c.Type)
	return c, nil
}

func (s *Service) Deactivate(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	if err := s.store.SetActive(ctx, code, false); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Delete(ctx, code)
	}
	s.logger.Info("coupon deactivated", "code", code)
	return nil
}

func (s *Service) Get(ctx context.Context, code string) (*Coupon, error) {
	return s.store.FindByCode(ctx, NormalizeCode(code))
}
