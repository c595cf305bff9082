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
	"fmt"
	"time"
)

type Reason string

const (
	ReasonNotFound         Reason = "not_found"
	ReasonInactive         Reason = "inactive"
	ReasonNotYetValid      Reason = "not_yet_valid"
	ReasonExpired          Reason = "expired"
	ReasonUsageExhausted   Reason = "usage_limit_reached"
	ReasonBelowMinimum     Reason = "below_minimum_order"
	ReasonBundleIneligible Reason = "bundle_not_eligible"
	ReasonOrderExists      Reason = "order_already_exists" // 订单已存在，券未写入
)

// Rejection 券不可用的原因，由调用方决定是否阻断下单
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) String() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// Context 计算折扣的订单上下文，Now 必须由调用方给出
type Context struct {
	Subtotal  int64
	ItemCount int
	Lines     []Line // 仅组合优惠使用
	Now       time.Time
}

type Result struct {
	DiscountAmount int64
	FreeShipping   bool
}

type EvaluatorOptions struct {
	Bundle BundlePricer
}

type EvaluatorOption func(opts *EvaluatorOptions)

func WithBundlePricer(p BundlePricer) EvaluatorOption {
	return func(opts *EvaluatorOptions) {
		opts.Bundle = p
	}
}

// Evaluator 纯计算，不修改券的使用次数
type Evaluator struct {
	bundle BundlePricer
}

func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	o := &EvaluatorOptions{Bundle: CheapestFree()}
	for _, opt := range opts {
		opt(o)
	}
	return &Evaluator{bundle: o.Bundle}
}

var defaultEvaluator = NewEvaluator()

// Evaluate 使用默认组合计价规则
func Evaluate(c *Coupon, ctx Context) (Result, *Rejection) {
	return defaultEvaluator.Evaluate(c, ctx)
}

func (e *Evaluator) Evaluate(c *Coupon, ctx Context) (Result, *Rejection) {
	if rej := e.check(c, ctx); rej != nil {
		return Result{}, rej
	}

	var res Result
	switch c.Type {
	case TypePercentage:
		res.DiscountAmount = percentOf(ctx.Subtotal, c.Value)
	case TypeFixedAmount:
		res.DiscountAmount = c.Value.IntPart()
	case TypeFreeShipping:
		res.FreeShipping = true
	case TypeBundleDeal:
		size := int(c.Value.IntPart())
		if ctx.ItemCount < size {
			return Result{}, &Rejection{
				Reason: ReasonBundleIneligible,
				Detail: fmt.Sprintf("need %d items, got %d", size, ctx.ItemCount),
			}
		}
		res.DiscountAmount = e.bundle.Price(BundleContext{
			GroupSize: size,
			Subtotal:  ctx.Subtotal,
			ItemCount: ctx.ItemCount,
			Lines:     ctx.Lines,
		})
	}

	if c.MaximumDiscountAmount != nil && res.DiscountAmount > *c.MaximumDiscountAmount {
		res.DiscountAmount = *c.MaximumDiscountAmount
	}
	// 折扣不能让订单金额为负
	if res.DiscountAmount > ctx.Subtotal {
		res.DiscountAmount = ctx.Subtotal
	}
	if res.DiscountAmount < 0 {
		res.DiscountAmount = 0
	}
	return res, nil
}

func (e *Evaluator) check(c *Coupon, ctx Context) *Rejection {
	if c == nil {
		return &Rejection{Reason: ReasonNotFound}
	}
	if !c.IsActive {
		return &Rejection{Reason: ReasonInactive}
	}
	now := ctx.Now
	if now.IsZero() {
		return &Rejection{Reason: ReasonNotYetValid, Detail: "evaluation time not set"}
	}
	if now.Before(c.ValidFrom) {
		return &Rejection{Reason: ReasonNotYetValid, Detail: "valid from " + c.ValidFrom.Format(time.RFC3339)}
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return &Rejection{Reason: ReasonExpired, Detail: "valid until " + c.ValidUntil.Format(time.RFC3339)}
	}
	if c.Exhausted() {
		return &Rejection{Reason: ReasonUsageExhausted}
	}
	if c.MinimumOrderAmount != nil && ctx.Subtotal < *c.MinimumOrderAmount {
		return &Rejection{
			Reason: ReasonBelowMinimum,
			Detail: fmt.Sprintf("minimum %d, subtotal %d", *c.MinimumOrderAmount, ctx.Subtotal),
		}
	}
	return nil
}
