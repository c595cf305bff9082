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

	"github.com/skyhooked/ordercore/coupon"
	"github.com/skyhooked/ordercore/order"
)

type CheckoutRequest struct {
	Provider              order.Provider
	ProviderTransactionID string // 支付引用，与渠道回调共用幂等键
	UserID                string
	CustomerEmail         string
	Currency              string
	Items                 []order.Item
	ShippingAddress       order.Address
	BillingAddress        order.Address
	CouponCode            string
	Now                   time.Time
}

// CouponResult 带有券计算结果的处理结果，Coupon 为 nil 表示未使用券
type CouponResult struct {
	*Result
	Coupon *coupon.ApplyResult
}

// Checkout 结账完成后建单，券在建单时写入，只有新建订单才占用券次数
func (r *Reconciler) Checkout(ctx context.Context, req CheckoutRequest) (*CouponResult, error) {
	d := &order.Delta{
		ProviderTransactionID: req.ProviderTransactionID,
		Provider:              req.Provider,
		Status:                order.StatusPending,
		EventType:             "checkout.completed",
		Total:                 order.Subtotal(req.Items),
		Currency:              req.Currency,
		CustomerEmail:         req.CustomerEmail,
		UserID:                req.UserID,
		Items:                 req.Items,
		ShippingAddress:       req.ShippingAddress,
		BillingAddress:        req.BillingAddress,
	}
	if err := d.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}
	if len(req.Items) == 0 {
		return nil, NewValidationError("checkout requires at least one item")
	}
	log := r.logger.WithValues("provider", d.Provider, "txn", d.ProviderTransactionID, "event", d.EventType)

	out := &CouponResult{}
	var applied *coupon.ApplyResult
	if code := coupon.NormalizeCode(req.CouponCode); code != "" {
		if r.coupons == nil {
			return nil, ErrCouponsDisabled
		}
		var err error
		applied, err = r.coupons.Apply(ctx, coupon.ApplyRequest{
			Code:     code,
			Subtotal: d.Total,
			Items:    req.Items,
			Now:      req.Now,
		})
		if err != nil {
			return nil, err
		}
		if !applied.Accepted() {
			r.metrics.IncCouponRejected(string(applied.Rejection.Reason))
		}
		out.Coupon = applied
	}
	accepted := applied != nil && applied.Accepted()

	unlock, err := r.lock(ctx, lockKey(d.Provider, d.ProviderTransactionID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := r.reconcile(ctx, log, d, func(o *order.Order) {
		if accepted {
			o.CouponCode = applied.Coupon.Code
			o.DiscountAmount = applied.Result.DiscountAmount
		}
	})
	if err != nil {
		return nil, err
	}
	out.Result = res

	if res.Created && accepted {
		if err := r.redeem(ctx, res, applied); err != nil {
			return nil, err
		}
	}
	if !res.Created && applied != nil {
		r.existingCoupon(applied, res.Order)
	}
	r.metrics.ObserveReconcile(string(d.Provider), string(res.Outcome))
	return out, nil
}

// existingCoupon 订单已存在时券不会再写入，返回结果以订单上实际的折扣为准
func (r *Reconciler) existingCoupon(applied *coupon.ApplyResult, o *order.Order) {
	if applied.Coupon != nil && o.CouponCode == applied.Coupon.Code {
		applied.Rejection = nil
		applied.Result = coupon.Result{
			DiscountAmount: o.DiscountAmount,
			FreeShipping:   applied.Coupon.Type == coupon.TypeFreeShipping,
		}
		return
	}
	if applied.Accepted() {
		applied.Result = coupon.Result{}
		applied.Rejection = &coupon.Rejection{Reason: coupon.ReasonOrderExists, Detail: o.ID}
		r.metrics.IncCouponRejected(string(coupon.ReasonOrderExists))
	}
}

// redeem 占用券次数；并发下次数被用完时撤销订单上的折扣
func (r *Reconciler) redeem(ctx context.Context, res *Result, applied *coupon.ApplyResult) error {
	err := r.coupons.Redeem(ctx, applied.Coupon.Code)
	if err == nil {
		r.metrics.IncCouponRedeemed()
		return nil
	}
	if !errors.Is(err, coupon.ErrUsageExhausted) {
		r.logger.Error(err, "redeem coupon failed, discount kept", "order", res.Order.ID, "code", applied.Coupon.Code)
		return nil
	}
	o, err := r.updateDetails(ctx, res.Order, order.Fields{
		CouponCode:     order.StringPtr(""),
		DiscountAmount: order.Int64Ptr(0),
	})
	if err != nil {
		return err
	}
	res.Order = o
	applied.Result = coupon.Result{}
	applied.Rejection = &coupon.Rejection{Reason: coupon.ReasonUsageExhausted}
	r.metrics.IncCouponRejected(string(coupon.ReasonUsageExhausted))
	return nil
}

// ApplyCoupon 后台改单时使用券，终态订单不可修改
func (r *Reconciler) ApplyCoupon(ctx context.Context, orderID, code string, now time.Time) (*CouponResult, error) {
	if r.coupons == nil {
		return nil, ErrCouponsDisabled
	}
	unlock, err := r.lock(ctx, "order-id:"+orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := r.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminalOrder, o.Status)
	}

	code = coupon.NormalizeCode(code)
	applied, err := r.coupons.Apply(ctx, coupon.ApplyRequest{
		Code:     code,
		Subtotal: o.Total,
		Items:    o.Items,
		Now:      now,
		Redeemed: code != "" && o.CouponCode == code,
	})
	if err != nil {
		return nil, err
	}
	res := &Result{Order: o, From: o.Status, To: o.Status, Outcome: OutcomeUnchanged}
	out := &CouponResult{Result: res, Coupon: applied}
	if !applied.Accepted() {
		r.metrics.IncCouponRejected(string(applied.Rejection.Reason))
		return out, nil
	}

	// 同一张券重复应用只重算金额，不重复占用次数
	if o.CouponCode != applied.Coupon.Code {
		if err := r.coupons.Redeem(ctx, applied.Coupon.Code); err != nil {
			if errors.Is(err, coupon.ErrUsageExhausted) {
				applied.Result = coupon.Result{}
				applied.Rejection = &coupon.Rejection{Reason: coupon.ReasonUsageExhausted}
				r.metrics.IncCouponRejected(string(coupon.ReasonUsageExhausted))
				return out, nil
			}
			return nil, err
		}
		r.metrics.IncCouponRedeemed()
	}

	updated, err := r.updateDetails(ctx, o, order.Fields{
		CouponCode:     order.StringPtr(applied.Coupon.Code),
		DiscountAmount: order.Int64Ptr(applied.Result.DiscountAmount),
	})
	if err != nil {
		return nil, err
	}
	res.Order = updated
	r.logger.Info("coupon applied", "order", o.ID, "code", applied.Coupon.Code, "discount", applied.Result.DiscountAmount)
	return out, nil
}
