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
	"fmt"

	"github.com/skyhooked/ordercore/order"
)

// adminFields 后台只允许修改元数据，券相关字段走 ApplyCoupon
func adminFields(f order.Fields) order.Fields {
	f.CouponCode = nil
	f.DiscountAmount = nil
	return f
}

// Transition 后台发起的状态变更（发货、签收、取消、退款），与回调共用状态机与通知
func (r *Reconciler) Transition(ctx context.Context, orderID string, to order.Status, fields order.Fields) (*Result, error) {
	if !to.Valid() {
		return nil, NewValidationError("invalid status %q", to)
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
	log := r.logger.WithValues("id", orderID, "event", "admin.transition")
	res, err := r.apply(ctx, log, o, to, staticFields(adminFields(fields)), true)
	if err != nil {
		return nil, err
	}
	r.metrics.ObserveReconcile(string(o.Provider), string(res.Outcome))
	return res, nil
}

// UpdateDetails 修改地址、用户关联、邮箱、运单号等非状态字段，终态订单也允许
func (r *Reconciler) UpdateDetails(ctx context.Context, orderID string, fields order.Fields) (*order.Order, error) {
	fields = adminFields(fields)
	if fields.IsEmpty() {
		return nil, NewValidationError("no fields to update")
	}
	o, err := r.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return r.updateDetails(ctx, o, fields)
}

func (r *Reconciler) Get(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := r.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", orderID, err)
	}
	if o == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	return o, nil
}

func (r *Reconciler) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	if userID == "" {
		return nil, NewValidationError("user id is required")
	}
	return r.repo.FindByUser(ctx, userID)
}
