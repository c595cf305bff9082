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

package server

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/skyhooked/ordercore"
	"github.com/skyhooked/ordercore/coupon"
	"github.com/skyhooked/ordercore/order"
)

type OrderView struct {
	ID                    string         `json:"id"`
	Provider              order.Provider `json:"provider"`
	ProviderTransactionID string         `json:"provider_transaction_id"`
	UserID                string         `json:"user_id,omitempty"`
	CustomerEmail         string         `json:"customer_email,omitempty"`
	Status                order.Status   `json:"status"`
	Total                 int64          `json:"total"`
	DiscountAmount        int64          `json:"discount_amount"`
	AmountDue             int64          `json:"amount_due"`
	Currency              string         `json:"currency"`
	CouponCode            string         `json:"coupon_code,omitempty"`
	TrackingNumber        string         `json:"tracking_number,omitempty"`
	Items                 []order.Item   `json:"items"`
	ShippingAddress       order.Address  `json:"shipping_address"`
	BillingAddress        order.Address  `json:"billing_address"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

func orderView(o *order.Order) *OrderView {
	if o == nil {
		return nil
	}
	items := o.Items
	if items == nil {
		items = []order.Item{}
	}
	return &OrderView{
		ID:                    o.ID,
		Provider:              o.Provider,
		ProviderTransactionID: o.ProviderTransactionID,
		UserID:                o.UserID,
		CustomerEmail:         o.CustomerEmail,
		Status:                o.Status,
		Total:                 o.Total,
		DiscountAmount:        o.DiscountAmount,
		AmountDue:             o.AmountDue(),
		Currency:              o.Currency,
		CouponCode:            o.CouponCode,
		TrackingNumber:        o.TrackingNumber,
		Items:                 items,
		ShippingAddress:       o.ShippingAddress,
		BillingAddress:        o.BillingAddress,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
}

type ResultView struct {
	Order    *OrderView             `json:"order,omitempty"`
	Outcome  ordercore.Outcome      `json:"outcome"`
	Created  bool                   `json:"created"`
	Changed  bool                   `json:"changed"`
	From     order.Status           `json:"from,omitempty"`
	To       order.Status           `json:"to,omitempty"`
	Notified order.NotificationKind `json:"notified,omitempty"`
	Coupon   *CouponApplyView       `json:"coupon,omitempty"`
}

func resultView(res *ordercore.Result, applied *coupon.ApplyResult) *ResultView {
	v := &ResultView{
		Order:    orderView(res.Order),
		Outcome:  res.Outcome,
		Created:  res.Created,
		Changed:  res.Changed,
		From:     res.From,
		To:       res.To,
		Notified: res.Notified,
	}
	if applied != nil {
		v.Coupon = couponApplyView(applied)
	}
	return v
}

type CouponApplyView struct {
	Code           string `json:"code,omitempty"`
	Accepted       bool   `json:"accepted"`
	DiscountAmount int64  `json:"discount_amount"`
	FreeShipping   bool   `json:"free_shipping"`
	Reason         string `json:"reason,omitempty"`
}

func couponApplyView(r *coupon.ApplyResult) *CouponApplyView {
	v := &CouponApplyView{
		Accepted:       r.Accepted(),
		DiscountAmount: r.Result.DiscountAmount,
		FreeShipping:   r.Result.FreeShipping,
	}
	if r.Coupon != nil {
		v.Code = r.Coupon.Code
	}
	if r.Rejection != nil {
		v.Reason = string(r.Rejection.Reason)
	}
	return v
}

type CouponView struct {
	ID                    string          `json:"id"`
	Code                  string          `json:"code"`
	Type                  coupon.Type     `json:"type"`
	Value                 decimal.Decimal `json:"value"`
	MinimumOrderAmount    *int64          `json:"minimum_order_amount,omitempty"`
	MaximumDiscountAmount *int64          `json:"maximum_discount_amount,omitempty"`
	UsageLimit            *int64          `json:"usage_limit,omitempty"`
	UsageCount            int64           `json:"usage_count"`
	IsActive              bool            `json:"is_active"`
	ValidFrom             time.Time       `json:"valid_from"`
	ValidUntil            *time.Time      `json:"valid_until,omitempty"`
}

func couponView(c *coupon.Coupon) *CouponView {
	return &CouponView{
		ID:                    c.ID,
		Code:                  c.Code,
		Type:                  c.Type,
		Value:                 c.Value,
		MinimumOrderAmount:    c.MinimumOrderAmount,
		MaximumDiscountAmount: c.MaximumDiscountAmount,
		UsageLimit:            c.UsageLimit,
		UsageCount:            c.UsageCount,
		IsActive:              c.IsActive,
		ValidFrom:             c.ValidFrom,
		ValidUntil:            c.ValidUntil,
	}
}

type ApplyCouponRequest struct {
	Code      string       `json:"code" binding:"required"`
	Subtotal  int64        `json:"subtotal"`
	ItemCount int          `json:"item_count"`
	Items     []order.Item `json:"items"`
}

type CheckoutRequest struct {
	Provider         string        `json:"provider" binding:"required"`
	PaymentReference string        `json:"payment_reference" binding:"required"`
	UserID           string        `json:"user_id"`
	Email            string        `json:"email"`
	Currency         string        `json:"currency" binding:"required"`
	Items            []order.Item  `json:"items" binding:"required"`
	ShippingAddress  order.Address `json:"shipping_address"`
	BillingAddress   order.Address `json:"billing_address"`
	CouponCode       string        `json:"coupon_code"`
}

type CreateCouponRequest struct {
	Code                  string          `json:"code" binding:"required"`
	Type                  string          `json:"type" binding:"required"`
	Value                 decimal.Decimal `json:"value"`
	MinimumOrderAmount    *int64          `json:"minimum_order_amount"`
	MaximumDiscountAmount *int64          `json:"maximum_discount_amount"`
	UsageLimit            *int64          `json:"usage_limit"`
	ValidFrom             time.Time       `json:"valid_from"`
	ValidUntil            *time.Time      `json:"valid_until"`
	Inactive              bool            `json:"inactive"`
}

// OrderFieldsRequest nil 字段保持不变
type OrderFieldsRequest struct {
	UserID          *string        `json:"user_id"`
	CustomerEmail   *string        `json:"customer_email"`
	TrackingNumber  *string        `json:"tracking_number"`
	ShippingAddress *order.Address `json:"shipping_address"`
	BillingAddress  *order.Address `json:"billing_address"`
}

func (r OrderFieldsRequest) fields() order.Fields {
	return order.Fields{
		UserID:          r.UserID,
		CustomerEmail:   r.CustomerEmail,
		TrackingNumber:  r.TrackingNumber,
		ShippingAddress: r.ShippingAddress,
		BillingAddress:  r.BillingAddress,
	}
}

type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
	OrderFieldsRequest
}

type OrderCouponRequest struct {
	Code string `json:"code" binding:"required"`
}
