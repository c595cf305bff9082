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

package sql

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/skyhooked/ordercore/coupon"
	"github.com/skyhooked/ordercore/order"
)

type AddressPO struct {
	Name       string `gorm:"type:varchar(128)"`
	Line1      string `gorm:"type:varchar(255)"`
	Line2      string `gorm:"type:varchar(255)"`
	City       string `gorm:"type:varchar(128)"`
	State      string `gorm:"type:varchar(128)"`
	PostalCode string `gorm:"type:varchar(32)"`
	Country    string `gorm:"type:varchar(64)"`
	Phone      string `gorm:"type:varchar(64)"`
}

// OrderPO (provider, provider_txn_id) 唯一索引是回调幂等的依据
type OrderPO struct {
	ID              string `gorm:"primaryKey;type:varchar(32)"`
	Provider        string `gorm:"type:varchar(32);uniqueIndex:uk_provider_txn"`
	ProviderTxnID   string `gorm:"column:provider_txn_id;type:varchar(255);uniqueIndex:uk_provider_txn"`
	UserID          string `gorm:"type:varchar(64);index:idx_user_id"`
	CustomerEmail   string `gorm:"type:varchar(255)"`
	Status          string `gorm:"type:varchar(16);index:idx_status"`
	Total           int64
	Currency        string       `gorm:"type:varchar(8)"`
	Items           []order.Item `gorm:"serializer:json;type:text"`
	ShippingAddress AddressPO    `gorm:"embedded;embeddedPrefix:shipping_"`
	BillingAddress  AddressPO    `gorm:"embedded;embeddedPrefix:billing_"`
	CouponCode      string       `gorm:"type:varchar(64)"`
	DiscountAmount  int64
	TrackingNumber  string `gorm:"type:varchar(128)"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (OrderPO) TableName() string {
	return "orders"
}

type CouponPO struct {
	ID                    string          `gorm:"primaryKey;type:varchar(32)"`
	Code                  string          `gorm:"type:varchar(64);uniqueIndex:uk_code"`
	Type                  string          `gorm:"type:varchar(16)"`
	Value                 decimal.Decimal `gorm:"type:varchar(32)"`
	MinimumOrderAmount    *int64
	MaximumDiscountAmount *int64
	UsageLimit            *int64
	UsageCount            int64
	IsActive              bool
	ValidFrom             time.Time
	ValidUntil            *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (CouponPO) TableName() string {
	return "coupons"
}

func addressToPO(a order.Address) AddressPO {
	return AddressPO(a)
}

func addressFromPO(a AddressPO) order.Address {
	return order.Address(a)
}

func orderToPO(o *order.Order) *OrderPO {
	items := o.Items
	if items == nil {
		items = []order.Item{}
	}
	return &OrderPO{
		ID:              o.ID,
		Provider:        string(o.Provider),
		ProviderTxnID:   o.ProviderTransactionID,
		UserID:          o.UserID,
		CustomerEmail:   o.CustomerEmail,
		Status:          string(o.Status),
		Total:           o.Total,
		Currency:        o.Currency,
		Items:           items,
		ShippingAddress: addressToPO(o.ShippingAddress),
		BillingAddress:  addressToPO(o.BillingAddress),
		CouponCode:      o.CouponCode,
		DiscountAmount:  o.DiscountAmount,
		TrackingNumber:  o.TrackingNumber,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func orderFromPO(po *OrderPO) *order.Order {
	return &order.Order{
		ID:                    po.ID,
		ProviderTransactionID: po.ProviderTxnID,
		Provider:              order.Provider(po.Provider),
		UserID:                po.UserID,
		CustomerEmail:         po.CustomerEmail,
		Status:                order.Status(po.Status),
		Total:                 po.Total,
		Currency:              po.Currency,
		Items:                 po.Items,
		ShippingAddress:       addressFromPO(po.ShippingAddress),
		BillingAddress:        addressFromPO(po.BillingAddress),
		CouponCode:            po.CouponCode,
		DiscountAmount:        po.DiscountAmount,
		TrackingNumber:        po.TrackingNumber,
		CreatedAt:             po.CreatedAt,
		UpdatedAt:             po.UpdatedAt,
	}
}

func couponToPO(c *coupon.Coupon) *CouponPO {
	return &CouponPO{
		ID:                    c.ID,
		Code:                  c.Code,
		Type:                  string(c.Type),
		Value:                 c.Value,
		MinimumOrderAmount:    c.MinimumOrderAmount,
		MaximumDiscountAmount: c.MaximumDiscountAmount,
		UsageLimit:            c.UsageLimit,
		UsageCount:            c.UsageCount,
		IsActive:              c.IsActive,
		ValidFrom:             c.ValidFrom,
		ValidUntil:            c.ValidUntil,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

func couponFromPO(po *CouponPO) *coupon.Coupon {
	return &coupon.Coupon{
		ID:                    po.ID,
		Code:                  po.Code,
		Type:                  coupon.Type(po.Type),
		Value:                 po.Value,
		MinimumOrderAmount:    po.MinimumOrderAmount,
		MaximumDiscountAmount: po.MaximumDiscountAmount,
		UsageLimit:            po.UsageLimit,
		UsageCount:            po.UsageCount,
		IsActive:              po.IsActive,
		ValidFrom:             po.ValidFrom,
		ValidUntil:            po.ValidUntil,
		CreatedAt:             po.CreatedAt,
		UpdatedAt:             po.UpdatedAt,
	}
}
