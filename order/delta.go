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

package order

import (
	"fmt"
	"strings"
)

// Delta 与渠道无关的单次支付/状态通知
type Delta struct {
	ProviderTransactionID string
	Provider              Provider
	Status                Status // 已映射的规范状态
	RawStatus             string // 渠道原始状态，仅用于日志排查
	Unmapped              bool   // RawStatus 不在映射表内，Status 为兜底值
	EventType             string
	Total                 int64
	Currency              string
	CustomerEmail         string
	UserID                string
	Items                 []Item
	ShippingAddress       Address
	BillingAddress        Address
	TrackingNumber        string
}

func (d *Delta) Validate() error {
	if d == nil {
		return fmt.Errorf("delta is nil")
	}
	if !d.Provider.Valid() {
		return fmt.Errorf("invalid provider %q", d.Provider)
	}
	if strings.TrimSpace(d.ProviderTransactionID) == "" {
		return fmt.Errorf("provider transaction id is required")
	}
	if !d.Status.Valid() {
		return fmt.Errorf("invalid status %q", d.Status)
	}
	if d.Total < 0 {
		return fmt.Errorf("total must not be negative")
	}
	return ValidateItems(d.Items)
}

// NewOrder 根据 delta 构建待创建的订单，ID 由仓储层在创建时生成
func (d *Delta) NewOrder(status Status) *Order {
	items := make([]Item, len(d.Items))
	copy(items, d.Items)
	total := d.Total
	if total == 0 {
		total = Subtotal(items)
	}
	return &Order{
		ProviderTransactionID: d.ProviderTransactionID,
		Provider:              d.Provider,
		UserID:                d.UserID,
		CustomerEmail:         d.CustomerEmail,
		Status:                status,
		Total:                 total,
		Currency:              strings.ToUpper(d.Currency),
		Items:                 items,
		ShippingAddress:       d.ShippingAddress,
		BillingAddress:        d.BillingAddress,
		TrackingNumber:        d.TrackingNumber,
	}
}

// MetadataFields 终态订单仍然接受的元数据更新
func (d *Delta) MetadataFields(current *Order) Fields {
	var f Fields
	if d.TrackingNumber != "" && d.TrackingNumber != current.TrackingNumber {
		f.TrackingNumber = StringPtr(d.TrackingNumber)
	}
	// 游客订单后续关联到用户
	if current.UserID == "" && d.UserID != "" {
		f.UserID = StringPtr(d.UserID)
	}
	if current.CustomerEmail == "" && d.CustomerEmail != "" {
		f.CustomerEmail = StringPtr(d.CustomerEmail)
	}
	if current.ShippingAddress.IsZero() && !d.ShippingAddress.IsZero() {
		addr := d.ShippingAddress
		f.ShippingAddress = &addr
	}
	if current.BillingAddress.IsZero() && !d.BillingAddress.IsZero() {
		addr := d.BillingAddress
		f.BillingAddress = &addr
	}
	return f
}
