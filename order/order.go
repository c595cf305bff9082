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
	"math"
	"strings"
	"time"
)

type Provider string

const (
	ProviderCard         Provider = "CARD"
	ProviderHostedCartA  Provider = "HOSTED_CART_A"
	ProviderHostedCartB  Provider = "HOSTED_CART_B"
	providerUnknownValue Provider = ""
)

var providers = []Provider{ProviderCard, ProviderHostedCartA, ProviderHostedCartB}

// ParseProvider 大小写不敏感，同时接受 hosted-cart-a 这类路径写法
func ParseProvider(s string) (Provider, error) {
	norm := Provider(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	for _, p := range providers {
		if p == norm {
			return p, nil
		}
	}
	return providerUnknownValue, fmt.Errorf("unknown provider %q", s)
}

func (p Provider) Valid() bool {
	_, err := ParseProvider(string(p))
	return err == nil
}

// InitialStatus 订单首次创建时的状态，通知即代表扣款完成的渠道从 PROCESSING 开始
func (p Provider) InitialStatus() Status {
	switch p {
	case ProviderCard, ProviderHostedCartA:
		return StatusProcessing
	default:
		return StatusPending
	}
}

// Address 未知字段保持空串，不使用 nil
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

func (a Address) IsZero() bool {
	return a == Address{}
}

type Item struct {
	ProductRef string `json:"product_ref"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	UnitPrice  int64  `json:"unit_price"` // 最小货币单位
	Quantity   int32  `json:"quantity"`
}

// Order 规范化后的订单，金额均为最小货币单位
type Order struct {
	ID                    string
	ProviderTransactionID string
	Provider              Provider
	UserID                string // 空串表示游客订单
	CustomerEmail         string
	Status                Status
	Total                 int64 // 折扣前总额
	Currency              string
	Items                 []Item
	ShippingAddress       Address
	BillingAddress        Address
	CouponCode            string
	DiscountAmount        int64
	TrackingNumber        string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Subtotal 商品行金额合计，溢出时截断为 math.MaxInt64，调用方应先 ValidateItems
func Subtotal(items []Item) int64 {
	var sum int64
	for _, item := range items {
		amount, ok := lineAmount(item)
		if !ok || sum > math.MaxInt64-amount {
			return math.MaxInt64
		}
		sum += amount
	}
	return sum
}

// ItemCount 商品件数合计
func ItemCount(items []Item) int {
	n := 0
	for _, item := range items {
		n += int(item.Quantity)
	}
	return n
}

func lineAmount(item Item) (int64, bool) {
	if item.Quantity <= 0 || item.UnitPrice <= 0 {
		return 0, item.Quantity >= 0 && item.UnitPrice >= 0
	}
	if item.UnitPrice > math.MaxInt64/int64(item.Quantity) {
		return 0, false
	}
	return item.UnitPrice * int64(item.Quantity), true
}

// ValidateItems 数量至少为 1，单价非负，合计不溢出
func ValidateItems(items []Item) error {
	var sum int64
	for i, item := range items {
		if item.Quantity < 1 {
			return fmt.Errorf("item %d: quantity must be at least 1", i)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("item %d: unit price must not be negative", i)
		}
		amount, ok := lineAmount(item)
		if !ok || sum > math.MaxInt64-amount {
			return fmt.Errorf("item %d: amount overflows", i)
		}
		sum += amount
	}
	return nil
}

// AmountDue 实际应付金额
func (o *Order) AmountDue() int64 {
	return o.Total - o.DiscountAmount
}

func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// Validate 校验订单不变量
func (o *Order) Validate() error {
	if !o.Provider.Valid() {
		return fmt.Errorf("invalid provider %q", o.Provider)
	}
	if o.ProviderTransactionID == "" {
		return fmt.Errorf("provider transaction id is required")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("invalid status %q", o.Status)
	}
	if o.Total < 0 {
		return fmt.Errorf("total must not be negative")
	}
	if o.DiscountAmount < 0 || o.DiscountAmount > o.Total {
		return fmt.Errorf("discount %d out of range [0, %d]", o.DiscountAmount, o.Total)
	}
	return ValidateItems(o.Items)
}

// Clone 深拷贝，内存仓储和快照比对使用
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.Items != nil {
		c.Items = make([]Item, len(o.Items))
		copy(c.Items, o.Items)
	}
	return &c
}

// Fields 非状态字段的更新，nil 表示不修改
type Fields struct {
	UserID          *string
	CustomerEmail   *string
	TrackingNumber  *string
	ShippingAddress *Address
	BillingAddress  *Address
	CouponCode      *string
	DiscountAmount  *int64
}

func (f Fields) IsEmpty() bool {
	return f == Fields{}
}

// Apply 把字段写入订单，返回是否有变化
func (f Fields) Apply(o *Order) bool {
	changed := false
	setStr := func(dst *string, v *string) {
		if v != nil && *dst != *v {
			*dst = *v
			changed = true
		}
	}
	setStr(&o.UserID, f.UserID)
	setStr(&o.CustomerEmail, f.CustomerEmail)
	setStr(&o.TrackingNumber, f.TrackingNumber)
	setStr(&o.CouponCode, f.CouponCode)
	if f.ShippingAddress != nil && o.ShippingAddress != *f.ShippingAddress {
		o.ShippingAddress = *f.ShippingAddress
		changed = true
	}
	if f.BillingAddress != nil && o.BillingAddress != *f.BillingAddress {
		o.BillingAddress = *f.BillingAddress
		changed = true
	}
	if f.DiscountAmount != nil && o.DiscountAmount != *f.DiscountAmount {
		o.DiscountAmount = *f.DiscountAmount
		changed = true
	}
	return changed
}

func StringPtr(s string) *string {
	return &s
}

func Int64Ptr(v int64) *int64 {
	return &v
}
