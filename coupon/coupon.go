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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCoupon  = errors.New("invalid coupon")
	ErrNotFound       = errors.New("coupon not found")
	ErrDuplicateCode  = errors.New("coupon code already exists")
	ErrUsageExhausted = errors.New("coupon usage limit reached")
	ErrInvalidItems   = errors.New("invalid order items")
)

type Type string

const (
	TypePercentage   Type = "PERCENTAGE"
	TypeFixedAmount  Type = "FIXED_AMOUNT"
	TypeFreeShipping Type = "FREE_SHIPPING"
	TypeBundleDeal   Type = "BUNDLE_DEAL"
)

func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TypePercentage, TypeFixedAmount, TypeFreeShipping, TypeBundleDeal:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrInvalidCoupon, s)
}

// Coupon 折扣规则，金额字段均为最小货币单位
type Coupon struct {
	ID                    string
	Code                  string
	Type                  Type
	Value                 decimal.Decimal
	MinimumOrderAmount    *int64 // nil 不限制
	MaximumDiscountAmount *int64 // nil 不封顶
	UsageLimit            *int64 // nil 不限次数
	UsageCount            int64
	IsActive              bool
	ValidFrom             time.Time
	ValidUntil            *time.Time // nil 长期有效
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NormalizeCode 券码大小写不敏感，统一去空格转大写
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Normalize 规整券码与面值，FREE_SHIPPING 不携带金额
func (c *Coupon) Normalize() {
	c.Code = NormalizeCode(c.Code)
	c.Type = Type(strings.ToUpper(strings.TrimSpace(string(c.Type))))
	if c.Type == TypeFreeShipping {
		c.Value = decimal.Zero
	}
}

func (c *Coupon) Validate() error {
	if c.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidCoupon)
	}
	if _, err := ParseType(string(c.Type)); err != nil {
		return err
	}
	switch c.Type {
	case TypePercentage:
		if !c.Value.IsPositive() || c.Value.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percentage must be in (0, 100], got %s", ErrInvalidCoupon, c.Value)
		}
	case TypeFixedAmount:
		if !c.Value.IsPositive() || !c.Value.IsInteger() {
			return fmt.Errorf("%w: fixed amount must be a positive integer, got %s", ErrInvalidCoupon, c.Value)
		}
	case TypeBundleDeal:
		if !c.Value.IsInteger() || c.Value.LessThan(decimal.NewFromInt(2)) {
			return fmt.Errorf("%w: bundle size must be an integer >= 2, got %s", ErrInvalidCoupon, c.Value)
		}
	case TypeFreeShipping:
		if !c.Value.IsZero() {
			return fmt.Errorf("%w: free shipping carries no value", ErrInvalidCoupon)
		}
	}
	for name, v := range map[string]*int64{
		"minimum order amount":    c.MinimumOrderAmount,
		"maximum discount amount": c.MaximumDiscountAmount,
		"usage limit":             c.UsageLimit,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidCoupon, name)
		}
	}
	if c.UsageCount < 0 {
		return fmt.Errorf("%w: usage count must not be negative", ErrInvalidCoupon)
	}
	if c.ValidUntil != nil && c.ValidUntil.Before(c.ValidFrom) {
		return fmt.Errorf("%w: valid until is before valid from", ErrInvalidCoupon)
	}
	return nil
}

// New 创建一张启用状态的券并校验不变量
func New(code string, t Type, value decimal.Decimal, validFrom time.Time) (*Coupon, error) {
	c := &Coupon{
		Code:      code,
		Type:      t,
		Value:     value,
		IsActive:  true,
		ValidFrom: validFrom,
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit
}

func (c *Coupon) Clone() *Coupon {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
