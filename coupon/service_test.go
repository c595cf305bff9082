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
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyhooked/ordercore/order"
)

type mapStore struct {
	mu      sync.Mutex
	coupons map[string]*Coupon
}

func newMapStore() *mapStore {
	return &mapStore{coupons: map[string]*Coupon{}}
}

func (m *mapStore) FindByCode(ctx context.Context, code string) (*Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (m *mapStore) Create(ctx context.Context, c *Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coupons[c.Code]; ok {
		return ErrDuplicateCode
	}
	m.coupons[c.Code] = c.Clone()
	return nil
}

func (m *mapStore) SetActive(ctx context.Context, code string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return ErrNotFound
	}
	c.IsActive = active
	return nil
}

func (m *mapStore) IncrementUsage(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return false, ErrNotFound
	}
	if c.Exhausted() {
		return false, nil
	}
	c.UsageCount++
	return true, nil
}

type countingCache struct {
	mapStore
	hits, deletes int
}

func (c *countingCache) Get(ctx context.Context, code string) (*Coupon, bool) {
	cp, err := c.FindByCode(ctx, code)
	if err == nil {
		c.hits++
	}
	return cp, err == nil
}

func (c *countingCache) Set(ctx context.Context, cp *Coupon) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coupons[cp.Code] = cp.Clone()
}

func (c *countingCache) Delete(ctx context.Context, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.coupons, code)
	c.deletes++
}

func TestServiceApply(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMapStore(), WithClock(func() time.Time { return now }))

	_, err := svc.Create(ctx, &Coupon{Code: " save10 ", Type: TypePercentage, Value: decimal.NewFromInt(10), IsActive: true})
	require.NoError(t, err)

	_, err = svc.Create(ctx, &Coupon{Code: "SAVE10", Type: TypePercentage, Value: decimal.NewFromInt(10), IsActive: true})
	assert.ErrorIs(t, err, ErrDuplicateCode)

	res, err := svc.Apply(ctx, ApplyRequest{
		Code:  "Save10",
		Items: []order.Item{{Name: "a", UnitPrice: 1250, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.Equal(t, int64(250), res.Result.DiscountAmount)
	assert.Equal(t, "SAVE10", res.Coupon.Code)

	res, err = svc.Apply(ctx, ApplyRequest{Code: "missing", Subtotal: 100, ItemCount: 1})
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, res.Rejection.Reason)
}

func TestServiceRedeemAndDeactivate(t *testing.T) {
	ctx := context.Background()
	cache := &countingCache{mapStore: mapStore{coupons: map[string]*Coupon{}}}
	svc := NewService(newMapStore(), WithCache(cache), WithClock(func() time.Time { return now }))

	c := &Coupon{Code: "ONCE", Type: TypeFixedAmount, Value: decimal.NewFromInt(500), IsActive: true, UsageLimit: i64(1)}
	_, err := svc.Create(ctx, c)
	require.NoError(t, err)

	res, err := svc.Apply(ctx, ApplyRequest{Code: "once", Subtotal: 1000, ItemCount: 1})
	require.NoError(t, err)
	assert.True(t, res.Accepted())

	// 第二次命中缓存
	_, err = svc.Apply(ctx, ApplyRequest{Code: "once", Subtotal: 1000, ItemCount: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	require.NoError(t, svc.Redeem(ctx, "once"))
	assert.ErrorIs(t, svc.Redeem(ctx, "ONCE"), ErrUsageExhausted)

	res, err = svc.Apply(ctx, ApplyRequest{Code: "once", Subtotal: 1000, ItemCount: 1})
	require.NoError(t, err)
	assert.Equal(t, ReasonUsageExhausted, res.Rejection.Reason)

	require.NoError(t, svc.Deactivate(ctx, "once"))
	res, err = svc.Apply(ctx, ApplyRequest{Code: "once", Subtotal: 1000, ItemCount: 1})
	require.NoError(t, err)
	assert.Equal(t, ReasonInactive, res.Rejection.Reason)

	assert.ErrorIs(t, svc.Deactivate(ctx, "nope"), ErrNotFound)
}

func TestServiceApplyRejectsBadItems(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMapStore(), WithClock(func() time.Time { return now }))
	_, err := svc.Create(ctx, &Coupon{Code: "TEN", Type: TypePercentage, Value: decimal.NewFromInt(10), IsActive: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, &Coupon{Code: "THREE", Type: TypeBundleDeal, Value: decimal.NewFromInt(3), IsActive: true})
	require.NoError(t, err)

	_, err = svc.Apply(ctx, ApplyRequest{Code: "ten", Items: []order.Item{{UnitPrice: 100, Quantity: -1}}})
	assert.ErrorIs(t, err, ErrInvalidItems)

	_, err = svc.Apply(ctx, ApplyRequest{Code: "ten", Items: []order.Item{{UnitPrice: -5, Quantity: 1}}})
	assert.ErrorIs(t, err, ErrInvalidItems)

	_, err = svc.Apply(ctx, ApplyRequest{Code: "ten", Subtotal: -1})
	assert.ErrorIs(t, err, ErrInvalidItems)

	_, err = svc.Apply(ctx, ApplyRequest{Code: "ten", Items: []order.Item{{UnitPrice: math.MaxInt64, Quantity: 2}}})
	assert.ErrorIs(t, err, ErrInvalidItems)

	// 大数量只按行计算
	res, err := svc.Apply(ctx, ApplyRequest{Code: "ten", Items: []order.Item{{UnitPrice: 100, Quantity: math.MaxInt32}}})
	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.Equal(t, int64(100*math.MaxInt32/10), res.Result.DiscountAmount)

	res, err = svc.Apply(ctx, ApplyRequest{Code: "three", Items: []order.Item{{UnitPrice: 7, Quantity: math.MaxInt32}}})
	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.Equal(t, int64(7*(math.MaxInt32/3)), res.Result.DiscountAmount)
}
