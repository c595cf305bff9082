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

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skyhooked/ordercore"
	"github.com/skyhooked/ordercore/coupon"
	"github.com/skyhooked/ordercore/order"
)

type txnKey struct {
	provider order.Provider
	txnID    string
}

// OrderStore 单进程订单存储，唯一键语义与 SQL 实现一致，用于测试和本地运行
type OrderStore struct {
	mu    sync.RWMutex
	byID  map[string]*order.Order
	byTxn map[txnKey]string
	now   func() time.Time
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		byID:  map[string]*order.Order{},
		byTxn: map[txnKey]string{},
		now:   time.Now,
	}
}

func (s *OrderStore) FindByProviderTxn(ctx context.Context, provider order.Provider, txnID string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTxn[txnKey{provider, txnID}]
	if !ok {
		return nil, nil
	}
	return s.byID[id].Clone(), nil
}

func (s *OrderStore) FindByID(ctx context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id].Clone(), nil
}

func (s *OrderStore) FindByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*order.Order, 0)
	for _, o := range s.byID {
		if o.UserID == userID {
			result = append(result, o.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *OrderStore) Create(ctx context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := txnKey{o.Provider, o.ProviderTransactionID}
	if _, ok := s.byTxn[key]; ok {
		return ordercore.ErrDuplicateKey
	}
	if _, ok := s.byID[o.ID]; ok {
		return ordercore.ErrDuplicateKey
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	s.byID[o.ID] = o.Clone()
	s.byTxn[key] = o.ID
	return nil
}

func (s *OrderStore) UpdateStatus(ctx context.Context, id string, from, to order.Status, fields order.Fields) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok || o.Status != from {
		return nil, nil
	}
	fields.Apply(o)
	o.Status = to
	o.UpdatedAt = s.now()
	return o.Clone(), nil
}

func (s *OrderStore) UpdateDetails(ctx context.Context, id string, fields order.Fields) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	if fields.Apply(o) {
		o.UpdatedAt = s.now()
	}
	return o.Clone(), nil
}

func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// CouponStore 单进程券存储
type CouponStore struct {
	mu      sync.Mutex
	coupons map[string]*coupon.Coupon
}

func NewCouponStore() *CouponStore {
	return &CouponStore{coupons: map[string]*coupon.Coupon{}}
}

func (s *CouponStore) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[coupon.NormalizeCode(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *CouponStore) Create(ctx context.Context, c *coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.coupons[c.Code]; ok {
		return coupon.ErrDuplicateCode
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.coupons[c.Code] = c.Clone()
	return nil
}

func (s *CouponStore) SetActive(ctx context.Context, code string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[coupon.NormalizeCode(code)]
	if !ok {
		return coupon.ErrNotFound
	}
	c.IsActive = active
	c.UpdatedAt = time.Now()
	return nil
}

func (s *CouponStore) IncrementUsage(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[coupon.NormalizeCode(code)]
	if !ok {
		return false, coupon.ErrNotFound
	}
	if c.Exhausted() {
		return false, nil
	}
	c.UsageCount++
	c.UpdatedAt = time.Now()
	return true, nil
}
