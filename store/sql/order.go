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
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/skyhooked/ordercore"
	"github.com/skyhooked/ordercore/order"
)

type OrderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db, now: time.Now}
}

func (r *OrderRepository) first(db *gorm.DB, query string, args ...interface{}) (*order.Order, error) {
	po := &OrderPO{}
	if err := db.Where(query, args...).First(po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return orderFromPO(po), nil
}

func (r *OrderRepository) FindByProviderTxn(ctx context.Context, provider order.Provider, txnID string) (*order.Order, error) {
	return r.first(r.db.WithContext(ctx), "provider = ? AND provider_txn_id = ?", string(provider), txnID)
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	return r.first(r.db.WithContext(ctx), "id = ?", id)
}

func (r *OrderRepository) FindByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	pos := make([]*OrderPO, 0)
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&pos).Error; err != nil {
		return nil, err
	}
	result := make([]*order.Order, 0, len(pos))
	for _, po := range pos {
		result = append(result, orderFromPO(po))
	}
	return result, nil
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = r.now()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	if err := r.db.WithContext(ctx).Create(orderToPO(o)).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %v", ordercore.ErrDuplicateKey, err)
		}
		return err
	}
	return nil
}

// update 在事务内读取当前记录，只更新变更列；from 非空时作为状态的 compare-and-set 条件
func (r *OrderRepository) update(ctx context.Context, id string, from, to order.Status, fields order.Fields) (*order.Order, error) {
	var result *order.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query, args := "id = ?", []interface{}{id}
		if from != "" {
			query, args = "id = ? AND status = ?", []interface{}{id, string(from)}
		}
		current, err := r.first(tx, query, args...)
		if err != nil || current == nil {
			return err
		}

		next := current.Clone()
		changed := fields.Apply(next)
		if to != "" && next.Status != to {
			next.Status = to
			changed = true
		}
		if !changed {
			result = current
			return nil
		}
		if err := next.Validate(); err != nil {
			return err
		}
		next.UpdatedAt = r.now()

		curr, prev := orderToPO(next), orderToPO(current)
		cols := DiffModel(curr, prev)
		res := tx.Model(&OrderPO{}).Where(query, args...).Select(cols).Updates(curr)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, fields order.Fields) (*order.Order, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("update status %s: from and to are required", id)
	}
	return r.update(ctx, id, from, to, fields)
}

func (r *OrderRepository) UpdateDetails(ctx context.Context, id string, fields order.Fields) (*order.Order, error) {
	return r.update(ctx, id, "", "", fields)
}
