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

	"github.com/skyhooked/ordercore/coupon"
)

type CouponStore struct {
	db *gorm.DB
}

func NewCouponStore(db *gorm.DB) *CouponStore {
	return &CouponStore{db: db}
}

func (s *CouponStore) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	po := &CouponPO{}
	err := s.db.WithContext(ctx).Where("code = ?", coupon.NormalizeCode(code)).First(po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, coupon.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return couponFromPO(po), nil
}

func (s *CouponStore) Create(ctx context.Context, c *coupon.Coupon) error {
	po := couponToPO(c)
	if err := s.db.WithContext(ctx).Create(po).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %s", coupon.ErrDuplicateCode, c.Code)
		}
		return err
	}
	c.CreatedAt, c.UpdatedAt = po.CreatedAt, po.UpdatedAt
	return nil
}

func (s *CouponStore) SetActive(ctx context.Context, code string, active bool) error {
	res := s.db.WithContext(ctx).Model(&CouponPO{}).
		Where("code = ?", coupon.NormalizeCode(code)).
		Updates(map[string]interface{}{"is_active": active, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// IncrementUsage 条件更新保证并发下不超过次数上限
func (s *CouponStore) IncrementUsage(ctx context.Context, code string) (bool, error) {
	code = coupon.NormalizeCode(code)
	res := s.db.WithContext(ctx).Model(&CouponPO{}).
		Where("code = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", code).
		Updates(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count + 1"),
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&CouponPO{}).Where("code = ?", code).Count(&n).Error; err != nil {
		return false, err
	}
	if n == 0 {
		return false, coupon.ErrNotFound
	}
	return false, nil
}
