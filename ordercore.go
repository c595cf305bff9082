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

	"github.com/rs/xid"

	"github.com/skyhooked/ordercore/order"
)

// OrderRepository 订单存储，(provider, provider_txn_id) 唯一约束是幂等的最终保证
type OrderRepository interface {
	// FindByProviderTxn 不存在时返回 nil, nil
	FindByProviderTxn(ctx context.Context, provider order.Provider, txnID string) (*order.Order, error)
	// FindByID 不存在时返回 nil, nil
	FindByID(ctx context.Context, id string) (*order.Order, error)
	FindByUser(ctx context.Context, userID string) ([]*order.Order, error)
	// Create 唯一键冲突时返回 ErrDuplicateKey
	Create(ctx context.Context, o *order.Order) error
	// UpdateStatus 仅当当前状态为 from 时更新，订单不存在或状态已变返回 nil, nil
	UpdateStatus(ctx context.Context, id string, from, to order.Status, fields order.Fields) (*order.Order, error)
	// UpdateDetails 更新非状态字段，订单不存在返回 nil, nil
	UpdateDetails(ctx context.Context, id string, fields order.Fields) (*order.Order, error)
}

// Dispatcher 发送订单通知，调用方只记录错误
type Dispatcher interface {
	Send(ctx context.Context, kind order.NotificationKind, o *order.Order, extra map[string]string) error
}

type DispatcherFunc func(ctx context.Context, kind order.NotificationKind, o *order.Order, extra map[string]string) error

func (f DispatcherFunc) Send(ctx context.Context, kind order.NotificationKind, o *order.Order, extra map[string]string) error {
	return f(ctx, kind, o, extra)
}

type ILock interface {
	Lock(ctx context.Context, key string) (keyLock interface{}, err error)
	UnLock(ctx context.Context, keyLock interface{}) error
}

// IRenewLock 持锁执行 fn，期间自动续期，续期失败时取消 fn 的 ctx
type IRenewLock interface {
	ILock
	Run(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type IIDGenerator interface {
	NewID() (string, error)
}

type defaultIDGenerator struct {
}

func (d *defaultIDGenerator) NewID() (string, error) {
	guid := xid.New()
	return guid.String(), nil
}

type noDispatcher struct {
}

func (noDispatcher) Send(ctx context.Context, kind order.NotificationKind, o *order.Order, extra map[string]string) error {
	return nil
}
