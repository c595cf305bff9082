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
	"errors"
	"fmt"

	"github.com/skyhooked/ordercore/order"
)

var (
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrNotFound          = errors.New("order not found")
	ErrLocked            = errors.New("resource locked")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminalOrder     = errors.New("order is in a terminal status")
	ErrCouponsDisabled   = errors.New("coupon service not configured")
)

// AuthenticationError 签名缺失或校验失败，不应产生任何副作用
type AuthenticationError struct {
	Provider order.Provider
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Provider, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// ValidationError 报文格式错误或订单必填字段缺失
type ValidationError struct {
	Err error
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Err: fmt.Errorf(format, args...)}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ConflictError 并发创建冲突，调用方按已存在处理并回读
type ConflictError struct {
	Provider              order.Provider
	ProviderTransactionID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order %s/%s already exists", e.Provider, e.ProviderTransactionID)
}

func (e *ConflictError) Unwrap() error {
	return ErrDuplicateKey
}

// NotificationError 通知发送失败，仅记录日志，不影响已持久化的状态
type NotificationError struct {
	Kind    order.NotificationKind
	OrderID string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("send %s notification for order %s: %v", e.Kind, e.OrderID, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsAuthentication(err error) bool {
	var a *AuthenticationError
	return errors.As(err, &a)
}
