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

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// transitions 允许的状态流转，终态没有出边
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered},
}

var terminals = map[Status]bool{
	StatusDelivered: true,
	StatusCancelled: true,
	StatusRefunded:  true,
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return terminals[s]
}

// CanTransition 判断 s -> to 是否在流转表内，相同状态不算流转
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CreatesOrder 未知订单收到该状态时是否需要建单
// 失败、退款类通知对不存在的订单没有意义，直接忽略
func (s Status) CreatesOrder() bool {
	switch s {
	case StatusCancelled, StatusRefunded:
		return false
	}
	return s.Valid()
}

type NotificationKind string

const (
	NotifyShipped   NotificationKind = "shipped"
	NotifyDelivered NotificationKind = "delivered"
	NotifyCancelled NotificationKind = "cancelled"
)

// NotificationFor 进入某状态后需要发送的通知
// PENDING/PROCESSING/REFUNDED 不通知，退款通知由后台人工流程负责
func NotificationFor(s Status) (NotificationKind, bool) {
	switch s {
	case StatusShipped:
		return NotifyShipped, true
	case StatusDelivered:
		return NotifyDelivered, true
	case StatusCancelled:
		return NotifyCancelled, true
	}
	return "", false
}
