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

package gateway

import (
	"strings"

	"github.com/skyhooked/ordercore/order"
)

// StatusTable 渠道原始状态到规范状态的映射，key 统一小写
type StatusTable map[string]order.Status

// Map 未知状态兜底为 PROCESSING，宁可多建单也不丢交易
func (t StatusTable) Map(raw string) (status order.Status, unmapped bool) {
	if s, ok := t[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s, false
	}
	return order.StatusProcessing, true
}

// CardStatuses 卡支付渠道以事件类型作为原始状态
var CardStatuses = StatusTable{
	"payment_intent.created":                   order.StatusPending,
	"payment_intent.processing":                order.StatusPending,
	"payment_intent.requires_action":           order.StatusPending,
	"payment_intent.amount_capturable_updated": order.StatusPending,
	"payment_intent.succeeded":                 order.StatusProcessing,
	"payment_intent.payment_failed":            order.StatusCancelled,
	"payment_intent.canceled":                  order.StatusCancelled,
	"charge.pending":                           order.StatusPending,
	"charge.succeeded":                         order.StatusProcessing,
	"charge.captured":                          order.StatusProcessing,
	"charge.failed":                            order.StatusCancelled,
	"charge.refunded":                          order.StatusRefunded,
	"charge.dispute.created":                   order.StatusCancelled,
}

var HostedCartAStatuses = StatusTable{
	"pending":    order.StatusPending,
	"inprogress": order.StatusProcessing,
	"processed":  order.StatusProcessing,
	"shipped":    order.StatusShipped,
	"delivered":  order.StatusDelivered,
	"cancelled":  order.StatusCancelled,
	"disputed":   order.StatusCancelled,
}

var HostedCartBStatuses = StatusTable{
	"pending":    order.StatusPending,
	"authorized": order.StatusPending,
	"approved":   order.StatusProcessing,
	"captured":   order.StatusProcessing,
	"completed":  order.StatusProcessing,
	"paid":       order.StatusProcessing,
	"shipped":    order.StatusShipped,
	"delivered":  order.StatusDelivered,
	"declined":   order.StatusCancelled,
	"rejected":   order.StatusCancelled,
	"voided":     order.StatusCancelled,
	"cancelled":  order.StatusCancelled,
	"refunded":   order.StatusRefunded,
}
