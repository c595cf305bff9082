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

package notify

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/rs/xid"

	"github.com/skyhooked/ordercore/logger/stdr"
	"github.com/skyhooked/ordercore/order"
)

var defaultLogger = stdr.NewStdr("notify")

// Message 通知的序列化形式，Kind 即邮件模板选择器
type Message struct {
	ID             string                 `json:"id"`
	Kind           order.NotificationKind `json:"kind"`
	OrderID        string                 `json:"order_id"`
	Provider       order.Provider         `json:"provider"`
	Status         order.Status           `json:"status"`
	UserID         string                 `json:"user_id,omitempty"`
	CustomerEmail  string                 `json:"customer_email,omitempty"`
	TrackingNumber string                 `json:"tracking_number,omitempty"`
	AmountDue      int64                  `json:"amount_due"`
	Currency       string                 `json:"currency"`
	Extra          map[string]string      `json:"extra,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

func NewMessage(kind order.NotificationKind, o *order.Order, extra map[string]string) *Message {
	return &Message{
		ID:             xid.New().String(),
		Kind:           kind,
		OrderID:        o.ID,
		Provider:       o.Provider,
		Status:         o.Status,
		UserID:         o.UserID,
		CustomerEmail:  o.CustomerEmail,
		TrackingNumber: o.TrackingNumber,
		AmountDue:      o.AmountDue(),
		Currency:       o.Currency,
		Extra:          extra,
		CreatedAt:      time.Now(),
	}
}

// Sink 通知的最终投递方，例如邮件服务或消息队列
type Sink interface {
	Deliver(ctx context.Context, msg *Message) error
}

type SinkFunc func(ctx context.Context, msg *Message) error

func (f SinkFunc) Deliver(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Direct 同步投递，实现 ordercore.Dispatcher
type Direct struct {
	sink Sink
}

func NewDirect(sink Sink) *Direct {
	return &Direct{sink: sink}
}

func (d *Direct) Send(ctx context.Context, kind order.NotificationKind, o *order.Order, extra map[string]string) error {
	return d.sink.Deliver(ctx, NewMessage(kind, o, extra))
}

// LogSink 只记录日志，未接入邮件服务时使用
type LogSink struct {
	logger logr.Logger
}

func NewLogSink(l *logr.Logger) *LogSink {
	if l == nil {
		return &LogSink{logger: defaultLogger}
	}
	return &LogSink{logger: *l}
}

func (s *LogSink) Deliver(ctx context.Context, msg *Message) error {
	s.logger.Info("notification", "id", msg.ID, "kind", msg.Kind, "order", msg.OrderID,
		"email", msg.CustomerEmail, "tracking_number", msg.TrackingNumber)
	return nil
}
