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

package outbox

import (
	"time"

	"github.com/skyhooked/ordercore/notify"
)

type MessageStatus int8

const (
	StatusPending MessageStatus = 1
	StatusSent    MessageStatus = 2
	StatusDead    MessageStatus = 3 // 重试耗尽，留给人工处理
)

// MessagePO 通知发件箱
/*
CREATE TABLE `ordercore_notification_outbox` (
   `id` bigint NOT NULL AUTO_INCREMENT,
   `message_id` varchar(32) NOT NULL,
   `kind` varchar(32) NOT NULL,
   `order_id` varchar(32) NOT NULL,
   `message` text NOT NULL,
   `status` tinyint NOT NULL,
   `retry_count` int NOT NULL DEFAULT 0,
   `next_retry_at` datetime(3) NOT NULL,
   `last_error` varchar(512) DEFAULT NULL,
   `created_at` datetime(3) DEFAULT NULL,
   `updated_at` datetime(3) DEFAULT NULL,
   PRIMARY KEY (`id`),
   UNIQUE KEY `uk_message_id` (`message_id`),
   KEY `idx_order_id` (`order_id`),
   KEY `idx_status_next_retry` (`status`, `next_retry_at`)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
*/
type MessagePO struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	MessageID   string          `gorm:"column:message_id;size:32;uniqueIndex:uk_message_id"`
	Kind        string          `gorm:"size:32"`
	OrderID     string          `gorm:"size:32;index"`
	Message     *notify.Message `gorm:"serializer:json;type:text"`
	Status      MessageStatus   `gorm:"index:idx_status_next_retry,priority:1"`
	RetryCount  int             // 已重试次数，0 表示首次投递
	NextRetryAt time.Time       `gorm:"index:idx_status_next_retry,priority:2"`
	LastError   string          `gorm:"size:512"`
	CreatedAt   time.Time       `gorm:"index"`
	UpdatedAt   time.Time
}

func (o *MessagePO) TableName() string {
	return "ordercore_notification_outbox"
}

func messagePersist(msg *notify.Message) *MessagePO {
	return &MessagePO{
		MessageID:   msg.ID,
		Kind:        string(msg.Kind),
		OrderID:     msg.OrderID,
		Message:     msg,
		Status:      StatusPending,
		NextRetryAt: msg.CreatedAt,
	}
}
