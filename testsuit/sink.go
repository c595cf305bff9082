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

package testsuit

import (
	"context"
	"sync"

	"github.com/skyhooked/ordercore/notify"
)

// Inbox 记录投递的通知，前 FailTimes 次投递返回 Err
type Inbox struct {
	mu        sync.Mutex
	messages  []*notify.Message
	attempts  int
	Err       error
	FailTimes int
}

func NewInbox() *Inbox {
	return &Inbox{}
}

func (i *Inbox) Deliver(ctx context.Context, msg *notify.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.attempts++
	if i.Err != nil && (i.FailTimes <= 0 || i.attempts <= i.FailTimes) {
		return i.Err
	}
	i.messages = append(i.messages, msg)
	return nil
}

func (i *Inbox) Messages() []*notify.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	result := make([]*notify.Message, len(i.messages))
	copy(result, i.messages)
	return result
}

func (i *Inbox) Attempts() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.attempts
}
