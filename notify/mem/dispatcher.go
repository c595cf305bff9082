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

package mem

import (
	"context"
	"errors"
	"sync"

	"github.com/go-logr/logr"

	"github.com/skyhooked/ordercore/logger/stdr"
	"github.com/skyhooked/ordercore/notify"
	"github.com/skyhooked/ordercore/order"
)

var ErrQueueFull = errors.New("notification queue is full")

var defaultLogger = stdr.NewStdr("mem_dispatcher")

// Dispatcher 进程内异步投递，队列满时直接返回错误，不阻塞调用方
type Dispatcher struct {
	ch     chan *notify.Message
	sink   notify.Sink
	logger logr.Logger

	once sync.Once
	wg   sync.WaitGroup
}

func NewDispatcher(capacity int, sink notify.Sink) *Dispatcher {
	return &Dispatcher{
		ch:     make(chan *notify.Message, capacity),
		sink:   sink,
		logger: defaultLogger,
	}
}

func (d *Dispatcher) Send(ctx context.Context, kind order.NotificationKind, o *order.Order, extra map[string]string) error {
	select {
	case d.ch <- notify.NewMessage(kind, o, extra):
		return nil
	default:
		return ErrQueueFull
	}
}

// Start 启动消费协程，ctx 结束后把队列中剩余的消息投递完再退出
func (d *Dispatcher) Start(ctx context.Context) {
	run := func() {
		defer d.wg.Done()
		for {
			select {
			case msg := <-d.ch:
				d.deliver(context.Background(), msg)
			case <-ctx.Done():
				for {
					select {
					case msg := <-d.ch:
						d.deliver(context.Background(), msg)
					default:
						return
					}
				}
			}
		}
	}
	// 确保只启动一次
	d.once.Do(func() {
		d.wg.Add(1)
		go run()
	})
}

// Wait 等待消费协程退出
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, msg *notify.Message) {
	if err := d.sink.Deliver(ctx, msg); err != nil {
		d.logger.Error(err, "deliver notification failed", "id", msg.ID, "kind", msg.Kind, "order", msg.OrderID)
	}
}
