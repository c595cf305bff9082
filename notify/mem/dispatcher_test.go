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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyhooked/ordercore/order"
	"github.com/skyhooked/ordercore/testsuit"
)

func TestDispatcher(t *testing.T) {
	inbox := testsuit.NewInbox()
	d := NewDispatcher(10, inbox)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	d.Start(ctx)

	require.NoError(t, d.Send(ctx, order.NotifyShipped, &order.Order{ID: "o1"}, nil))
	assert.Eventually(t, func() bool { return len(inbox.Messages()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	d.Wait()
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(1, testsuit.NewInbox())
	ctx := context.Background()
	require.NoError(t, d.Send(ctx, order.NotifyShipped, &order.Order{ID: "o1"}, nil))
	assert.ErrorIs(t, d.Send(ctx, order.NotifyShipped, &order.Order{ID: "o2"}, nil), ErrQueueFull)
}

func TestDispatcherDrainsOnStop(t *testing.T) {
	inbox := testsuit.NewInbox()
	d := NewDispatcher(5, inbox)
	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Send(ctx, order.NotifyDelivered, &order.Order{ID: "o"}, nil))
	}
	cancel()
	d.Start(ctx)
	d.Wait()
	assert.Len(t, inbox.Messages(), 3)
}
