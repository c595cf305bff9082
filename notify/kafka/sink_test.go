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

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/skyhooked/ordercore/notify"
	"github.com/skyhooked/ordercore/order"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func (f *fakeProducer) Close() {
	f.closed = true
}

func TestDeliver(t *testing.T) {
	p := &fakeProducer{}
	s := newSink(p, WithTopic("orders"))
	msg := notify.NewMessage(order.NotifyShipped, &order.Order{ID: "o1", TrackingNumber: "T1"}, nil)
	require.NoError(t, s.Deliver(context.Background(), msg))

	require.Len(t, p.records, 1)
	r := p.records[0]
	assert.Equal(t, "orders", r.Topic)
	assert.Equal(t, "o1", string(r.Key))
	assert.Equal(t, "shipped", string(r.Headers[0].Value))

	got := &notify.Message{}
	require.NoError(t, json.Unmarshal(r.Value, got))
	assert.Equal(t, "T1", got.TrackingNumber)

	s.Close()
	assert.True(t, p.closed)
}

func TestDeliverError(t *testing.T) {
	p := &fakeProducer{err: errors.New("broker down")}
	s := newSink(p)
	err := s.Deliver(context.Background(), notify.NewMessage(order.NotifyShipped, &order.Order{ID: "o1"}, nil))
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, DefaultTopic, p.records[0].Topic)
}
