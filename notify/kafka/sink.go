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
	"fmt"

	"github.com/go-logr/logr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/skyhooked/ordercore/logger/stdr"
	"github.com/skyhooked/ordercore/notify"
)

const DefaultTopic = "ordercore.order-notifications"

var defaultLogger = stdr.NewStdr("kafka_sink")

// producer kgo.Client 的子集
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Sink 把通知写入 kafka，由下游邮件服务消费；以订单 id 作为 key 保证同一订单有序
type Sink struct {
	client producer
	topic  string
	logger logr.Logger
}

type Option func(s *Sink)

func WithTopic(topic string) Option {
	return func(s *Sink) {
		s.topic = topic
	}
}

func WithLogger(l logr.Logger) Option {
	return func(s *Sink) {
		s.logger = l
	}
}

func NewSink(brokers []string, options ...Option) (*Sink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return newSink(client, options...), nil
}

func newSink(client producer, options ...Option) *Sink {
	s := &Sink{client: client, topic: DefaultTopic, logger: defaultLogger}
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *Sink) Deliver(ctx context.Context, msg *notify.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(msg.OrderID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(msg.Kind)},
			{Key: "message_id", Value: []byte(msg.ID)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce notification %s: %w", msg.ID, err)
	}
	s.logger.V(1).Info("notification produced", "id", msg.ID, "topic", s.topic)
	return nil
}

func (s *Sink) Close() {
	s.client.Close()
}
