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
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/skyhooked/ordercore"
	"github.com/skyhooked/ordercore/logger/stdr"
	"github.com/skyhooked/ordercore/metrics"
	"github.com/skyhooked/ordercore/order"
)

var (
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrUnhandledEventType = errors.New("unhandled event type")
	ErrUnknownProvider    = errors.New("unknown provider")
)

var defaultLogger = stdr.NewStdr("gateway")

// Adapter 校验渠道报文并转换为规范的 Delta
// 错误：签名失败返回 *ordercore.AuthenticationError，报文错误返回 *ordercore.ValidationError，
// 无关事件返回 ErrUnhandledEventType
type Adapter interface {
	Provider() order.Provider
	Ingest(body []byte, headers http.Header) (*order.Delta, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, d *order.Delta) (*ordercore.Result, error)
}

func invalidSignature(p order.Provider, cause error) error {
	if cause == nil {
		return &ordercore.AuthenticationError{Provider: p, Err: ErrInvalidSignature}
	}
	return &ordercore.AuthenticationError{Provider: p, Err: fmt.Errorf("%w: %v", ErrInvalidSignature, cause)}
}

func malformed(format string, args ...interface{}) error {
	return &ordercore.ValidationError{Err: fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))}
}

func unhandled(eventType string) error {
	return fmt.Errorf("%w: %s", ErrUnhandledEventType, eventType)
}

type Option func(g *Gateway)

func WithLogger(l logr.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

func WithMetrics(r *metrics.Registry) Option {
	return func(g *Gateway) {
		g.metrics = r
	}
}

func WithAdapter(a Adapter) Option {
	return func(g *Gateway) {
		g.adapters[a.Provider()] = a
	}
}

// Gateway 每次调用最多触发一次对账，自身不做去重，重复投递由对账的幂等保证
type Gateway struct {
	adapters   map[order.Provider]Adapter
	reconciler Reconciler
	metrics    *metrics.Registry
	logger     logr.Logger
}

func New(reconciler Reconciler, options ...Option) *Gateway {
	g := &Gateway{
		adapters:   map[order.Provider]Adapter{},
		reconciler: reconciler,
		logger:     defaultLogger,
	}
	for _, o := range options {
		o(g)
	}
	return g
}

// Handle 返回的错误可用 errors.Is 判断 ErrUnhandledEventType（无需处理）、
// ordercore.IsAuthentication / IsValidation（拒绝）或其它（对账失败，可由渠道重投）
func (g *Gateway) Handle(ctx context.Context, p order.Provider, body []byte, headers http.Header) (res *ordercore.Result, err error) {
	start := time.Now()
	defer func() {
		g.metrics.ObserveWebhook(string(p), resultLabel(res, err), start)
	}()

	adapter, ok := g.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	d, err := adapter.Ingest(body, headers)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnhandledEventType):
			g.logger.V(1).Info("ignore webhook", "provider", p, "reason", err.Error())
		case ordercore.IsAuthentication(err):
			g.logger.Info("reject webhook", "provider", p, "reason", err.Error())
		default:
			g.logger.Error(err, "reject webhook", "provider", p)
		}
		return nil, err
	}
	res, err = g.reconciler.Reconcile(ctx, d)
	if err != nil {
		g.logger.Error(err, "reconcile webhook failed", "provider", p, "txn", d.ProviderTransactionID)
		return nil, err
	}
	return res, nil
}

func resultLabel(res *ordercore.Result, err error) string {
	switch {
	case err == nil && res != nil:
		return string(res.Outcome)
	case errors.Is(err, ErrUnhandledEventType):
		return "unhandled"
	case errors.Is(err, ErrUnknownProvider):
		return "unknown_provider"
	case ordercore.IsAuthentication(err):
		return "invalid_signature"
	case ordercore.IsValidation(err):
		return "malformed"
	default:
		return "error"
	}
}
