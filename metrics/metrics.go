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

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 进程内独立的指标注册表，方法均允许 nil 接收者
type Registry struct {
	reg *prometheus.Registry

	Reconciled           *prometheus.CounterVec
	Unmapped             *prometheus.CounterVec
	CreateConflicts      *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	Webhooks             *prometheus.CounterVec
	WebhookLatencySec    *prometheus.HistogramVec
	CouponRejected       *prometheus.CounterVec
	CouponRedeemed       prometheus.Counter
	OutboxPending        prometheus.Gauge
	OutboxDelivered      prometheus.Counter
	OutboxDeadLetters    prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordercore_reconcile_total",
		Help: "Reconciled deltas by provider and outcome.",
	}, []string{"provider", "outcome"})
	unmapped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordercore_unmapped_status_total",
		Help: "Provider statuses that fell back to PROCESSING.",
	}, []string{"provider"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordercore_create_conflict_total",
		Help: "Order creations that lost the unique key race.",
	}, []string{"provider"})
	notifyFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordercore_notification_failure_total",
	}, []string{"kind"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordercore_webhook_total",
	}, []string{"provider", "result"})
	webhookLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ordercore_webhook_latency_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	couponRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordercore_coupon_rejected_total",
	}, []string{"reason"})
	couponRedeemed := prometheus.NewCounter(prometheus.CounterOpts{Name: "ordercore_coupon_redeemed_total"})
	outboxPending := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ordercore_outbox_pending"})
	outboxDelivered := prometheus.NewCounter(prometheus.CounterOpts{Name: "ordercore_outbox_delivered_total"})
	outboxDead := prometheus.NewCounter(prometheus.CounterOpts{Name: "ordercore_outbox_dead_letter_total"})

	r.MustRegister(reconciled, unmapped, conflicts, notifyFailures, webhooks, webhookLatency,
		couponRejected, couponRedeemed, outboxPending, outboxDelivered, outboxDead)
	return &Registry{
		reg:                  r,
		Reconciled:           reconciled,
		Unmapped:             unmapped,
		CreateConflicts:      conflicts,
		NotificationFailures: notifyFailures,
		Webhooks:             webhooks,
		WebhookLatencySec:    webhookLatency,
		CouponRejected:       couponRejected,
		CouponRedeemed:       couponRedeemed,
		OutboxPending:        outboxPending,
		OutboxDelivered:      outboxDelivered,
		OutboxDeadLetters:    outboxDead,
	}
}

func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) ObserveReconcile(provider, outcome string) {
	if r == nil {
		return
	}
	r.Reconciled.WithLabelValues(provider, outcome).Inc()
}

func (r *Registry) IncUnmapped(provider string) {
	if r == nil {
		return
	}
	r.Unmapped.WithLabelValues(provider).Inc()
}

func (r *Registry) IncConflict(provider string) {
	if r == nil {
		return
	}
	r.CreateConflicts.WithLabelValues(provider).Inc()
}

func (r *Registry) IncNotificationFailure(kind string) {
	if r == nil {
		return
	}
	r.NotificationFailures.WithLabelValues(kind).Inc()
}

func (r *Registry) ObserveWebhook(provider, result string, start time.Time) {
	if r == nil {
		return
	}
	r.Webhooks.WithLabelValues(provider, result).Inc()
	r.WebhookLatencySec.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

func (r *Registry) IncCouponRejected(reason string) {
	if r == nil {
		return
	}
	r.CouponRejected.WithLabelValues(reason).Inc()
}

func (r *Registry) IncCouponRedeemed() {
	if r == nil {
		return
	}
	r.CouponRedeemed.Inc()
}

func (r *Registry) SetOutboxPending(n int) {
	if r == nil {
		return
	}
	r.OutboxPending.Set(float64(n))
}

func (r *Registry) IncOutboxDelivered() {
	if r == nil {
		return
	}
	r.OutboxDelivered.Inc()
}

func (r *Registry) IncOutboxDeadLetter() {
	if r == nil {
		return
	}
	r.OutboxDeadLetters.Inc()
}
