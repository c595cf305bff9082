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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyhooked/ordercore"
	"github.com/skyhooked/ordercore/order"
	"github.com/skyhooked/ordercore/store/memory"
	"github.com/skyhooked/ordercore/testsuit"
)

const (
	cardSecret  = "whsec_test"
	cartASecret = "cart-a-token"
	cartBSecret = "cart-b-secret"
)

type fixture struct {
	store    *memory.OrderStore
	recorder *testsuit.Recorder
	gateway  *Gateway
}

func newFixture() *fixture {
	store := memory.NewOrderStore()
	recorder := testsuit.NewRecorder()
	r := ordercore.NewReconciler(store, ordercore.WithDispatcher(recorder))
	g := New(r,
		WithAdapter(NewCardAdapter(cardSecret)),
		WithAdapter(NewHostedCartAAdapter(cartASecret)),
		WithAdapter(NewHostedCartBAdapter(cartBSecret)),
	)
	return &fixture{store: store, recorder: recorder, gateway: g}
}

func signCard(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts.Unix())))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func cardEvent(t *testing.T, eventType string, object map[string]interface{}) []byte {
	body, err := json.Marshal(map[string]interface{}{
		"id":     "evt_" + eventType,
		"object": "event",
		"type":   eventType,
		"data":   map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return body
}

func cardHeaders(body []byte) http.Header {
	h := http.Header{}
	h.Set(SignatureHeader, signCard(body, cardSecret, time.Now()))
	return h
}

func paymentIntent(t *testing.T) map[string]interface{} {
	items, err := json.Marshal([]order.Item{
		{ProductRef: "p1", Name: "Mug", SKU: "MUG", UnitPrice: 1299, Quantity: 1},
		{ProductRef: "p2", Name: "Tee", SKU: "TEE", UnitPrice: 1300, Quantity: 1},
	})
	require.NoError(t, err)
	return map[string]interface{}{
		"id":            "pi_1",
		"object":        "payment_intent",
		"amount":        2599,
		"currency":      "usd",
		"receipt_email": "a@example.com",
		"metadata":      map[string]string{MetadataItems: string(items), MetadataUserID: "u1"},
		"shipping": map[string]interface{}{
			"name":    "Ann",
			"address": map[string]interface{}{"line1": "1 Main St", "city": "Springfield", "country": "US"},
		},
	}
}

func TestCardPaymentSucceeded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	body := cardEvent(t, "payment_intent.succeeded", paymentIntent(t))

	res, err := f.gateway.Handle(ctx, order.ProviderCard, body, cardHeaders(body))
	require.NoError(t, err)
	assert.True(t, res.Created)
	o := res.Order
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.Equal(t, "pi_1", o.ProviderTransactionID)
	assert.Equal(t, int64(2599), o.Total)
	assert.Equal(t, "USD", o.Currency)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, "a@example.com", o.CustomerEmail)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, "Springfield", o.ShippingAddress.City)

	// 重复投递不会重复建单
	res, err = f.gateway.Handle(ctx, order.ProviderCard, body, cardHeaders(body))
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, o.ID, res.Order.ID)
	assert.Equal(t, 1, f.store.Len())
	assert.Empty(t, f.recorder.Sent())
}

func TestCardRefundByCharge(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	body := cardEvent(t, "payment_intent.succeeded", paymentIntent(t))
	_, err := f.gateway.Handle(ctx, order.ProviderCard, body, cardHeaders(body))
	require.NoError(t, err)

	body = cardEvent(t, "charge.refunded", map[string]interface{}{
		"id": "ch_1", "object": "charge", "amount": 2599, "currency": "usd", "payment_intent": "pi_1",
	})
	res, err := f.gateway.Handle(ctx, order.ProviderCard, body, cardHeaders(body))
	require.NoError(t, err)
	assert.Equal(t, order.StatusRefunded, res.Order.Status)
	assert.Equal(t, 1, f.store.Len())
	assert.Empty(t, f.recorder.Sent())

	// 没有 payment_intent 的 charge 不能按 charge id 另建订单
	body = cardEvent(t, "charge.succeeded", map[string]interface{}{
		"id": "ch_2", "object": "charge", "amount": 2599, "currency": "usd",
	})
	_, err = f.gateway.Handle(ctx, order.ProviderCard, body, cardHeaders(body))
	assert.ErrorIs(t, err, ErrMalformedPayload)
	assert.Equal(t, 1, f.store.Len())
}

func TestCardDisputeCancels(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	body := cardEvent(t, "payment_intent.succeeded", paymentIntent(t))
	_, err := f.gateway.Handle(ctx, order.ProviderCard, body, cardHeaders(body))
	require.NoError(t, err)

	body = cardEvent(t, "charge.dispute.created", map[string]interface{}{
		"id": "dp_1", "object": "dispute", "amount": 2599, "currency": "usd", "payment_intent": "pi_1",
	})
	res, err := f.gateway.Handle(ctx, order.ProviderCard, body, cardHeaders(body))
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, res.Order.Status)
	assert.Equal(t, 1, f.recorder.Count(order.NotifyCancelled))
}

func TestCardInvalidSignature(t *testing.T) {
	f := newFixture()
	body := cardEvent(t, "payment_intent.succeeded", paymentIntent(t))

	for name, h := range map[string]http.Header{
		"missing":   {},
		"wrong key": {SignatureHeader: []string{signCard(body, "other", time.Now())}},
		"too old":   {SignatureHeader: []string{signCard(body, cardSecret, time.Now().Add(-time.Hour))}},
		"garbage":   {SignatureHeader: []string{"t=abc"}},
	} {
		_, err := f.gateway.Handle(context.Background(), order.ProviderCard, body, h)
		assert.True(t, ordercore.IsAuthentication(err), name)
		assert.ErrorIs(t, err, ErrInvalidSignature, name)
	}
	assert.Equal(t, 0, f.store.Len())
}

func TestCardUnhandledAndUnmapped(t *testing.T) {
	f := newFixture()
	body := cardEvent(t, "customer.created", map[string]interface{}{"id": "cus_1", "object": "customer"})
	_, err := f.gateway.Handle(context.Background(), order.ProviderCard, body, cardHeaders(body))
	assert.ErrorIs(t, err, ErrUnhandledEventType)

	pi := paymentIntent(t)
	body = cardEvent(t, "payment_intent.partially_funded", pi)
	d, err := NewCardAdapter(cardSecret).Ingest(body, cardHeaders(body))
	require.NoError(t, err)
	assert.True(t, d.Unmapped)
	assert.Equal(t, order.StatusProcessing, d.Status)
	assert.Equal(t, "payment_intent.partially_funded", d.RawStatus)
}

func TestCardMalformed(t *testing.T) {
	a := NewCardAdapter(cardSecret)
	body := []byte("{not json")
	_, err := a.Ingest(body, cardHeaders(body))
	assert.True(t, ordercore.IsValidation(err))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	pi := paymentIntent(t)
	pi["metadata"] = map[string]string{MetadataItems: "[oops"}
	body = cardEvent(t, "payment_intent.succeeded", pi)
	_, err = a.Ingest(body, cardHeaders(body))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func cartABody(t *testing.T, event string, content map[string]interface{}) []byte {
	body, err := json.Marshal(map[string]interface{}{"eventName": event, "content": content})
	require.NoError(t, err)
	return body
}

func TestHostedCartA(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	h := http.Header{HostedCartAHeader: []string{cartASecret}}
	content := map[string]interface{}{
		"token":      "tok-1",
		"email":      "b@example.com",
		"grandTotal": 25.99,
		"currency":   "usd",
		"items": []map[string]interface{}{
			{"id": "p1", "uniqueId": "u-1", "name": "Mug", "price": 12.99, "quantity": 1},
			{"id": "p2", "uniqueId": "u-2", "name": "Tee", "price": 13, "quantity": 1},
		},
		"shippingAddress": map[string]interface{}{"fullName": "Bo", "city": "Paris", "country": "FR"},
	}

	res, err := f.gateway.Handle(ctx, order.ProviderHostedCartA, cartABody(t, "order.completed", content), h)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, res.Order.Status)
	assert.Equal(t, int64(2599), res.Order.Total)
	assert.Equal(t, int64(1299), res.Order.Items[0].UnitPrice)
	assert.Equal(t, "Paris", res.Order.ShippingAddress.City)

	content["status"] = "Shipped"
	content["trackingNumber"] = "TRK-9"
	res, err = f.gateway.Handle(ctx, order.ProviderHostedCartA, cartABody(t, "order.trackingNumber.changed", content), h)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, res.Order.Status)
	assert.Equal(t, "TRK-9", res.Order.TrackingNumber)
	sent := f.recorder.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "TRK-9", sent[0].Extra["tracking_number"])

	content["status"] = "SomethingNew"
	d, err := NewHostedCartAAdapter(cartASecret).Ingest(cartABody(t, "order.status.changed", content), h)
	require.NoError(t, err)
	assert.True(t, d.Unmapped)

	// 没有状态的运单号事件不算未知状态
	delete(content, "status")
	content["trackingNumber"] = "TRK-10"
	d, err = NewHostedCartAAdapter(cartASecret).Ingest(cartABody(t, "order.trackingNumber.changed", content), h)
	require.NoError(t, err)
	assert.False(t, d.Unmapped)
	assert.Equal(t, order.StatusShipped, d.Status)
	res, err = f.gateway.Handle(ctx, order.ProviderHostedCartA, cartABody(t, "order.trackingNumber.changed", content), h)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, res.Order.Status)
	assert.Equal(t, "TRK-10", res.Order.TrackingNumber)
	assert.Len(t, f.recorder.Sent(), 1)

	d, err = NewHostedCartAAdapter(cartASecret).Ingest(cartABody(t, "order.refund.created", content), h)
	require.NoError(t, err)
	assert.False(t, d.Unmapped)
	assert.Equal(t, order.StatusRefunded, d.Status)

	_, err = f.gateway.Handle(ctx, order.ProviderHostedCartA, cartABody(t, "order.completed", content), http.Header{HostedCartAHeader: []string{"nope"}})
	assert.True(t, ordercore.IsAuthentication(err))

	_, err = f.gateway.Handle(ctx, order.ProviderHostedCartA, cartABody(t, "customer.updated", content), h)
	assert.ErrorIs(t, err, ErrUnhandledEventType)

	_, err = f.gateway.Handle(ctx, order.ProviderHostedCartA, cartABody(t, "order.completed", map[string]interface{}{"email": "x"}), h)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func cartBBody(t *testing.T, event string, data map[string]interface{}) []byte {
	body, err := json.Marshal(map[string]interface{}{"type": event, "data": data})
	require.NoError(t, err)
	return body
}

func TestHostedCartB(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	h := http.Header{HostedCartBHeader: []string{cartBSecret}}
	data := map[string]interface{}{
		"id":             "tx-1",
		"status":         "pending",
		"total":          "30.00",
		"currency":       "eur",
		"customer_email": "c@example.com",
		"items":          []map[string]interface{}{{"code": "MUG", "name": "Mug", "price": "10.00", "quantity": 3}},
	}

	res, err := f.gateway.Handle(ctx, order.ProviderHostedCartB, cartBBody(t, "transaction/created", data), h)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, res.Order.Status)
	assert.Equal(t, int64(3000), res.Order.Total)
	assert.Equal(t, "EUR", res.Order.Currency)

	data["status"] = "approved"
	res, err = f.gateway.Handle(ctx, order.ProviderHostedCartB, cartBBody(t, "transaction/updated", data), h)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, res.Order.Status)
	assert.Equal(t, ordercore.OutcomeTransitioned, res.Outcome)

	res, err = f.gateway.Handle(ctx, order.ProviderHostedCartB, cartBBody(t, "transaction/refunded", data), h)
	require.NoError(t, err)
	assert.Equal(t, order.StatusRefunded, res.Order.Status)

	// 终态后的通知不改变状态
	data["status"] = "shipped"
	res, err = f.gateway.Handle(ctx, order.ProviderHostedCartB, cartBBody(t, "transaction/updated", data), h)
	require.NoError(t, err)
	assert.Equal(t, order.StatusRefunded, res.Order.Status)
	assert.Equal(t, ordercore.OutcomeSkipped, res.Outcome)

	_, err = f.gateway.Handle(ctx, order.ProviderHostedCartB, cartBBody(t, "transaction/created", data), http.Header{})
	assert.True(t, ordercore.IsAuthentication(err))

	data["total"] = "abc"
	_, err = f.gateway.Handle(ctx, order.ProviderHostedCartB, cartBBody(t, "transaction/created", data), h)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestUnknownProvider(t *testing.T) {
	g := New(ordercore.NewReconciler(memory.NewOrderStore()))
	_, err := g.Handle(context.Background(), order.ProviderCard, []byte("{}"), http.Header{})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

type failingReconciler struct{}

func (failingReconciler) Reconcile(ctx context.Context, d *order.Delta) (*ordercore.Result, error) {
	return nil, errors.New("database is down")
}

func TestReconcileFailure(t *testing.T) {
	g := New(failingReconciler{}, WithAdapter(NewHostedCartBAdapter(cartBSecret)))
	body := cartBBody(t, "transaction/created", map[string]interface{}{"id": "tx-2", "status": "paid", "total": "1", "currency": "usd"})
	_, err := g.Handle(context.Background(), order.ProviderHostedCartB, body, http.Header{HostedCartBHeader: []string{cartBSecret}})
	assert.EqualError(t, err, "database is down")
}

func TestStatusTables(t *testing.T) {
	s, unmapped := HostedCartAStatuses.Map(" Delivered ")
	assert.Equal(t, order.StatusDelivered, s)
	assert.False(t, unmapped)

	s, unmapped = HostedCartBStatuses.Map("on_hold")
	assert.Equal(t, order.StatusProcessing, s)
	assert.True(t, unmapped)

	s, _ = CardStatuses.Map("payment_intent.payment_failed")
	assert.Equal(t, order.StatusCancelled, s)
}

func TestToMinor(t *testing.T) {
	assert.Equal(t, int64(2599), toMinor(decimal.RequireFromString("25.99"), "USD"))
	assert.Equal(t, int64(1000), toMinor(decimal.RequireFromString("9.995"), "usd"))
	assert.Equal(t, int64(1500), toMinor(decimal.RequireFromString("1500"), "JPY"))
}
