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

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyhooked/ordercore"
	"github.com/skyhooked/ordercore/coupon"
	"github.com/skyhooked/ordercore/gateway"
	"github.com/skyhooked/ordercore/metrics"
	"github.com/skyhooked/ordercore/order"
	"github.com/skyhooked/ordercore/store/memory"
	"github.com/skyhooked/ordercore/testsuit"
)

var adminSecret = []byte("admin-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router   *gin.Engine
	coupons  *coupon.Service
	recorder *testsuit.Recorder
	token    string
}

func newFixture(t *testing.T) *fixture {
	reg := metrics.NewRegistry()
	coupons := coupon.NewService(memory.NewCouponStore())
	recorder := testsuit.NewRecorder()
	r := ordercore.NewReconciler(memory.NewOrderStore(),
		ordercore.WithDispatcher(recorder),
		ordercore.WithCoupons(coupons),
		ordercore.WithMetrics(reg),
	)
	gw := gateway.New(r, gateway.WithAdapter(gateway.NewHostedCartBAdapter("b-secret")), gateway.WithMetrics(reg))
	s := New(r,
		WithGateway(gw),
		WithCoupons(coupons),
		WithMetrics(reg),
		WithAdminSecret(adminSecret),
	)
	token, err := IssueAdminToken(adminSecret, "ops", time.Hour)
	require.NoError(t, err)
	return &fixture{router: s.Router(), coupons: coupons, recorder: recorder, token: token}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	resp := map[string]interface{}{}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func (f *fixture) seedCoupon(t *testing.T, code string, pct int64) {
	_, err := f.coupons.Create(context.Background(), &coupon.Coupon{
		Code:      code,
		Type:      coupon.TypePercentage,
		Value:     decimal.NewFromInt(pct),
		IsActive:  true,
		ValidFrom: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
}

func checkoutBody(ref, code string) map[string]interface{} {
	return map[string]interface{}{
		"provider":          "card",
		"payment_reference": ref,
		"user_id":           "u1",
		"email":             "a@example.com",
		"currency":          "usd",
		"items":             []order.Item{{ProductRef: "p1", Name: "Mug", UnitPrice: 1299, Quantity: 2}},
		"coupon_code":       code,
	}
}

func TestPingAndMetrics(t *testing.T) {
	f := newFixture(t)
	rec, resp := f.do(t, http.MethodGet, "/ping", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", resp["message"])
	assert.NotEmpty(t, rec.Header().Get(TraceHeader))

	rec, _ = f.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ordercore_"))
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	f.seedCoupon(t, "save10", 10)

	rec, resp := f.do(t, http.MethodPost, "/checkout", checkoutBody("pay-1", " Save10 "), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := resp["order"].(map[string]interface{})
	assert.Equal(t, "PENDING", o["status"])
	assert.Equal(t, float64(2598), o["total"])
	assert.Equal(t, float64(260), o["discount_amount"])
	assert.Equal(t, float64(2338), o["amount_due"])
	assert.Equal(t, "SAVE10", o["coupon_code"])
	assert.Equal(t, true, resp["coupon"].(map[string]interface{})["accepted"])

	// 重复提交返回同一订单，不再占用券
	rec, resp = f.do(t, http.MethodPost, "/checkout", checkoutBody("pay-1", "SAVE10"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, o["id"], resp["order"].(map[string]interface{})["id"])
	c, err := f.coupons.Get(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.UsageCount)

	rec, _ = f.do(t, http.MethodPost, "/checkout", map[string]interface{}{"provider": "card"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := checkoutBody("pay-2", "")
	body["provider"] = "paypal"
	rec, _ = f.do(t, http.MethodPost, "/checkout", body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyCoupon(t *testing.T) {
	f := newFixture(t)
	f.seedCoupon(t, "HALF", 50)

	rec, resp := f.do(t, http.MethodPost, "/coupons/apply", map[string]interface{}{"code": "half", "subtotal": 1001}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["accepted"])
	assert.Equal(t, float64(501), resp["discount_amount"])

	rec, resp = f.do(t, http.MethodPost, "/coupons/apply", map[string]interface{}{"code": "nope", "subtotal": 1000}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, resp["accepted"])
	assert.Equal(t, string(coupon.ReasonNotFound), resp["reason"])

	rec, _ = f.do(t, http.MethodPost, "/coupons/apply", map[string]interface{}{
		"code":  "half",
		"items": []order.Item{{Name: "Mug", UnitPrice: 100, Quantity: -1}},
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = f.do(t, http.MethodPost, "/coupons/apply", map[string]interface{}{
		"code":  "half",
		"items": []order.Item{{Name: "Mug", UnitPrice: 2, Quantity: math.MaxInt32}},
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(math.MaxInt32), resp["discount_amount"])
}

func TestAdminAuth(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodGet, "/admin/orders/x", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/admin/orders/x", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := IssueAdminToken([]byte("other"), "ops", time.Hour)
	require.NoError(t, err)
	rec, _ = f.do(t, http.MethodGet, "/admin/orders/x", nil, other)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := IssueAdminToken(adminSecret, "ops", -time.Minute)
	require.NoError(t, err)
	rec, resp := f.do(t, http.MethodGet, "/admin/orders/x", nil, expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token expired", resp["error"])

	customer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(adminSecret)
	require.NoError(t, err)
	rec, _ = f.do(t, http.MethodGet, "/admin/orders/x", nil, customer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/admin/orders/x", nil, f.token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminCoupons(t *testing.T) {
	f := newFixture(t)
	body := map[string]interface{}{"code": "ten", "type": "fixed_amount", "value": 1000, "usage_limit": 5}
	rec, resp := f.do(t, http.MethodPost, "/admin/coupons", body, f.token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "TEN", resp["code"])
	assert.Equal(t, true, resp["is_active"])

	rec, _ = f.do(t, http.MethodPost, "/admin/coupons", body, f.token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/admin/coupons", map[string]interface{}{"code": "bad", "type": "percentage", "value": 150}, f.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/admin/coupons", map[string]interface{}{"code": "bad", "type": "bogo", "value": 1}, f.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/admin/coupons/ten/deactivate", nil, f.token)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, resp = f.do(t, http.MethodGet, "/admin/coupons/TEN", nil, f.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, resp["is_active"])

	rec, resp = f.do(t, http.MethodPost, "/coupons/apply", map[string]interface{}{"code": "ten", "subtotal": 5000}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(coupon.ReasonInactive), resp["reason"])

	rec, _ = f.do(t, http.MethodPost, "/admin/coupons/missing/deactivate", nil, f.token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminOrders(t *testing.T) {
	f := newFixture(t)
	f.seedCoupon(t, "FIVE", 5)
	_, resp := f.do(t, http.MethodPost, "/checkout", checkoutBody("pay-9", ""), "")
	id := resp["order"].(map[string]interface{})["id"].(string)

	rec, resp := f.do(t, http.MethodGet, "/admin/orders/"+id, nil, f.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@example.com", resp["customer_email"])

	rec, resp = f.do(t, http.MethodPost, "/admin/orders/"+id+"/coupon", map[string]interface{}{"code": "five"}, f.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(130), resp["order"].(map[string]interface{})["discount_amount"])

	rec, _ = f.do(t, http.MethodPost, "/admin/orders/"+id+"/status", map[string]interface{}{"status": "processing"}, f.token)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, resp = f.do(t, http.MethodPost, "/admin/orders/"+id+"/status",
		map[string]interface{}{"status": "SHIPPED", "tracking_number": "TRK-1"}, f.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "shipped", resp["notified"])
	sent := f.recorder.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "TRK-1", sent[0].Extra["tracking_number"])

	rec, _ = f.do(t, http.MethodPost, "/admin/orders/"+id+"/status", map[string]interface{}{"status": "PENDING"}, f.token)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/admin/orders/"+id+"/status", map[string]interface{}{"status": "LOST"}, f.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = f.do(t, http.MethodPatch, "/admin/orders/"+id, map[string]interface{}{"customer_email": "new@example.com"}, f.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new@example.com", resp["customer_email"])
	rec, _ = f.do(t, http.MethodPatch, "/admin/orders/"+id, map[string]interface{}{}, f.token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = f.do(t, http.MethodGet, "/admin/users/u1/orders", nil, f.token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp["orders"], 1)
}

func TestWebhookRoute(t *testing.T) {
	f := newFixture(t)
	body := map[string]interface{}{
		"type": "transaction/created",
		"data": map[string]interface{}{"id": "tx-1", "status": "approved", "total": "10.00", "currency": "usd"},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/hosted-cart-b", bytes.NewReader(raw))
	req.Header.Set(gateway.HostedCartBHeader, "b-secret")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "created")
}
