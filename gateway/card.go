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
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/skyhooked/ordercore/order"
)

const SignatureHeader = "Stripe-Signature"

// PaymentIntent metadata 中约定的字段
const (
	MetadataItems  = "items"
	MetadataUserID = "user_id"
	MetadataEmail  = "email"
)

// CardAdapter 卡支付渠道，按签名密钥校验原始报文
type CardAdapter struct {
	secret    string
	tolerance time.Duration
	statuses  StatusTable
}

func NewCardAdapter(secret string) *CardAdapter {
	return &CardAdapter{secret: secret, tolerance: webhook.DefaultTolerance, statuses: CardStatuses}
}

// WithTolerance 签名时间戳允许的偏差
func (a *CardAdapter) WithTolerance(d time.Duration) *CardAdapter {
	a.tolerance = d
	return a
}

func (a *CardAdapter) Provider() order.Provider {
	return order.ProviderCard
}

func (a *CardAdapter) Ingest(body []byte, headers http.Header) (*order.Delta, error) {
	if a.secret == "" {
		return nil, invalidSignature(order.ProviderCard, nil)
	}
	if err := webhook.ValidatePayloadWithTolerance(body, headers.Get(SignatureHeader), a.secret, a.tolerance); err != nil {
		return nil, invalidSignature(order.ProviderCard, err)
	}

	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, malformed("decode event: %v", err)
	}
	eventType := string(event.Type)
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, malformed("event %s has no data object", event.ID)
	}

	var d *order.Delta
	var err error
	switch {
	case strings.HasPrefix(eventType, "charge.dispute."):
		d, err = a.fromDispute(event.Data.Raw)
	case strings.HasPrefix(eventType, "charge."):
		d, err = a.fromCharge(event.Data.Raw)
	case strings.HasPrefix(eventType, "payment_intent."):
		d, err = a.fromPaymentIntent(event.Data.Raw)
	default:
		return nil, unhandled(eventType)
	}
	if err != nil {
		return nil, err
	}
	d.Provider = order.ProviderCard
	d.EventType = eventType
	d.RawStatus = eventType
	d.Status, d.Unmapped = a.statuses.Map(eventType)
	if d.ProviderTransactionID == "" {
		return nil, malformed("event %s has no payment intent id", event.ID)
	}
	return d, nil
}

func (a *CardAdapter) fromPaymentIntent(raw json.RawMessage) (*order.Delta, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return nil, malformed("decode payment intent: %v", err)
	}
	d := &order.Delta{
		ProviderTransactionID: pi.ID,
		Total:                 pi.Amount,
		Currency:              string(pi.Currency),
		CustomerEmail:         pi.ReceiptEmail,
	}
	if err := applyMetadata(d, pi.Metadata); err != nil {
		return nil, err
	}
	if pi.Shipping != nil {
		d.ShippingAddress = shippingAddress(pi.Shipping)
		d.TrackingNumber = pi.Shipping.TrackingNumber
	}
	return d, nil
}

func (a *CardAdapter) fromCharge(raw json.RawMessage) (*order.Delta, error) {
	var ch stripe.Charge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, malformed("decode charge: %v", err)
	}
	d := &order.Delta{
		Total:         ch.Amount,
		Currency:      string(ch.Currency),
		CustomerEmail: ch.ReceiptEmail,
	}
	// 订单以 PaymentIntent 为交易主键，没有 PaymentIntent 的 charge 无法关联订单
	if ch.PaymentIntent != nil && ch.PaymentIntent.ID != "" {
		d.ProviderTransactionID = ch.PaymentIntent.ID
	}
	if err := applyMetadata(d, ch.Metadata); err != nil {
		return nil, err
	}
	if ch.BillingDetails != nil {
		if d.CustomerEmail == "" {
			d.CustomerEmail = ch.BillingDetails.Email
		}
		d.BillingAddress = stripeAddress(ch.BillingDetails.Address, ch.BillingDetails.Name, ch.BillingDetails.Phone)
	}
	if ch.Shipping != nil {
		d.ShippingAddress = shippingAddress(ch.Shipping)
		d.TrackingNumber = ch.Shipping.TrackingNumber
	}
	return d, nil
}

func (a *CardAdapter) fromDispute(raw json.RawMessage) (*order.Delta, error) {
	var dp stripe.Dispute
	if err := json.Unmarshal(raw, &dp); err != nil {
		return nil, malformed("decode dispute: %v", err)
	}
	d := &order.Delta{Total: dp.Amount, Currency: string(dp.Currency)}
	switch {
	case dp.PaymentIntent != nil && dp.PaymentIntent.ID != "":
		d.ProviderTransactionID = dp.PaymentIntent.ID
	case dp.Charge != nil && dp.Charge.PaymentIntent != nil:
		d.ProviderTransactionID = dp.Charge.PaymentIntent.ID
	}
	return d, nil
}

func applyMetadata(d *order.Delta, md map[string]string) error {
	if md == nil {
		return nil
	}
	d.UserID = md[MetadataUserID]
	if d.CustomerEmail == "" {
		d.CustomerEmail = md[MetadataEmail]
	}
	if raw := md[MetadataItems]; raw != "" {
		var items []order.Item
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return malformed("decode metadata items: %v", err)
		}
		d.Items = items
	}
	return nil
}

func shippingAddress(s *stripe.ShippingDetails) order.Address {
	return stripeAddress(s.Address, s.Name, s.Phone)
}

func stripeAddress(a *stripe.Address, name, phone string) order.Address {
	addr := order.Address{Name: name, Phone: phone}
	if a != nil {
		addr.Line1 = a.Line1
		addr.Line2 = a.Line2
		addr.City = a.City
		addr.State = a.State
		addr.PostalCode = a.PostalCode
		addr.Country = a.Country
	}
	return addr
}
