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

	"github.com/shopspring/decimal"

	"github.com/skyhooked/ordercore/order"
)

const HostedCartAHeader = "X-Cart-Token"

const (
	cartAOrderCompleted       = "order.completed"
	cartAStatusChanged        = "order.status.changed"
	cartARefundCreated        = "order.refund.created"
	cartATrackingNumberChange = "order.trackingNumber.changed"
)

type cartAEnvelope struct {
	EventName string          `json:"eventName"`
	Content   json.RawMessage `json:"content"`
}

type cartAAddress struct {
	FullName   string `json:"fullName"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

func (a *cartAAddress) toAddress() order.Address {
	if a == nil {
		return order.Address{}
	}
	return order.Address{
		Name:       a.FullName,
		Line1:      a.Address1,
		Line2:      a.Address2,
		City:       a.City,
		State:      a.Province,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

type cartAItem struct {
	ID       string          `json:"id"`
	UniqueID string          `json:"uniqueId"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int32           `json:"quantity"`
}

type cartAOrder struct {
	Token           string          `json:"token"`
	InvoiceNumber   string          `json:"invoiceNumber"`
	Email           string          `json:"email"`
	UserID          string          `json:"userId"`
	Status          string          `json:"status"`
	GrandTotal      decimal.Decimal `json:"grandTotal"`
	Currency        string          `json:"currency"`
	TrackingNumber  string          `json:"trackingNumber"`
	Items           []cartAItem     `json:"items"`
	ShippingAddress *cartAAddress   `json:"shippingAddress"`
	BillingAddress  *cartAAddress   `json:"billingAddress"`
}

// HostedCartAAdapter 报文形如 {eventName, content}，金额为十进制数字
type HostedCartAAdapter struct {
	secret   string
	statuses StatusTable
}

func NewHostedCartAAdapter(secret string) *HostedCartAAdapter {
	return &HostedCartAAdapter{secret: secret, statuses: HostedCartAStatuses}
}

func (a *HostedCartAAdapter) Provider() order.Provider {
	return order.ProviderHostedCartA
}

func (a *HostedCartAAdapter) Ingest(body []byte, headers http.Header) (*order.Delta, error) {
	if err := checkSharedSecret(order.ProviderHostedCartA, headers, HostedCartAHeader, a.secret); err != nil {
		return nil, err
	}
	var env cartAEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, malformed("decode envelope: %v", err)
	}
	switch env.EventName {
	case cartAOrderCompleted, cartAStatusChanged, cartARefundCreated, cartATrackingNumberChange:
	default:
		return nil, unhandled(env.EventName)
	}
	if len(env.Content) == 0 {
		return nil, malformed("event %s has no content", env.EventName)
	}
	var c cartAOrder
	if err := json.Unmarshal(env.Content, &c); err != nil {
		return nil, malformed("decode content: %v", err)
	}
	if c.Token == "" {
		return nil, malformed("content has no token")
	}

	currency := strings.ToUpper(c.Currency)
	d := &order.Delta{
		ProviderTransactionID: c.Token,
		Provider:              order.ProviderHostedCartA,
		EventType:             env.EventName,
		RawStatus:             c.Status,
		Total:                 toMinor(c.GrandTotal, currency),
		Currency:              currency,
		CustomerEmail:         c.Email,
		UserID:                c.UserID,
		ShippingAddress:       c.ShippingAddress.toAddress(),
		BillingAddress:        c.BillingAddress.toAddress(),
		TrackingNumber:        c.TrackingNumber,
	}
	for _, it := range c.Items {
		d.Items = append(d.Items, order.Item{
			ProductRef: it.ID,
			Name:       it.Name,
			SKU:        it.UniqueID,
			UnitPrice:  toMinor(it.Price, currency),
			Quantity:   it.Quantity,
		})
	}

	switch {
	case env.EventName == cartARefundCreated:
		d.Status = order.StatusRefunded
	case env.EventName == cartAOrderCompleted && c.Status == "":
		// 完成事件即代表已扣款
		d.Status = order.StatusProcessing
	case env.EventName == cartATrackingNumberChange && c.Status == "":
		// 只带运单号的事件按已发货处理，已发货或终态订单只更新运单号
		d.Status = order.StatusShipped
	default:
		d.Status, d.Unmapped = a.statuses.Map(c.Status)
	}
	return d, nil
}
