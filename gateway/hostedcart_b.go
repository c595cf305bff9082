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

const HostedCartBHeader = "X-Webhook-Secret"

const (
	cartBCreated  = "transaction/created"
	cartBUpdated  = "transaction/updated"
	cartBRefunded = "transaction/refunded"
)

type cartBEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type cartBAddress struct {
	Name       string `json:"name"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

func (a *cartBAddress) toAddress() order.Address {
	if a == nil {
		return order.Address{}
	}
	return order.Address{
		Name:       a.Name,
		Line1:      a.Address1,
		Line2:      a.Address2,
		City:       a.City,
		State:      a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

type cartBItem struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int32           `json:"quantity"`
}

type cartBTransaction struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerID      string          `json:"customer_id"`
	TrackingNumber  string          `json:"tracking_number"`
	Items           []cartBItem     `json:"items"`
	ShippingAddress *cartBAddress   `json:"shipping_address"`
	BillingAddress  *cartBAddress   `json:"billing_address"`
}

// HostedCartBAdapter 报文形如 {type, data}，金额为十进制字符串
type HostedCartBAdapter struct {
	secret   string
	statuses StatusTable
}

func NewHostedCartBAdapter(secret string) *HostedCartBAdapter {
	return &HostedCartBAdapter{secret: secret, statuses: HostedCartBStatuses}
}

func (a *HostedCartBAdapter) Provider() order.Provider {
	return order.ProviderHostedCartB
}

func (a *HostedCartBAdapter) Ingest(body []byte, headers http.Header) (*order.Delta, error) {
	if err := checkSharedSecret(order.ProviderHostedCartB, headers, HostedCartBHeader, a.secret); err != nil {
		return nil, err
	}
	var env cartBEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, malformed("decode envelope: %v", err)
	}
	switch env.Type {
	case cartBCreated, cartBUpdated, cartBRefunded:
	default:
		return nil, unhandled(env.Type)
	}
	if len(env.Data) == 0 {
		return nil, malformed("event %s has no data", env.Type)
	}
	var tx cartBTransaction
	if err := json.Unmarshal(env.Data, &tx); err != nil {
		return nil, malformed("decode transaction: %v", err)
	}
	if tx.ID == "" {
		return nil, malformed("transaction has no id")
	}

	currency := strings.ToUpper(tx.Currency)
	d := &order.Delta{
		ProviderTransactionID: tx.ID,
		Provider:              order.ProviderHostedCartB,
		EventType:             env.Type,
		RawStatus:             tx.Status,
		Total:                 toMinor(tx.Total, currency),
		Currency:              currency,
		CustomerEmail:         tx.CustomerEmail,
		UserID:                tx.CustomerID,
		ShippingAddress:       tx.ShippingAddress.toAddress(),
		BillingAddress:        tx.BillingAddress.toAddress(),
		TrackingNumber:        tx.TrackingNumber,
	}
	for _, it := range tx.Items {
		d.Items = append(d.Items, order.Item{
			ProductRef: it.Code,
			Name:       it.Name,
			SKU:        it.Code,
			UnitPrice:  toMinor(it.Price, currency),
			Quantity:   it.Quantity,
		})
	}
	if env.Type == cartBRefunded {
		d.Status = order.StatusRefunded
	} else {
		d.Status, d.Unmapped = a.statuses.Map(tx.Status)
	}
	return d, nil
}
