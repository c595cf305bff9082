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
	"crypto/subtle"
	"net/http"

	"github.com/skyhooked/ordercore/order"
)

// checkSharedSecret 托管购物车渠道通过共享密钥请求头认证
func checkSharedSecret(p order.Provider, headers http.Header, name, secret string) error {
	got := headers.Get(name)
	if secret == "" || got == "" {
		return invalidSignature(p, nil)
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		return invalidSignature(p, nil)
	}
	return nil
}
