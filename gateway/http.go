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
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skyhooked/ordercore"
	"github.com/skyhooked/ordercore/order"
)

// MaxBodyBytes 单个 webhook 报文上限
const MaxBodyBytes = int64(64 << 10)

type HandlerOptions struct {
	// RejectStatus 签名失败和报文错误的响应码，默认 200 以免渠道无意义地重投
	RejectStatus int
}

type HandlerOption func(opt *HandlerOptions)

func WithRejectStatus(code int) HandlerOption {
	return func(opt *HandlerOptions) {
		opt.RejectStatus = code
	}
}

// Handler 挂载到 POST /webhooks/:provider
// 只有对账或存储失败返回 500，依赖幂等让渠道重投
func (g *Gateway) Handler(options ...HandlerOption) gin.HandlerFunc {
	opt := HandlerOptions{RejectStatus: http.StatusOK}
	for _, o := range options {
		o(&opt)
	}
	return func(c *gin.Context) {
		p, err := order.ParseProvider(c.Param("provider"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"result": "unknown_provider", "error": err.Error()})
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(opt.RejectStatus, gin.H{"result": "malformed", "error": "payload too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"result": "error", "error": err.Error()})
			return
		}

		res, err := g.Handle(c.Request.Context(), p, body, c.Request.Header)
		label := resultLabel(res, err)
		switch {
		case err == nil:
			resp := gin.H{"result": label}
			if res.Order != nil {
				resp["order_id"] = res.Order.ID
				resp["status"] = res.Order.Status
			}
			c.JSON(http.StatusOK, resp)
		case errors.Is(err, ErrUnhandledEventType):
			c.JSON(http.StatusOK, gin.H{"result": label})
		case errors.Is(err, ErrUnknownProvider):
			c.JSON(http.StatusNotFound, gin.H{"result": label, "error": err.Error()})
		case ordercore.IsAuthentication(err), ordercore.IsValidation(err):
			c.JSON(opt.RejectStatus, gin.H{"result": label, "error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"result": label, "error": "reconciliation failed"})
		}
	}
}
