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
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"

	"github.com/skyhooked/ordercore"
	"github.com/skyhooked/ordercore/coupon"
	"github.com/skyhooked/ordercore/gateway"
	"github.com/skyhooked/ordercore/logger/stdr"
	"github.com/skyhooked/ordercore/metrics"
	"github.com/skyhooked/ordercore/order"
)

var defaultLogger = stdr.NewStdr("server")

type Options struct {
	Gateway        *gateway.Gateway
	Coupons        *coupon.Service
	Metrics        *metrics.Registry
	AdminSecret    []byte
	GatewayOptions []gateway.HandlerOption
	Logger         logr.Logger
	Now            func() time.Time
}

type Option func(opt *Options)

func WithGateway(g *gateway.Gateway, options ...gateway.HandlerOption) Option {
	return func(opt *Options) {
		opt.Gateway = g
		opt.GatewayOptions = options
	}
}

func WithCoupons(s *coupon.Service) Option {
	return func(opt *Options) {
		opt.Coupons = s
	}
}

func WithMetrics(r *metrics.Registry) Option {
	return func(opt *Options) {
		opt.Metrics = r
	}
}

// WithAdminSecret 未设置时不注册后台路由
func WithAdminSecret(secret []byte) Option {
	return func(opt *Options) {
		opt.AdminSecret = secret
	}
}

func WithLogger(l logr.Logger) Option {
	return func(opt *Options) {
		opt.Logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(opt *Options) {
		opt.Now = now
	}
}

type Server struct {
	reconciler *ordercore.Reconciler
	opt        Options
}

func New(reconciler *ordercore.Reconciler, options ...Option) *Server {
	opt := Options{Logger: defaultLogger, Now: time.Now}
	for _, o := range options {
		o(&opt)
	}
	return &Server{reconciler: reconciler, opt: opt}
}

// Router 注册全部路由
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(Logger(s.opt.Logger), gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if s.opt.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.opt.Metrics.Handler()))
	}
	if s.opt.Gateway != nil {
		r.POST("/webhooks/:provider", s.opt.Gateway.Handler(s.opt.GatewayOptions...))
	}
	r.POST("/checkout", s.checkout)
	if s.opt.Coupons != nil {
		r.POST("/coupons/apply", s.applyCoupon)
	}

	if len(s.opt.AdminSecret) > 0 {
		admin := r.Group("/admin", AdminAuth(s.opt.AdminSecret))
		{
			admin.GET("/orders/:id", s.getOrder)
			admin.PATCH("/orders/:id", s.updateOrder)
			admin.POST("/orders/:id/status", s.transitionOrder)
			admin.POST("/orders/:id/coupon", s.applyOrderCoupon)
			admin.GET("/users/:id/orders", s.listUserOrders)
			if s.opt.Coupons != nil {
				admin.POST("/coupons", s.createCoupon)
				admin.GET("/coupons/:code", s.getCoupon)
				admin.POST("/coupons/:code/deactivate", s.deactivateCoupon)
			}
		}
	}
	return r
}

// writeError 错误分类到状态码
func (s *Server) writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case ordercore.IsValidation(err), errors.Is(err, coupon.ErrInvalidCoupon), errors.Is(err, coupon.ErrInvalidItems):
		code = http.StatusBadRequest
	case errors.Is(err, ordercore.ErrNotFound), errors.Is(err, coupon.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ordercore.ErrTerminalOrder), errors.Is(err, ordercore.ErrInvalidTransition),
		errors.Is(err, coupon.ErrDuplicateCode), errors.Is(err, ordercore.ErrLocked):
		code = http.StatusConflict
	case errors.Is(err, ordercore.ErrCouponsDisabled):
		code = http.StatusNotImplemented
	}
	if code == http.StatusInternalServerError {
		logr.FromContextOrDiscard(c.Request.Context()).Error(err, "request failed", "path", c.FullPath())
		c.JSON(code, gin.H{"error": "internal error"})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func (s *Server) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (s *Server) checkout(c *gin.Context) {
	var req CheckoutRequest
	if !s.bind(c, &req) {
		return
	}
	p, err := order.ParseProvider(req.Provider)
	if err != nil {
		s.writeError(c, &ordercore.ValidationError{Err: err})
		return
	}
	res, err := s.reconciler.Checkout(c.Request.Context(), ordercore.CheckoutRequest{
		Provider:              p,
		ProviderTransactionID: req.PaymentReference,
		UserID:                req.UserID,
		CustomerEmail:         req.Email,
		Currency:              req.Currency,
		Items:                 req.Items,
		ShippingAddress:       req.ShippingAddress,
		BillingAddress:        req.BillingAddress,
		CouponCode:            req.CouponCode,
		Now:                   s.opt.Now(),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	code := http.StatusOK
	if res.Created {
		code = http.StatusCreated
	}
	c.JSON(code, resultView(res.Result, res.Coupon))
}

func (s *Server) applyCoupon(c *gin.Context) {
	var req ApplyCouponRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.opt.Coupons.Apply(c.Request.Context(), coupon.ApplyRequest{
		Code:      req.Code,
		Subtotal:  req.Subtotal,
		ItemCount: req.ItemCount,
		Items:     req.Items,
		Now:       s.opt.Now(),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !res.Accepted() {
		s.opt.Metrics.IncCouponRejected(string(res.Rejection.Reason))
	}
	c.JSON(http.StatusOK, couponApplyView(res))
}

func (s *Server) getOrder(c *gin.Context) {
	o, err := s.reconciler.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(o))
}

func (s *Server) listUserOrders(c *gin.Context) {
	orders, err := s.reconciler.ListByUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView(o))
	}
	c.JSON(http.StatusOK, gin.H{"orders": views})
}

func (s *Server) updateOrder(c *gin.Context) {
	var req OrderFieldsRequest
	if !s.bind(c, &req) {
		return
	}
	o, err := s.reconciler.UpdateDetails(c.Request.Context(), c.Param("id"), req.fields())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(o))
}

func (s *Server) transitionOrder(c *gin.Context) {
	var req TransitionRequest
	if !s.bind(c, &req) {
		return
	}
	to, err := order.ParseStatus(req.Status)
	if err != nil {
		s.writeError(c, &ordercore.ValidationError{Err: err})
		return
	}
	res, err := s.reconciler.Transition(c.Request.Context(), c.Param("id"), to, req.fields())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultView(res, nil))
}

func (s *Server) applyOrderCoupon(c *gin.Context) {
	var req OrderCouponRequest
	if !s.bind(c, &req) {
		return
	}
	res, err := s.reconciler.ApplyCoupon(c.Request.Context(), c.Param("id"), req.Code, s.opt.Now())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultView(res.Result, res.Coupon))
}

func (s *Server) createCoupon(c *gin.Context) {
	var req CreateCouponRequest
	if !s.bind(c, &req) {
		return
	}
	t, err := coupon.ParseType(req.Type)
	if err != nil {
		s.writeError(c, err)
		return
	}
	created, err := s.opt.Coupons.Create(c.Request.Context(), &coupon.Coupon{
		Code:                  req.Code,
		Type:                  t,
		Value:                 req.Value,
		MinimumOrderAmount:    req.MinimumOrderAmount,
		MaximumDiscountAmount: req.MaximumDiscountAmount,
		UsageLimit:            req.UsageLimit,
		IsActive:              !req.Inactive,
		ValidFrom:             req.ValidFrom,
		ValidUntil:            req.ValidUntil,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, couponView(created))
}

func (s *Server) getCoupon(c *gin.Context) {
	cp, err := s.opt.Coupons.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, couponView(cp))
}

func (s *Server) deactivateCoupon(c *gin.Context) {
	if err := s.opt.Coupons.Deactivate(c.Request.Context(), c.Param("code")); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": coupon.NormalizeCode(c.Param("code")), "is_active": false})
}
