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

package ordercore

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/skyhooked/ordercore/coupon"
	"github.com/skyhooked/ordercore/metrics"
)

type Options struct {
	Logger      logr.Logger
	Dispatcher  Dispatcher
	Locker      ILock // 可选，按 provider+txn 串行化处理，幂等仍由唯一键保证
	IDGenerator IIDGenerator
	Coupons     *coupon.Service
	Metrics     *metrics.Registry
	CASAttempts uint // 状态 CAS 失败后的回读重试次数
	CASDelay    time.Duration
	Now         func() time.Time
}

type Option interface {
	ApplyToOptions(*Options)
}

type LoggerOption struct {
	logger logr.Logger
}

func (t LoggerOption) ApplyToOptions(opts *Options) {
	opts.Logger = t.logger
}

func WithLogger(logger logr.Logger) LoggerOption {
	return LoggerOption{logger: logger}
}

type DispatcherOption struct {
	dispatcher Dispatcher
}

func (t DispatcherOption) ApplyToOptions(opts *Options) {
	opts.Dispatcher = t.dispatcher
}

func WithDispatcher(d Dispatcher) DispatcherOption {
	return DispatcherOption{dispatcher: d}
}

type LockOption struct {
	lock ILock
}

func (t LockOption) ApplyToOptions(opts *Options) {
	opts.Locker = t.lock
}

func WithLock(lock ILock) LockOption {
	return LockOption{lock: lock}
}

type IDGeneratorOption struct {
	idGen IIDGenerator
}

func (t IDGeneratorOption) ApplyToOptions(opts *Options) {
	opts.IDGenerator = t.idGen
}

func WithIDGenerator(idGen IIDGenerator) IDGeneratorOption {
	return IDGeneratorOption{idGen: idGen}
}

type CouponOption struct {
	svc *coupon.Service
}

func (t CouponOption) ApplyToOptions(opts *Options) {
	opts.Coupons = t.svc
}

func WithCoupons(svc *coupon.Service) CouponOption {
	return CouponOption{svc: svc}
}

type MetricsOption struct {
	reg *metrics.Registry
}

func (t MetricsOption) ApplyToOptions(opts *Options) {
	opts.Metrics = t.reg
}

func WithMetrics(reg *metrics.Registry) MetricsOption {
	return MetricsOption{reg: reg}
}

type CASRetryOption struct {
	attempts uint
	delay    time.Duration
}

func (t CASRetryOption) ApplyToOptions(opts *Options) {
	opts.CASAttempts = t.attempts
	opts.CASDelay = t.delay
}

func WithCASRetry(attempts uint, delay time.Duration) CASRetryOption {
	return CASRetryOption{attempts: attempts, delay: delay}
}

type ClockOption func() time.Time

func (t ClockOption) ApplyToOptions(opts *Options) {
	opts.Now = t
}

func WithClock(now func() time.Time) ClockOption {
	return ClockOption(now)
}
