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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/skyhooked/ordercore"
	"github.com/skyhooked/ordercore/config"
	"github.com/skyhooked/ordercore/coupon"
	"github.com/skyhooked/ordercore/gateway"
	dblock "github.com/skyhooked/ordercore/lock/db"
	redislock "github.com/skyhooked/ordercore/lock/redis"
	"github.com/skyhooked/ordercore/logger/stdr"
	"github.com/skyhooked/ordercore/metrics"
	"github.com/skyhooked/ordercore/notify"
	"github.com/skyhooked/ordercore/notify/kafka"
	"github.com/skyhooked/ordercore/notify/outbox"
	"github.com/skyhooked/ordercore/server"
	"github.com/skyhooked/ordercore/store/rediscache"
	storesql "github.com/skyhooked/ordercore/store/sql"
)

var log = stdr.NewStdr("ordercore")

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Error(err, "load config")
		os.Exit(1)
	}
	stdr.SetVerbosity(cfg.LogVerbosity)

	// ordercore token <subject> 签发一小时有效的后台令牌
	if len(os.Args) > 2 && os.Args[1] == "token" {
		if cfg.AdminJWTSecret == "" {
			log.Error(config.ErrMissing, "ADMIN_JWT_SECRET")
			os.Exit(1)
		}
		token, err := server.IssueAdminToken([]byte(cfg.AdminJWTSecret), os.Args[2], time.Hour)
		if err != nil {
			log.Error(err, "issue token")
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg); err != nil {
		log.Error(err, "ordercore stopped")
		os.Exit(1)
	}
}

func migrate(db *gorm.DB) error {
	if err := storesql.AutoMigrate(db); err != nil {
		return err
	}
	if err := outbox.Migrate(db); err != nil {
		return err
	}
	return dblock.Migrate(db)
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storesql.Open(cfg.DBDriver, cfg.DBDSN, cfg.DBDebug)
	if err != nil {
		return err
	}
	if err := migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	reg := metrics.NewRegistry()

	// 有 redis 时锁与券缓存走 redis，否则锁落库
	var lock ordercore.ILock = dblock.NewDBLock(db, cfg.LockTTL, dblock.WithoutRetry())
	var couponOpts []coupon.ServiceOption
	if cfg.RedisAddr != "" {
		cli := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer cli.Close()
		if err := cli.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		lock = redislock.NewRedisLock(cli, cfg.LockTTL)
		couponOpts = append(couponOpts, coupon.WithCache(rediscache.New(cli, rediscache.WithTTL(cfg.CouponTTL))))
	}

	var sink notify.Sink = notify.NewLogSink(nil)
	if len(cfg.KafkaBrokers) > 0 {
		ks, err := kafka.NewSink(cfg.KafkaBrokers, kafka.WithTopic(cfg.KafkaTopic))
		if err != nil {
			return err
		}
		defer ks.Close()
		sink = ks
	}
	ob := outbox.NewOutbox(db, sink,
		outbox.WithLock(lock),
		outbox.WithMetrics(reg),
		outbox.WithRunInterval(cfg.OutboxRunInterval),
		outbox.WithRetry(cfg.OutboxRetryBackoff, cfg.OutboxRetryLimit),
	)

	coupons := coupon.NewService(storesql.NewCouponStore(db), couponOpts...)
	reconciler := ordercore.NewReconciler(storesql.NewOrderRepository(db),
		ordercore.WithDispatcher(ob),
		ordercore.WithCoupons(coupons),
		ordercore.WithMetrics(reg),
	)

	gwOpts := []gateway.Option{gateway.WithMetrics(reg)}
	for _, a := range adapters(cfg, log) {
		gwOpts = append(gwOpts, gateway.WithAdapter(a))
	}
	gw := gateway.New(reconciler, gwOpts...)
	opts := []server.Option{
		server.WithGateway(gw, gateway.WithRejectStatus(cfg.WebhookRejectCode)),
		server.WithCoupons(coupons),
		server.WithMetrics(reg),
	}
	if cfg.AdminJWTSecret != "" {
		opts = append(opts, server.WithAdminSecret([]byte(cfg.AdminJWTSecret)))
	} else {
		log.Info("ADMIN_JWT_SECRET not set, admin routes disabled")
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.New(reconciler, opts...).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	relayCtx, stopRelay := context.WithCancel(context.Background())
	ob.Start(relayCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		stopRelay()
		<-ob.Done()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	// 请求处理完后再停止投递，已落库的通知由下次启动继续投递
	stopRelay()
	<-ob.Done()
	return err
}

func adapters(cfg *config.Config, l logr.Logger) []gateway.Adapter {
	var out []gateway.Adapter
	if cfg.CardWebhookSecret != "" {
		out = append(out, gateway.NewCardAdapter(cfg.CardWebhookSecret))
	} else {
		l.Info("CARD_WEBHOOK_SECRET not set, card webhooks disabled")
	}
	if cfg.HostedCartAToken != "" {
		out = append(out, gateway.NewHostedCartAAdapter(cfg.HostedCartAToken))
	} else {
		l.Info("HOSTED_CART_A_TOKEN not set, hosted cart A webhooks disabled")
	}
	if cfg.HostedCartBSecret != "" {
		out = append(out, gateway.NewHostedCartBAdapter(cfg.HostedCartBSecret))
	} else {
		l.Info("HOSTED_CART_B_SECRET not set, hosted cart B webhooks disabled")
	}
	return out
}
