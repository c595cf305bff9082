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

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissing = errors.New("missing required config")

// Config 进程配置，来源于环境变量，.env 文件中的值不会覆盖已有环境变量
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	DBDriver string // mysql | sqlite
	DBDSN    string
	DBDebug  bool

	RedisAddr string // 为空时不启用 redis 锁与券缓存
	CouponTTL time.Duration

	KafkaBrokers []string // 为空时通知只记录日志
	KafkaTopic   string

	CardWebhookSecret  string
	HostedCartAToken   string
	HostedCartBSecret  string
	WebhookRejectCode  int
	AdminJWTSecret     string
	OutboxRunInterval  time.Duration
	OutboxRetryLimit   int
	OutboxRetryBackoff time.Duration
	LockTTL            time.Duration
	LogVerbosity       int
}

// Load 读取 files 指定的 .env 文件（不存在时忽略）后解析环境变量
func Load(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	p := &parser{}
	c := &Config{
		HTTPAddr:           p.str("HTTP_ADDR", ":8080"),
		ShutdownTimeout:    p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		DBDriver:           p.str("DB_DRIVER", "sqlite"),
		DBDSN:              p.str("DB_DSN", "file:ordercore.db?cache=shared"),
		DBDebug:            p.boolean("DB_DEBUG", false),
		RedisAddr:          p.str("REDIS_ADDR", ""),
		CouponTTL:          p.duration("COUPON_CACHE_TTL", time.Minute),
		KafkaBrokers:       p.list("KAFKA_BROKERS"),
		KafkaTopic:         p.str("KAFKA_TOPIC", "ordercore.order-notifications"),
		CardWebhookSecret:  p.str("CARD_WEBHOOK_SECRET", ""),
		HostedCartAToken:   p.str("HOSTED_CART_A_TOKEN", ""),
		HostedCartBSecret:  p.str("HOSTED_CART_B_SECRET", ""),
		WebhookRejectCode:  p.integer("WEBHOOK_REJECT_STATUS", 200),
		AdminJWTSecret:     p.str("ADMIN_JWT_SECRET", ""),
		OutboxRunInterval:  p.duration("OUTBOX_RUN_INTERVAL", 500*time.Millisecond),
		OutboxRetryLimit:   p.integer("OUTBOX_RETRY_LIMIT", 5),
		OutboxRetryBackoff: p.duration("OUTBOX_RETRY_INTERVAL", 3*time.Second),
		LockTTL:            p.duration("LOCK_TTL", 10*time.Second),
		LogVerbosity:       p.integer("LOG_VERBOSITY", 0),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER: unsupported driver %q", c.DBDriver))
	}
	if c.DBDSN == "" {
		errs = append(errs, fmt.Errorf("%w: DB_DSN", ErrMissing))
	}
	if c.WebhookRejectCode < 200 || c.WebhookRejectCode > 499 {
		errs = append(errs, fmt.Errorf("WEBHOOK_REJECT_STATUS: %d is not a 2xx-4xx code", c.WebhookRejectCode))
	}
	if c.LockTTL < time.Second {
		errs = append(errs, fmt.Errorf("LOCK_TTL: must be at least 1s"))
	}
	return errors.Join(errs...)
}

type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) list(key string) []string {
	var out []string
	for _, v := range strings.Split(p.str(key, ""), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (p *parser) integer(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
