// Package redisx holds the Redis-backed helpers: client construction and the
// delivery pre-check keystore.
package redisx

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

const DefaultDeliveryTTL = 24 * time.Hour

// NewClient dials REDIS_ADDR (or addr when set) and pings it once.
func NewClient(ctx context.Context, addr string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	}
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// DeliveryKeystore is a fast, non-authoritative replay pre-check.
type DeliveryKeystore interface {
	// Claim sets the delivery key if absent and reports whether this caller set it.
	Claim(ctx context.Context, provider, deliveryKey string) (bool, error)
	// Release drops the key so a retry of a failed delivery is not short-circuited.
	Release(ctx context.Context, provider, deliveryKey string) error
}

func DeliveryKey(provider, deliveryKey string) string {
	return "attribution:delivery:" + provider + ":" + deliveryKey
}

type deliveryKeystore struct {
	log *logger.Logger
	rdb goredis.UniversalClient
	ttl time.Duration
}

func NewDeliveryKeystore(log *logger.Logger, rdb goredis.UniversalClient, ttl time.Duration) DeliveryKeystore {
	if rdb == nil {
		return NopKeystore{}
	}
	if ttl <= 0 {
		ttl = DefaultDeliveryTTL
	}
	return &deliveryKeystore{log: log.With("service", "DeliveryKeystore"), rdb: rdb, ttl: ttl}
}

func (k *deliveryKeystore) Claim(ctx context.Context, provider, deliveryKey string) (bool, error) {
	ok, err := k.rdb.SetNX(ctx, DeliveryKey(provider, deliveryKey), time.Now().UTC().Format(time.RFC3339), k.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (k *deliveryKeystore) Release(ctx context.Context, provider, deliveryKey string) error {
	if err := k.rdb.Del(ctx, DeliveryKey(provider, deliveryKey)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// NopKeystore claims every key. The store ledger stays the only dedup.
type NopKeystore struct{}

func (NopKeystore) Claim(context.Context, string, string) (bool, error) { return true, nil }
func (NopKeystore) Release(context.Context, string, string) error       { return nil }
