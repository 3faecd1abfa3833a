package redisx

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/northstar-backend/internal/platform/logger"
)

func TestDeliveryKeyLayout(t *testing.T) {
	if got := DeliveryKey("source-control", "abc"); got != "attribution:delivery:source-control:abc" {
		t.Fatalf("key: got=%s", got)
	}
}

func TestNilClientFallsBackToNop(t *testing.T) {
	ks := NewDeliveryKeystore(logger.Nop(), nil, 0)
	ok, err := ks.Claim(context.Background(), "p", "k")
	if err != nil || !ok {
		t.Fatalf("nop claim: ok=%v err=%v", ok, err)
	}
}

func TestClaimSurfacesTransportErrors(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	ks := NewDeliveryKeystore(logger.Nop(), rdb, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if ok, err := ks.Claim(ctx, "p", "k"); err == nil || ok {
		t.Fatalf("unreachable redis: want error got ok=%v err=%v", ok, err)
	}
}
