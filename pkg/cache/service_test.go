package cache

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"boxoffice/internal/shared/config"
	"boxoffice/internal/shared/testutil"
)

type eventCard struct {
	Name  string `json:"name"`
	Venue string `json:"venue"`
}

func TestGetSetDelete(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	svc := NewService(client)
	ctx := context.Background()

	var got eventCard
	if err := svc.Get(ctx, "event:1", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	if err := svc.Set(ctx, "event:1", eventCard{Name: "Night Market", Venue: "Pier 4"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := svc.Get(ctx, "event:1", &got); err != nil || got.Name != "Night Market" {
		t.Fatalf("expected cached card, got %+v %v", got, err)
	}

	mr.FastForward(2 * time.Minute)
	if err := svc.Get(ctx, "event:1", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestDeletePattern(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	svc := NewService(client)
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		mr.Set("events:list:"+strconv.Itoa(i), "x")
	}
	mr.Set("event:keep", "x")

	if err := svc.DeletePattern(ctx, "events:list:*"); err != nil {
		t.Fatalf("delete pattern: %v", err)
	}
	if n := len(mr.Keys()); n != 1 {
		t.Fatalf("expected only the unrelated key left, got %d keys", n)
	}
}

func TestNewClient(t *testing.T) {
	mr, _ := testutil.NewRedis(t)

	client, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("expected connection, got %v", err)
	}
	client.Close()

	if Address(config.RedisConfig{Host: "redis", Port: "6379"}) != "redis:6379" {
		t.Fatalf("expected host:port address")
	}
	if _, err := NewClient(context.Background(), config.RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
