package core

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"immobilog/internal/infra/persistence/memory"
	"immobilog/internal/infra/persistence/postgres"
	"immobilog/internal/infra/persistence/postgres/testutil"
	"immobilog/internal/infra/persistence/redis"
)

func TestOpenKeyValueStoreMemory(t *testing.T) {
	kv, err := OpenKeyValueStore(context.Background(), StorageConfig{Driver: StorageMemory})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := kv.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", kv)
	}
}

func TestOpenKeyValueStoreDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	kv, err := OpenKeyValueStore(context.Background(), StorageConfig{SQLitePath: path})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer func() { _ = kv.Close() }()
	ctx := context.Background()
	if err := kv.Set(ctx, "animals", []byte("[]")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := kv.Get(ctx, "animals"); err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
}

func TestOpenKeyValueStorePostgres(t *testing.T) {
	if _, err := OpenKeyValueStore(context.Background(), StorageConfig{Driver: StoragePostgres}); err == nil {
		t.Fatalf("expected missing DSN error")
	}

	db, conn := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	kv, err := OpenKeyValueStore(context.Background(), StorageConfig{Driver: StoragePostgres, PostgresDSN: "postgres://stub"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = kv.Close() }()
	if _, ok := kv.(*postgres.Store); !ok {
		t.Fatalf("expected postgres store, got %T", kv)
	}
	if len(conn.Execs) == 0 {
		t.Fatalf("expected schema statements to run")
	}

	restoreErr := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("refused") })
	defer restoreErr()
	kv2, err := OpenKeyValueStore(context.Background(), StorageConfig{Driver: StoragePostgres, PostgresDSN: "postgres://stub"})
	if err == nil || kv2 != nil {
		t.Fatalf("expected open error with nil store, got %v %v", kv2, err)
	}
}

func TestOpenKeyValueStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	kv, err := OpenKeyValueStore(context.Background(), StorageConfig{Driver: StorageRedis, RedisAddr: mr.Addr(), RedisPrefix: "test:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = kv.Close() }()
	if _, ok := kv.(*redis.Store); !ok {
		t.Fatalf("expected redis store, got %T", kv)
	}
	if err := kv.Set(context.Background(), "animals", []byte("[]")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("test:animals") {
		t.Fatalf("expected prefixed key in redis")
	}
}

func TestOpenKeyValueStoreUnknown(t *testing.T) {
	_, err := OpenKeyValueStore(context.Background(), StorageConfig{Driver: "etcd"})
	if err == nil || !strings.Contains(err.Error(), "unknown storage driver") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}
