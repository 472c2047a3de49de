package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/bradfitz/gomemcache/memcache"
	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"

	"github.com/nozo-moto/poorlock"
)

const connectTimeout = 5 * time.Second

// backend is an opened lock store plus whatever must be closed after use.
type backend struct {
	store poorlock.LockStore
	close func() error
}

func noClose() error { return nil }

func openBackend(ctx context.Context, c Config, logger *slog.Logger) (*backend, error) {
	opts := []poorlock.StoreOption{
		poorlock.WithKeyPrefix(c.KeyPrefix),
		poorlock.WithStoreLogger(logger),
	}
	if c.Schema == "legacy" {
		opts = append(opts, poorlock.WithSchema(poorlock.DynamoSchema()))
	}

	switch c.Backend {
	case "memory":
		return &backend{store: poorlock.NewMemoryStore(opts...), close: noClose}, nil
	case "redis":
		return openRedis(ctx, c, opts)
	case "mysql":
		return openMySQL(ctx, c, opts)
	case "memcache":
		if len(c.MemcacheServers) == 0 {
			return nil, fmt.Errorf("memcache: no servers configured")
		}
		client := memcache.New(c.MemcacheServers...)
		client.Timeout = connectTimeout
		return &backend{store: poorlock.NewMemcacheStore(client, opts...), close: noClose}, nil
	case "dynamodb":
		return openDynamo(ctx, c, opts)
	}
	return nil, fmt.Errorf("invalid backend %q", c.Backend)
}

func openRedis(ctx context.Context, c Config, opts []poorlock.StoreOption) (*backend, error) {
	ropts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &backend{store: poorlock.NewRedisStore(client, opts...), close: client.Close}, nil
}

func openMySQL(ctx context.Context, c Config, opts []poorlock.StoreOption) (*backend, error) {
	db, err := sql.Open("mysql", c.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	db.SetConnMaxLifetime(time.Minute * 3)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}

	store, err := poorlock.NewMySQLStore(db, c.MySQLTable, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if c.MySQLCreateTable {
		if err := store.CreateTable(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("mysql: create table: %w", err)
		}
	}
	return &backend{store: store, close: db.Close}, nil
}

func openDynamo(ctx context.Context, c Config, opts []poorlock.StoreOption) (*backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if c.DynamoRegion != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(c.DynamoRegion))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if c.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(c.DynamoEndpoint)
		}
	})
	return &backend{store: poorlock.NewDynamoStore(client, c.DynamoTable, opts...), close: noClose}, nil
}
