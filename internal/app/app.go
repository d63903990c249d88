// Package app wires the engine's shared dependency graph — database,
// cache, inventory, credentials, parsers, executor — once, so the three
// entry points (API server, worker, beat) start from the same assembled
// state instead of three divergent copies of the same plumbing.
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/nocauto/noc-engine/internal/config"
	"github.com/nocauto/noc-engine/internal/store"
	"github.com/nocauto/noc-engine/pkg/baseline"
	"github.com/nocauto/noc-engine/pkg/broker"
	"github.com/nocauto/noc-engine/pkg/cache/blobcache"
	"github.com/nocauto/noc-engine/pkg/cache/topocache"
	"github.com/nocauto/noc-engine/pkg/credential"
	"github.com/nocauto/noc-engine/pkg/device"
	"github.com/nocauto/noc-engine/pkg/discovery"
	"github.com/nocauto/noc-engine/pkg/executor"
	"github.com/nocauto/noc-engine/pkg/ownership"
	"github.com/nocauto/noc-engine/pkg/parser"
	"github.com/nocauto/noc-engine/pkg/settings"
)

const (
	discoveryStream = "discovery-tasks"
	discoveryGroup  = "discovery-workers"
)

// App holds every collaborator the three binaries share. Fields are public
// so each main assembles only the extra pieces it needs on top (HTTP
// router, worker loop, beat loop).
type App struct {
	Config *config.Config

	DB    *sqlx.DB
	Pool  *pgxpool.Pool
	Redis *redis.Client

	Broker      *broker.Broker
	Settings    *settings.Store
	Credentials *credential.Store
	Inventory   *store.InventoryAdapter
	Baselines   *store.BaselineRepository
	Scheduler   *store.SchedulerRepository
	Ownership   *store.OwnershipRepository

	TopoCache *topocache.Cache
	BlobCache *blobcache.Cache
	Parsers   *parser.Registry

	Connector  *device.Connector
	Executor   *executor.Executor
	Baseline   *baseline.Engine
	OwnerCheck *ownership.Checker
}

// Close releases every connection Bootstrap opened.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// Bootstrap loads configuration from path, opens the database and Redis
// connections, runs migrations, and assembles every shared collaborator.
func Bootstrap(ctx context.Context, path string) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	db, pool, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	b := broker.New(redisClient, discoveryStream, discoveryGroup)
	if err := b.EnsureGroup(ctx); err != nil {
		return nil, fmt.Errorf("ensuring broker consumer group: %w", err)
	}

	settingsStore := settings.New(db, 0)

	credKey := credential.DeriveKey(cfg.CredentialEncryptionKey)
	credRepo := store.NewCredentialRepository(db)
	credStore := credential.NewStore(credRepo, credKey)

	// Seed the bootstrapping admin credential so a fresh deployment has a
	// usable default identity for durable worker discovery before any
	// operator registers per-user credentials. Put is an upsert, so this
	// is safe to run on every startup.
	if cfg.DefaultAdminUsername != "" {
		if err := credStore.Save(ctx, cfg.DefaultAdminUsername, "default", cfg.DefaultAdminUsername, cfg.DefaultAdminPassword); err != nil {
			return nil, fmt.Errorf("seeding default admin credential: %w", err)
		}
	}

	inventoryAdapter := store.NewInventoryAdapter(db)
	baselineRepo := store.NewBaselineRepository(db)
	schedulerRepo := store.NewSchedulerRepository(db)
	ownershipRepo := store.NewOwnershipRepository(db)

	topoCache := topocache.New(pool)
	blobCache := blobcache.New(redisClient)
	parsers := parser.DefaultRegistry()

	connector := device.NewConnector()

	exec := executor.New(
		inventoryAdapter,
		credStore,
		connectorAdapter{connector},
		parsers,
		blobCache,
		topoCache,
		settingsStore,
		sshTimeouts(cfg),
		nil,
	)

	baselineEngine := baseline.New(baselineExecutorAdapter{exec}, baselineRepo)
	ownerChecker := ownership.New(ownershipRepo)

	return &App{
		Config:      cfg,
		DB:          db,
		Pool:        pool,
		Redis:       redisClient,
		Broker:      b,
		Settings:    settingsStore,
		Credentials: credStore,
		Inventory:   inventoryAdapter,
		Baselines:   baselineRepo,
		Scheduler:   schedulerRepo,
		Ownership:   ownershipRepo,
		TopoCache:   topoCache,
		BlobCache:   blobCache,
		Parsers:     parsers,
		Connector:   connector,
		Executor:    exec,
		Baseline:    baselineEngine,
		OwnerCheck:  ownerChecker,
	}, nil
}

func sshTimeouts(cfg *config.Config) executor.Timeouts {
	connect, auth, banner, blocking, read, session, overall := cfg.SSHTimeoutsDuration()
	return executor.Timeouts{
		Connect: connect, Auth: auth, Banner: banner,
		Blocking: blocking, Read: read, Session: session, Overall: overall,
	}
}

// connectorAdapter translates between pkg/device's real SSH types and
// pkg/executor's local mirror types, so executor stays unit-testable
// against a fake without importing pkg/device.
type connectorAdapter struct {
	conn *device.Connector
}

func (a connectorAdapter) Run(ctx context.Context, addr, driverHint string, creds executor.ConnectorCredentials, command string, t executor.Timeouts) *executor.ConnectorResult {
	res := a.conn.Run(ctx, addr, driverHint, device.Credentials{Username: creds.Username, Password: creds.Password}, command, device.Timeouts{
		Connect: t.Connect, Auth: t.Auth, Banner: t.Banner,
		Blocking: t.Blocking, Read: t.Read, Session: t.Session, Overall: t.Overall,
	})
	return &executor.ConnectorResult{
		Success: res.Success, Output: res.Output,
		ExecutionTime: res.ExecutionTime, ErrorKind: res.ErrorKind,
	}
}

// baselineExecutorAdapter narrows *executor.Executor to baseline.Executor.
type baselineExecutorAdapter struct {
	exec *executor.Executor
}

func (a baselineExecutorAdapter) Run(ctx context.Context, deviceID, endpoint string, opts baseline.ExecutorOptions) (*baseline.ExecutorResult, error) {
	res, err := a.exec.Run(ctx, deviceID, endpoint, executor.Options{OwnerUser: opts.OwnerUser})
	if err != nil {
		return nil, err
	}
	return &baseline.ExecutorResult{Records: res.Records}, nil
}

// DiscoveryExecutor narrows *executor.Executor to discovery.Executor, used
// by both the async runner (noc-api) and the durable worker (noc-worker).
type DiscoveryExecutor struct {
	Exec *executor.Executor
}

func (a DiscoveryExecutor) Run(ctx context.Context, deviceID, endpoint string, opts discovery.ExecutorOptions) (*discovery.ExecutorResult, error) {
	res, err := a.Exec.Run(ctx, deviceID, endpoint, executor.Options{OwnerUser: opts.OwnerUser, ForceRefresh: opts.ForceRefresh})
	if err != nil {
		return nil, err
	}
	return &discovery.ExecutorResult{Records: res.Records, FromCache: res.FromCache}, nil
}
