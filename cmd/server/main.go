package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"conforma/internal/audit"
	auditmemory "conforma/internal/audit/store/memory"
	auditpostgres "conforma/internal/audit/store/postgres"
	"conforma/internal/catalog"
	derivationhandler "conforma/internal/derivation/handler"
	"conforma/internal/derivation/lock"
	derivationmetrics "conforma/internal/derivation/metrics"
	derivationservice "conforma/internal/derivation/service"
	"conforma/internal/isolation"
	isolationmetrics "conforma/internal/isolation/metrics"
	jwttoken "conforma/internal/jwt_token"
	"conforma/internal/platform/config"
	"conforma/internal/platform/httpserver"
	"conforma/internal/platform/kafka"
	"conforma/internal/platform/logger"
	platformmw "conforma/internal/platform/middleware"
	platformredis "conforma/internal/platform/redis"
	ruleshandler "conforma/internal/rules/handler"
	rulesmetrics "conforma/internal/rules/metrics"
	rulesservice "conforma/internal/rules/service"
	rulesstore "conforma/internal/rules/store"
	runstore "conforma/internal/runlog/store"
	scopestore "conforma/internal/scope/store"
	"conforma/internal/tenant"
	tenantmetrics "conforma/internal/tenant/metrics"
	tenantservice "conforma/internal/tenant/service"
	tenantseed "conforma/internal/tenant/store"
	tenantstore "conforma/internal/tenant/store/tenant"
	workspacestore "conforma/internal/tenant/store/workspace"
	adminmw "conforma/pkg/platform/middleware/admin"
	"conforma/pkg/platform/middleware/metadata"
	"conforma/pkg/platform/middleware/requestid"
	"conforma/pkg/platform/middleware/requesttime"
	txcontext "conforma/pkg/platform/tx"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.StorageBackend == "postgres" {
		var err error
		db, err = openPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
	}

	// Audit pipeline. Every service emits through the same publisher; with
	// postgres the store also stages outbox entries the worker drains.
	var auditStore audit.Store
	if db != nil {
		auditStore = auditpostgres.New(db)
	} else {
		auditStore = auditmemory.NewInMemoryStore()
	}
	publisher := audit.NewPublisher(auditStore, audit.WithAsyncBuffer(256))
	defer publisher.Close()

	guard := isolation.NewGuard(log,
		isolation.WithViolationSink(audit.NewSink(publisher)),
		isolation.WithMetrics(isolationmetrics.New()),
	)

	cat := catalog.NewInMemory()
	catalog.SeedReferenceCatalog(cat)

	// Ruleset storage, optionally fronted by the Redis snapshot cache.
	var rulesets rulesservice.RulesetStore
	if db != nil {
		rulesets = rulesstore.NewPostgres(db)
	} else {
		rulesets = rulesstore.NewMemory()
	}
	ruleMetrics := rulesmetrics.New()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		rulesets = rulesstore.NewCached(rulesets.(rulesstore.Inner), redisClient.Client, cfg.Redis.SnapshotTTL,
			rulesstore.WithCacheLogger(log),
			rulesstore.WithCacheMetrics(ruleMetrics),
		)
	}

	rules := rulesservice.New(rulesets, cat,
		rulesservice.WithLogger(log),
		rulesservice.WithMetrics(ruleMetrics),
	)

	var (
		tenants    tenantservice.TenantStore
		workspaces tenantservice.WorkspaceStore
		scopes     derivationservice.ScopeStore
		runs       derivationservice.RunLog
		locker     lock.Locker
		txRunner   txcontext.Runner = txcontext.Noop{}
	)
	if db != nil {
		tenants = tenantstore.NewPostgres(db)
		workspaces = workspacestore.NewPostgres(db)
		scopes = scopestore.NewPostgres(db, guard)
		runs = runstore.NewPostgres(db, guard)
		locker = lock.NewPostgres(db)
		txRunner = txcontext.NewSQLRunner(db)
	} else {
		memTenants := tenantstore.NewInMemory()
		memWorkspaces := workspacestore.NewInMemory()
		tenantseed.SeedBootstrapTenant(memTenants, memWorkspaces)
		tenants = memTenants
		workspaces = memWorkspaces
		scopes = scopestore.NewMemory(guard)
		runs = runstore.NewMemory(guard)
		locker = lock.NewMemory()
	}

	tenantService := tenant.NewService(tenants, workspaces,
		tenantservice.WithLogger(log),
		tenantservice.WithMetrics(tenantmetrics.New()),
		tenantservice.WithAuditPublisher(publisher),
	)

	engine := derivationservice.New(rules, scopes, runs, locker,
		derivationservice.WithLogger(log),
		derivationservice.WithMetrics(derivationmetrics.New()),
		derivationservice.WithAuditPublisher(publisher),
		derivationservice.WithTxRunner(txRunner),
	)

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, "conforma", "conforma-api")
	router := newRouter(cfg, log, tokens, tenantService, rules, engine)
	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	// Outbox drain needs both a durable outbox and a broker to drain into.
	if db != nil && len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, log)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer producer.Close()
		if err := producer.EnsureTopics(ctx, 3, 1, audit.Topic); err != nil {
			return fmt.Errorf("ensure kafka topics: %w", err)
		}
		worker := audit.NewOutboxWorker(db, producer, log)
		group.Go(func() error { return worker.Run(groupCtx) })
	}

	group.Go(func() error {
		log.Info("starting conforma", "addr", cfg.Addr, "backend", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func newRouter(
	cfg config.Server,
	log *slog.Logger,
	tokens *jwttoken.JWTService,
	tenantService *tenant.Service,
	rules *rulesservice.Service,
	engine *derivationservice.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Tenant-scoped API. Claims come from the bearer token and are
	// validated against the tenant store on every request.
	r.Group(func(api chi.Router) {
		api.Use(platformmw.RequireAuth(tokens, log))
		derivationhandler.New(engine, tenantService, log).Register(api)
	})

	// Control plane. Deliberately not reachable with tenant tokens. A bcrypt
	// hash in the config takes precedence over a plaintext token.
	adminToken := adminmw.RequireAdminToken(cfg.AdminToken, log)
	if cfg.AdminTokenHash != "" {
		adminToken = adminmw.RequireHashedAdminToken(cfg.AdminTokenHash, log)
	}
	r.Group(func(adminAPI chi.Router) {
		adminAPI.Use(adminToken)
		tenant.NewHandler(tenantService, log).Register(adminAPI)
		ruleshandler.New(rules, log).Register(adminAPI)
	})

	return r
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("POSTGRES_DSN is required when STORAGE_BACKEND=postgres")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
