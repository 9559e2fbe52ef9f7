package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	gosundheit "github.com/AppsFlyer/go-sundheit"
	"github.com/AppsFlyer/go-sundheit/checks"
	gosundheithttp "github.com/AppsFlyer/go-sundheit/http"
	"github.com/ghodss/yaml"
	"github.com/jonboulle/clockwork"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/coreoidc/authd/cache"
	cachememory "github.com/coreoidc/authd/cache/memory"
	"github.com/coreoidc/authd/cache/rediscache"
	"github.com/coreoidc/authd/httpapi"
	"github.com/coreoidc/authd/manager"
	"github.com/coreoidc/authd/oauth2tx"
	"github.com/coreoidc/authd/storage"
	"github.com/coreoidc/authd/storage/memory"
	storagesql "github.com/coreoidc/authd/storage/sql"
	"github.com/coreoidc/authd/token"
)

func commandServe() *cobra.Command {
	return &cobra.Command{
		Use:     "serve [flags] [config file]",
		Short:   "Launch authd",
		Example: "authd serve config.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			return runServe(args[0])
		},
	}
}

func runServe(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	level, err := parseLogLevel(c.Logger.Level)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger, err := newLogger(level, c.Logger.Format)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger.Info("config loaded", "issuer", c.Issuer, "storage", c.Storage.Type)

	store, err := openStorage(c.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	var entityCache *cache.Cache
	if backend, err := openCache(c.Cache); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	} else if backend != nil {
		entityCache = cache.New(backend)
	}

	clock := clockwork.NewRealClock()
	mgrOpts := manager.Options{Cache: entityCache, Clock: clock}

	apps := manager.NewApplicationManager(store, mgrOpts)
	authz := manager.NewAuthorizationManager(store, mgrOpts)
	tokens := manager.NewTokenManager(store, mgrOpts)
	scopes := manager.NewScopeManager(store, mgrOpts)

	if err := seedStaticApplications(context.Background(), apps, c.StaticApplications, logger); err != nil {
		return err
	}

	keys := token.NewKeyStore(
		parseDurationOr(c.Expiry.SigningKeys, 6*time.Hour),
		parseDurationOr(c.Expiry.SigningKeyValidFor, 24*time.Hour),
	)
	serializer := token.NewJOSESerializer(keys)

	txOptions := oauth2tx.Options{
		Issuer:                      c.Issuer,
		SupportedResponseTypes:      toSet(c.OAuth2.ResponseTypes, defaultResponseTypes),
		SupportedGrantTypes:         toSet(c.OAuth2.GrantTypes, defaultGrantTypes),
		ScopeValidationEnabled:      c.OAuth2.ScopeValidationEnabled,
		RequireEndpointPermission:   c.OAuth2.RequireEndpointPermission,
		RequireGrantTypePermission:  c.OAuth2.RequireGrantTypePermission,
		RequireScopePermission:      c.OAuth2.RequireScopePermission,
		Clock:                       clock,
		Serializer:                  serializer,
		AccessTokenLifetime:         parseDurationOr(c.Expiry.AccessTokens, time.Hour),
		IdentityTokenLifetime:       parseDurationOr(c.Expiry.IdentityTokens, time.Hour),
		RefreshTokenLifetime:        parseDurationOr(c.Expiry.RefreshTokens, 0),
		UserinfoEndpointPassthrough: true,
	}

	srv, err := httpapi.NewServer(httpapi.Config{
		Issuer:         c.Issuer,
		Logger:         logger,
		Apps:           apps,
		Authorizations: authz,
		Tokens:         tokens,
		Scopes:         scopes,
		Keys:           keys,
		Serializer:     serializer,
		Signin:         httpapi.SigninFunc(passthroughSignin),
		Options:        txOptions,
		AllowedOrigins: c.Web.AllowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	httpapi.MustRegisterMetrics(registry)

	health := gosundheit.New()
	health.RegisterCheck(&gosundheit.Config{
		Check: &checks.CustomCheck{
			CheckName: "storage",
			CheckFunc: storage.NewCustomHealthCheckFunc(store, clock.Now),
		},
		ExecutionPeriod:  15 * time.Second,
		InitiallyPassing: true,
	})

	var gr run.Group

	if c.Telemetry.HTTP != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.Handle("/healthz", gosundheithttp.HandleHealthJSON(health))
		addServerRunner(&gr, "telemetry", &http.Server{Addr: c.Telemetry.HTTP, Handler: mux}, logger)
	}
	if c.Web.HTTP != "" {
		addServerRunner(&gr, "http", &http.Server{Addr: c.Web.HTTP, Handler: srv}, logger)
	}
	if c.Web.HTTPS != "" {
		addTLSServerRunner(&gr, "https", &http.Server{Addr: c.Web.HTTPS, Handler: srv}, c.Web.TLSCert, c.Web.TLSKey, logger)
	}

	gcCtx, gcCancel := context.WithCancel(context.Background())
	gr.Add(func() error {
		runGarbageCollector(gcCtx, store, clock, logger)
		return nil
	}, func(error) { gcCancel() })

	gr.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))

	if err := gr.Run(); err != nil {
		if _, ok := err.(run.SignalError); !ok {
			return fmt.Errorf("run groups: %w", err)
		}
		logger.Info("shutdown signal received", "reason", err.Error())
	}
	return nil
}

var (
	defaultResponseTypes = []string{"code"}
	defaultGrantTypes    = []string{"authorization_code", "refresh_token", "client_credentials"}
)

func toSet(configured, fallback []string) map[string]bool {
	values := configured
	if len(values) == 0 {
		values = fallback
	}
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func openStorage(c StorageConfig, logger *slog.Logger) (storage.Store, error) {
	switch c.Type {
	case "memory", "":
		return memory.New(logger), nil
	case "postgres":
		return (&storagesql.Postgres{NetworkDB: storagesql.NetworkDB{Database: c.DSN}}).Open(logger)
	case "mysql":
		return (&storagesql.MySQL{NetworkDB: storagesql.NetworkDB{Database: c.DSN}}).Open(logger)
	case "sqlite3":
		return (&storagesql.SQLite3{File: c.DSN}).Open(logger)
	default:
		return nil, fmt.Errorf("unknown storage type %q", c.Type)
	}
}

func openCache(c CacheConfig) (cache.Backend, error) {
	switch c.Type {
	case "":
		return nil, nil
	case "memory":
		return cachememory.New(), nil
	case "redis":
		return (&rediscache.Config{Addrs: []string{c.Addr}}).Open(), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", c.Type)
	}
}

func seedStaticApplications(ctx context.Context, apps *manager.ApplicationManager, static []StaticApplication, logger *slog.Logger) error {
	for _, sa := range static {
		clientType := storage.ClientTypeConfidential
		if sa.Public {
			clientType = storage.ClientTypePublic
		}
		_, err := apps.Create(ctx, manager.ApplicationDescriptor{
			ID:           sa.ID,
			Name:         sa.ID,
			ClientSecret: sa.Secret,
			ClientType:   clientType,
			RedirectURIs: sa.RedirectURIs,
			Permissions:  sa.Permissions,
		})
		if err != nil && !storage.IsErrorCode(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("failed to seed static application %q: %w", sa.ID, err)
		}
		logger.Info("seeded static application", "id", sa.ID)
	}
	return nil
}

// runGarbageCollector sweeps expired authorizations and tokens on a fixed interval, grounded on
// dex's storage/sql gc.go loop. It returns once ctx is cancelled.
func runGarbageCollector(ctx context.Context, store storage.Store, clock clockwork.Clock, logger *slog.Logger) {
	const interval = 5 * time.Minute
	for {
		select {
		case <-ctx.Done():
			return
		case <-clock.After(interval):
			result, err := store.GarbageCollect(ctx, clock.Now())
			if err != nil {
				logger.Error("garbage collection failed", "error", err)
				continue
			}
			if !result.IsEmpty() {
				logger.Info("garbage collected", "authorizations", result.Authorizations, "tokens", result.Tokens)
			}
		}
	}
}

// passthroughSignin is the default SigninHandler when no interactive identity provider is wired:
// it trusts the "sub" request parameter as-is and grants every requested scope. Production
// deployments must supply their own SigninHandler, per spec.md §1's Non-goal on user-interaction UI.
func passthroughSignin(w http.ResponseWriter, r *http.Request, applicationID string, requestedScopes []string) (string, []string, bool) {
	sub := r.FormValue("sub")
	if sub == "" {
		http.Error(w, "missing sub parameter for passthrough sign-in", http.StatusBadRequest)
		return "", nil, false
	}
	return sub, requestedScopes, true
}

func addServerRunner(gr *run.Group, name string, srv *http.Server, logger *slog.Logger) {
	gr.Add(func() error {
		logger.Info("listening", "server", name, "addr", srv.Addr)
		return srv.ListenAndServe()
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "server", name, "error", err)
		}
	})
}

func addTLSServerRunner(gr *run.Group, name string, srv *http.Server, cert, key string, logger *slog.Logger) {
	srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	gr.Add(func() error {
		logger.Info("listening", "server", name, "addr", srv.Addr)
		return srv.ListenAndServeTLS(cert, key)
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "server", name, "error", err)
		}
	})
}
