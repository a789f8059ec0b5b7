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

	"github.com/a-h/templ"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/retailops/notifier/internal/app/publisher"
	"github.com/retailops/notifier/internal/app/session"
	"github.com/retailops/notifier/internal/backend"
	"github.com/retailops/notifier/internal/contracts"
	"github.com/retailops/notifier/internal/kvstore"
	platformauth "github.com/retailops/notifier/internal/platform/auth"
	"github.com/retailops/notifier/internal/platform/config"
	"github.com/retailops/notifier/internal/platform/credential"
	"github.com/retailops/notifier/internal/platform/dbpool"
	"github.com/retailops/notifier/internal/platform/env"
	"github.com/retailops/notifier/internal/platform/logging"
	"github.com/retailops/notifier/internal/platform/metrics"
	"github.com/retailops/notifier/internal/platform/natsutil"
	"github.com/retailops/notifier/internal/pushchannel"
	httptransport "github.com/retailops/notifier/internal/transport/http"
	"github.com/retailops/notifier/services/frontend"
)

func main() {
	log := logging.New("ops-notifier")

	cfg, err := config.Load(env.String("CONFIG_FILE", ""))
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	if len(os.Args) > 1 {
		if err := runCommand(cfg, os.Args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, storeReady, err := openStore(runCtx, cfg)
	if err != nil {
		log.WithError(err).Fatal("open watermark store")
	}
	defer closeStore()

	channel, err := openChannel(runCtx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("connect push channel")
	}
	defer channel.Close()

	backendToken, err := credential.NewStore().ResolveToken(cfg.BackendToken)
	if err != nil {
		log.WithError(err).Warn("reading backend token from keyring; continuing without it")
	}
	source := backend.NewClient(cfg.BackendURL, backendToken, cfg.BackendTimeout)

	sessions := session.NewManager(session.Options{
		BadgePollInterval:   cfg.BadgePollInterval,
		TrackerPollInterval: cfg.TrackerPollInterval,
		TrackerDebounce:     cfg.TrackerDebounce,
		ViewPollInterval:    cfg.ViewPollInterval,
		ViewDebounce:        cfg.ViewDebounce,
		ToastTTL:            cfg.ToastTTL,
	}, session.Deps{
		Source:  source,
		Store:   store,
		Channel: channel,
		Log:     log,
	})
	defer sessions.Shutdown()

	handler := &httptransport.Handler{
		Sessions:       sessions,
		Tokens:         platformauth.NewManager(cfg.JWTSecret, cfg.JWTTTL),
		Publisher:      publisher.NewService(channel.Publish),
		AdminTokenHash: cfg.AdminTokenHash,
		AllowedOrigins: cfg.AllowedOrigins,
		Limiter:        httptransport.NewRateLimiter(runCtx, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		Log:            log,
		Metrics:        metrics.DefaultHandler(),
		Frontend:       frontendMux(),
		Ready: func(ctx context.Context) error {
			if err := channel.Ready(); err != nil {
				return err
			}
			return storeReady(ctx)
		},
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("ops-notifier listening")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-runCtx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// Close sessions first so open event streams end and Shutdown does not
	// wait on them.
	sessions.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
}

// liveChannel is a push channel the server can probe and close.
type liveChannel interface {
	pushchannel.Channel
	Ready() error
	Close()
}

func openChannel(ctx context.Context, cfg *config.Config, log *logrus.Entry) (liveChannel, error) {
	if cfg.PushChannel == "redis" {
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return pushchannel.NewRedis(client, log), nil
	}
	client, err := natsutil.ConnectJetStreamWithRetry(cfg.NATSURL, "ops-notifier", cfg.NATSConnectTimeout, log)
	if err != nil {
		return nil, err
	}
	return pushchannel.NewNATSFromClient(client, log), nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func frontendMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", frontend.StaticHandler()))
	mux.Handle("/", templ.Handler(frontend.DashboardPage()))
	return mux
}

// openStore picks the watermark backend from config. The returned check is
// used by /readyz.
func openStore(ctx context.Context, cfg *config.Config) (kvstore.Store, func(), func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch cfg.Store {
	case "memory":
		return kvstore.NewMemory(), func() {}, noop, nil
	case "redis":
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return kvstore.NewRedis(client), func() { _ = client.Close() }, func(ctx context.Context) error { return client.Ping(ctx).Err() }, nil
	case "postgres":
		pool, err := dbpool.New(ctx, cfg.DatabaseURL, dbpool.LimitsFromEnv())
		if err != nil {
			return nil, nil, nil, err
		}
		store := kvstore.NewPostgres(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return store, pool.Close, func(ctx context.Context) error { return pool.Ping(ctx) }, nil
	default:
		store, err := kvstore.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, func() { _ = store.Close() }, noop, nil
	}
}

// runCommand handles the operator subcommands:
//
//	ops-notifier mint-token <user-id> <username> <role>
//	ops-notifier hash-admin-token <token>
func runCommand(cfg *config.Config, args []string) error {
	switch args[0] {
	case "mint-token":
		if len(args) != 4 {
			return errors.New("usage: ops-notifier mint-token <user-id> <username> <role>")
		}
		role := contracts.ParseRole(args[3])
		tok, err := platformauth.NewManager(cfg.JWTSecret, cfg.JWTTTL).Sign(args[1], args[2], role)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	case "hash-admin-token":
		if len(args) != 2 {
			return errors.New("usage: ops-notifier hash-admin-token <token>")
		}
		hash, err := platformauth.HashAdminToken(args[1])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
