package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/retailops/notifier/internal/app/publisher"
	"github.com/retailops/notifier/internal/platform/env"
	"github.com/retailops/notifier/internal/platform/logging"
	"github.com/retailops/notifier/internal/platform/metrics"
	"github.com/retailops/notifier/internal/platform/natsutil"
	"github.com/retailops/notifier/internal/pushchannel"
)

type config struct {
	Channel     string
	NATSURL     string
	RedisURL    string
	Orders      int
	Drivers     []string
	Rate        float64
	Workers     int
	Duration    time.Duration
	MetricsAddr string
}

var commandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "opsnotifier",
	Name:      "simulator_commands_total",
	Help:      "Commands published by the event simulator.",
}, []string{"action", "outcome"})

func init() {
	metrics.Default.MustRegister(commandsTotal)
}

func loadConfig() config {
	return config{
		Channel:     env.String("PUSH_CHANNEL", "nats"),
		NATSURL:     env.String("NATS_URL", env.DefaultNATSURL),
		RedisURL:    env.String("REDIS_URL", env.DefaultRedisURL),
		Orders:      env.Int("SIM_ORDERS", 50),
		Drivers:     strings.Split(env.String("SIM_DRIVERS", "driver-1,driver-2,driver-3"), ","),
		Rate:        float64(env.Int("SIM_EVENTS_PER_SECOND", 2)),
		Workers:     env.Int("SIM_WORKERS", 2),
		Duration:    env.Duration("SIM_DURATION", 0),
		MetricsAddr: env.String("SIM_METRICS_ADDR", ":9099"),
	}
}

func main() {
	log := logging.New("event-simulator")
	cfg := loadConfig()
	if cfg.Orders <= 0 || cfg.Workers <= 0 || cfg.Rate <= 0 {
		log.Fatal("SIM_ORDERS, SIM_WORKERS and SIM_EVENTS_PER_SECOND must be > 0")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx := baseCtx
	if cfg.Duration > 0 {
		timeoutCtx, cancel := context.WithTimeout(baseCtx, cfg.Duration)
		defer cancel()
		ctx = timeoutCtx
	}

	go runMetricsServer(cfg.MetricsAddr, log)

	publish, closeChannel, err := openPublisher(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("connect push channel")
	}
	defer closeChannel()

	svc := publisher.NewService(publish)
	fl := newFleet(cfg.Orders, cfg.Drivers)
	limiter := rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Workers)

	log.WithFields(logrus.Fields{
		"orders":  cfg.Orders,
		"rate":    cfg.Rate,
		"workers": cfg.Workers,
	}).Info("event simulator started")

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			runWorker(ctx, svc, fl, limiter, rand.New(rand.NewSource(seed)), log)
		}(time.Now().UnixNano() + int64(i*7))
	}
	wg.Wait()
	log.Info("event simulator stopped")
}

func openPublisher(cfg config, log *logrus.Entry) (publisher.PublishFunc, func(), error) {
	if cfg.Channel == "redis" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		ch := pushchannel.NewRedis(redis.NewClient(opts), log)
		return ch.Publish, ch.Close, nil
	}
	client, err := natsutil.ConnectJetStreamWithRetry(cfg.NATSURL, "event-simulator", 90*time.Second, log)
	if err != nil {
		return nil, nil, err
	}
	ch := pushchannel.NewNATSFromClient(client, log)
	return ch.Publish, ch.Close, nil
}

func runWorker(ctx context.Context, svc *publisher.Service, fl *fleet, limiter *rate.Limiter, rng *rand.Rand, log *logrus.Entry) {
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		cmd := fl.next(rng)
		if _, err := svc.Handle(ctx, cmd); err != nil {
			if ctx.Err() != nil {
				return
			}
			commandsTotal.WithLabelValues(cmd.Action, "error").Inc()
			log.WithError(err).WithField("action", cmd.Action).Warn("publish failed")
			continue
		}
		commandsTotal.WithLabelValues(cmd.Action, "success").Inc()
	}
}

func runMetricsServer(addr string, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.DefaultHandler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Warn("metrics server stopped")
	}
}
