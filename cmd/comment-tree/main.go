package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	health "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pribylovaa/comment-tree/internal/config"
	"github.com/pribylovaa/comment-tree/internal/metrics"
	"github.com/pribylovaa/comment-tree/internal/service"
	"github.com/pribylovaa/comment-tree/internal/stamps"
	"github.com/pribylovaa/comment-tree/internal/storage"
	ctmongo "github.com/pribylovaa/comment-tree/internal/storage/mongo"
	ctpostgres "github.com/pribylovaa/comment-tree/internal/storage/postgres"
	ctgrpc "github.com/pribylovaa/comment-tree/internal/transport/grpc"
	cthttp "github.com/pribylovaa/comment-tree/internal/transport/http"
	"github.com/pribylovaa/comment-tree/internal/treecache"
	"github.com/pribylovaa/comment-tree/pkg/interceptors"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// store - хранилище комментариев с проверкой доступности для /healthz.
type store interface {
	storage.Storage
	Ping(ctx context.Context) error
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (overrides CONFIG_PATH env)")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting comment-tree", "env", cfg.Env, "db_driver", cfg.DB.Driver)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	st, err := openStore(dbCtx, cfg.DB)
	dbCancel()
	if err != nil {
		log.Error("store_connect_failed", slog.String("driver", cfg.DB.Driver), slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	log.Info("store_connected", slog.String("driver", cfg.DB.Driver))

	// Без Redis версии живут в процессе: корректно для одного экземпляра.
	var sharedStamps stamps.Stamps
	if cfg.Redis.URL != "" {
		redisCtx, redisCancel := context.WithTimeout(rootCtx, 5*time.Second)
		sharedStamps, err = stamps.NewRedis(redisCtx, cfg.Redis.URL, cfg.Redis.Prefix, cfg.Redis.TTL)
		redisCancel()
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			rootCancel()
			_ = st.Close(context.Background())
			os.Exit(1)
		}
		log.Info("redis_connected")
	} else {
		sharedStamps = stamps.NewLocal()
		log.Warn("redis_not_configured", slog.String("stamps", "process-local"))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	cache, err := treecache.New(st, treecache.Options{
		Size:         cfg.Cache.Size,
		IdleTTL:      cfg.Cache.IdleTTL,
		BuildTimeout: cfg.Timeouts.Rebuild,
		Stamps:       sharedStamps,
		Recorder:     m,
		Logger:       log,
	})
	if err != nil {
		log.Error("cache_init_failed", slog.String("err", err.Error()))
		rootCancel()
		_ = st.Close(context.Background())
		os.Exit(1)
	}
	go cache.RunJanitor(rootCtx, cfg.Cache.SweepInterval)

	svc := service.New(st, cache, sharedStamps, cfg.Limits, service.WithRecorder(m))
	log.Info("service_initialized")

	// HTTP: чтение дерева, liveness/readiness, метрики.
	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr: httpAddr,
		Handler: cthttp.NewRouter(svc, cthttp.Options{
			Logger:  log,
			Timeout: cfg.Timeouts.Service,
			Pinger:  st,
			Metrics: promhttp.Handler(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http_listen_start", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}()

	grpc_prometheus.EnableHandlingTimeHistogram()

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.Recover(log),
			interceptors.UnaryLoggingInterceptor(log),
			interceptors.WithTimeout(cfg.Timeouts.Service),
			grpc_prometheus.UnaryServerInterceptor,
		),
		grpc.ChainStreamInterceptor(
			grpc_prometheus.StreamServerInterceptor,
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	ctgrpc.RegisterCommentTreeServer(grpcServer, ctgrpc.NewServer(svc))

	if cfg.Env == envLocal || cfg.Env == envDev {
		reflection.Register(grpcServer)
	}

	addr := cfg.GRPC.Addr()
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("grpc_listen_failed",
			slog.String("addr", addr),
			slog.String("err", err.Error()),
		)
		rootCancel()
		_ = sharedStamps.Close()
		_ = st.Close(context.Background())
		os.Exit(1)
	}
	log.Info("grpc_listen_start", slog.String("addr", addr))

	grpc_prometheus.Register(grpcServer)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	serveErrCh := make(chan error, 1)
	go func() {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("grpc_serve_failed", slog.String("err", err.Error()))
		}
	}

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc_stopped")
	case <-shutdownCtx.Done():
		log.Warn("grpc_force_stop")
		grpcServer.Stop()
	}

	_ = httpSrv.Shutdown(shutdownCtx)
	shutdownCancel()

	rootCancel()
	_ = sharedStamps.Close()
	_ = st.Close(context.Background())

	log.Info("service_stopped", slog.Int("snapshots", cache.Stats().Snapshots))
	os.Exit(0)
}

// openStore выбирает адаптер хранилища по db.driver.
func openStore(ctx context.Context, cfg config.DBConfig) (store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		m, err := ctmongo.New(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.DriverPostgres:
		pg, err := ctpostgres.New(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
