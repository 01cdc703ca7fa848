package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/broadcast"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/face"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/service"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store/memory"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store/sqlite"
	"github.com/BrandonDHaskell/campusgate/internal/clock"
	"github.com/BrandonDHaskell/campusgate/internal/config"
	"github.com/BrandonDHaskell/campusgate/internal/db"
	"github.com/BrandonDHaskell/campusgate/internal/grpcapi"
	"github.com/BrandonDHaskell/campusgate/internal/httpapi"
	"github.com/BrandonDHaskell/campusgate/internal/keylock"
	"github.com/BrandonDHaskell/campusgate/internal/metrics"
	"github.com/BrandonDHaskell/campusgate/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, alert stream and gRPC health server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			logger.Info("starting", "version", versionString(), "env", cfg.Env, "store", cfg.Store.Backend)
			return serve(cfg, logger)
		},
	}
}

// stores is the persistence bundle for one backend.
type stores struct {
	directory store.Directory
	visitors  store.VisitorStore
	ledger    store.Ledger
	fleet     store.Fleet
	vehicles  store.VehicleLog
	accessLog store.AccessLog
	health    func(ctx context.Context) error
	close     func()
}

func openStores(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*stores, error) {
	switch cfg.Store.Backend {
	case "memory":
		dir := memory.NewDirectory()
		if cfg.Env == "dev" {
			seedMemory(dir)
		}
		logger.Warn("using in-memory store; data is lost on exit")
		return &stores{
			directory: dir,
			visitors:  dir,
			ledger:    memory.NewLedger(),
			fleet:     memory.NewFleet(),
			vehicles:  memory.NewVehicleLog(),
			accessLog: memory.NewAccessLog(),
			close:     func() {},
		}, nil

	case "sqlite":
		sqlDB, err := db.Open(ctx, db.Config{Path: cfg.Store.DBPath, Env: cfg.Env})
		if err != nil {
			return nil, err
		}
		if cfg.Env == "dev" {
			if err := db.SeedDev(ctx, sqlDB); err != nil {
				_ = sqlDB.Close()
				return nil, err
			}
		}
		writer := db.NewWorker(sqlDB, db.WithWaitObserver(m.WriterQueueWait))
		dir := sqlite.NewDirectory(sqlDB, writer)
		return &stores{
			directory: dir,
			visitors:  dir,
			ledger:    sqlite.NewLedger(sqlDB, writer),
			fleet:     sqlite.NewFleet(sqlDB, writer),
			vehicles:  sqlite.NewVehicleLog(sqlDB, writer),
			accessLog: sqlite.NewAccessLog(sqlDB, writer),
			health:    sqlDB.PingContext,
			close: func() {
				writer.Close()
				_ = sqlDB.Close()
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func seedMemory(dir *memory.Directory) {
	dir.PutGate(store.Gate{ID: "gate_main", Name: "Main Gate", Location: "North Entrance", Status: store.GateOnline})
	dir.PutGate(store.Gate{ID: "gate_east", Name: "East Gate", Location: "East Campus", Status: store.GateOnline})
	dir.PutGate(store.Gate{ID: "gate_parking", Name: "Parking Gate", Location: "Lot B", Status: store.GateOnline})
	dir.PutSubject(store.Subject{
		Ref:    store.SubjectRef{Kind: store.KindStaff, ID: "stf_dev_host"},
		Name:   "Dev Host",
		Email:  "host@campus.dev",
		Status: store.StatusActive,
		Code:   "QR-STF-DEV-0001",
	})
}

// lockerFor returns Redis-backed key locks when Redis is configured and
// reachable, otherwise in-process locks.
func lockerFor(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (keylock.Locker, func()) {
	if cfg.Addr == "" {
		return keylock.NewLocal(), func() {}
	}
	client, err := keylock.NewRedisClient(ctx, keylock.RedisConfig{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err != nil {
		logger.Warn("redis unavailable, using in-process key locks", "addr", cfg.Addr, "error", err)
		return keylock.NewLocal(), func() {}
	}
	return keylock.New(ctx, client, logger), func() { _ = client.Close() }
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	st, err := openStores(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	defer st.close()

	hub := broadcast.NewHub(logger, m)
	defer hub.Close()
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaObs, err := broadcast.NewKafkaObserver(broadcast.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, logger)
		if err != nil {
			return fmt.Errorf("kafka alert sink: %w", err)
		}
		if err := hub.Subscribe(kafkaObs); err != nil {
			return err
		}
		logger.Info("mirroring alerts to kafka", "topic", cfg.Kafka.Topic)
	}

	locker, closeLocker := lockerFor(ctx, cfg.Redis, logger)
	defer closeLocker()

	clk := clock.Real()
	deps := service.Deps{
		Directory:   st.directory,
		Visitors:    st.visitors,
		Ledger:      st.ledger,
		Fleet:       st.fleet,
		Vehicles:    st.vehicles,
		AccessLog:   st.accessLog,
		Matcher:     face.NewRandom(uint64(time.Now().UnixNano())),
		Broadcaster: hub,
		Locker:      locker,
		Clock:       clk,
		Metrics:     m,
		Logger:      logger,
		Policy: service.Policy{
			FaceThreshold:      cfg.Policy.FaceThreshold,
			FailWindow:         cfg.Policy.FailWindow,
			FailThreshold:      cfg.Policy.FailThreshold,
			Lockout:            cfg.Policy.Lockout,
			VisitorMaxDuration: cfg.Policy.VisitorMaxDuration,
			VisitorBackdate:    cfg.Policy.VisitorBackdate,
			DefaultPageSize:    cfg.Policy.DefaultPageSize,
			MaxPageSize:        cfg.Policy.MaxPageSize,
			WriteTimeout:       cfg.Policy.WriteTimeout,
		},
	}

	pruner := service.NewAccessLogPruner(st.accessLog, service.PrunerConfig{
		RetentionDays: cfg.AccessLog.RetentionDays,
		Interval:      cfg.AccessLog.PruneInterval,
	}, clk, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:           logger,
		Addr:             cfg.HTTPAddr,
		Access:           service.NewAccessService(deps),
		Visitors:         service.NewVisitorService(deps),
		Violations:       service.NewViolationService(deps),
		Vehicles:         service.NewVehicleService(deps),
		Gates:            service.NewGateRegistry(st.directory),
		Hub:              hub,
		AllowedOrigins:   cfg.Alerts.AllowedOrigins,
		SubscriberBuffer: cfg.Alerts.SubscriberBuffer,
		WriteTimeout:     cfg.Alerts.WriteTimeout,
		Metrics:          promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Health:           st.health,
	})

	health := grpcapi.NewHealthServer(st.health, 0, logger)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc health listening", "addr", grpcLis.Addr().String())
		return health.Serve(grpcLis)
	})
	g.Go(func() error {
		health.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		health.Shutdown(sctx)
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}
