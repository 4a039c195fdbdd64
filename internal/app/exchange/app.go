package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/nastyazhadan/trading-hub/shared/config"
	"github.com/nastyazhadan/trading-hub/shared/infra/closer"
	"github.com/nastyazhadan/trading-hub/shared/infra/health"
	"github.com/nastyazhadan/trading-hub/shared/infra/tracing"
	logInterceptor "github.com/nastyazhadan/trading-hub/shared/interceptors/logger"
	"github.com/nastyazhadan/trading-hub/shared/interceptors/recovery"
	"github.com/nastyazhadan/trading-hub/shared/interceptors/xrequestid"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

const readHeaderTimeout = 5 * time.Second

func Run(ctx context.Context, cfg config.Config) {
	app := fx.New(
		options(ctx, cfg),
		fx.StartTimeout(cfg.App.ShutdownTimeout),
		fx.StopTimeout(cfg.App.ShutdownTimeout),
	)

	app.Run()
}

func options(ctx context.Context, cfg config.Config) fx.Option {
	return fx.Options(
		fx.Provide(
			func() context.Context {
				return ctx
			},
			func() config.Config {
				return cfg
			}),
		fx.Provide(
			provideTracerProvider,
			provideContainer,
			NewExchange,
			provideListener,
			provideGRPCServer,
			provideOpsServer,
		),
		fx.Invoke(
			registerLogger,
			startBackground,
			startGRPCServer,
			startOpsServer,
		),
	)
}

func registerLogger(lifeCycle fx.Lifecycle, cfg config.Config) error {
	err := zapLogger.Init(cfg.App.LogLevel, cfg.App.LogFormat == "json", zapLogger.FileOptions{
		Path:      cfg.App.LogFile,
		MaxSizeMB: cfg.App.LogMaxSizeMB,
	})
	if err != nil {
		return err
	}
	closer.SetLogger(zapLogger.Logger())

	lifeCycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = zapLogger.Sync()

			return nil
		},
	})

	return nil
}

func provideTracerProvider(lifeCycle fx.Lifecycle, cfg config.Config) *sdktrace.TracerProvider {
	provider := tracing.NewProvider(cfg.Tracing)

	lifeCycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tracing.Shutdown(ctx, provider)
		},
	})

	return provider
}

// provideContainer depends on the tracer provider so spans started by the
// services reach it.
func provideContainer(
	ctx context.Context,
	lifeCycle fx.Lifecycle,
	cfg config.Config,
	_ *sdktrace.TracerProvider,
) (*DiContainer, error) {
	container, err := NewDIContainer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	lifeCycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closer.CloseAll(ctx)
		},
	})

	return container, nil
}

// startBackground owns every long-running task. Hooks stop in reverse, so
// producers of work stop before the pool that runs it.
func startBackground(ctx context.Context, lifeCycle fx.Lifecycle, container *DiContainer) {
	pool := container.Pool()
	lifeCycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			pool.Start(ctx)
			return nil
		},
		OnStop: pool.Stop,
	})

	trigger := container.Trigger()
	lifeCycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			trigger.Start(ctx)
			return nil
		},
		OnStop: trigger.Stop,
	})

	if consumer := container.Consumer(); consumer != nil {
		lifeCycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				consumer.Start(ctx)
				return nil
			},
			OnStop: consumer.Stop,
		})
	}

	reconciler := container.Reconciler()
	var (
		cancel context.CancelFunc
		done   = make(chan struct{})
	)
	lifeCycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))

			go func() {
				defer close(done)
				reconciler.Run(runCtx)
			}()

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return fmt.Errorf("reconciler stop: %w", stopCtx.Err())
			}
		},
	})
}

func provideListener(
	lifeCycle fx.Lifecycle,
	cfg config.Config,
) (net.Listener, error) {
	listener, err := net.Listen("tcp", cfg.App.HealthAddress)
	if err != nil {
		return nil, fmt.Errorf("net.Listen: %w", err)
	}

	lifeCycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			errClose := listener.Close()
			if errClose != nil && !errors.Is(errClose, net.ErrClosed) {
				return errClose
			}

			return nil
		},
	})

	return listener, nil
}

func provideGRPCServer(
	lifeCycle fx.Lifecycle,
	container *DiContainer,
) *grpc.Server {
	tracer := xrequestid.Server
	logger := logInterceptor.LoggerInterceptor()
	recoverer := recovery.Unary

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			tracer,
			logger,
			recoverer,
		),
	)

	reflection.Register(grpcServer)
	health.RegisterService(grpcServer, container.HealthServer())

	lifeCycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			grpcServer.GracefulStop()
			return nil
		},
	})

	return grpcServer
}

func startGRPCServer(
	lifeCycle fx.Lifecycle,
	server *grpc.Server,
	listener net.Listener,
) {
	lifeCycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			zapLogger.Info(ctx, fmt.Sprintf("Starting gRPC health server on %s", listener.Addr()))
			go func() {
				if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
					zapLogger.Error(ctx, "gRPC health server error", zap.Error(err))
				}
			}()

			return nil
		},
	})
}

func provideOpsServer(cfg config.Config, container *DiContainer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", container.Metrics().Handler())

	return &http.Server{
		Addr:              cfg.App.OpsAddress,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func startOpsServer(lifeCycle fx.Lifecycle, server *http.Server) {
	lifeCycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			listener, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return fmt.Errorf("net.Listen: %w", err)
			}

			zapLogger.Info(ctx, fmt.Sprintf("Starting ops server on %s", listener.Addr()))
			go func() {
				if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					zapLogger.Error(ctx, "ops server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: server.Shutdown,
	})
}
