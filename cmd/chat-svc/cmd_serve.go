package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/cli/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"quickchat/internal/chat/stream"
	"quickchat/internal/dbmysql"
	"quickchat/internal/wire"
)

type serveCmd struct {
	flags   *flags
	migrate bool
}

func newServeCmd(f *flags) *serveCmd {
	return &serveCmd{flags: f, migrate: true}
}

func (cmd *serveCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP, websocket and gRPC servers",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "migrate",
				Usage:       "auto-migrate the schema before serving",
				Value:       true,
				Destination: &cmd.migrate,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *serveCmd) run(ctx context.Context, c *cli.Command) error {
	cfg, log := cmd.flags.Config, cmd.flags.Log

	app, cleanup, err := wire.InitializeApplication(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize chat service: %w", err)
	}
	defer cleanup()

	if cmd.migrate {
		if err := dbmysql.Migrate(app.DB); err != nil {
			return err
		}
		log.Info().Msg("database migration completed")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go app.Registry.Run(ctx)

	httpServer := &http.Server{
		Addr:           net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:        newRouter(app),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(loggingUnaryInterceptor(log)),
		grpc.ChainStreamInterceptor(loggingStreamInterceptor(log), app.JWT.StreamAuthInterceptor()),
	)
	stream.RegisterPresenceServer(grpcServer, app.Stream)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", cfg.Server.GRPCPort, err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info().Str("addr", lis.Addr().String()).Msg("gRPC server starting")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down chat service")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("server failed")
	}

	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server forced to shutdown")
	}

	// live streams never finish on their own
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}

	log.Info().Msg("chat service stopped")
	return serveErr
}

// newRouter wraps CORS outside mux so preflight requests never hit a 405.
func newRouter(app *wire.Application) http.Handler {
	cfg, log := app.Config, app.Log

	router := mux.NewRouter()
	router.Use(loggingMiddleware(log))

	router.HandleFunc("/api/status", app.HTTP.Status).Methods(http.MethodGet)
	router.Handle("/ws", app.Socket).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(bodyLimitMiddleware(cfg.Server.MaxBodyBytes))
	api.Use(app.JWT.AuthMiddleware)
	app.HTTP.RegisterRoutes(api)

	return corsMiddleware(cfg.Server.AllowedOrigins)(router)
}
