package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/authledger/internal/config"
	"github.com/iliyamo/authledger/internal/handler"
	"github.com/iliyamo/authledger/internal/middleware"
	"github.com/iliyamo/authledger/internal/router"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "create missing tables before serving")
	return cmd
}

func serve(ctx context.Context, opts *rootOptions, migrate bool) error {
	log := opts.log
	s, err := wire(ctx, opts.cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	if migrate {
		if err := runMigrate(ctx, s, opts.cfg.DBDriver, log); err != nil {
			return err
		}
	}
	if opts.cfg.SweepEvery > 0 {
		s.tokens.StartSweeper(ctx, opts.cfg.SweepEvery)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLog(log.Named("http")))

	router.RegisterRoutes(e, s.db)
	router.RegisterAuth(e,
		handler.NewAuthHandler(s.tokens, log),
		s.tokens,
		middleware.LoginLimit(config.LoadLoginLimitConfig(), s.rdb, log.Named("login-limit")))
	router.RegisterVersions(e,
		handler.NewVersionHandler(s.versions, log),
		handler.NewMatrixHandler(s.apps, s.matrix, s.entities, s.versions, log),
		s.tokens)

	addr := ":" + opts.cfg.Port
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", opts.cfg.Env))
		errc <- e.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}
