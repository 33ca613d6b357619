package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/defirisk/lendvar/internal/httpapi"
	"github.com/defirisk/lendvar/internal/metrics"
	"github.com/defirisk/lendvar/internal/persistence/postgres"
)

func newServeCmd(met *metrics.Registry) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs over HTTP with Prometheus metrics",
		Long: `Starts the read-only HTTP server exposing /health, /metrics, /runs,
and /runs/{id} over the stored simulation history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, met)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides the configured value)")
	return cmd
}

func runServe(cmd *cobra.Command, met *metrics.Registry) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	addr := cfg.HTTP.Addr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}
	host, port, err := splitAddr(addr)
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	runs := postgres.NewRunsRepo(db, cfg.Database.QueryTimeout)

	srvCfg := httpapi.DefaultConfig()
	srvCfg.Host, srvCfg.Port = host, port
	srv := httpapi.NewServer(srvCfg, runs, met, log.Logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen port %q: %w", portStr, err)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host, port, nil
}
