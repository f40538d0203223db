// Command mosaicmq runs the broker: it wires configuration, logging,
// stats, the request queue, the persistence worker, the metrics server,
// and the TCP listener together, then waits for SIGINT/SIGTERM. The
// command surface itself stays minimal — every flag except --metrics-addr
// just overrides the environment variable of the same concern, so
// "mosaicmq" with no flags at all is the documented way to run it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mosaicmq/mosaicmq/internal/config"
	"github.com/mosaicmq/mosaicmq/internal/logging"
	"github.com/mosaicmq/mosaicmq/internal/metricsrv"
	"github.com/mosaicmq/mosaicmq/internal/queue"
	"github.com/mosaicmq/mosaicmq/internal/service"
	"github.com/mosaicmq/mosaicmq/internal/stats"
	"github.com/mosaicmq/mosaicmq/internal/worker"
)

const version = "0.1.0"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var bindAddr, dataDir, nodeID, metricsAddr string
	var maxConnections int

	cmd := &cobra.Command{
		Use:     "mosaicmq",
		Short:   "MosaicMQ: an append-only, topic-partitioned message broker",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(bindAddr, dataDir, nodeID, metricsAddr, maxConnections)
		},
	}

	cmd.Flags().StringVar(&bindAddr, "bind-addr", "", "override BIND_ADDR")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "override DATA_DIR")
	cmd.Flags().StringVar(&nodeID, "node-id", "", "override NODE_ID")
	cmd.Flags().IntVar(&maxConnections, "max-connections", 0, "override MAX_CONNECTIONS")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "bind address for the /metrics and /healthz HTTP server")

	return cmd
}

func run(bindAddr, dataDir, nodeID, metricsAddr string, maxConnections int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if bindAddr != "" {
		cfg.BindAddr = bindAddr
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if nodeID != "" {
		cfg.NodeID = nodeID
	}
	if maxConnections > 0 {
		cfg.MaxConnections = maxConnections
	}

	logging.Init(os.Getenv("LOG_LEVEL"))
	log := logging.Component("mosaicmq")
	log.Info().
		Str("node_id", cfg.NodeID).
		Str("bind_addr", cfg.BindAddr).
		Str("data_dir", cfg.DataDir).
		Int("max_connections", cfg.MaxConnections).
		Msg("starting")

	st := stats.New()
	q := queue.New(st)
	wrk := worker.New(cfg.DataDir, logging.Component("worker"))
	svc := service.New(cfg.BindAddr, cfg.MaxConnections, q, st, logging.Component("service"))
	metrics := metricsrv.New(metricsAddr, st, logging.Component("metrics"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wrk.Run(q)
		return nil
	})

	g.Go(func() error {
		defer q.Close()
		return svc.Run(gctx)
	})

	g.Go(func() error {
		return metrics.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("broker exited with error")
		return err
	}

	log.Info().Msg("shutdown complete")
	return nil
}
