package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gjermundgaraba/libzaap/cmd/zaap/server"
	"github.com/gjermundgaraba/libzaap/cmd/zaap/settlement"
	"github.com/gjermundgaraba/libzaap/zaap"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the configured network in memory and serve it over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			printLogs()

			network, err := cfg.ToNetwork(ctx, logger)
			if err != nil {
				return errors.Wrap(err, "failed to build network")
			}
			owner, err := cfg.OwnerAddress()
			if err != nil {
				return err
			}

			network.Subscribe(zaap.LogEvents(logger))
			tracker := settlement.NewTracker(network)
			queue := network.StartRelaying(ctx, cfg.RelayBatchSize)

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			s, err := server.NewServer(logger, network, queue, tracker, owner, registry)
			if err != nil {
				return err
			}

			if err := s.ListenAndServe(ctx, address); err != nil {
				return err
			}

			return queue.Flush()
		},
	}

	cmd.Flags().StringVar(&address, "address", "localhost:8080", "Address to listen on")

	return cmd
}
