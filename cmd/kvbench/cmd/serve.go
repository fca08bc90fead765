package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"kvbench/internal/logging"
	"kvbench/internal/target"
)

// serveCmd hosts a badger store behind the gRPC protocol the grpc driver
// speaks, so a run can target it from another process
func serveCmd(opts *options) *cobra.Command {
	var (
		listen   string
		dataPath string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an embedded badger store over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd, false)
			if err != nil {
				return err
			}
			logger := logging.NewLogger(&cfg.Logging)

			store, err := target.NewBadgerExecutor(target.BadgerConfig{
				DataPath: dataPath,
				InMemory: dataPath == "",
			})
			if err != nil {
				return err
			}
			defer store.Close()

			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", listen, err)
			}
			server := target.NewGRPCServer(store, cfg.Target.GRPCService)

			ctx, cancel := signalContext(cmd)
			defer cancel()
			go func() {
				<-ctx.Done()
				server.GracefulStop()
			}()

			logger.InfoContext(context.Background(), "Serving badger store over gRPC",
				"address", lis.Addr().String(), "service", cfg.Target.GRPCService, "in_memory", dataPath == "")
			// a stop that lands before Serve starts is still a clean shutdown
			if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			logger.InfoContext(context.Background(), "Stopped serving badger store", "stats", store.Stats())
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:9090", "Address to listen on")
	cmd.Flags().StringVar(&dataPath, "data", "", "Badger data directory; empty keeps the store in memory")
	return cmd
}
