package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolgate/pkg/gateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway server",
	Long: `Run the gateway server in the foreground. It exposes dispatch over
HTTP (/v1/dispatch), SSE (/v1/dispatch/stream) and websocket JSON-RPC
(/ws), plus /healthz and /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(true)
	if err != nil {
		return err
	}
	defer rt.close()

	server, err := gateway.NewServer(gateway.Config{
		Host:         rt.cfg.Gateway.Host,
		Port:         rt.cfg.Gateway.Port,
		SharedSecret: rt.cfg.Gateway.SharedSecret,
		Dispatcher:   rt.dispatcher,
		Metrics:      rt.metrics,
		Logger:       rt.log.GetZerolog(),
	})
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log := rt.log.GetZerolog()
	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(ctx)
}
