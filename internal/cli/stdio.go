package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/harun/toolgate/pkg/gateway"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve JSON-RPC over stdin/stdout",
	Long: `Serve newline-delimited JSON-RPC frames on stdin and stdout for
embedding toolgate as a subprocess. Logs go to stderr and the log file;
stdout carries only response frames.`,
	RunE: runStdio,
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}

func runStdio(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(false)
	if err != nil {
		return err
	}
	defer rt.close()

	rpc := gateway.NewRPCRouter()
	gateway.RegisterMethods(rpc, rt.dispatcher)

	server := gateway.NewStdioServer(rpc, os.Stdin, os.Stdout, rt.log.GetZerolog())
	return server.Run(cmd.Context())
}
