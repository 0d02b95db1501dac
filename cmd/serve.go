package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xhad/annotscan/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the websocket scan server",
	Long: `Serve scans over a websocket at /ws and a health check at /health.

Send {"type":"scan","content":"<term>","data":{"folder":"<dir>"}} to start a
scan; progress, errors and the final result are streamed back as messages.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := parseFlags(cmd, nil)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			config.Server.Addr = addr
		}

		srv, err := server.NewWSServer(server.Config{
			Addr:          config.Server.Addr,
			DefaultFolder: config.Input.Folder,
			OutputBase:    config.Output.BaseDir,
			Highlight:     config.HighlightStyle(),
			RateLimit:     config.Server.RateLimit,
			Burst:         config.Server.Burst,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
