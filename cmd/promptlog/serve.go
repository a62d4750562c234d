package main

import (
	"github.com/spf13/cobra"

	"github.com/yourorg/promptlog/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{Use: "serve", Short: "Serve the run history over HTTP", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := root.load(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = host
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}
		if err := cfg.ValidateServe(); err != nil {
			return err
		}
		st, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		srv, err := server.New(cfg, st, logger)
		if err != nil {
			return err
		}
		return srv.ListenAndServe("")
	}}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	cmd.Flags().IntVar(&port, "port", 3000, "server port")
	return cmd
}
