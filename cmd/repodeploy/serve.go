package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/repodeploy/internal/config"
	"github.com/example/repodeploy/internal/logging"
	"github.com/example/repodeploy/internal/server"
	"github.com/example/repodeploy/internal/version"
)

func newServeCommand(opts *config.Options, logLevel *string) *cobra.Command {
	listen := config.DefaultListenAddr
	var jsonLogs bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept deploy requests over HTTP and stream progress over websockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logOpts := []logging.Option{logging.WithWriter(cmd.ErrOrStderr())}
			if jsonLogs {
				logOpts = append(logOpts, logging.WithJSON())
			}
			log, err := logging.New(*logLevel, logOpts...)
			if err != nil {
				return err
			}
			rt, err := newRuntime(opts, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			var serverOpts []server.Option
			if rt.store != nil {
				serverOpts = append(serverOpts, server.WithRunReader(rt.store))
			}
			log.V(1).Info("starting", "version", version.Get().String())
			srv := server.New(listen, rt.controller, log.WithName("server"), serverOpts...)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return srv.Run(ctx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", listen, "Address to serve the HTTP API on")
	cmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON lines")
	decorateCommandHelp(cmd, "Serve Flags")
	return cmd
}
