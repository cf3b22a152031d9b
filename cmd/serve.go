package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KaramelBytes/clusterlens/internal/server"
	"github.com/KaramelBytes/clusterlens/internal/session"
	"github.com/spf13/cobra"
)

var (
	srvLoad     loadFlags
	srvAddr     string
	srvFile     string
	srvFeatures []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the clustering session over HTTP",
	Example: `  clusterlens serve --addr :8080
  clusterlens serve --file customers.csv --features age,income`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.ListenAddr
		if cmd.Flags().Changed("addr") {
			addr = srvAddr
		}
		upload, err := srvLoad.options()
		if err != nil {
			return err
		}
		s := session.New(sessionOptions(), log)
		if srvFile != "" {
			ds, err := srvLoad.load(cmd, srvFile)
			if err != nil {
				return err
			}
			s.Load(ds)
			if len(srvFeatures) > 0 {
				if err := s.Select(srvFeatures); err != nil {
					return err
				}
			}
		}

		scfg := server.Config{Assistant: assistantOptions(), Upload: upload}
		if rt, err := newRuntime(); err != nil {
			log.Warn("assistant disabled", "error", err)
		} else {
			scfg.Runtime = rt
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Serving on http://%s (Ctrl+C to stop)\n", addr)
		return server.New(s, scfg, log).ListenAndServe(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	srvLoad.register(serveCmd)
	serveCmd.Flags().StringVar(&srvAddr, "addr", "127.0.0.1:8080", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&srvFile, "file", "", "dataset to preload")
	serveCmd.Flags().StringSliceVarP(&srvFeatures, "features", "f", nil, "features to preselect with --file")
}
