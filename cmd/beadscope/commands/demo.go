package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/beadscope/internal/printer"
	"github.com/mistakeknot/beadscope/pkg/simserver"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the engine against a built-in sim server with synthetic agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		srv, err := simserver.New(simserver.Config{Demo: true})
		if err != nil {
			return err
		}
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		cfg.ServerURL = srv.URL()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p := printer.New()
		eng, _, err := buildEngine(cfg, p)
		if err != nil {
			return err
		}
		p.Info("demo server at %s", cfg.ServerURL)
		go reportStream(ctx, p, eng)
		eng.Run(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
