package commands

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/beadscope/internal/capture"
	"github.com/mistakeknot/beadscope/internal/feed"
	"github.com/mistakeknot/beadscope/internal/printer"
)

var recordServer string

var recordCmd = &cobra.Command{
	Use:   "record <capture.db>",
	Short: "Capture the event feed to a file, without running the engine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if recordServer != "" {
			cfg.ServerURL = recordServer
		}

		store, err := capture.New(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		p := printer.New()
		router := feed.NewRouter(feed.DefaultFilter())
		for _, stream := range feed.Streams {
			router.On(stream, func(ev feed.Event) {
				if err := store.Append(ev); err != nil {
					p.Info("capture write failed: %v", err)
				}
			})
		}

		var streamOpts []feed.StreamOption
		if cfg.APIKey != "" {
			streamOpts = append(streamOpts, feed.WithAPIKey(cfg.APIKey))
		}
		conn := feed.NewConn(cfg.ServerURL, router, streamOpts...)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		conn.Start(ctx)
		defer conn.Close()

		p.Info("recording %s to %s", cfg.ServerURL, args[0])
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				n, err := store.Count()
				if err == nil {
					p.Info("captured %d events", n)
				}
				return nil
			case <-ticker.C:
				router.Drain()
			}
		}
	},
}

func init() {
	recordCmd.Flags().StringVar(&recordServer, "server", "", "bead server URL (overrides config)")
	rootCmd.AddCommand(recordCmd)
}
