package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/beadscope/client"
	"github.com/mistakeknot/beadscope/internal/capture"
	"github.com/mistakeknot/beadscope/internal/config"
	"github.com/mistakeknot/beadscope/internal/engine"
	"github.com/mistakeknot/beadscope/internal/feed"
	"github.com/mistakeknot/beadscope/internal/printer"
)

var (
	watchServer string
	watchRecord string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the viewer engine against a bead server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if watchServer != "" {
			cfg.ServerURL = watchServer
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p := printer.New()
		eng, router, err := buildEngine(cfg, p)
		if err != nil {
			return err
		}

		if watchRecord != "" {
			store, err := capture.New(watchRecord)
			if err != nil {
				return err
			}
			defer store.Close()
			for _, stream := range feed.Streams {
				router.On(stream, func(ev feed.Event) {
					if err := store.Append(ev); err != nil {
						p.Info("capture write failed: %v", err)
					}
				})
			}
			p.Info("recording feed to %s", watchRecord)
		}

		p.Info("watching %s", cfg.ServerURL)
		go reportStream(ctx, p, eng)
		eng.Run(ctx)
		return nil
	},
}

// buildEngine wires the standard stack: HTTP client backend, feed router,
// stream connection, and the engine itself.
func buildEngine(cfg config.Config, p *printer.Printer) (*engine.Engine, *feed.Router, error) {
	var opts []client.Option
	if cfg.APIKey != "" {
		opts = append(opts, client.WithAPIKey(cfg.APIKey))
	}
	api := client.New(cfg.ServerURL, opts...)

	allow := feed.DefaultFilter()
	if len(cfg.Streams) > 0 {
		var err error
		allow, err = feed.NewSubjectFilter(cfg.Streams)
		if err != nil {
			return nil, nil, fmt.Errorf("streams config: %w", err)
		}
	}
	router := feed.NewRouter(allow)

	var streamOpts []feed.StreamOption
	if cfg.APIKey != "" {
		streamOpts = append(streamOpts, feed.WithAPIKey(cfg.APIKey))
	}
	conn := feed.NewConn(cfg.ServerURL, router, streamOpts...)

	eng := engine.New(cfg, api, p, router, engine.WithStream(conn))
	return eng, router, nil
}

// reportStream surfaces connection-status transitions as passive lines.
func reportStream(ctx context.Context, p *printer.Printer, eng *engine.Engine) {
	last := feed.Status("")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s := eng.StreamStatus(); s != last {
			last = s
			p.Status(s == feed.StatusConnected)
		}
	}
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "", "bead server URL (overrides config)")
	watchCmd.Flags().StringVar(&watchRecord, "record", "", "capture the event feed to this sqlite file")
	rootCmd.AddCommand(watchCmd)
}
