package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/beadscope/internal/capture"
	"github.com/mistakeknot/beadscope/internal/engine"
	"github.com/mistakeknot/beadscope/internal/feed"
	"github.com/mistakeknot/beadscope/internal/graph"
	"github.com/mistakeknot/beadscope/internal/printer"
)

var replaySpeed float64

var replayCmd = &cobra.Command{
	Use:   "replay <capture.db>",
	Short: "Replay a recorded event feed through the engine, offline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := capture.New(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		events, err := store.Events()
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("capture %s holds no events", args[0])
		}

		p := printer.New()
		router := feed.NewRouter(feed.DefaultFilter())
		eng := engine.New(cfg, offlineBackend{}, p, router)

		p.Info("replaying %d events from %s", len(events), args[0])
		prev := events[0].Timestamp
		for _, ev := range events {
			if gap := ev.Timestamp.Sub(prev); gap > 0 && replaySpeed > 0 {
				time.Sleep(time.Duration(float64(gap) / replaySpeed))
			}
			prev = ev.Timestamp
			eng.Inject(ev)
			eng.Tick()
		}

		for _, w := range eng.Windows() {
			p.Info("agent %-12s %-8s tool=%s entries=%d", w.Agent, w.Status, w.Tool, len(w.Entries()))
		}
		p.Info("%d live markers at end of replay", len(eng.LiveDoots()))
		return nil
	},
}

// offlineBackend satisfies the engine with an empty graph so replays work
// without a server; writes are silently confirmed.
type offlineBackend struct{}

func (offlineBackend) Snapshot(context.Context) (graph.Snapshot, error) {
	return graph.Snapshot{}, nil
}

func (offlineBackend) UpdateIssue(context.Context, string, string, string) error {
	return nil
}

func (offlineBackend) CloseIssue(context.Context, string) error {
	return nil
}

func (offlineBackend) ClaimIssue(context.Context, string, string) error {
	return nil
}

func init() {
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 10, "playback speed multiplier (0 = as fast as possible)")
	rootCmd.AddCommand(replayCmd)
}
