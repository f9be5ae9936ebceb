package commands

import (
	"github.com/spf13/cobra"

	"github.com/mistakeknot/beadscope/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "beadscope",
	Short: "Live 3D viewer engine for bead dependency graphs",
	Long: `Beadscope synchronizes a live dependency graph of work items and
worker agents from a bead server, over polling plus a streaming event
feed, and drives the layout, markers, and label scheduling for a scene
renderer.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to beadscope.yaml")
}
