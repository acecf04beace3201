// Package cmd wires the visitlens command tree.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/visitlens/visitlens/internal/config"
)

var (
	cfgFile string
	verbose bool

	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo receives build metadata from main.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "visitlens",
	Short: "Milestone tracker for Roblox game visit counts",
	Long: `visitlens polls the Roblox games API for a tracked place, keeps a
monotonically growing visit milestone, and reports progress to a subscriber
channel.

Use the subcommands to run the service or perform one-shot operations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./visitlens.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

// loadConfig reads the layered configuration, honoring --config.
func loadConfig() (config.Config, error) {
	return config.Load(cfgFile)
}
