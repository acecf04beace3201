package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/visitlens/visitlens/internal/core"
	"github.com/visitlens/visitlens/internal/observability"
	"github.com/visitlens/visitlens/internal/output"
)

var statusPlaceID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fetch current game numbers once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		placeID := statusPlaceID
		if placeID == "" {
			placeID = cfg.Tracking.PlaceID
		}
		if placeID == "" {
			return fmt.Errorf("no place id: set tracking.place_id or pass --place")
		}

		logger := observability.NewCLILogger(verbose)
		defer func() { _ = logger.Sync() }()

		client := buildGameClient(cfg, logger)
		reading := client.Fetch(cmd.Context(), placeID)

		session := core.TrackingSession{
			Goal:                cfg.Tracking.InitialGoal,
			HighWatermarkVisits: client.Watermark(),
		}
		fmt.Fprintln(cmd.OutOrStdout(), output.StatusTable(reading, session))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusPlaceID, "place", "", "place id to query (defaults to tracking.place_id)")
	rootCmd.AddCommand(statusCmd)
}
