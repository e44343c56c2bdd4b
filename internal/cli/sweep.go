package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the unpaid order expiry sweep once and schedule the next run",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openContainer()
		if err != nil {
			return err
		}
		defer c.Close()

		result, err := c.ExpiryService.Sweep(cmd.Context())
		if err != nil {
			return fmt.Errorf("running sweep: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

var sweepStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the persisted sweep schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openContainer()
		if err != nil {
			return err
		}
		defer c.Close()

		state, err := c.ExpiryService.State()
		if err != nil {
			return fmt.Errorf("loading sweep state: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), state)
	},
}

func init() {
	sweepCmd.AddCommand(sweepStateCmd)
	rootCmd.AddCommand(sweepCmd)
}
