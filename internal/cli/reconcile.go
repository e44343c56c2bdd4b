package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <remote-id>",
	Short: "Replay a webhook for a remote payment or order id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openContainer()
		if err != nil {
			return err
		}
		defer c.Close()

		result, err := c.ReconcileService.HandleWebhook(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("reconciling %s: %w", args[0], err)
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

var reconcileOrderCmd = &cobra.Command{
	Use:   "reconcile-order <order-id>",
	Short: "Fetch the bound remote resource of a local order and reconcile it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orderID, err := parseOrderID(args[0])
		if err != nil {
			return err
		}
		c, err := openContainer()
		if err != nil {
			return err
		}
		defer c.Close()

		result, err := c.ReconcileService.ReconcileOrder(cmd.Context(), orderID)
		if err != nil {
			return fmt.Errorf("reconciling order %d: %w", orderID, err)
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(reconcileOrderCmd)
}

func parseOrderID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid order id %q", raw)
	}
	return uint(id), nil
}
