package cli

import (
	"fmt"
	"strings"

	"github.com/payrecon/internal/service"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	refundLines       []string
	refundAmount      string
	refundDescription string
	cancelLines       []string
)

var refundCmd = &cobra.Command{
	Use:   "refund <order-id>",
	Short: "Refund lines of a remote order or an amount of a remote payment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orderID, err := parseOrderID(args[0])
		if err != nil {
			return err
		}
		input := service.RefundLinesInput{
			OrderID:     orderID,
			LineIDs:     refundLines,
			Description: refundDescription,
		}
		if raw := strings.TrimSpace(refundAmount); raw != "" {
			amount, err := decimal.NewFromString(raw)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", raw, err)
			}
			input.Amount = amount
		}
		c, err := openContainer()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.OrderActionService.RefundLines(cmd.Context(), input); err != nil {
			return fmt.Errorf("refunding order %d: %w", orderID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "refund requested for order %d\n", orderID)
		return nil
	},
}

var cancelLinesCmd = &cobra.Command{
	Use:   "cancel-lines <order-id>",
	Short: "Cancel lines of a remote order",
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

		if err := c.OrderActionService.CancelLines(cmd.Context(), service.CancelLinesInput{
			OrderID: orderID,
			LineIDs: cancelLines,
		}); err != nil {
			return fmt.Errorf("cancelling lines of order %d: %w", orderID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "lines cancelled for order %d\n", orderID)
		return nil
	},
}

func init() {
	refundCmd.Flags().StringSliceVar(&refundLines, "line", nil, "remote line id (repeatable)")
	refundCmd.Flags().StringVar(&refundAmount, "amount", "", "refund amount for payment resources")
	refundCmd.Flags().StringVar(&refundDescription, "description", "", "refund description")
	cancelLinesCmd.Flags().StringSliceVar(&cancelLines, "line", nil, "remote line id (repeatable)")
	_ = cancelLinesCmd.MarkFlagRequired("line")
	rootCmd.AddCommand(refundCmd)
	rootCmd.AddCommand(cancelLinesCmd)
}
