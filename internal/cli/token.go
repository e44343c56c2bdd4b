package cli

import (
	"fmt"
	"time"

	"github.com/payrecon/internal/service"

	"github.com/spf13/cobra"
)

var tokenOperator string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator token for the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		token, expiresAt, err := service.GenerateOperatorToken(cfg.JWT, tokenOperator, time.Now())
		if err != nil {
			return fmt.Errorf("issuing token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "", "operator name carried in the token")
	_ = tokenCmd.MarkFlagRequired("operator")
	rootCmd.AddCommand(tokenCmd)
}
