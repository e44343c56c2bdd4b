package cli

import (
	"fmt"
	"time"

	"github.com/payrecon/internal/repository"

	"github.com/spf13/cobra"
)

var (
	notesSource string
	notesLimit  int
)

var notesCmd = &cobra.Command{
	Use:   "notes <order-id>",
	Short: "List the notes recorded on a local order",
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

		notes, total, err := c.OrderService.ListNotes(repository.OrderNoteListFilter{
			Page:     1,
			PageSize: notesLimit,
			OrderID:  orderID,
			Source:   notesSource,
		})
		if err != nil {
			return fmt.Errorf("listing notes: %w", err)
		}
		out := cmd.OutOrStdout()
		for _, note := range notes {
			fmt.Fprintf(out, "%s  [%s]  %s\n", note.CreatedAt.Format(time.RFC3339), note.Source, note.Content)
		}
		fmt.Fprintf(out, "%d of %d notes\n", len(notes), total)
		return nil
	},
}

func init() {
	notesCmd.Flags().StringVar(&notesSource, "source", "", "only show notes from this source")
	notesCmd.Flags().IntVar(&notesLimit, "limit", 50, "maximum number of notes")
	rootCmd.AddCommand(notesCmd)
}
