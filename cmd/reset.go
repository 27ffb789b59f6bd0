package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newResetCmd creates the 'reset' subcommand, which deletes the checkpoint,
// its backup and the processed-id cache so the next crawl starts over.
func newResetCmd() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Deletes the checkpoint and processed-id cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return errors.New("reset discards all crawl progress; pass --yes to confirm")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "crawl state reset; the next crawl starts from the first region")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm deleting the saved progress")
	return cmd
}
