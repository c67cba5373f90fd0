package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/prelaunch-audit/internal/sheetconfig"
)

// newSheetCmd groups the checklist workbook helpers. They never touch the network
// and run without application services.
func newSheetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheet",
		Short: "Works with the checklist workbook",
	}
	cmd.AddCommand(newSheetImportCmd(), newSheetSyncCmd())
	return cmd
}

func newSheetImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "import <workbook.xlsx>",
		Short:       "Prints the site profile read from the checklist sheet as JSON",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{standalone: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := sheetconfig.ImportFile(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			if err := enc.Encode(profile); err != nil {
				return fmt.Errorf("encode profile: %w", err)
			}
			return nil
		},
	}
}

func newSheetSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "sync <workbook.xlsx>",
		Short:       "Copies the premium-plan values onto the checklist sheet in place",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{standalone: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			copied, err := sheetconfig.SyncFile(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "copied %d values\n", copied)
			return err
		},
	}
}
