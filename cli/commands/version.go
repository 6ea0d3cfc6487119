package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/contentql/cli/internal/ui"
	"github.com/satishbabariya/contentql/cli/internal/version"
)

var versionCheck string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get().FullString())
		if versionCheck == "" {
			return nil
		}
		newer, err := version.Newer(versionCheck)
		if err != nil {
			return err
		}
		if newer {
			ui.PrintWarning("A new version is available: %s", versionCheck)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().StringVar(&versionCheck, "check", "", "Compare against a released version")
	rootCmd.AddCommand(versionCmd)
}
