package cli

import (
	"github.com/spf13/cobra"

	"github.com/benedoc-inc/pdfmerge"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("pdfmerge version %s\n", pdfmerge.Version())
	},
}

func init() {
	versionCmd.PersistentPreRunE = skipSetup
	rootCmd.AddCommand(versionCmd)
}
