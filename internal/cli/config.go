package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benedoc-inc/pdfmerge/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

func init() {
	// the file being written may not exist yet
	configInitCmd.PersistentPreRunE = skipSetup
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.Write(path, config.DefaultConfig()); err != nil {
		return err
	}
	cmd.Printf("Wrote %s\n", path)
	return nil
}
