package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/benedoc-inc/pdfmerge"
	"github.com/benedoc-inc/pdfmerge/internal/config"
	"github.com/benedoc-inc/pdfmerge/internal/logger"
)

var (
	cfgFile  string
	logLevel string

	// set by PersistentPreRunE
	cfg *config.Config
	log zerolog.Logger
	lg  *logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pdfmerge",
	Short: "Merge pages from PDF files, URLs and rendered web pages",
	Long: `pdfmerge combines pages from several PDF documents into one.

Sources are local files or http(s) URLs, each optionally followed by a page
selector. The serve command exposes the same engine over HTTP and renders
web pages with headless Chrome before merging them.`,
	Version:           pdfmerge.Version(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pdfmerge/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.PersistentPostRunE = teardown

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// setup loads configuration and installs the logger
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logger.New(c.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, lg, log = c, l, l.Zerolog()
	return nil
}

func teardown(*cobra.Command, []string) error {
	if lg == nil {
		return nil
	}
	err := lg.Close()
	lg = nil
	return err
}

// skipSetup replaces setup for commands that run without a config file
func skipSetup(*cobra.Command, []string) error { return nil }

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}
