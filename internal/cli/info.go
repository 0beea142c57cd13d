package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/benedoc-inc/pdfmerge/core/parse"
	"github.com/benedoc-inc/pdfmerge/types"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info file.pdf",
	Short: "Show page count, encryption state and metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return types.WrapErrorf(types.ErrCodeFileNotFound, err, "cannot read %s", args[0])
	}

	doc, err := parse.Open(data, parse.Options{BestEffort: true})
	if err != nil {
		return err
	}
	info := doc.Info()

	out := cmd.OutOrStdout()
	if infoJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(out, "File:      %s\n", args[0])
	fmt.Fprintf(out, "Version:   %s\n", info.PDFVersion)
	fmt.Fprintf(out, "Pages:     %d\n", info.PageCount)
	fmt.Fprintf(out, "Encrypted: %s\n", encryptionState(info))

	md := info.Metadata
	for _, f := range []struct{ label, value string }{
		{"Title", md.Title},
		{"Author", md.Author},
		{"Subject", md.Subject},
		{"Keywords", md.Keywords},
		{"Creator", md.Creator},
		{"Producer", md.Producer},
		{"Created", formatDate(md.CreationDate)},
		{"Modified", formatDate(md.ModDate)},
	} {
		if f.value != "" {
			fmt.Fprintf(out, "%-10s %s\n", f.label+":", f.value)
		}
	}

	for _, w := range doc.Warnings() {
		fmt.Fprintf(out, "Warning:   %s\n", w.Message)
	}
	return nil
}

func encryptionState(info types.DocumentInfo) string {
	switch {
	case !info.Encrypted:
		return "no"
	case info.Decrypted:
		return "yes (opened with empty password)"
	default:
		return "yes (password required)"
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
