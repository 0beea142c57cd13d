package cli

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benedoc-inc/pdfmerge/core/merge"
	"github.com/benedoc-inc/pdfmerge/core/source"
	"github.com/benedoc-inc/pdfmerge/core/write"
	"github.com/benedoc-inc/pdfmerge/types"
)

var (
	mergeOutput        string
	mergeTitle         string
	mergeAuthor        string
	mergeSubject       string
	mergeKeywords      string
	mergeObjectStreams bool
	mergeBlank         bool
	mergeUserPassword  string
	mergeOwnerPassword string
)

var mergeCmd = &cobra.Command{
	Use:   "merge -o out.pdf source[:pages]...",
	Short: "Merge PDF files and URLs into one document",
	Long: `Merge pages from local PDF files and http(s) URLs into one document.

Each source may be followed by a colon and a page selector. Selectors are
comma-separated page numbers and ranges written as "3-5" or "7to9". Without
a selector every page is taken. Pages may repeat.

Examples:
  pdfmerge merge -o out.pdf cover.pdf report.pdf:2-4 appendix.pdf:1,1
  pdfmerge merge -o - https://example.com/a.pdf:1 > first-page.pdf
  pdfmerge merge -o bound.pdf --blank --title "Bound" a.pdf b.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "output file, or - for stdout")
	mergeCmd.Flags().StringVar(&mergeTitle, "title", "", "document title")
	mergeCmd.Flags().StringVar(&mergeAuthor, "author", "", "document author")
	mergeCmd.Flags().StringVar(&mergeSubject, "subject", "", "document subject")
	mergeCmd.Flags().StringVar(&mergeKeywords, "keywords", "", "document keywords")
	mergeCmd.Flags().BoolVar(&mergeObjectStreams, "object-streams", false, "write compact output with object streams")
	mergeCmd.Flags().BoolVar(&mergeBlank, "blank", false, "insert a blank page between sources")
	mergeCmd.Flags().StringVar(&mergeUserPassword, "user-password", "", "password required to open the output")
	mergeCmd.Flags().StringVar(&mergeOwnerPassword, "owner-password", "", "encrypt the output with this owner password")
	_ = mergeCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(mergeCmd)
}

// selectorSuffix matches what may follow the last colon of a source argument
var selectorSuffix = regexp.MustCompile(`^(?i)(all|[0-9][0-9,\s\-to]*)$`)

// splitSource separates "path:selector". The selector is nil when absent.
func splitSource(arg string) (string, any) {
	i := strings.LastIndex(arg, ":")
	if i <= 0 || i == len(arg)-1 {
		return arg, nil
	}
	src, sel := arg[:i], arg[i+1:]
	if !selectorSuffix.MatchString(sel) {
		return arg, nil
	}
	// "https://host:8443" is a port, not a page
	if u := strings.ToLower(src); strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		if !strings.Contains(strings.SplitN(u, "://", 2)[1], "/") {
			return arg, nil
		}
	}
	return src, sel
}

func runMerge(cmd *cobra.Command, args []string) error {
	saveOpts := cfg.SaveOptions()
	if mergeObjectStreams {
		saveOpts = merge.SaveOptions{UseObjectStreams: true, UseXRefStream: true}
	}
	saveOpts.UserPassword = mergeUserPassword
	saveOpts.OwnerPassword = mergeOwnerPassword

	session := merge.NewSession(
		merge.WithLogger(log),
		merge.WithResolver(source.NewChain(cfg.SourceOptions(log))),
		merge.WithSaveOptions(saveOpts),
	)

	var blank []byte
	if mergeBlank {
		b := write.NewSimplePDFBuilder()
		b.FinalizePage(b.AddPage(write.PageSizeLetter))
		data, err := b.Bytes()
		if err != nil {
			return fmt.Errorf("failed to build separator page: %w", err)
		}
		blank = data
	}

	ctx := cmd.Context()
	for i, arg := range args {
		if i > 0 && blank != nil {
			if err := session.Add(ctx, blank, nil); err != nil {
				return err
			}
		}
		src, sel := splitSource(arg)
		if err := session.Add(ctx, src, sel); err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
	}

	session.SetMetadata(types.DocumentMetadata{
		Title:    mergeTitle,
		Author:   mergeAuthor,
		Subject:  mergeSubject,
		Keywords: mergeKeywords,
	})

	for _, w := range session.Warnings() {
		log.Warn().Str("code", w.Code).Msg(w.Message)
	}

	if mergeOutput == "-" {
		_, err := session.WriteTo(cmd.OutOrStdout())
		return err
	}
	if err := session.Save(mergeOutput); err != nil {
		return err
	}

	info, err := os.Stat(mergeOutput)
	if err != nil {
		return err
	}
	cmd.Printf("Wrote %d pages (%d bytes) to %s\n", session.PageCount(), info.Size(), mergeOutput)
	return nil
}
