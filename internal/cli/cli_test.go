package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benedoc-inc/pdfmerge/core/parse"
	"github.com/benedoc-inc/pdfmerge/core/write"
	"github.com/benedoc-inc/pdfmerge/types"
)

// execute runs the root command with fresh flag values and no config file.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgFile, logLevel = "", ""
	mergeOutput, mergeTitle, mergeAuthor, mergeSubject, mergeKeywords = "", "", "", "", ""
	mergeObjectStreams, mergeBlank = false, false
	mergeUserPassword, mergeOwnerPassword = "", ""
	infoJSON, configForce, serveAddr = false, false, ""

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.toml"), "--log-level", "error"}, args...))
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func writePDF(t *testing.T, dir, name string, labels ...string) string {
	t.Helper()
	b := write.NewSimplePDFBuilder()
	for _, l := range labels {
		b.AddTextPage(write.PageSizeLetter, l)
	}
	data, err := b.Bytes()
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func openPDF(t *testing.T, path string) *parse.Document {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc, err := parse.Open(data, parse.Options{})
	require.NoError(t, err)
	return doc
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	var names []string
	for _, c := range GetRootCmd().Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"merge", "info", "serve", "config", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestSplitSource(t *testing.T) {
	tests := []struct {
		in      string
		wantSrc string
		wantSel any
	}{
		{"a.pdf", "a.pdf", nil},
		{"a.pdf:3", "a.pdf", "3"},
		{"a.pdf:1,3-5,7to9", "a.pdf", "1,3-5,7to9"},
		{"a.pdf:all", "a.pdf", "all"},
		{"dir/a.pdf:", "dir/a.pdf:", nil},
		{"notes:draft.pdf", "notes:draft.pdf", nil},
		{"https://example.com/a.pdf", "https://example.com/a.pdf", nil},
		{"https://example.com/a.pdf:2", "https://example.com/a.pdf", "2"},
		{"https://example.com:8443", "https://example.com:8443", nil},
		{"https://example.com:8443/a.pdf", "https://example.com:8443/a.pdf", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			src, sel := splitSource(tt.in)
			assert.Equal(t, tt.wantSrc, src)
			assert.Equal(t, tt.wantSel, sel)
		})
	}
}

func TestMergeCmd(t *testing.T) {
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf", "A1")
	b := writePDF(t, dir, "b.pdf", "B1", "B2", "B3")
	out := filepath.Join(dir, "out.pdf")

	output, err := execute(t, "merge", "-o", out, "--title", "Bound", "--author", "Ops", a, b+":3,1")
	require.NoError(t, err)
	assert.Contains(t, output, "Wrote 3 pages")

	doc := openPDF(t, out)
	assert.Equal(t, 3, doc.PageCount())
	assert.Equal(t, "Bound", doc.Metadata().Title)
	assert.Equal(t, "Ops", doc.Metadata().Author)
}

func TestMergeCmd_BlankSeparators(t *testing.T) {
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf", "A1")
	b := writePDF(t, dir, "b.pdf", "B1")
	c := writePDF(t, dir, "c.pdf", "C1")
	out := filepath.Join(dir, "out.pdf")

	_, err := execute(t, "merge", "-o", out, "--blank", a, b, c)
	require.NoError(t, err)
	assert.Equal(t, 5, openPDF(t, out).PageCount())
}

func TestMergeCmd_ObjectStreams(t *testing.T) {
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf", "A1", "A2")
	out := filepath.Join(dir, "out.pdf")

	_, err := execute(t, "merge", "-o", out, "--object-streams", a)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/ObjStm")
	assert.Equal(t, 2, openPDF(t, out).PageCount())
}

func TestMergeCmd_OwnerPassword(t *testing.T) {
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf", "A1", "A2")
	out := filepath.Join(dir, "out.pdf")

	_, err := execute(t, "merge", "-o", out, "--owner-password", "s3cret", a)
	require.NoError(t, err)

	doc := openPDF(t, out)
	assert.True(t, doc.IsEncrypted())
	assert.True(t, doc.IsDecrypted())
	assert.Equal(t, 2, doc.PageCount())
}

func TestMergeCmd_Stdout(t *testing.T) {
	a := writePDF(t, t.TempDir(), "a.pdf", "A1")

	output, err := execute(t, "merge", "-o", "-", a)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix([]byte(output), []byte("%PDF-")))
}

func TestMergeCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf", "A1", "A2")
	out := filepath.Join(dir, "out.pdf")

	t.Run("page out of range", func(t *testing.T) {
		_, err := execute(t, "merge", "-o", out, a+":5")
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrInvalidPageSelector)
		assert.NoFileExists(t, out)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "merge", "-o", out, filepath.Join(dir, "nope.pdf"))
		require.Error(t, err)
		assert.True(t, types.IsUnsupportedInput(err))
	})

	t.Run("no sources", func(t *testing.T) {
		_, err := execute(t, "merge", "-o", out)
		assert.Error(t, err)
	})
}

func TestInfoCmd(t *testing.T) {
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf", "A1", "A2")

	output, err := execute(t, "info", a)
	require.NoError(t, err)
	assert.Contains(t, output, "Pages:     2")
	assert.Contains(t, output, "Encrypted: no")

	output, err = execute(t, "info", "--json", a)
	require.NoError(t, err)

	var info types.DocumentInfo
	require.NoError(t, json.Unmarshal([]byte(output), &info))
	assert.Equal(t, 2, info.PageCount)
	assert.False(t, info.Encrypted)

	_, err = execute(t, "info", filepath.Join(dir, "missing.pdf"))
	assert.ErrorIs(t, err, types.ErrFileNotFound)
}

func TestConfigInitCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.toml")

	output, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, output, "Wrote "+path)
	assert.FileExists(t, path)

	_, err = execute(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "config", "init", "--force", path)
	assert.NoError(t, err)
}

func TestVersionCmd(t *testing.T) {
	output, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "pdfmerge version ")
}
