package merge

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benedoc-inc/pdfmerge/core/encrypt"
	"github.com/benedoc-inc/pdfmerge/core/object"
	"github.com/benedoc-inc/pdfmerge/core/parse"
	"github.com/benedoc-inc/pdfmerge/core/write"
	"github.com/benedoc-inc/pdfmerge/types"
)

// makePDF builds a document whose pages show "<prefix> Page N"
func makePDF(t *testing.T, prefix string, pages int) []byte {
	t.Helper()
	b := write.NewSimplePDFBuilder()
	for i := 1; i <= pages; i++ {
		b.AddTextPage(write.PageSizeLetter, pageLabel(prefix, i))
	}
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

func pageLabel(prefix string, n int) string {
	return strings.TrimSpace(fmt.Sprintf("%s Page %d", prefix, n))
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func newTestSession(opts ...Option) *Session {
	return NewSession(append([]Option{WithClock(fixedClock)}, opts...)...)
}

// reopen serializes s and parses the result
func reopen(t *testing.T, s *Session) *parse.Document {
	t.Helper()
	data, err := s.Bytes()
	require.NoError(t, err)
	doc, err := parse.Open(data, parse.Options{})
	require.NoError(t, err)
	return doc
}

// labels returns the text shown on each page of doc
func labels(t *testing.T, doc *parse.Document) []string {
	t.Helper()
	out := make([]string, doc.PageCount())
	for i := range out {
		page, err := doc.Page(i)
		require.NoError(t, err)
		stream, ok := doc.Resolve(page.Dict.Get("Contents")).(*object.Stream)
		require.True(t, ok, "page %d has no content stream", i+1)
		data, err := parse.DecodeStream(stream)
		require.NoError(t, err)
		start := bytes.IndexByte(data, '(')
		end := bytes.LastIndex(data, []byte(") Tj"))
		require.True(t, start >= 0 && end > start, "page %d content %q", i+1, data)
		out[i] = string(data[start+1 : end])
	}
	return out
}

func TestSession_AddAllPages(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Add(context.Background(), makePDF(t, "", 3), nil))

	assert.Equal(t, 3, s.PageCount())
	assert.Equal(t, []string{"Page 1", "Page 2", "Page 3"}, labels(t, reopen(t, s)))
}

func TestSession_AddSinglePage(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Add(context.Background(), makePDF(t, "", 5), 3))

	assert.Equal(t, 1, s.PageCount())
	assert.Equal(t, []string{"Page 3"}, labels(t, reopen(t, s)))
}

func TestSession_AddListWithRepeats(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Add(context.Background(), makePDF(t, "", 5), []int{5, 1, 1}))

	assert.Equal(t, 3, s.PageCount())
	doc := reopen(t, s)
	assert.Equal(t, []string{"Page 5", "Page 1", "Page 1"}, labels(t, doc))

	second, err := doc.Page(1)
	require.NoError(t, err)
	third, err := doc.Page(2)
	require.NoError(t, err)
	assert.NotEqual(t, second.Ref, third.Ref, "each occurrence gets its own page object")
}

func TestSession_AddRangeString(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Add(context.Background(), makePDF(t, "", 9), "1,3-5,7to9"))

	assert.Equal(t, []string{"Page 1", "Page 3", "Page 4", "Page 5", "Page 7", "Page 8", "Page 9"}, labels(t, reopen(t, s)))
}

func TestSession_AddInCallOrder(t *testing.T) {
	s := newTestSession()
	ctx := context.Background()
	for _, prefix := range []string{"A", "B", "C"} {
		require.NoError(t, s.Add(ctx, makePDF(t, prefix, 1), nil))
	}

	assert.Equal(t, 3, s.PageCount())
	assert.Equal(t, []string{"A Page 1", "B Page 1", "C Page 1"}, labels(t, reopen(t, s)))
}

func TestSession_ResetMatchesFreshSession(t *testing.T) {
	ctx := context.Background()
	src := makePDF(t, "", 2)

	used := newTestSession()
	used.SetMetadata(types.DocumentMetadata{Title: "Old", Author: "Someone"})
	require.NoError(t, used.Add(ctx, makePDF(t, "Old", 4), nil))
	used.Reset()
	assert.Equal(t, 0, used.PageCount())
	require.NoError(t, used.Add(ctx, src, nil))

	fresh := newTestSession()
	require.NoError(t, fresh.Add(ctx, src, nil))

	got, err := used.Bytes()
	require.NoError(t, err)
	want, err := fresh.Bytes()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	meta := reopen(t, used).Metadata()
	assert.Empty(t, meta.Title)
	assert.Empty(t, meta.Author)
}

func TestSession_UnsupportedInput(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Add(context.Background(), makePDF(t, "", 2), nil))
	objects := s.ObjectCount()

	err := s.Add(context.Background(), 12345, nil)
	require.Error(t, err)
	assert.True(t, types.IsUnsupportedInput(err))
	code, _ := types.GetErrorCode(err)
	assert.Equal(t, types.ErrCodeUnsupportedInput, code)
	assert.Equal(t, 2, s.PageCount())
	assert.Equal(t, objects, s.ObjectCount())
}

func TestSession_FailuresLeaveCompositeUnchanged(t *testing.T) {
	ctx := context.Background()
	src := makePDF(t, "", 3)

	tests := []struct {
		name     string
		src      any
		selector any
		code     types.PDFErrorCode
	}{
		{"page out of range", src, 4, types.ErrCodeInvalidPageSelector},
		{"list out of range", src, []int{1, 2, 7}, types.ErrCodeInvalidPageSelector},
		{"bad range", src, "1-x", types.ErrCodeInvalidPageSelector},
		{"bad selector type", src, 1.5, types.ErrCodeInvalidPageSelector},
		{"not a pdf", []byte("hello"), nil, types.ErrCodeSourceLoad},
		{"missing file", filepath.Join(t.TempDir(), "nope.pdf"), nil, types.ErrCodeFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession()
			require.NoError(t, s.Add(ctx, src, "1"))
			before, err := s.Bytes()
			require.NoError(t, err)
			objects := s.ObjectCount()

			err = s.Add(ctx, tt.src, tt.selector)
			require.Error(t, err)
			code, _ := types.GetErrorCode(err)
			assert.Equal(t, tt.code, code)

			assert.Equal(t, 1, s.PageCount())
			assert.Equal(t, objects, s.ObjectCount())
			after, err := s.Bytes()
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestSession_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestSession()
	err := s.Add(ctx, makePDF(t, "", 2), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.PageCount())
	assert.Equal(t, 0, s.ObjectCount())
}

func TestSession_RoundTripPageCount(t *testing.T) {
	for _, opts := range []SaveOptions{{}, {UseXRefStream: true}, {UseObjectStreams: true}} {
		t.Run(fmt.Sprintf("%+v", opts), func(t *testing.T) {
			s := newTestSession(WithSaveOptions(opts))
			ctx := context.Background()
			require.NoError(t, s.Add(ctx, makePDF(t, "A", 4), nil))
			require.NoError(t, s.Add(ctx, makePDF(t, "B", 3), "2-3"))

			doc := reopen(t, s)
			assert.Equal(t, 6, doc.PageCount())
			assert.Equal(t, []string{"A Page 1", "A Page 2", "A Page 3", "A Page 4", "B Page 2", "B Page 3"}, labels(t, doc))

			// A merged document is itself a valid source.
			again := newTestSession(WithSaveOptions(opts))
			data, err := s.Bytes()
			require.NoError(t, err)
			require.NoError(t, again.Add(ctx, data, "6,1"))
			assert.Equal(t, []string{"B Page 3", "A Page 1"}, labels(t, reopen(t, again)))
		})
	}
}

func TestSession_Metadata(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Add(context.Background(), makePDF(t, "", 1), nil))

	s.SetMetadata(types.DocumentMetadata{Title: "Report", Author: "Ana"})
	s.SetMetadata(types.DocumentMetadata{Author: "", Creator: "tests"})

	meta := reopen(t, s).Metadata()
	assert.Equal(t, "Report", meta.Title)
	assert.Equal(t, "Ana", meta.Author)
	assert.Equal(t, "tests", meta.Creator)
	assert.Equal(t, DefaultProducer, meta.Producer)
	assert.True(t, meta.CreationDate.Equal(fixedClock()))
	assert.True(t, meta.ModDate.Equal(fixedClock()))
}

func TestSession_ProducerOverride(t *testing.T) {
	s := newTestSession(WithProducer("custom"))
	assert.Equal(t, "custom", reopen(t, s).Metadata().Producer)

	s.SetMetadata(types.DocumentMetadata{Producer: "override"})
	assert.Equal(t, "override", reopen(t, s).Metadata().Producer)
}

func TestSession_EmptyOutput(t *testing.T) {
	doc := reopen(t, newTestSession())
	assert.Equal(t, 0, doc.PageCount())
}

func TestSession_EncryptedSource(t *testing.T) {
	fileID := []byte("fedcba9876543210")
	build := func(userPassword []byte) []byte {
		enc, err := encrypt.NewRC4Encryption(userPassword, []byte("owner"), fileID, -44)
		require.NoError(t, err)
		b := write.NewSimplePDFBuilder()
		b.Writer().SetEncryption(enc, fileID)
		b.AddTextPage(write.PageSizeA4, "Secret Page 1")
		b.AddTextPage(write.PageSizeA4, "Secret Page 2")
		data, err := b.Bytes()
		require.NoError(t, err)
		return data
	}

	t.Run("empty user password", func(t *testing.T) {
		s := newTestSession()
		require.NoError(t, s.Add(context.Background(), build(nil), nil))
		assert.Equal(t, []string{"Secret Page 1", "Secret Page 2"}, labels(t, reopen(t, s)))
		assert.Empty(t, s.Warnings())
	})

	t.Run("user password required", func(t *testing.T) {
		s := newTestSession()
		require.NoError(t, s.Add(context.Background(), build([]byte("letmein")), nil))
		assert.Equal(t, 2, s.PageCount())

		var codes []string
		for _, w := range s.Warnings() {
			codes = append(codes, w.Code)
		}
		assert.Contains(t, codes, types.WarnEncryptedRaw)
	})
}

func TestSession_ProtectedOutput(t *testing.T) {
	t.Run("owner password only", func(t *testing.T) {
		s := newTestSession(WithSaveOptions(SaveOptions{OwnerPassword: "owner", UseObjectStreams: true}))
		require.NoError(t, s.Add(context.Background(), makePDF(t, "", 2), nil))
		s.SetMetadata(types.DocumentMetadata{Title: "Locked"})

		data, err := s.Bytes()
		require.NoError(t, err)
		assert.NotContains(t, string(data), "(Locked)")
		assert.NotContains(t, string(data), "/ObjStm")

		doc, err := parse.Open(data, parse.Options{})
		require.NoError(t, err)
		assert.True(t, doc.IsEncrypted())
		assert.True(t, doc.IsDecrypted())
		assert.Equal(t, "Locked", doc.Metadata().Title)
		assert.Equal(t, []string{"Page 1", "Page 2"}, labels(t, doc))
	})

	t.Run("user password", func(t *testing.T) {
		s := newTestSession(WithSaveOptions(SaveOptions{UserPassword: "letmein"}))
		require.NoError(t, s.Add(context.Background(), makePDF(t, "", 1), nil))

		data, err := s.Bytes()
		require.NoError(t, err)

		doc, err := parse.Open(data, parse.Options{BestEffort: true})
		require.NoError(t, err)
		assert.True(t, doc.IsEncrypted())
		assert.False(t, doc.IsDecrypted())
	})
}

func TestSession_OutputAdapters(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Add(context.Background(), makePDF(t, "", 2), nil))
	want, err := s.Bytes()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(want, []byte("%PDF-")))

	var buf bytes.Buffer
	n, err := s.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(want)), n)
	assert.Equal(t, want, buf.Bytes())

	b64, err := s.Base64()
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	assert.Equal(t, want, decoded)

	uri, err := s.DataURI()
	require.NoError(t, err)
	assert.Equal(t, "data:application/pdf;base64,"+b64, uri)

	path := filepath.Join(t.TempDir(), "out.pdf")
	require.NoError(t, s.Save(path))
	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, saved)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm()&0o644)

	// Output does not change the session.
	assert.Equal(t, 2, s.PageCount())
}

func TestSession_SaveToMissingDirectory(t *testing.T) {
	s := newTestSession()
	err := s.Save(filepath.Join(t.TempDir(), "missing", "out.pdf"))
	code, _ := types.GetErrorCode(err)
	assert.Equal(t, types.ErrCodeIOError, code)
}

func TestSession_CopiesReachableObjectsOnly(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Add(context.Background(), makePDF(t, "", 3), "1,3"))

	// page, content stream and font for each selected page
	assert.Equal(t, 6, s.ObjectCount())
}

// rawPDF assembles a document from numbered object bodies, with a classic
// xref table. Object 1 must be the catalog.
func rawPDF(objects ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestSession_IndirectStreamLengthNotCopied(t *testing.T) {
	src := rawPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R >>",
		"<< /Length 5 0 R >>\nstream\nBT ET\nendstream",
		"5",
	)

	s := newTestSession()
	require.NoError(t, s.Add(context.Background(), src, nil))

	// page and content stream; the length object stays behind
	assert.Equal(t, 2, s.ObjectCount())
	assert.Equal(t, 1, reopen(t, s).PageCount())
}

func TestSession_ResolverFromLocalPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.pdf")
	require.NoError(t, os.WriteFile(path, makePDF(t, "", 2), 0o644))

	s := newTestSession()
	require.NoError(t, s.Add(context.Background(), path, "2"))
	assert.Equal(t, []string{"Page 2"}, labels(t, reopen(t, s)))
}
