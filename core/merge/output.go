package merge

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"

	"github.com/benedoc-inc/pdfmerge/core/encrypt"
	"github.com/benedoc-inc/pdfmerge/core/object"
	"github.com/benedoc-inc/pdfmerge/core/write"
	"github.com/benedoc-inc/pdfmerge/types"
)

// SaveOptions selects the output's cross-reference format and protection
type SaveOptions struct {
	// UseObjectStreams packs non-stream objects into object streams.
	// It implies UseXRefStream. Encrypted output never uses object streams.
	UseObjectStreams bool
	// UseXRefStream writes a cross-reference stream instead of a table.
	UseXRefStream bool

	// UserPassword and OwnerPassword protect the output with 128-bit RC4.
	// Output is left unencrypted when both are empty.
	UserPassword  string
	OwnerPassword string
	// Permissions is the /P value of encrypted output; 0 grants everything.
	Permissions int32
}

// encrypted reports whether the output must be protected
func (o SaveOptions) encrypted() bool {
	return o.UserPassword != "" || o.OwnerPassword != ""
}

// Bytes serializes the composite as it is now
func (s *Session) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo serializes the composite to w
func (s *Session) WriteTo(w io.Writer) (int64, error) {
	s.ensureInitialized()
	pw, err := s.buildWriter()
	if err != nil {
		return 0, err
	}
	data, err := pw.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), types.WrapError(types.ErrCodeIOError, "writing document", err)
	}
	return int64(n), nil
}

// Base64 returns the serialized composite as standard base64
func (s *Session) Base64() (string, error) {
	data, err := s.Bytes()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DataURI returns the serialized composite as a data:application/pdf URI
func (s *Session) DataURI() (string, error) {
	b64, err := s.Base64()
	if err != nil {
		return "", err
	}
	return "data:application/pdf;base64," + b64, nil
}

// Save writes the serialized composite to path with mode 0644
func (s *Session) Save(path string) error {
	data, err := s.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return types.WrapErrorf(types.ErrCodeIOError, err, "saving %s", path)
	}
	return nil
}

// buildWriter lays the composite out as a complete document: the copied
// objects keep their numbers, followed by the page tree, catalog and info.
func (s *Session) buildWriter() (*write.PDFWriter, error) {
	pw := write.NewPDFWriter()
	if s.save.encrypted() {
		if err := protect(pw, s.save); err != nil {
			return nil, err
		}
	}
	if s.save.UseObjectStreams {
		pw.UseObjectStream(true)
	} else if s.save.UseXRefStream {
		pw.UseXRefStream(true)
	}

	isPage := make(map[int]bool, len(s.doc.pages))
	for _, ref := range s.doc.pages {
		isPage[ref.Num] = true
	}

	// Reserve every composite number so the tree objects come after them.
	for num := 1; num < s.doc.next; num++ {
		pw.Reserve()
	}
	pagesRef := pw.Reserve()

	for num, obj := range s.doc.objects {
		if isPage[num] {
			page := obj.(object.Dict).Clone()
			page["Parent"] = pagesRef
			obj = page
		}
		pw.SetObject(num, obj)
	}

	kids := make(object.Array, len(s.doc.pages))
	for i, ref := range s.doc.pages {
		kids[i] = ref
	}
	pw.SetObject(pagesRef.Num, object.Dict{
		"Type":  object.Name("Pages"),
		"Kids":  kids,
		"Count": object.Int(len(s.doc.pages)),
	})
	pw.SetRoot(pw.AddObject(object.Dict{
		"Type":  object.Name("Catalog"),
		"Pages": pagesRef,
	}))

	meta := s.doc.metadata
	meta.ModDate = s.now()
	pw.SetMetadata(meta)
	return pw, nil
}

// protect sets up standard security handler encryption under a random file ID
func protect(pw *write.PDFWriter, opts SaveOptions) error {
	fileID := make([]byte, 16)
	if _, err := rand.Read(fileID); err != nil {
		return types.WrapError(types.ErrCodeWriteError, "generating file ID", err)
	}
	perms := opts.Permissions
	if perms == 0 {
		perms = allPermissions
	}
	enc, err := encrypt.NewRC4Encryption([]byte(opts.UserPassword), []byte(opts.OwnerPassword), fileID, perms)
	if err != nil {
		return types.WrapError(types.ErrCodeWriteError, "preparing encryption", err)
	}
	pw.SetEncryption(enc, fileID)
	return nil
}

// allPermissions sets every user access bit of /P
const allPermissions int32 = -4
