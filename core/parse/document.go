// Package parse loads PDF documents into a typed, lazily resolved object graph.
package parse

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/benedoc-inc/pdfmerge/core/encrypt"
	"github.com/benedoc-inc/pdfmerge/core/object"
	"github.com/benedoc-inc/pdfmerge/types"
)

// Options controls how a document is opened
type Options struct {
	// Password is tried as the user password of encrypted documents.
	// The empty password is the common case for restriction-only files.
	Password []byte
	// BestEffort opens encrypted documents even when no key can be derived,
	// leaving strings and streams as stored.
	BestEffort bool
}

// Document is a parsed PDF. Objects are parsed on first access and cached.
type Document struct {
	data    []byte
	version string
	xref    map[int]XRefEntry
	trailer object.Dict
	cache   map[int]object.Object
	objStms map[int]*objectStream
	loading map[int]bool

	enc       *types.PDFEncryption
	encRef    object.Ref
	encrypted bool
	decrypted bool

	pages    []Page
	warnings types.WarningCollector
}

var headerPattern = regexp.MustCompile(`%PDF-(\d\.\d)`)

// Open parses data as a PDF document
func Open(data []byte, opts Options) (*Document, error) {
	head := data[:min(len(data), 1024)]
	m := headerPattern.FindSubmatch(head)
	if m == nil {
		return nil, types.NewPDFError(types.ErrCodeSourceLoad, "data is not a PDF document: no %PDF- header")
	}

	d := &Document{
		data:    data,
		version: string(m[1]),
		cache:   make(map[int]object.Object),
		objStms: make(map[int]*objectStream),
		loading: make(map[int]bool),
	}

	rebuilt := false
	xref, trailer, err := d.parseXRefChain()
	if err != nil || trailer.Get("Root") == nil {
		xref, trailer, err = d.rebuildXRef()
		if err != nil {
			return nil, types.WrapError(types.ErrCodeSourceLoad, "cannot read cross-reference data", err)
		}
		rebuilt = true
		d.warnings.AddWarningf(types.WarningLevelWarning, types.WarnXRefRebuilt, "cross-reference data rebuilt from object scan")
	}
	d.xref, d.trailer = xref, trailer

	if err := d.setupEncryption(opts); err != nil {
		return nil, err
	}

	d.pages, err = d.collectPages()
	if err != nil && !rebuilt {
		// The xref parsed but pointed at the wrong places; try a scan.
		if xref, trailer, rerr := d.rebuildXRef(); rerr == nil {
			d.xref, d.trailer = xref, trailer
			d.cache = make(map[int]object.Object)
			d.objStms = make(map[int]*objectStream)
			d.warnings.AddWarningf(types.WarningLevelWarning, types.WarnXRefRebuilt, "cross-reference data rebuilt after page tree failure")
			d.pages, err = d.collectPages()
		}
	}
	if err != nil {
		return nil, types.WrapError(types.ErrCodeSourceLoad, "cannot read page tree", err)
	}
	return d, nil
}

func (d *Document) setupEncryption(opts Options) error {
	encObj := d.trailer.Get("Encrypt")
	if encObj == nil {
		return nil
	}
	d.encrypted = true
	if ref, ok := encObj.(object.Ref); ok {
		d.encRef = ref
	}
	dict, ok := d.Resolve(encObj).(object.Dict)
	if !ok {
		return d.encryptionFailure(opts, types.NewPDFError(types.ErrCodeDecryptionFailed, "encryption dictionary missing"))
	}
	enc, err := encrypt.ParseEncryptionDictionary(dict)
	if err != nil {
		return d.encryptionFailure(opts, err)
	}
	if _, err := encrypt.AuthenticateUser(opts.Password, enc, d.fileID()); err != nil {
		return d.encryptionFailure(opts, err)
	}
	d.enc = enc
	d.decrypted = true
	return nil
}

func (d *Document) encryptionFailure(opts Options, err error) error {
	if !opts.BestEffort || !types.IsEncryptionError(err) {
		return types.WrapError(types.ErrCodeSourceLoad, "cannot decrypt document", err)
	}
	d.warnings.AddWarningf(types.WarningLevelWarning, types.WarnEncryptedRaw, "document is encrypted and was loaded without decryption: %v", err)
	return nil
}

func (d *Document) fileID() []byte {
	ids, ok := d.Resolve(d.trailer.Get("ID")).(object.Array)
	if !ok || len(ids) == 0 {
		return nil
	}
	if s, ok := d.Resolve(ids[0]).(object.String); ok {
		return []byte(s)
	}
	return nil
}

// Version returns the header version, e.g. "1.7"
func (d *Document) Version() string { return d.version }

// Trailer returns the merged trailer dictionary
func (d *Document) Trailer() object.Dict { return d.trailer }

// IsEncrypted reports whether the document carries an /Encrypt dictionary
func (d *Document) IsEncrypted() bool { return d.encrypted }

// IsDecrypted reports whether strings and streams are decrypted on load
func (d *Document) IsDecrypted() bool { return d.decrypted }

// Warnings returns the non-fatal problems met while loading
func (d *Document) Warnings() []*types.Warning { return d.warnings.Warnings() }

// Object loads the object referenced by ref. Free or missing entries yield
// an ObjectNotFound error.
func (d *Document) Object(ref object.Ref) (object.Object, error) {
	if obj, ok := d.cache[ref.Num]; ok {
		return obj, nil
	}
	entry, ok := d.xref[ref.Num]
	if !ok || entry.Type == XRefFree {
		return nil, types.NewPDFErrorf(types.ErrCodeObjectNotFound, "object %d %d not found", ref.Num, ref.Gen)
	}
	if d.loading[ref.Num] {
		return nil, types.NewPDFErrorf(types.ErrCodeMalformedPDF, "object %d refers to itself while loading", ref.Num)
	}
	d.loading[ref.Num] = true
	defer delete(d.loading, ref.Num)

	var (
		obj object.Object
		err error
	)
	switch entry.Type {
	case XRefInUse:
		var got object.Ref
		got, obj, err = d.parseAt(entry.Offset)
		if err == nil && got.Num != ref.Num {
			err = fmt.Errorf("xref offset %d holds object %d, not %d", entry.Offset, got.Num, ref.Num)
		}
		if err == nil {
			obj, err = d.decryptObject(obj, got)
		}
	case XRefCompressed:
		obj, err = d.compressedObject(ref.Num, entry)
	}
	if err != nil {
		return nil, types.WrapErrorf(types.ErrCodeMalformedPDF, err, "object %d", ref.Num)
	}
	d.cache[ref.Num] = obj
	return obj, nil
}

// Resolve follows indirect references. Unresolvable references become null.
func (d *Document) Resolve(o object.Object) object.Object {
	for i := 0; i < 32; i++ {
		ref, ok := o.(object.Ref)
		if !ok {
			return o
		}
		obj, err := d.Object(ref)
		if err != nil {
			d.warnings.AddWarningf(types.WarningLevelWarning, types.WarnMissingObject, "%v", err)
			return object.Null{}
		}
		o = obj
	}
	return object.Null{}
}

// parseAt parses the indirect object whose header starts at offset
func (d *Document) parseAt(offset int64) (object.Ref, object.Object, error) {
	if offset < 0 || offset >= int64(len(d.data)) {
		return object.Ref{}, nil, fmt.Errorf("offset %d out of range", offset)
	}
	p := newObjectParser(d.data, int(offset), d.resolveLength)
	ref, obj, err := p.parseIndirect()
	if err == nil && p.recovered {
		d.warnings.AddWarningf(types.WarningLevelInfo, types.WarnStreamRecovery, "object %d: stream length recovered from endstream", ref.Num)
	}
	return ref, obj, err
}

func (d *Document) resolveLength(ref object.Ref) (int, bool) {
	obj, err := d.Object(ref)
	if err != nil {
		return 0, false
	}
	return object.AsInt(obj)
}

func (d *Document) compressedObject(num int, entry XRefEntry) (object.Object, error) {
	stm, ok := d.objStms[entry.StreamNum]
	if !ok {
		obj, err := d.Object(object.Ref{Num: entry.StreamNum})
		if err != nil {
			return nil, err
		}
		stream, isStream := obj.(*object.Stream)
		if !isStream {
			return nil, fmt.Errorf("object %d is not an object stream", entry.StreamNum)
		}
		stm, err = newObjectStream(stream)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", entry.StreamNum, err)
		}
		d.objStms[entry.StreamNum] = stm
	}
	return stm.object(num, entry.Index)
}

// decryptObject decrypts the strings and stream data of a top-level object
func (d *Document) decryptObject(obj object.Object, ref object.Ref) (object.Object, error) {
	if !d.decrypted || ref.Num == d.encRef.Num {
		return obj, nil
	}
	if s, ok := obj.(*object.Stream); ok {
		t, _ := s.Dict.GetName("Type")
		if t == "XRef" {
			return obj, nil
		}
		dict, err := d.decryptValue(s.Dict, ref)
		if err != nil {
			return nil, err
		}
		data := s.Data
		if t != "Metadata" || d.enc.EncryptMetadata {
			data, err = encrypt.DecryptData(s.Data, ref.Num, ref.Gen, d.enc, true)
			if err != nil {
				return nil, err
			}
		}
		return &object.Stream{Dict: dict.(object.Dict), Data: data}, nil
	}
	return d.decryptValue(obj, ref)
}

func (d *Document) decryptValue(obj object.Object, ref object.Ref) (object.Object, error) {
	switch v := obj.(type) {
	case object.String:
		out, err := encrypt.DecryptData([]byte(v), ref.Num, ref.Gen, d.enc, false)
		if err != nil {
			return nil, err
		}
		return object.String(out), nil
	case object.Array:
		out := make(object.Array, len(v))
		for i, item := range v {
			dec, err := d.decryptValue(item, ref)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case object.Dict:
		out := make(object.Dict, len(v))
		for k, item := range v {
			dec, err := d.decryptValue(item, ref)
			if err != nil {
				return nil, err
			}
			out[k] = dec
		}
		return out, nil
	}
	return obj, nil
}

// Info summarizes the document
func (d *Document) Info() types.DocumentInfo {
	return types.DocumentInfo{
		PDFVersion: d.version,
		PageCount:  len(d.pages),
		Encrypted:  d.encrypted,
		Decrypted:  d.decrypted,
		Metadata:   d.Metadata(),
	}
}

// Metadata decodes the trailer's /Info dictionary
func (d *Document) Metadata() types.DocumentMetadata {
	info, ok := d.Resolve(d.trailer.Get("Info")).(object.Dict)
	if !ok {
		return types.DocumentMetadata{}
	}
	text := func(key object.Name) string {
		if s, ok := d.Resolve(info.Get(key)).(object.String); ok {
			return DecodeTextString([]byte(s))
		}
		return ""
	}
	date := func(key object.Name) string {
		if s, ok := d.Resolve(info.Get(key)).(object.String); ok {
			return string(bytes.TrimSpace([]byte(s)))
		}
		return ""
	}
	md := types.DocumentMetadata{
		Title:    text("Title"),
		Author:   text("Author"),
		Subject:  text("Subject"),
		Keywords: text("Keywords"),
		Creator:  text("Creator"),
		Producer: text("Producer"),
	}
	md.CreationDate, _ = ParseDate(date("CreationDate"))
	md.ModDate, _ = ParseDate(date("ModDate"))
	return md
}
