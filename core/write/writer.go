// Package write serializes typed PDF objects into complete documents.
package write

import (
	"bytes"
	"compress/zlib"
	"crypto/md5"
	"fmt"
	"io"
	"sort"

	"github.com/benedoc-inc/pdfmerge/core/encrypt"
	"github.com/benedoc-inc/pdfmerge/core/object"
	"github.com/benedoc-inc/pdfmerge/types"
)

// PDFWriter builds PDF files from numbered objects
type PDFWriter struct {
	objects         map[int]object.Object
	nextObjNum      int
	rootRef         object.Ref
	infoRef         object.Ref
	encryptRef      object.Ref
	encryptInfo     *types.PDFEncryption
	fileID          []byte
	pdfVersion      string
	useXRefStream   bool // If true, use cross-reference stream instead of table
	useObjectStream bool // If true, compress objects into object streams
}

// NewPDFWriter creates a new PDF writer
func NewPDFWriter() *PDFWriter {
	return &PDFWriter{
		objects:    make(map[int]object.Object),
		nextObjNum: 1,
		pdfVersion: "1.7",
	}
}

// SetVersion sets the PDF version (e.g., "1.7")
func (w *PDFWriter) SetVersion(version string) {
	w.pdfVersion = version
}

// UseXRefStream enables cross-reference stream writing (PDF 1.5+)
func (w *PDFWriter) UseXRefStream(enable bool) {
	w.useXRefStream = enable
}

// UseObjectStream enables object stream writing (PDF 1.5+).
// Object streams need Type 2 xref entries, so this also enables xref streams.
func (w *PDFWriter) UseObjectStream(enable bool) {
	w.useObjectStream = enable
	if enable {
		w.useXRefStream = true
	}
}

// SetEncryption encrypts strings and streams of the output with enc, whose
// file key must already be derived from fileID. An /Encrypt dictionary is
// added when the document is written.
func (w *PDFWriter) SetEncryption(enc *types.PDFEncryption, fileID []byte) {
	w.encryptInfo = enc
	w.fileID = fileID
}

// SetFileID fixes the trailer /ID instead of deriving it from the content
func (w *PDFWriter) SetFileID(id []byte) {
	w.fileID = id
}

// AddObject adds a new object and returns its reference
func (w *PDFWriter) AddObject(obj object.Object) object.Ref {
	ref := w.Reserve()
	w.objects[ref.Num] = obj
	return ref
}

// AddStreamObject adds a stream object, Flate-compressing data when asked
func (w *PDFWriter) AddStreamObject(dict object.Dict, data []byte, compress bool) object.Ref {
	if dict == nil {
		dict = object.Dict{}
	}
	if compress && len(data) > 0 {
		data = deflate(data)
		dict["Filter"] = object.Name("FlateDecode")
	}
	return w.AddObject(&object.Stream{Dict: dict, Data: data})
}

// Reserve allocates an object number to be filled in later with SetObject
func (w *PDFWriter) Reserve() object.Ref {
	ref := object.Ref{Num: w.nextObjNum}
	w.nextObjNum++
	return ref
}

// SetObject sets or replaces an object at a specific number
func (w *PDFWriter) SetObject(objNum int, obj object.Object) {
	w.objects[objNum] = obj
	if objNum >= w.nextObjNum {
		w.nextObjNum = objNum + 1
	}
}

// Object returns the object stored at objNum
func (w *PDFWriter) Object(objNum int) (object.Object, bool) {
	obj, ok := w.objects[objNum]
	return obj, ok
}

// ObjectCount returns the number of objects added so far
func (w *PDFWriter) ObjectCount() int {
	return len(w.objects)
}

// SetRoot sets the root (catalog) object reference
func (w *PDFWriter) SetRoot(ref object.Ref) {
	w.rootRef = ref
}

// SetInfo sets the info dictionary object reference
func (w *PDFWriter) SetInfo(ref object.Ref) {
	w.infoRef = ref
}

// Bytes returns the complete PDF
func (w *PDFWriter) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := w.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write outputs the complete PDF to the given writer
func (w *PDFWriter) Write(out io.Writer) error {
	if w.rootRef.Num == 0 {
		return types.NewPDFError(types.ErrCodeWriteError, "document has no catalog")
	}

	if w.encryptInfo != nil && w.encryptRef.Num == 0 {
		w.encryptRef = w.AddObject(encryptionDictionary(w.encryptInfo))
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n", w.pdfVersion)
	buf.Write([]byte{0x25, 0xE2, 0xE3, 0xCF, 0xD3, 0x0A}) // Binary marker

	objNums := make([]int, 0, len(w.objects))
	for num := range w.objects {
		objNums = append(objNums, num)
	}
	sort.Ints(objNums)

	compressed := make(map[int]compressedEntry)
	var streams []*object.Stream
	if w.useObjectStream && w.encryptInfo == nil {
		compressed, streams = w.buildObjectStreams(objNums)
	}
	streamNums := make([]int, len(streams))
	for i, s := range streams {
		streamNums[i] = w.nextObjNum + i
		w.objects[streamNums[i]] = s
	}
	size := w.nextObjNum + len(streams)
	defer func() {
		for _, num := range streamNums {
			delete(w.objects, num)
		}
	}()
	objNums = append(objNums, streamNums...)
	for num, e := range compressed {
		e.streamNum = streamNums[e.group]
		compressed[num] = e
	}

	positions := make(map[int]int64)
	for _, objNum := range objNums {
		if _, inStream := compressed[objNum]; inStream {
			continue
		}
		obj := w.objects[objNum]
		if w.encryptInfo != nil && objNum != w.encryptRef.Num {
			var err error
			obj, err = encryptObject(obj, objNum, w.encryptInfo)
			if err != nil {
				return types.WrapErrorf(types.ErrCodeWriteError, err, "encrypting object %d", objNum)
			}
		}
		positions[objNum] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n", objNum)
		writeObject(&buf, obj)
		buf.WriteString("\nendobj\n")
	}

	fileID := w.fileID
	if len(fileID) == 0 {
		sum := md5.Sum(buf.Bytes())
		fileID = sum[:]
	}

	trailer := object.Dict{
		"Size": object.Int(size),
		"Root": w.rootRef,
		"ID":   object.Array{object.String(fileID), object.String(fileID)},
	}
	if w.infoRef.Num != 0 {
		trailer["Info"] = w.infoRef
	}
	if w.encryptRef.Num != 0 {
		trailer["Encrypt"] = w.encryptRef
	}

	var xrefPos int64
	if w.useXRefStream {
		xrefPos = w.writeXRefStream(&buf, size, positions, compressed, trailer)
	} else {
		xrefPos = int64(buf.Len())
		buf.WriteString("xref\n")
		fmt.Fprintf(&buf, "0 %d\n", size)
		fmt.Fprintf(&buf, "%010d %05d f \n", 0, 65535)
		for i := 1; i < size; i++ {
			if pos, ok := positions[i]; ok {
				fmt.Fprintf(&buf, "%010d %05d n \n", pos, 0)
			} else {
				fmt.Fprintf(&buf, "%010d %05d f \n", 0, 1)
			}
		}
		buf.WriteString("trailer\n")
		writeObject(&buf, trailer)
		buf.WriteString("\n")
	}

	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefPos)

	_, err := out.Write(buf.Bytes())
	return err
}

func deflate(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(data)
	zw.Close()
	return buf.Bytes()
}

func encryptionDictionary(enc *types.PDFEncryption) object.Dict {
	dict := object.Dict{
		"Filter": object.Name("Standard"),
		"V":      object.Int(enc.V),
		"R":      object.Int(enc.R),
		"Length": object.Int(enc.KeyLength * 8),
		"O":      object.String(enc.O),
		"U":      object.String(enc.U),
		"P":      object.Int(enc.P),
	}
	if !enc.EncryptMetadata {
		dict["EncryptMetadata"] = object.Bool(false)
	}
	return dict
}

// encryptObject returns a copy of obj with its strings and stream data encrypted
func encryptObject(obj object.Object, objNum int, enc *types.PDFEncryption) (object.Object, error) {
	switch v := obj.(type) {
	case *object.Stream:
		dict, err := encryptObject(v.Dict, objNum, enc)
		if err != nil {
			return nil, err
		}
		data, err := encrypt.EncryptData(v.Data, objNum, 0, enc, true)
		if err != nil {
			return nil, err
		}
		return &object.Stream{Dict: dict.(object.Dict), Data: data}, nil
	case object.String:
		data, err := encrypt.EncryptData([]byte(v), objNum, 0, enc, false)
		if err != nil {
			return nil, err
		}
		return object.String(data), nil
	case object.Array:
		out := make(object.Array, len(v))
		for i, item := range v {
			e, err := encryptObject(item, objNum, enc)
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	case object.Dict:
		out := make(object.Dict, len(v))
		for k, item := range v {
			e, err := encryptObject(item, objNum, enc)
			if err != nil {
				return nil, err
			}
			out[k] = e
		}
		return out, nil
	}
	return obj, nil
}
