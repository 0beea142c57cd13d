package write

import (
	"fmt"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/benedoc-inc/pdfmerge/core/object"
	"github.com/benedoc-inc/pdfmerge/types"
)

// SetMetadata adds an Info dictionary built from metadata and sets it as
// the document info. Returns the dictionary's reference.
func (w *PDFWriter) SetMetadata(metadata types.DocumentMetadata) object.Ref {
	ref := w.AddObject(InfoDictionary(metadata))
	w.SetInfo(ref)
	return ref
}

// InfoDictionary converts metadata to an Info dictionary. Empty fields are omitted.
func InfoDictionary(metadata types.DocumentMetadata) object.Dict {
	dict := object.Dict{}
	text := map[object.Name]string{
		"Title":    metadata.Title,
		"Author":   metadata.Author,
		"Subject":  metadata.Subject,
		"Keywords": metadata.Keywords,
		"Creator":  metadata.Creator,
		"Producer": metadata.Producer,
	}
	for key, value := range text {
		if value != "" {
			dict[key] = EncodeTextString(value)
		}
	}
	if !metadata.CreationDate.IsZero() {
		dict["CreationDate"] = object.String(FormatPDFDate(metadata.CreationDate))
	}
	if !metadata.ModDate.IsZero() {
		dict["ModDate"] = object.String(FormatPDFDate(metadata.ModDate))
	}
	return dict
}

// EncodeTextString encodes s as a PDF text string: ASCII is stored as is,
// anything else as UTF-16BE with a byte order mark.
func EncodeTextString(s string) object.String {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return object.String(s)
	}
	out, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().String(s)
	if err != nil {
		return object.String(s)
	}
	return object.String(out)
}

// FormatPDFDate formats t as D:YYYYMMDDHHmmSSOHH'mm'
func FormatPDFDate(t time.Time) string {
	_, offset := t.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	if offset == 0 {
		return t.Format("D:20060102150405") + "Z"
	}
	return fmt.Sprintf("%s%c%02d'%02d'", t.Format("D:20060102150405"), sign, offset/3600, (offset%3600)/60)
}
