package write

import (
	"bytes"
	"fmt"

	"github.com/benedoc-inc/pdfmerge/core/object"
)

// writeXRefStream writes a cross-reference stream as the last object. Its
// dictionary doubles as the trailer. Returns the stream's offset.
func (w *PDFWriter) writeXRefStream(buf *bytes.Buffer, size int, positions map[int]int64, compressed map[int]compressedEntry, trailer object.Dict) int64 {
	xrefNum := size
	xrefPos := int64(buf.Len())
	positions[xrefNum] = xrefPos

	maxField := xrefPos
	for _, e := range compressed {
		if int64(e.streamNum) > maxField {
			maxField = int64(e.streamNum)
		}
	}
	w1, w2, w3 := 1, calculateBytesNeeded(maxField), 2

	entryLen := w1 + w2 + w3
	data := make([]byte, 0, (xrefNum+1)*entryLen)
	for i := 0; i <= xrefNum; i++ {
		entry := make([]byte, entryLen)
		if pos, ok := positions[i]; ok {
			entry[0] = 1
			writeBigEndian(entry[w1:], pos, w2)
		} else if e, ok := compressed[i]; ok {
			entry[0] = 2
			writeBigEndian(entry[w1:], int64(e.streamNum), w2)
			writeBigEndian(entry[w1+w2:], int64(e.index), w3)
		} else if i == 0 {
			writeBigEndian(entry[w1+w2:], 65535, w3)
		}
		data = append(data, entry...)
	}

	dict := trailer.Clone()
	dict["Type"] = object.Name("XRef")
	dict["Size"] = object.Int(xrefNum + 1)
	dict["W"] = object.Array{object.Int(w1), object.Int(w2), object.Int(w3)}
	dict["Filter"] = object.Name("FlateDecode")

	fmt.Fprintf(buf, "%d 0 obj\n", xrefNum)
	writeObject(buf, &object.Stream{Dict: dict, Data: deflate(data)})
	buf.WriteString("\nendobj\n")
	return xrefPos
}

// calculateBytesNeeded calculates how many bytes are needed to represent a number
func calculateBytesNeeded(n int64) int {
	if n == 0 {
		return 1
	}
	count := 0
	for n > 0 {
		count++
		n >>= 8
	}
	return count
}

// writeBigEndian writes a number in big-endian format to a byte slice
func writeBigEndian(dst []byte, value int64, width int) {
	for i := width - 1; i >= 0; i-- {
		dst[i] = byte(value & 0xff)
		value >>= 8
	}
}
