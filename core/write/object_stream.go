package write

import (
	"bytes"
	"fmt"

	"github.com/benedoc-inc/pdfmerge/core/object"
)

// maxObjectsPerStream bounds the size of each object stream
const maxObjectsPerStream = 100

// compressedEntry locates an object inside an object stream
type compressedEntry struct {
	group     int
	index     int
	streamNum int
}

// buildObjectStreams groups non-stream objects into /Type /ObjStm streams.
// Streams themselves cannot be stored in object streams.
func (w *PDFWriter) buildObjectStreams(objNums []int) (map[int]compressedEntry, []*object.Stream) {
	entries := make(map[int]compressedEntry)
	var streams []*object.Stream

	var eligible []int
	for _, num := range objNums {
		if _, isStream := w.objects[num].(*object.Stream); isStream {
			continue
		}
		eligible = append(eligible, num)
	}

	for start := 0; start < len(eligible); start += maxObjectsPerStream {
		group := eligible[start:min(start+maxObjectsPerStream, len(eligible))]

		var header, body bytes.Buffer
		for i, num := range group {
			if i > 0 {
				header.WriteByte(' ')
			}
			fmt.Fprintf(&header, "%d %d", num, body.Len())
			writeObject(&body, w.objects[num])
			body.WriteByte('\n')
			entries[num] = compressedEntry{group: len(streams), index: i}
		}
		header.WriteByte('\n')

		data := append(header.Bytes(), body.Bytes()...)
		streams = append(streams, &object.Stream{
			Dict: object.Dict{
				"Type":   object.Name("ObjStm"),
				"N":      object.Int(len(group)),
				"First":  object.Int(header.Len()),
				"Filter": object.Name("FlateDecode"),
			},
			Data: deflate(data),
		})
	}
	return entries, streams
}
