package parse

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/benedoc-inc/pdfmerge/core/object"
)

// XRefType is the kind of a cross-reference entry
type XRefType byte

const (
	XRefFree       XRefType = 0
	XRefInUse      XRefType = 1
	XRefCompressed XRefType = 2
)

// XRefEntry locates one object. In-use entries carry a byte offset;
// compressed entries name the object stream and the index inside it.
type XRefEntry struct {
	Type       XRefType
	Offset     int64
	Generation int
	StreamNum  int
	Index      int
}

// xrefSection is one revision's cross-reference data and trailer
type xrefSection struct {
	entries map[int]XRefEntry
	trailer object.Dict
}

// findStartXRef returns the offset recorded after the last startxref keyword
func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("startxref not found")
	}
	l := newLexer(data, idx+len("startxref"))
	tok, err := l.next()
	if err != nil || tok.kind != tokInt {
		return 0, fmt.Errorf("startxref has no offset")
	}
	if tok.num < 0 || tok.num >= int64(len(data)) {
		return 0, fmt.Errorf("startxref offset %d out of range", tok.num)
	}
	return tok.num, nil
}

// parseXRefChain follows /Prev (and /XRefStm) links from startxref.
// Entries from newer sections take precedence over older ones.
func (d *Document) parseXRefChain() (map[int]XRefEntry, object.Dict, error) {
	start, err := findStartXRef(d.data)
	if err != nil {
		return nil, nil, err
	}

	entries := make(map[int]XRefEntry)
	var trailer object.Dict
	visited := make(map[int64]bool)

	merge := func(section *xrefSection) {
		for num, e := range section.entries {
			if _, exists := entries[num]; !exists {
				entries[num] = e
			}
		}
		if trailer == nil {
			trailer = section.trailer.Clone()
			return
		}
		for k, v := range section.trailer {
			if _, exists := trailer[k]; !exists {
				trailer[k] = v
			}
		}
	}

	offset := start
	for !visited[offset] {
		visited[offset] = true
		section, err := d.parseXRefSection(offset)
		if err != nil {
			return nil, nil, fmt.Errorf("xref section at %d: %w", offset, err)
		}
		merge(section)

		if stm, ok := section.trailer.GetInt("XRefStm"); ok && !visited[int64(stm)] {
			visited[int64(stm)] = true
			if hybrid, err := d.parseXRefSection(int64(stm)); err == nil {
				merge(hybrid)
			}
		}

		prev, ok := section.trailer.GetInt("Prev")
		if !ok || prev < 0 || int64(prev) >= int64(len(d.data)) {
			break
		}
		offset = int64(prev)
	}

	delete(trailer, "Prev")
	delete(trailer, "XRefStm")
	return entries, trailer, nil
}

func (d *Document) parseXRefSection(offset int64) (*xrefSection, error) {
	l := newLexer(d.data, int(offset))
	l.skipSpace()
	if bytes.HasPrefix(d.data[l.pos:], []byte("xref")) {
		l.pos += len("xref")
		return parseXRefTable(l)
	}
	return d.parseXRefStream(int64(l.pos))
}

// parseXRefTable reads classic "start count" subsections up to the trailer
func parseXRefTable(l *lexer) (*xrefSection, error) {
	section := &xrefSection{entries: make(map[int]XRefEntry)}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokKeyword && tok.str == "trailer" {
			p := &objectParser{lex: l}
			obj, err := p.parseObject()
			if err != nil {
				return nil, fmt.Errorf("trailer: %w", err)
			}
			dict, ok := obj.(object.Dict)
			if !ok {
				return nil, fmt.Errorf("trailer is not a dictionary")
			}
			section.trailer = dict
			return section, nil
		}
		if tok.kind != tokInt {
			return nil, fmt.Errorf("unexpected token in xref table at offset %d", tok.pos)
		}
		countTok, err := l.next()
		if err != nil || countTok.kind != tokInt {
			return nil, fmt.Errorf("xref subsection at offset %d has no count", tok.pos)
		}
		for i := 0; i < int(countTok.num); i++ {
			off, err1 := l.next()
			gen, err2 := l.next()
			kind, err3 := l.next()
			if err1 != nil || err2 != nil || err3 != nil || off.kind != tokInt || gen.kind != tokInt || kind.kind != tokKeyword {
				return nil, fmt.Errorf("malformed xref entry near offset %d", off.pos)
			}
			num := int(tok.num) + i
			switch kind.str {
			case "n":
				section.entries[num] = XRefEntry{Type: XRefInUse, Offset: off.num, Generation: int(gen.num)}
			case "f":
				section.entries[num] = XRefEntry{Type: XRefFree, Generation: int(gen.num)}
			default:
				return nil, fmt.Errorf("xref entry %d has type %q", num, kind.str)
			}
		}
	}
}

// parseXRefStream reads a cross-reference stream object at offset
func (d *Document) parseXRefStream(offset int64) (*xrefSection, error) {
	_, obj, err := d.parseAt(offset)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*object.Stream)
	if !ok {
		return nil, fmt.Errorf("no xref table or stream at offset %d", offset)
	}
	if t, _ := stream.Dict.GetName("Type"); t != "XRef" {
		return nil, fmt.Errorf("stream at offset %d is not an xref stream", offset)
	}
	decoded, err := DecodeStream(stream)
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}

	wArr, ok := stream.Dict.GetArray("W")
	if !ok || len(wArr) < 3 {
		return nil, fmt.Errorf("xref stream has no /W")
	}
	var w [3]int
	for i := range w {
		w[i], _ = object.AsInt(wArr[i])
		if w[i] < 0 || w[i] > 8 {
			return nil, fmt.Errorf("xref stream /W field %d out of range", i)
		}
	}
	entryLen := w[0] + w[1] + w[2]
	if entryLen == 0 {
		return nil, fmt.Errorf("xref stream /W is empty")
	}

	size, _ := stream.Dict.GetInt("Size")
	index := []int{0, size}
	if idx, ok := stream.Dict.GetArray("Index"); ok && len(idx)%2 == 0 {
		index = index[:0]
		for _, v := range idx {
			n, _ := object.AsInt(v)
			index = append(index, n)
		}
	}

	section := &xrefSection{entries: make(map[int]XRefEntry), trailer: stream.Dict}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+entryLen > len(decoded) {
				return section, nil
			}
			row := decoded[pos : pos+entryLen]
			pos += entryLen

			typ := int64(1)
			if w[0] > 0 {
				typ = readField(row[:w[0]])
			}
			f2 := readField(row[w[0] : w[0]+w[1]])
			f3 := readField(row[w[0]+w[1]:])
			num := first + j
			switch typ {
			case 0:
				section.entries[num] = XRefEntry{Type: XRefFree, Generation: int(f3)}
			case 1:
				section.entries[num] = XRefEntry{Type: XRefInUse, Offset: f2, Generation: int(f3)}
			case 2:
				section.entries[num] = XRefEntry{Type: XRefCompressed, StreamNum: int(f2), Index: int(f3)}
			}
		}
	}
	return section, nil
}

func readField(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// rebuildXRef scans the whole file for "num gen obj" headers. It is used
// when the cross-reference data is missing or inconsistent.
func (d *Document) rebuildXRef() (map[int]XRefEntry, object.Dict, error) {
	entries := make(map[int]XRefEntry)
	for _, loc := range scanObjectHeaders(d.data) {
		entries[loc.num] = XRefEntry{Type: XRefInUse, Offset: int64(loc.offset), Generation: loc.gen}
	}
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("no objects found")
	}

	trailer := object.Dict{}
	for pos := 0; ; {
		idx := bytes.Index(d.data[pos:], []byte("trailer"))
		if idx < 0 {
			break
		}
		pos += idx + len("trailer")
		p := newObjectParser(d.data, pos, nil)
		if dict, ok := mustDict(p.parseObject()); ok {
			for k, v := range dict {
				trailer[k] = v
			}
		}
	}

	d.xref = entries
	nums := make([]int, 0, len(entries))
	for num := range entries {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	var catalog object.Ref
	for _, num := range nums {
		e := entries[num]
		_, obj, err := d.parseAt(e.Offset)
		if err != nil {
			continue
		}
		switch v := obj.(type) {
		case *object.Stream:
			switch t, _ := v.Dict.GetName("Type"); t {
			case "XRef":
				for _, k := range []object.Name{"Root", "Info", "Encrypt", "ID"} {
					if val := v.Dict.Get(k); val != nil {
						if _, exists := trailer[k]; !exists {
							trailer[k] = val
						}
					}
				}
			case "ObjStm":
				d.indexObjectStream(num, v, entries)
			}
		case object.Dict:
			if t, _ := v.GetName("Type"); t == "Catalog" {
				catalog = object.Ref{Num: num, Gen: e.Generation}
			}
		}
	}
	if _, ok := trailer["Root"]; !ok && catalog.Num > 0 {
		trailer["Root"] = catalog
	}
	delete(trailer, "Prev")
	delete(trailer, "XRefStm")
	return entries, trailer, nil
}

func mustDict(o object.Object, err error) (object.Dict, bool) {
	if err != nil {
		return nil, false
	}
	d, ok := o.(object.Dict)
	return d, ok
}

// indexObjectStream adds compressed entries for the objects held in an
// object stream that have no direct definition.
func (d *Document) indexObjectStream(num int, stream *object.Stream, entries map[int]XRefEntry) {
	stm, err := newObjectStream(stream)
	if err != nil {
		return
	}
	for i, objNum := range stm.numbers {
		if _, exists := entries[objNum]; !exists {
			entries[objNum] = XRefEntry{Type: XRefCompressed, StreamNum: num, Index: i}
		}
	}
}

type objectLocation struct {
	num, gen, offset int
}

// scanObjectHeaders finds every "num gen obj" header in data, in file order.
func scanObjectHeaders(data []byte) []objectLocation {
	var locs []objectLocation
	objKw := []byte("obj")
	for pos := 0; ; {
		idx := bytes.Index(data[pos:], objKw)
		if idx < 0 {
			return locs
		}
		at := pos + idx
		pos = at + len(objKw)
		if pos < len(data) && !isWhitespace(data[pos]) && !isDelimiter(data[pos]) {
			continue
		}
		// Walk backwards over "num ws gen ws".
		i := at - 1
		if i < 0 || !isWhitespace(data[i]) {
			continue
		}
		for i >= 0 && isWhitespace(data[i]) {
			i--
		}
		genEnd := i + 1
		for i >= 0 && isDigit(data[i]) {
			i--
		}
		genStart := i + 1
		if genStart == genEnd || i < 0 || !isWhitespace(data[i]) {
			continue
		}
		for i >= 0 && isWhitespace(data[i]) {
			i--
		}
		numEnd := i + 1
		for i >= 0 && isDigit(data[i]) {
			i--
		}
		numStart := i + 1
		if numStart == numEnd || (i >= 0 && !isWhitespace(data[i]) && !isDelimiter(data[i])) {
			continue
		}
		num, err1 := strconv.Atoi(string(data[numStart:numEnd]))
		gen, err2 := strconv.Atoi(string(data[genStart:genEnd]))
		if err1 != nil || err2 != nil {
			continue
		}
		locs = append(locs, objectLocation{num: num, gen: gen, offset: numStart})
	}
}
