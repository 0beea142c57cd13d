package parse

import (
	"bytes"
	"fmt"

	"github.com/benedoc-inc/pdfmerge/core/object"
)

// lengthResolver resolves an indirect /Length value of a stream.
type lengthResolver func(ref object.Ref) (int, bool)

// objectParser reads PDF objects from a lexer.
type objectParser struct {
	lex           *lexer
	resolveLength lengthResolver
	// recovered is set when a stream's /Length was wrong and the data
	// boundary was found by searching for endstream.
	recovered bool
}

func newObjectParser(data []byte, pos int, resolve lengthResolver) *objectParser {
	return &objectParser{lex: newLexer(data, pos), resolveLength: resolve}
}

// parseObject reads one direct object (or indirect reference).
func (p *objectParser) parseObject() (object.Object, error) {
	tok, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	return p.parseFrom(tok, 0)
}

const maxNesting = 256

func (p *objectParser) parseFrom(tok token, depth int) (object.Object, error) {
	if depth > maxNesting {
		return nil, fmt.Errorf("objects nested too deeply at offset %d", tok.pos)
	}
	switch tok.kind {
	case tokInt:
		save := p.lex.pos
		if gen, err := p.lex.next(); err == nil && gen.kind == tokInt {
			if r, err := p.lex.next(); err == nil && r.kind == tokKeyword && r.str == "R" {
				return object.Ref{Num: int(tok.num), Gen: int(gen.num)}, nil
			}
		}
		p.lex.pos = save
		return object.Int(tok.num), nil
	case tokReal:
		return object.Real(tok.real), nil
	case tokString:
		return object.String(tok.str), nil
	case tokName:
		return object.Name(tok.str), nil
	case tokArrayStart:
		arr := object.Array{}
		for {
			t, err := p.lex.next()
			if err != nil {
				return nil, err
			}
			if t.kind == tokArrayEnd {
				return arr, nil
			}
			if t.kind == tokEOF {
				return nil, fmt.Errorf("unterminated array at offset %d", tok.pos)
			}
			if t.kind == tokDictEnd {
				continue
			}
			item, err := p.parseFrom(t, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, item)
		}
	case tokDictStart:
		dict := object.Dict{}
		for {
			t, err := p.lex.next()
			if err != nil {
				return nil, err
			}
			if t.kind == tokDictEnd {
				return dict, nil
			}
			if t.kind == tokEOF {
				return nil, fmt.Errorf("unterminated dictionary at offset %d", tok.pos)
			}
			if t.kind != tokName {
				// Stray tokens between entries are skipped.
				continue
			}
			vt, err := p.lex.next()
			if err != nil {
				return nil, err
			}
			if vt.kind == tokDictEnd {
				return dict, nil
			}
			value, err := p.parseFrom(vt, depth+1)
			if err != nil {
				return nil, err
			}
			if _, isNull := value.(object.Null); !isNull {
				dict[object.Name(t.str)] = value
			}
		}
	case tokKeyword:
		switch tok.str {
		case "true":
			return object.Bool(true), nil
		case "false":
			return object.Bool(false), nil
		case "null":
			return object.Null{}, nil
		}
		return nil, fmt.Errorf("unexpected keyword %q at offset %d", tok.str, tok.pos)
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of data")
	}
	return nil, fmt.Errorf("unexpected token at offset %d", tok.pos)
}

// parseIndirect reads "num gen obj ... endobj" starting at the lexer position.
func (p *objectParser) parseIndirect() (object.Ref, object.Object, error) {
	num, err := p.lex.next()
	if err != nil {
		return object.Ref{}, nil, err
	}
	gen, err := p.lex.next()
	if err != nil {
		return object.Ref{}, nil, err
	}
	kw, err := p.lex.next()
	if err != nil {
		return object.Ref{}, nil, err
	}
	if num.kind != tokInt || gen.kind != tokInt || kw.kind != tokKeyword || kw.str != "obj" {
		return object.Ref{}, nil, fmt.Errorf("no object header at offset %d", num.pos)
	}
	ref := object.Ref{Num: int(num.num), Gen: int(gen.num)}

	obj, err := p.parseObject()
	if err != nil {
		return ref, nil, fmt.Errorf("object %d %d: %w", ref.Num, ref.Gen, err)
	}

	dict, ok := obj.(object.Dict)
	if !ok {
		return ref, obj, nil
	}
	save := p.lex.pos
	kw, err = p.lex.next()
	if err != nil || kw.kind != tokKeyword || kw.str != "stream" {
		p.lex.pos = save
		return ref, obj, nil
	}
	data, err := p.readStreamData(dict)
	if err != nil {
		return ref, nil, fmt.Errorf("object %d %d: %w", ref.Num, ref.Gen, err)
	}
	return ref, &object.Stream{Dict: dict, Data: data}, nil
}

var endstreamKeyword = []byte("endstream")

func (p *objectParser) readStreamData(dict object.Dict) ([]byte, error) {
	data := p.lex.data
	pos := p.lex.pos
	// The stream keyword is followed by CRLF or LF; a lone CR is tolerated.
	if pos < len(data) && data[pos] == '\r' {
		pos++
	}
	if pos < len(data) && data[pos] == '\n' {
		pos++
	}
	start := pos

	length := -1
	switch v := dict.Get("Length").(type) {
	case object.Int:
		length = int(v)
	case object.Ref:
		if p.resolveLength != nil {
			if n, ok := p.resolveLength(v); ok {
				length = n
			}
		}
	}

	if length >= 0 && start+length <= len(data) {
		end := start + length
		l := newLexer(data, end)
		l.skipSpace()
		if bytes.HasPrefix(data[l.pos:], endstreamKeyword) {
			p.lex.pos = l.pos + len(endstreamKeyword)
			return data[start:end], nil
		}
	}

	idx := bytes.Index(data[start:], endstreamKeyword)
	if idx < 0 {
		return nil, fmt.Errorf("stream at offset %d has no endstream", start)
	}
	end := start + idx
	if end > start && data[end-1] == '\n' {
		end--
	}
	if end > start && data[end-1] == '\r' {
		end--
	}
	p.recovered = true
	p.lex.pos = start + idx + len(endstreamKeyword)
	return data[start:end], nil
}
