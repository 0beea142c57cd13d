package parse

import (
	"bytes"
	"fmt"
	"strconv"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokInt
	tokReal
	tokString
	tokName
	tokArrayStart
	tokArrayEnd
	tokDictStart
	tokDictEnd
	tokKeyword
)

type token struct {
	kind tokenKind
	pos  int
	num  int64
	real float64
	str  string // string bytes, name, or keyword text
}

// lexer tokenizes PDF syntax over an in-memory buffer. Its position can be
// saved and restored, which the parser uses for "num gen R" lookahead.
type lexer struct {
	data []byte
	pos  int
}

func newLexer(data []byte, pos int) *lexer {
	return &lexer{data: data, pos: pos}
}

func isWhitespace(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhitespace(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.data) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.data[l.pos]
	switch {
	case c == '[':
		l.pos++
		return token{kind: tokArrayStart, pos: start}, nil
	case c == ']':
		l.pos++
		return token{kind: tokArrayEnd, pos: start}, nil
	case c == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			l.pos += 2
			return token{kind: tokDictStart, pos: start}, nil
		}
		return l.readHexString()
	case c == '>':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '>' {
			l.pos += 2
			return token{kind: tokDictEnd, pos: start}, nil
		}
		l.pos++
		return token{}, fmt.Errorf("unexpected '>' at offset %d", start)
	case c == '(':
		return l.readString()
	case c == '/':
		return l.readName()
	case c == '+' || c == '-' || c == '.' || isDigit(c):
		return l.readNumber()
	case isDelimiter(c):
		l.pos++
		return token{}, fmt.Errorf("unexpected %q at offset %d", c, start)
	}

	for l.pos < len(l.data) && !isWhitespace(l.data[l.pos]) && !isDelimiter(l.data[l.pos]) {
		l.pos++
	}
	return token{kind: tokKeyword, pos: start, str: string(l.data[start:l.pos])}, nil
}

func (l *lexer) readNumber() (token, error) {
	start := l.pos
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if !isDigit(c) && c != '.' && c != '-' && c != '+' {
			break
		}
		l.pos++
	}
	text := string(l.data[start:l.pos])
	if !bytes.ContainsRune(l.data[start:l.pos], '.') {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return token{kind: tokInt, pos: start, num: n}, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// Malformed numbers such as "--5" or "1.2.3" read as zero.
		return token{kind: tokInt, pos: start}, nil
	}
	return token{kind: tokReal, pos: start, real: f}, nil
}

func (l *lexer) readString() (token, error) {
	start := l.pos
	l.pos++ // (
	var buf bytes.Buffer
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return token{kind: tokString, pos: start, str: buf.String()}, nil
			}
			buf.WriteByte(c)
		case '\\':
			if l.pos >= len(l.data) {
				continue
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data); i++ {
						d := l.data[l.pos]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						l.pos++
					}
					buf.WriteByte(byte(v))
				} else {
					buf.WriteByte(e)
				}
			}
		default:
			buf.WriteByte(c)
		}
	}
	return token{}, fmt.Errorf("unterminated string at offset %d", start)
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func (l *lexer) readHexString() (token, error) {
	start := l.pos
	l.pos++ // <
	var buf bytes.Buffer
	var hi byte
	half := false
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		if c == '>' {
			if half {
				buf.WriteByte(hi << 4)
			}
			return token{kind: tokString, pos: start, str: buf.String()}, nil
		}
		v, ok := hexValue(c)
		if !ok {
			continue
		}
		if half {
			buf.WriteByte(hi<<4 | v)
			half = false
		} else {
			hi = v
			half = true
		}
	}
	return token{}, fmt.Errorf("unterminated hex string at offset %d", start)
}

func (l *lexer) readName() (token, error) {
	start := l.pos
	l.pos++ // /
	var buf bytes.Buffer
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		l.pos++
		if c == '#' && l.pos+1 < len(l.data) {
			h, ok1 := hexValue(l.data[l.pos])
			lo, ok2 := hexValue(l.data[l.pos+1])
			if ok1 && ok2 {
				buf.WriteByte(h<<4 | lo)
				l.pos += 2
				continue
			}
		}
		buf.WriteByte(c)
	}
	return token{kind: tokName, pos: start, str: buf.String()}, nil
}
