package write

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/benedoc-inc/pdfmerge/core/object"
)

// writeObject serializes obj in PDF syntax. Dictionary keys are sorted so
// output is stable for identical input.
func writeObject(buf *bytes.Buffer, obj object.Object) {
	switch v := obj.(type) {
	case nil, object.Null:
		buf.WriteString("null")
	case object.Bool:
		buf.WriteString(strconv.FormatBool(bool(v)))
	case object.Int:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case object.Real:
		buf.WriteString(formatReal(float64(v)))
	case object.String:
		writeString(buf, []byte(v))
	case object.Name:
		writeName(buf, v)
	case object.Ref:
		fmt.Fprintf(buf, "%d %d R", v.Num, v.Gen)
	case object.Array:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeObject(buf, item)
		}
		buf.WriteByte(']')
	case object.Dict:
		buf.WriteString("<<")
		for _, key := range v.Keys() {
			writeName(buf, key)
			buf.WriteByte(' ')
			writeObject(buf, v[key])
		}
		buf.WriteString(">>")
	case *object.Stream:
		dict := v.Dict.Clone()
		dict["Length"] = object.Int(len(v.Data))
		writeObject(buf, dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	default:
		buf.WriteString("null")
	}
}

func formatReal(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if s == "-0" {
		return "0"
	}
	return s
}

// writeString writes a literal string when the bytes are mostly printable
// and a hex string otherwise.
func writeString(buf *bytes.Buffer, s []byte) {
	binary := 0
	for _, c := range s {
		if (c < 0x20 && c != '\n' && c != '\r' && c != '\t') || c > 0x7E {
			binary++
		}
	}
	if binary > len(s)/4 {
		buf.WriteByte('<')
		fmt.Fprintf(buf, "%X", s)
		buf.WriteByte('>')
		return
	}

	buf.WriteByte('(')
	for _, c := range s {
		switch c {
		case '\\', '(', ')':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\r':
			buf.WriteString(`\r`)
		case '\n':
			buf.WriteString(`\n`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 || c > 0x7E {
				fmt.Fprintf(buf, "\\%03o", c)
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte(')')
}

func writeName(buf *bytes.Buffer, n object.Name) {
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < 0x21 || c > 0x7E || c == '#' || isNameDelimiter(c) {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func isNameDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
