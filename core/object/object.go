// Package object defines the typed PDF object model shared by the reader,
// the writer and the merge engine.
package object

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Object is any PDF value.
type Object interface {
	Type() ObjectType
	String() string
}

// ObjectType identifies the kind of a PDF value.
type ObjectType int

const (
	ObjNull ObjectType = iota
	ObjBool
	ObjInt
	ObjReal
	ObjString
	ObjName
	ObjArray
	ObjDict
	ObjStream
	ObjRef
)

func (t ObjectType) String() string {
	switch t {
	case ObjNull:
		return "null"
	case ObjBool:
		return "bool"
	case ObjInt:
		return "int"
	case ObjReal:
		return "real"
	case ObjString:
		return "string"
	case ObjName:
		return "name"
	case ObjArray:
		return "array"
	case ObjDict:
		return "dict"
	case ObjStream:
		return "stream"
	case ObjRef:
		return "ref"
	}
	return "unknown"
}

// Null is the PDF null object.
type Null struct{}

func (Null) Type() ObjectType { return ObjNull }
func (Null) String() string   { return "null" }

// Bool is a PDF boolean.
type Bool bool

func (b Bool) Type() ObjectType { return ObjBool }
func (b Bool) String() string   { return strconv.FormatBool(bool(b)) }

// Int is a PDF integer.
type Int int64

func (i Int) Type() ObjectType { return ObjInt }
func (i Int) String() string   { return strconv.FormatInt(int64(i), 10) }

// Real is a PDF real number.
type Real float64

func (r Real) Type() ObjectType { return ObjReal }
func (r Real) String() string   { return strconv.FormatFloat(float64(r), 'f', -1, 64) }

// String is a PDF string. It holds raw bytes, which are not necessarily UTF-8.
type String string

func (s String) Type() ObjectType { return ObjString }
func (s String) String() string   { return string(s) }

// Name is a PDF name without its leading slash.
type Name string

func (n Name) Type() ObjectType { return ObjName }
func (n Name) String() string   { return "/" + string(n) }

// Array is a PDF array.
type Array []Object

func (a Array) Type() ObjectType { return ObjArray }
func (a Array) String() string {
	parts := make([]string, len(a))
	for i, o := range a {
		parts[i] = o.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Dict is a PDF dictionary keyed by name (without slash).
type Dict map[Name]Object

func (d Dict) Type() ObjectType { return ObjDict }
func (d Dict) String() string {
	var b strings.Builder
	b.WriteString("<<")
	for _, k := range d.Keys() {
		fmt.Fprintf(&b, "/%s %s ", k, d[k])
	}
	b.WriteString(">>")
	return b.String()
}

// Keys returns the dictionary keys in sorted order.
func (d Dict) Keys() []Name {
	keys := make([]Name, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Get returns the value for key, or nil.
func (d Dict) Get(key Name) Object {
	if d == nil {
		return nil
	}
	return d[key]
}

// GetName returns a direct name value.
func (d Dict) GetName(key Name) (Name, bool) {
	n, ok := d.Get(key).(Name)
	return n, ok
}

// GetInt returns a direct integer value.
func (d Dict) GetInt(key Name) (int, bool) {
	return AsInt(d.Get(key))
}

// GetDict returns a direct dictionary value.
func (d Dict) GetDict(key Name) (Dict, bool) {
	v, ok := d.Get(key).(Dict)
	return v, ok
}

// GetArray returns a direct array value.
func (d Dict) GetArray(key Name) (Array, bool) {
	v, ok := d.Get(key).(Array)
	return v, ok
}

// GetRef returns an indirect reference value.
func (d Dict) GetRef(key Name) (Ref, bool) {
	v, ok := d.Get(key).(Ref)
	return v, ok
}

// Clone returns a shallow copy of d.
func (d Dict) Clone() Dict {
	out := make(Dict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Stream is a dictionary followed by raw (still encoded) data.
type Stream struct {
	Dict Dict
	Data []byte
}

func (s *Stream) Type() ObjectType { return ObjStream }
func (s *Stream) String() string {
	return fmt.Sprintf("%s stream(%d bytes)", s.Dict, len(s.Data))
}

// Ref is an indirect reference "num gen R".
type Ref struct {
	Num int
	Gen int
}

func (r Ref) Type() ObjectType { return ObjRef }
func (r Ref) String() string   { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// AsInt converts Int, or a Real with an integral value, to int.
func AsInt(o Object) (int, bool) {
	switch v := o.(type) {
	case Int:
		return int(v), true
	case Real:
		if float64(v) == float64(int64(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// AsFloat converts Int or Real to float64.
func AsFloat(o Object) (float64, bool) {
	switch v := o.(type) {
	case Int:
		return float64(v), true
	case Real:
		return float64(v), true
	}
	return 0, false
}
