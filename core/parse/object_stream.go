package parse

import (
	"fmt"

	"github.com/benedoc-inc/pdfmerge/core/object"
)

// objectStream is a decoded /Type /ObjStm stream
type objectStream struct {
	data    []byte
	first   int
	numbers []int
	offsets []int
}

func newObjectStream(stream *object.Stream) (*objectStream, error) {
	n, ok := stream.Dict.GetInt("N")
	if !ok || n < 0 {
		return nil, fmt.Errorf("object stream has no /N")
	}
	first, ok := stream.Dict.GetInt("First")
	if !ok || first < 0 {
		return nil, fmt.Errorf("object stream has no /First")
	}
	data, err := DecodeStream(stream)
	if err != nil {
		return nil, err
	}
	if first > len(data) {
		return nil, fmt.Errorf("object stream /First %d beyond data", first)
	}

	stm := &objectStream{data: data, first: first}
	l := newLexer(data[:first], 0)
	for i := 0; i < n; i++ {
		num, err1 := l.next()
		off, err2 := l.next()
		if err1 != nil || err2 != nil || num.kind != tokInt || off.kind != tokInt {
			break
		}
		stm.numbers = append(stm.numbers, int(num.num))
		stm.offsets = append(stm.offsets, int(off.num))
	}
	return stm, nil
}

// object parses the object with number num stored at position index
func (stm *objectStream) object(num, index int) (object.Object, error) {
	if index < 0 || index >= len(stm.numbers) || stm.numbers[index] != num {
		index = -1
		for i, n := range stm.numbers {
			if n == num {
				index = i
				break
			}
		}
		if index < 0 {
			return nil, fmt.Errorf("object %d not in object stream", num)
		}
	}
	pos := stm.first + stm.offsets[index]
	if pos > len(stm.data) {
		return nil, fmt.Errorf("object %d offset beyond object stream", num)
	}
	p := newObjectParser(stm.data, pos, nil)
	return p.parseObject()
}
