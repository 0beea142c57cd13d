package parse

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/benedoc-inc/pdfmerge/core/object"
)

// DecodeStream applies the stream's filter chain and returns the decoded data.
// Only the filters needed to read cross-reference and object streams are
// supported; image filters are left to consumers of the raw data.
func DecodeStream(s *object.Stream) ([]byte, error) {
	filters, params := streamFilters(s.Dict)
	data := s.Data
	for i, name := range filters {
		var err error
		data, err = decodeFilter(data, name, params[i])
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

func streamFilters(dict object.Dict) ([]object.Name, []object.Dict) {
	var filters []object.Name
	switch f := dict.Get("Filter").(type) {
	case object.Name:
		filters = []object.Name{f}
	case object.Array:
		for _, item := range f {
			if n, ok := item.(object.Name); ok {
				filters = append(filters, n)
			}
		}
	}
	params := make([]object.Dict, len(filters))
	switch p := dict.Get("DecodeParms").(type) {
	case object.Dict:
		if len(params) > 0 {
			params[0] = p
		}
	case object.Array:
		for i := 0; i < len(p) && i < len(params); i++ {
			params[i], _ = p[i].(object.Dict)
		}
	}
	return filters, params
}

func decodeFilter(data []byte, name object.Name, params object.Dict) ([]byte, error) {
	switch name {
	case "FlateDecode", "Fl":
		out, err := decodeFlate(data)
		if err != nil {
			return nil, err
		}
		return applyPredictor(out, params)
	case "ASCIIHexDecode", "AHx":
		return decodeASCIIHex(data)
	case "ASCII85Decode", "A85":
		return decodeASCII85(data)
	case "RunLengthDecode", "RL":
		return decodeRunLength(data)
	}
	return nil, fmt.Errorf("unsupported filter: %s", name)
}

// decodeFlate inflates zlib data. Truncated streams return what could be
// read; data without a zlib header is retried as raw deflate.
func decodeFlate(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		raw := flate.NewReader(bytes.NewReader(data))
		defer raw.Close()
		out, rerr := io.ReadAll(raw)
		if len(out) > 0 {
			return out, nil
		}
		if rerr != nil {
			return nil, fmt.Errorf("zlib error: %w", err)
		}
		return out, nil
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("zlib error: %w", err)
	}
	return out, nil
}

func applyPredictor(data []byte, params object.Dict) ([]byte, error) {
	predictor, ok := params.GetInt("Predictor")
	if !ok || predictor <= 1 {
		return data, nil
	}
	colors := intOr(params, "Colors", 1)
	bpc := intOr(params, "BitsPerComponent", 8)
	columns := intOr(params, "Columns", 1)
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8
	if bpp < 1 || rowLen < 1 {
		return nil, fmt.Errorf("invalid predictor parameters")
	}

	if predictor == 2 {
		if bpc != 8 {
			return nil, fmt.Errorf("tiff predictor with %d bits per component", bpc)
		}
		out := append([]byte(nil), data...)
		for row := 0; row+rowLen <= len(out); row += rowLen {
			for i := bpp; i < rowLen; i++ {
				out[row+i] += out[row+i-bpp]
			}
		}
		return out, nil
	}

	// PNG predictors: every row starts with its own filter type byte.
	var out bytes.Buffer
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for pos := 0; pos < len(data); pos += rowLen + 1 {
		if pos+1 > len(data) {
			break
		}
		filterType := data[pos]
		n := copy(cur, data[pos+1:min(pos+1+rowLen, len(data))])
		for i := n; i < rowLen; i++ {
			cur[i] = 0
		}
		for i := 0; i < rowLen; i++ {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch filterType {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("unknown png filter type %d", filterType)
			}
		}
		out.Write(cur[:n])
		prev, cur = cur, prev
	}
	return out.Bytes(), nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func intOr(d object.Dict, key object.Name, def int) int {
	if v, ok := d.GetInt(key); ok {
		return v
	}
	return def
}

// decodeASCIIHex converts pairs of hex digits to bytes; '>' ends the data
func decodeASCIIHex(data []byte) ([]byte, error) {
	var result bytes.Buffer
	var hi byte
	half := false
	for _, b := range data {
		if isWhitespace(b) {
			continue
		}
		if b == '>' {
			break
		}
		v, ok := hexValue(b)
		if !ok {
			return nil, fmt.Errorf("invalid hex character: %c", b)
		}
		if half {
			result.WriteByte(hi<<4 | v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		result.WriteByte(hi << 4)
	}
	return result.Bytes(), nil
}

// decodeASCII85 decodes base-85 data; 'z' stands for four zero bytes and
// '~>' ends the data
func decodeASCII85(data []byte) ([]byte, error) {
	var result bytes.Buffer
	data = bytes.TrimPrefix(data, []byte("<~"))

	var tuple [5]byte
	n := 0
	for i := 0; i < len(data); i++ {
		b := data[i]
		if isWhitespace(b) {
			continue
		}
		if b == '~' {
			break
		}
		if b == 'z' && n == 0 {
			result.Write([]byte{0, 0, 0, 0})
			continue
		}
		if b < '!' || b > 'u' {
			return nil, fmt.Errorf("invalid ascii85 character: 0x%02x", b)
		}
		tuple[n] = b - '!'
		n++
		if n == 5 {
			result.Write(decodeASCII85Tuple(tuple))
			n = 0
		}
	}
	if n > 0 {
		for i := n; i < 5; i++ {
			tuple[i] = 84
		}
		result.Write(decodeASCII85Tuple(tuple)[:n-1])
	}
	return result.Bytes(), nil
}

func decodeASCII85Tuple(t [5]byte) []byte {
	v := uint32(t[0])*85*85*85*85 + uint32(t[1])*85*85*85 + uint32(t[2])*85*85 + uint32(t[3])*85 + uint32(t[4])
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// decodeRunLength expands RunLengthDecode data
func decodeRunLength(data []byte) ([]byte, error) {
	var result bytes.Buffer
	for i := 0; i < len(data); {
		length := int(data[i])
		i++
		switch {
		case length == 128:
			return result.Bytes(), nil
		case length < 128:
			count := length + 1
			if i+count > len(data) {
				return nil, fmt.Errorf("runlength: not enough data for literal run")
			}
			result.Write(data[i : i+count])
			i += count
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("runlength: not enough data for repeat")
			}
			result.Write(bytes.Repeat(data[i:i+1], 257-length))
			i++
		}
	}
	return result.Bytes(), nil
}
