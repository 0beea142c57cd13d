package parse

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// pdfDocHigh maps PDFDocEncoding bytes 0x80-0xA0 to Unicode; the rest of
// the encoding coincides with Latin-1.
var pdfDocHigh = [...]rune{
	0x2022, 0x2020, 0x2021, 0x2026, 0x2014, 0x2013, 0x0192, 0x2044,
	0x2039, 0x203A, 0x2212, 0x2030, 0x201E, 0x201C, 0x201D, 0x2018,
	0x2019, 0x201A, 0x2122, 0xFB01, 0xFB02, 0x0141, 0x0152, 0x0160,
	0x0178, 0x017D, 0x0131, 0x0142, 0x0153, 0x0161, 0x017E, 0xFFFD,
	0x20AC,
}

// DecodeTextString converts a PDF text string (UTF-16BE with BOM, UTF-8
// with BOM, or PDFDocEncoding) to a Go string.
func DecodeTextString(b []byte) string {
	switch {
	case bytes.HasPrefix(b, []byte{0xFE, 0xFF}):
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err == nil {
			return string(out)
		}
	case bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}):
		return string(b[3:])
	}
	var sb strings.Builder
	for _, c := range b {
		if c >= 0x80 && c <= 0xA0 {
			sb.WriteRune(pdfDocHigh[c-0x80])
		} else {
			sb.WriteRune(rune(c))
		}
	}
	return sb.String()
}

// ParseDate parses a PDF date "D:YYYYMMDDHHmmSSOHH'mm'". Every part after
// the year is optional.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	if len(s) < 4 {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	fields := []int{0, 1, 1, 0, 0, 0} // year month day hour minute second
	widths := []int{4, 2, 2, 2, 2, 2}
	pos := 0
	for i, w := range widths {
		if pos+w > len(s) || !allDigits(s[pos:pos+w]) {
			break
		}
		fields[i], _ = strconv.Atoi(s[pos : pos+w])
		pos += w
	}
	if pos < 4 {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}

	loc := time.UTC
	if pos < len(s) {
		switch sign := s[pos]; sign {
		case '+', '-':
			rest := strings.ReplaceAll(s[pos+1:], "'", "")
			var hh, mm int
			if len(rest) >= 2 {
				hh, _ = strconv.Atoi(rest[:2])
			}
			if len(rest) >= 4 {
				mm, _ = strconv.Atoi(rest[2:4])
			}
			offset := hh*3600 + mm*60
			if sign == '-' {
				offset = -offset
			}
			loc = time.FixedZone("", offset)
		}
	}
	return time.Date(fields[0], time.Month(fields[1]), fields[2], fields[3], fields[4], fields[5], 0, loc), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
