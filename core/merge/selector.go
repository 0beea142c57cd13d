package merge

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/benedoc-inc/pdfmerge/types"
)

// All selects every page of a source, in order
const All = "all"

const acceptedSelectors = `nil, "all", an integer, a list of integers or numeric strings, or a range string such as "1,3-5,7to9"`

// resolveSelector normalizes selector against a source with pageCount pages
// and returns 0-based page indices in selection order.
func resolveSelector(selector any, pageCount int) ([]int, error) {
	pages, all, err := selectorPages(selector, pageCount)
	if err != nil {
		return nil, err
	}
	if all {
		indices := make([]int, pageCount)
		for i := range indices {
			indices[i] = i
		}
		return indices, nil
	}

	indices := make([]int, len(pages))
	for i, p := range pages {
		if p < 1 || p > pageCount {
			return nil, types.NewPDFErrorf(types.ErrCodeInvalidPageSelector,
				"page %d out of range (1-%d)", p, pageCount).WithContext("page", p)
		}
		indices[i] = p - 1
	}
	return indices, nil
}

// selectorPages returns 1-based page numbers, or all=true for every page
func selectorPages(selector any, pageCount int) (pages []int, all bool, err error) {
	switch v := selector.(type) {
	case nil:
		return nil, true, nil
	case string:
		if strings.EqualFold(strings.TrimSpace(v), All) {
			return nil, true, nil
		}
		return rangePages(v, pageCount)
	case []int:
		return v, false, nil
	case []string:
		pages = make([]int, len(v))
		for i, s := range v {
			if pages[i], err = numericString(s); err != nil {
				return nil, false, err
			}
		}
		return pages, false, nil
	case []any:
		pages = make([]int, len(v))
		for i, item := range v {
			if s, ok := item.(string); ok {
				pages[i], err = numericString(s)
			} else {
				n, ok := integer(item)
				if !ok {
					return nil, false, unsupportedSelector(item)
				}
				pages[i] = n
			}
			if err != nil {
				return nil, false, err
			}
		}
		return pages, false, nil
	}
	if n, ok := integer(selector); ok {
		return []int{n}, false, nil
	}
	return nil, false, unsupportedSelector(selector)
}

// rangePages expands a range string. Each range is checked against
// pageCount before it is expanded.
func rangePages(s string, pageCount int) ([]int, bool, error) {
	ranges, err := ParsePageRanges(s)
	if err != nil {
		return nil, false, err
	}
	pages := []int{}
	for _, r := range ranges {
		if r.End < r.Start {
			continue
		}
		for _, p := range []int{r.Start, r.End} {
			if p < 1 || p > pageCount {
				return nil, false, types.NewPDFErrorf(types.ErrCodeInvalidPageSelector,
					"page %d out of range (1-%d)", p, pageCount).WithContext("page", p)
			}
		}
		pages = append(pages, r.Pages()...)
	}
	return pages, false, nil
}

func numericString(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, types.NewPDFErrorf(types.ErrCodeInvalidPageSelector, "page %q is not a number", s)
	}
	return n, nil
}

func integer(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return wholeFloat(float64(n))
	case float64:
		return wholeFloat(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

// wholeFloat accepts numbers decoded from JSON, which arrive as float64
func wholeFloat(f float64) (int, bool) {
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func unsupportedSelector(v any) error {
	return types.NewPDFErrorf(types.ErrCodeInvalidPageSelector,
		"unsupported page selector %T; expected %s", v, acceptedSelectors)
}
