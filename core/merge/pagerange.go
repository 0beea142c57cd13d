// Package merge builds a composite PDF from pages of independently loaded
// source documents.
package merge

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/benedoc-inc/pdfmerge/types"
)

// PageRange represents a range of pages (1-based, inclusive). A range whose
// End is before its Start selects nothing.
type PageRange struct {
	Start int // First page number (1-based)
	End   int // Last page number (1-based, inclusive)
}

// Pages expands the range into page numbers. Ranges from ParsePageRanges
// never hold more than MaxRangePages pages.
func (r PageRange) Pages() []int {
	if r.End < r.Start || r.Start < 1 || r.End-r.Start >= MaxRangePages {
		return nil
	}
	pages := make([]int, 0, r.End-r.Start+1)
	for p := r.Start; p <= r.End; p++ {
		pages = append(pages, p)
	}
	return pages
}

// MaxRangePages caps the number of pages a single range segment may expand to
const MaxRangePages = 1 << 20

var (
	singlePattern = regexp.MustCompile(`^(\d+)$`)
	hyphenPattern = regexp.MustCompile(`^(\d+)\s*-\s*(\d+)$`)
	toPattern     = regexp.MustCompile(`^(\d+)\s*to\s*(\d+)$`)

	errEmptySegment = errors.New("empty segment")
	errNotNumeric   = errors.New("expected n, a-b or atob")
	errZeroPage     = errors.New("page numbers start at 1")
	errRangeTooLong = fmt.Errorf("range spans more than %d pages", MaxRangePages)
)

// ParsePageRanges splits a selector such as "1,3-5,7to9" into its ranges,
// in input order. A bare page n becomes the range n..n.
func ParsePageRanges(s string) ([]PageRange, error) {
	segments := strings.Split(s, ",")
	ranges := make([]PageRange, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		r, err := parseSegment(seg)
		if err != nil {
			return nil, types.NewPDFErrorf(types.ErrCodeInvalidPageSelector,
				"invalid page range segment %q in %q: %v", seg, s, err).WithContext("segment", seg)
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// ParsePageRange parses a selector such as "1,3-5,7to9" into 1-based page
// numbers in input order: [1 3 4 5 7 8 9]. Duplicates are kept.
func ParsePageRange(s string) ([]int, error) {
	ranges, err := ParsePageRanges(s)
	if err != nil {
		return nil, err
	}
	pages := []int{}
	for _, r := range ranges {
		pages = append(pages, r.Pages()...)
	}
	return pages, nil
}

func parseSegment(seg string) (PageRange, error) {
	if seg == "" {
		return PageRange{}, errEmptySegment
	}
	if m := singlePattern.FindStringSubmatch(seg); m != nil {
		n, err := pageNumber(m[1])
		return PageRange{n, n}, err
	}
	m := hyphenPattern.FindStringSubmatch(seg)
	if m == nil {
		m = toPattern.FindStringSubmatch(seg)
	}
	if m == nil {
		return PageRange{}, errNotNumeric
	}
	start, err := pageNumber(m[1])
	if err != nil {
		return PageRange{}, err
	}
	end, err := pageNumber(m[2])
	if err != nil {
		return PageRange{}, err
	}
	// both ends are positive, so the difference cannot overflow
	if end-start >= MaxRangePages {
		return PageRange{}, errRangeTooLong
	}
	return PageRange{start, end}, nil
}

func pageNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errZeroPage
	}
	return n, nil
}
