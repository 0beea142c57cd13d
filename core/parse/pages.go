package parse

import (
	"fmt"

	"github.com/benedoc-inc/pdfmerge/core/object"
	"github.com/benedoc-inc/pdfmerge/types"
)

// InheritableAttributes are page attributes a leaf may take from its ancestors
var InheritableAttributes = []object.Name{"Resources", "MediaBox", "CropBox", "Rotate"}

// Page is a leaf of the page tree
type Page struct {
	// Ref is the page object's reference; zero for a direct page dictionary.
	Ref object.Ref
	// Dict is a copy of the page dictionary with inherited attributes filled in.
	Dict object.Dict
}

const maxTreeDepth = 64

// collectPages walks /Root /Pages depth-first, in /Kids order
func (d *Document) collectPages() ([]Page, error) {
	root, ok := d.Resolve(d.trailer.Get("Root")).(object.Dict)
	if !ok {
		return nil, fmt.Errorf("document catalog not found")
	}
	if _, ok := d.Resolve(root.Get("Pages")).(object.Dict); !ok {
		return nil, fmt.Errorf("catalog has no page tree")
	}

	var pages []Page
	visited := make(map[int]bool)

	var walk func(node object.Object, inherited object.Dict, depth int) error
	walk = func(node object.Object, inherited object.Dict, depth int) error {
		if depth > maxTreeDepth {
			return fmt.Errorf("page tree deeper than %d levels", maxTreeDepth)
		}
		ref, isRef := node.(object.Ref)
		if isRef {
			if visited[ref.Num] {
				d.warnings.AddWarningf(types.WarningLevelWarning, types.WarnMissingObject, "page tree node %d visited twice; skipped", ref.Num)
				return nil
			}
			visited[ref.Num] = true
		}
		dict, ok := d.Resolve(node).(object.Dict)
		if !ok {
			d.warnings.AddWarningf(types.WarningLevelWarning, types.WarnMissingObject, "page tree node %v is not a dictionary; skipped", node)
			return nil
		}

		typ, _ := dict.GetName("Type")
		kids, hasKids := d.Resolve(dict.Get("Kids")).(object.Array)
		if typ == "Pages" || (typ != "Page" && hasKids) {
			next := inherited.Clone()
			for _, key := range InheritableAttributes {
				if v := dict.Get(key); v != nil {
					next[key] = v
				}
			}
			for _, kid := range kids {
				if err := walk(kid, next, depth+1); err != nil {
					return err
				}
			}
			return nil
		}

		page := dict.Clone()
		for key, v := range inherited {
			if page.Get(key) == nil {
				page[key] = v
			}
		}
		pages = append(pages, Page{Ref: ref, Dict: page})
		return nil
	}

	if err := walk(root.Get("Pages"), object.Dict{}, 0); err != nil {
		return nil, err
	}
	return pages, nil
}

// PageCount returns the number of pages
func (d *Document) PageCount() int { return len(d.pages) }

// Pages returns the pages in document order
func (d *Document) Pages() []Page { return d.pages }

// Page returns the page at a 0-based index
func (d *Document) Page(index int) (Page, error) {
	if index < 0 || index >= len(d.pages) {
		return Page{}, types.NewPDFErrorf(types.ErrCodeInvalidPageSelector, "page %d out of range (1-%d)", index+1, len(d.pages))
	}
	return d.pages[index], nil
}
