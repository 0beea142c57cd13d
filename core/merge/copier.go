package merge

import (
	"context"

	"github.com/benedoc-inc/pdfmerge/core/object"
	"github.com/benedoc-inc/pdfmerge/core/parse"
	"github.com/benedoc-inc/pdfmerge/types"
)

// copier copies pages of one source document into a staging object table.
// Object numbers are allocated from next upward; nothing touches the
// composite until the caller commits the staged objects.
type copier struct {
	doc     *parse.Document
	objects map[int]object.Object
	next    int
	// memo maps source object numbers to their copies. Pages of the
	// selection are seeded first so links between selected pages resolve
	// to the copied pages.
	memo map[int]object.Ref
	// pageObjects holds every page object of the source, selected or not.
	pageObjects map[int]bool
	warnings    types.WarningCollector
}

func newCopier(doc *parse.Document, next int) *copier {
	c := &copier{
		doc:         doc,
		objects:     make(map[int]object.Object),
		next:        next,
		memo:        make(map[int]object.Ref),
		pageObjects: make(map[int]bool),
	}
	for _, p := range doc.Pages() {
		if p.Ref.Num != 0 {
			c.pageObjects[p.Ref.Num] = true
		}
	}
	return c
}

func (c *copier) alloc() object.Ref {
	ref := object.Ref{Num: c.next}
	c.next++
	return ref
}

// copyPages copies the pages at the given 0-based indices and returns the
// references of the new page objects in the same order. A page selected
// twice is copied twice.
func (c *copier) copyPages(ctx context.Context, indices []int) ([]object.Ref, error) {
	pages := make([]parse.Page, len(indices))
	refs := make([]object.Ref, len(indices))
	for i, index := range indices {
		page, err := c.doc.Page(index)
		if err != nil {
			return nil, err
		}
		pages[i] = page
		refs[i] = c.alloc()
		if page.Ref.Num != 0 {
			if _, seen := c.memo[page.Ref.Num]; !seen {
				c.memo[page.Ref.Num] = refs[i]
			}
		}
	}

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dict := object.Dict{}
		for _, key := range page.Dict.Keys() {
			if key == "Parent" {
				continue
			}
			dict[key] = c.copyValue(page.Dict[key])
		}
		c.objects[refs[i].Num] = dict
	}
	return refs, nil
}

// copyValue returns a copy of o whose indirect references point into the
// staging table. References to pages outside the selection become null.
func (c *copier) copyValue(o object.Object) object.Object {
	switch v := o.(type) {
	case object.Ref:
		return c.copyRef(v)
	case object.Array:
		out := make(object.Array, len(v))
		for i, item := range v {
			out[i] = c.copyValue(item)
		}
		return out
	case object.Dict:
		return c.copyDict(v)
	case *object.Stream:
		// the writer recomputes Length, so an indirect length object is not copied
		src := v.Dict.Clone()
		delete(src, "Length")
		dict := c.copyDict(src)
		return &object.Stream{Dict: dict, Data: append([]byte(nil), v.Data...)}
	}
	return o
}

func (c *copier) copyDict(d object.Dict) object.Dict {
	typ, _ := d.GetName("Type")
	out := make(object.Dict, len(d))
	// Sorted keys keep object numbering stable for identical input.
	for _, key := range d.Keys() {
		if key == "Parent" && (typ == "Page" || typ == "Pages") {
			continue
		}
		out[key] = c.copyValue(d[key])
	}
	return out
}

func (c *copier) copyRef(ref object.Ref) object.Object {
	if copied, ok := c.memo[ref.Num]; ok {
		return copied
	}
	if c.pageObjects[ref.Num] {
		return object.Null{}
	}
	obj, err := c.doc.Object(ref)
	if err != nil {
		c.warnings.AddWarningf(types.WarningLevelWarning, types.WarnMissingObject, "object %d %d dropped: %v", ref.Num, ref.Gen, err)
		return object.Null{}
	}
	if d, ok := obj.(object.Dict); ok {
		if typ, _ := d.GetName("Type"); typ == "Pages" || typ == "Catalog" {
			return object.Null{}
		}
	}

	newRef := c.alloc()
	c.memo[ref.Num] = newRef
	c.objects[newRef.Num] = c.copyValue(obj)
	return newRef
}
