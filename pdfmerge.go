// Package pdfmerge combines pages from several PDF documents into one.
//
// Sources can be byte slices, buffers, readers, local paths or http(s)
// URLs. Each source contributes all of its pages or a selection such as
// "1,3-5,7to9".
//
// # Quick Start
//
//	import "github.com/benedoc-inc/pdfmerge"
//
//	s := pdfmerge.NewSession()
//	if err := s.Add(ctx, "cover.pdf", nil); err != nil { ... }
//	if err := s.Add(ctx, "https://example.com/report.pdf", "2-4"); err != nil { ... }
//	s.SetMetadata(pdfmerge.Metadata{Title: "Annual Report"})
//	err := s.Save("out.pdf")
//
// # Packages
//
//   - core/merge: the merge session and page selectors
//   - core/source: turning inputs into bytes
//   - core/parse: tolerant PDF reading
//   - core/encrypt: standard security handler decryption
//   - core/write: PDF serialization
//   - types: errors, warnings and metadata
package pdfmerge

import (
	"github.com/benedoc-inc/pdfmerge/core/merge"
	"github.com/benedoc-inc/pdfmerge/types"
)

// Session accumulates pages into one output document.
type Session = merge.Session

// Option configures a Session.
type Option = merge.Option

// Metadata holds the Info dictionary fields of a document.
type Metadata = types.DocumentMetadata

// Error is the structured error returned by every operation.
type Error = types.PDFError

// NewSession creates an empty session.
func NewSession(opts ...Option) *Session {
	return merge.NewSession(opts...)
}

// ParsePageRange expands a selector like "1,3-5,7to9" into page numbers.
func ParsePageRange(s string) ([]int, error) {
	return merge.ParsePageRange(s)
}

// Version returns the library version.
func Version() string {
	return "0.3.0"
}
