package merge

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/benedoc-inc/pdfmerge/core/object"
	"github.com/benedoc-inc/pdfmerge/core/parse"
	"github.com/benedoc-inc/pdfmerge/core/source"
	"github.com/benedoc-inc/pdfmerge/types"
)

// DefaultProducer is written to /Producer unless metadata overrides it
const DefaultProducer = "pdfmerge"

// Session accumulates pages from source documents into one composite PDF.
//
// A Session starts empty. The first Add, SetMetadata or output call creates
// the composite; Reset discards it. A Session is not safe for concurrent
// use.
type Session struct {
	resolver source.Resolver
	logger   zerolog.Logger
	producer string
	now      func() time.Time
	save     SaveOptions

	doc      *composite
	warnings types.WarningCollector
}

// composite is the document under construction
type composite struct {
	objects  map[int]object.Object
	next     int
	pages    []object.Ref
	metadata types.DocumentMetadata
}

// Option configures a Session
type Option func(*Session)

// WithResolver sets how Add turns inputs into bytes
func WithResolver(r source.Resolver) Option {
	return func(s *Session) { s.resolver = r }
}

// WithLogger sets the session logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithProducer replaces DefaultProducer
func WithProducer(producer string) Option {
	return func(s *Session) { s.producer = producer }
}

// WithClock sets the time source for creation and modification dates
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithSaveOptions sets the serialization options used by the output methods
func WithSaveOptions(opts SaveOptions) Option {
	return func(s *Session) { s.save = opts }
}

// NewSession creates an empty session. Without WithResolver, inputs are
// resolved with source.DefaultOptions.
func NewSession(opts ...Option) *Session {
	s := &Session{
		logger:   zerolog.Nop(),
		producer: DefaultProducer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = source.NewChain(source.DefaultOptions())
	}
	return s
}

func (s *Session) ensureInitialized() {
	if s.doc != nil {
		return
	}
	s.doc = &composite{
		objects: make(map[int]object.Object),
		next:    1,
		metadata: types.DocumentMetadata{
			Producer:     s.producer,
			CreationDate: s.now(),
		},
	}
}

// SetMetadata overwrites the composite's text metadata with the non-empty
// fields of metadata. Dates are ignored.
func (s *Session) SetMetadata(metadata types.DocumentMetadata) {
	s.ensureInitialized()
	metadata.CreationDate = time.Time{}
	metadata.ModDate = time.Time{}
	s.doc.metadata.Merge(metadata)
}

// Metadata returns the composite's current metadata
func (s *Session) Metadata() types.DocumentMetadata {
	s.ensureInitialized()
	return s.doc.metadata
}

// Add appends pages of src to the composite.
//
// src is anything the session's resolver accepts. selector picks pages
// with 1-based numbers: nil or All for every page, an integer, a list of
// integers, or a range string such as "1,3-5,7to9". Pages are appended in
// selector order and may repeat.
//
// On error the composite is left exactly as it was.
func (s *Session) Add(ctx context.Context, src any, selector any) error {
	s.ensureInitialized()

	data, err := s.resolver.Resolve(ctx, src)
	if err != nil {
		return err
	}

	doc, err := parse.Open(data, parse.Options{BestEffort: true})
	if err != nil {
		return err
	}

	indices, err := resolveSelector(selector, doc.PageCount())
	if err != nil {
		return err
	}

	c := newCopier(doc, s.doc.next)
	refs, err := c.copyPages(ctx, indices)
	if err != nil {
		return err
	}

	for num, obj := range c.objects {
		s.doc.objects[num] = obj
	}
	s.doc.next = c.next
	s.doc.pages = append(s.doc.pages, refs...)

	for _, w := range doc.Warnings() {
		s.warnings.Add(w)
	}
	for _, w := range c.warnings.Warnings() {
		s.warnings.Add(w)
	}
	if doc.IsEncrypted() && !doc.IsDecrypted() {
		s.logger.Warn().Str("source", describe(src)).Msg("encrypted source copied without decryption")
	}

	s.logger.Debug().
		Str("source", describe(src)).
		Int("source_pages", doc.PageCount()).
		Int("added", len(refs)).
		Int("total", len(s.doc.pages)).
		Msg("pages added")
	return nil
}

// Reset discards the composite and all collected warnings
func (s *Session) Reset() {
	s.doc = nil
	s.warnings.Clear()
}

// PageCount returns the number of pages in the composite
func (s *Session) PageCount() int {
	if s.doc == nil {
		return 0
	}
	return len(s.doc.pages)
}

// ObjectCount returns the number of objects held by the composite
func (s *Session) ObjectCount() int {
	if s.doc == nil {
		return 0
	}
	return len(s.doc.objects)
}

// Warnings returns the non-fatal problems met while adding sources
func (s *Session) Warnings() []*types.Warning {
	return s.warnings.Warnings()
}

// describe names src for logs without dumping its content
func describe(src any) string {
	switch v := src.(type) {
	case string:
		return v
	case []byte:
		return "bytes"
	}
	return "value"
}
