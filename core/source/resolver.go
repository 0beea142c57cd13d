// Package source turns the values callers pass as merge inputs into raw
// document bytes.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/rs/zerolog"

	"github.com/benedoc-inc/pdfmerge/types"
)

// Resolver loads the bytes of a merge input
type Resolver interface {
	Resolve(ctx context.Context, src any) ([]byte, error)
}

// Blob is an opaque handle to binary content, such as an uploaded file
type Blob interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Options configures a Chain
type Options struct {
	// AllowLocalFiles lets string inputs name local files. Without it only
	// http(s) URLs are accepted as strings.
	AllowLocalFiles bool
	// Fetch retrieves URL inputs. Nil disables URL inputs.
	Fetch Fetcher
	// MaxBytes caps reader, blob and file inputs. Zero means no cap.
	MaxBytes int64
}

// DefaultOptions allows local files and fetches URLs with DefaultFetchConfig
func DefaultOptions() Options {
	cfg := DefaultFetchConfig()
	return Options{
		AllowLocalFiles: true,
		Fetch:           NewHTTPFetcher(cfg, nil, zerolog.Nop()),
		MaxBytes:        cfg.MaxBytes,
	}
}

// Chain resolves inputs by trying each supported kind in a fixed order:
// byte slice, buffer, blob or reader, URL, then string.
type Chain struct {
	opts Options
}

// NewChain creates a Chain
func NewChain(opts Options) *Chain {
	return &Chain{opts: opts}
}

// Resolve returns the bytes behind src. Unsupported values fail with
// UNSUPPORTED_INPUT_TYPE; fetch and file failures use the
// NETWORK_FETCH_FAILURE and FILE_NOT_FOUND sub-codes.
func (c *Chain) Resolve(ctx context.Context, src any) ([]byte, error) {
	switch v := src.(type) {
	case []byte:
		return v, nil
	case *bytes.Buffer:
		if v == nil {
			break
		}
		return bytes.Clone(v.Bytes()), nil
	case Blob:
		rc, err := v.Open(ctx)
		if err != nil {
			return nil, types.WrapError(types.ErrCodeIOError, "opening blob", err)
		}
		defer rc.Close()
		return c.read(rc)
	case io.Reader:
		return c.read(v)
	case *url.URL:
		if v == nil {
			break
		}
		return c.fetch(ctx, v)
	case url.URL:
		return c.fetch(ctx, &v)
	case string:
		return c.resolveString(ctx, v)
	}
	return nil, types.NewPDFErrorf(types.ErrCodeUnsupportedInput,
		"unsupported input type %T: expected []byte, *bytes.Buffer, io.Reader, source.Blob, *url.URL or string", src).
		WithContext("type", typeName(src))
}

func (c *Chain) read(r io.Reader) ([]byte, error) {
	data, err := readLimited(r, c.opts.MaxBytes)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeIOError, "reading input", err)
	}
	return data, nil
}

func (c *Chain) fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, types.NewPDFErrorf(types.ErrCodeUnsupportedInput, "unsupported URL scheme %q in %s", u.Scheme, u.Redacted())
	}
	if c.opts.Fetch == nil {
		return nil, types.NewPDFErrorf(types.ErrCodeConfig, "cannot fetch %s: no fetcher configured", u.Redacted())
	}
	return c.opts.Fetch.Fetch(ctx, u)
}

func (c *Chain) resolveString(ctx context.Context, s string) ([]byte, error) {
	if c.opts.AllowLocalFiles && s != "" {
		if info, err := os.Stat(s); err == nil {
			if info.IsDir() {
				return nil, types.NewPDFErrorf(types.ErrCodeFileNotFound, "%s is a directory", s).WithContext("path", s)
			}
			if c.opts.MaxBytes > 0 && info.Size() > c.opts.MaxBytes {
				return nil, types.NewPDFErrorf(types.ErrCodeIOError, "%s exceeds %d bytes", s, c.opts.MaxBytes)
			}
			data, err := os.ReadFile(s)
			if err != nil {
				return nil, types.WrapErrorf(types.ErrCodeFileNotFound, err, "reading %s", s).WithContext("path", s)
			}
			return data, nil
		}
	}

	if u, err := url.Parse(s); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return c.fetch(ctx, u)
	}

	if c.opts.AllowLocalFiles {
		return nil, types.NewPDFErrorf(types.ErrCodeFileNotFound, "%q is neither an existing file nor an http(s) URL", s).
			WithContext("path", s)
	}
	return nil, types.NewPDFErrorf(types.ErrCodeUnsupportedInput, "string input %q is not an http(s) URL", s)
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
