package logger

import (
	"io"
	"regexp"
)

// Redactor masks secrets in log output
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor for API keys passed in query strings,
// headers and config values.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`([?&]key=)[^&\s"]+`),
			regexp.MustCompile(`(Bearer\s+)[a-zA-Z0-9._-]+`),
			regexp.MustCompile(`("api_key"\s*:\s*")[^"]+`),
		},
	}
}

// AddPattern adds a pattern; its first group, if any, is kept
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact replaces secrets in s with [REDACTED]
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		if pattern.NumSubexp() > 0 {
			s = pattern.ReplaceAllString(s, "${1}[REDACTED]")
		} else {
			s = pattern.ReplaceAllString(s, "[REDACTED]")
		}
	}
	return s
}

// Wrap returns a writer that redacts everything written to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success; redaction may change the length.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
