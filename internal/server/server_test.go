package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benedoc-inc/pdfmerge/core/object"
	"github.com/benedoc-inc/pdfmerge/core/parse"
	"github.com/benedoc-inc/pdfmerge/core/write"
	"github.com/benedoc-inc/pdfmerge/internal/metrics"
	"github.com/benedoc-inc/pdfmerge/internal/render"
	"github.com/benedoc-inc/pdfmerge/internal/store"
)

const testKey = "test-key"

// fakeRenderer produces a one-page PDF labeled with the page title or URL path.
type fakeRenderer struct {
	delay    map[string]time.Duration
	fail     map[string]bool
	garbage  bool
	active   int32
	peak     int32
	mu       sync.Mutex
	settings []render.Settings
}

func (f *fakeRenderer) RenderURL(ctx context.Context, rawURL string, settings render.Settings) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return f.render(ctx, strings.TrimPrefix(u.Path, "/"), settings)
}

func (f *fakeRenderer) RenderHTML(ctx context.Context, html string, settings render.Settings) ([]byte, error) {
	return f.render(ctx, render.Title(html), settings)
}

func (f *fakeRenderer) render(ctx context.Context, label string, settings render.Settings) ([]byte, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}

	f.mu.Lock()
	f.settings = append(f.settings, settings)
	f.mu.Unlock()

	select {
	case <-time.After(f.delay[label]):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if f.fail[label] {
		return nil, errors.New("navigation failed for " + label)
	}
	if f.garbage {
		return []byte("<html>not a pdf</html>"), nil
	}

	b := write.NewSimplePDFBuilder()
	b.AddTextPage(write.PageSizeLetter, label)
	return b.Bytes()
}

func newTestServer(t *testing.T, r render.Renderer, mutate func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		APIKey:       testKey,
		Concurrency:  2,
		MaxBodyBytes: 1 << 20,
		Renderer:     r,
		RenderDefaults: render.Settings{
			Format: "Letter",
			Scale:  1,
		},
		Logger: zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func postMerge(t *testing.T, s *Server, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch b := body.(type) {
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(t, err)
	}

	target := "/api/v1/merge"
	if key != "" {
		target += "?key=" + url.QueryEscape(key)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// pageLabels returns the text drawn on each page of a merged PDF
func pageLabels(t *testing.T, data []byte) ([]string, *parse.Document) {
	t.Helper()
	doc, err := parse.Open(data, parse.Options{})
	require.NoError(t, err)

	out := make([]string, doc.PageCount())
	for i := range out {
		page, err := doc.Page(i)
		require.NoError(t, err)
		stream, ok := doc.Resolve(page.Dict.Get("Contents")).(*object.Stream)
		require.True(t, ok)
		content, err := parse.DecodeStream(stream)
		require.NoError(t, err)
		start := bytes.IndexByte(content, '(')
		end := bytes.LastIndex(content, []byte(") Tj"))
		require.True(t, start >= 0 && end > start)
		out[i] = string(content[start+1 : end])
	}
	return out, doc
}

func TestMerge_HTMLs(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{}, nil)

	rec := postMerge(t, s, testKey, MergeRequest{
		HTMLs: []string{
			"<html><head><title>Cover</title></head><body>c</body></html>",
			"<title>Body</title><p>b</p>",
		},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="merged.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Empty(t, rec.Header().Get(ArtifactIDHeader))

	labels, doc := pageLabels(t, rec.Body.Bytes())
	assert.Equal(t, []string{"Cover", "Body"}, labels)
	assert.Equal(t, "Cover", doc.Metadata().Title)
}

func TestMerge_URLsKeepRequestOrder(t *testing.T) {
	r := &fakeRenderer{delay: map[string]time.Duration{
		"one":   30 * time.Millisecond,
		"two":   10 * time.Millisecond,
		"three": 0,
	}}
	s := newTestServer(t, r, func(c *Config) { c.Concurrency = 3 })

	rec := postMerge(t, s, testKey, MergeRequest{
		URLs:     []string{"https://example.com/one", "https://example.com/two", "https://example.com/three"},
		Filename: "Quarterly Report.pdf",
		Metadata: &MergeMetadata{Title: "Q3", Author: "Finance"},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `attachment; filename="Quarterly_Report.pdf"`, rec.Header().Get("Content-Disposition"))

	labels, doc := pageLabels(t, rec.Body.Bytes())
	assert.Equal(t, []string{"one", "two", "three"}, labels)
	assert.Equal(t, "Q3", doc.Metadata().Title)
	assert.Equal(t, "Finance", doc.Metadata().Author)
}

func TestMerge_BoundedParallelism(t *testing.T) {
	r := &fakeRenderer{delay: map[string]time.Duration{"a": 20 * time.Millisecond, "b": 20 * time.Millisecond, "c": 20 * time.Millisecond, "d": 20 * time.Millisecond}}
	s := newTestServer(t, r, func(c *Config) { c.Concurrency = 2 })

	rec := postMerge(t, s, testKey, MergeRequest{URLs: []string{
		"https://x.test/a", "https://x.test/b", "https://x.test/c", "https://x.test/d",
	}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.LessOrEqual(t, atomic.LoadInt32(&r.peak), int32(2))
}

func TestMerge_SettingsMergedWithDefaults(t *testing.T) {
	r := &fakeRenderer{}
	s := newTestServer(t, r, nil)

	rec := postMerge(t, s, testKey, `{"htmls":["<title>x</title>"],"settings":{"landscape":true,"margin":{"top":"1cm"}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, r.settings, 1)
	got := r.settings[0]
	assert.True(t, got.Landscape)
	assert.Equal(t, "Letter", got.Format)
	assert.Equal(t, 1.0, got.Scale)
	assert.Equal(t, "1cm", got.Margin.Top)
}

func TestMerge_RenderFailureAbortsRequest(t *testing.T) {
	r := &fakeRenderer{fail: map[string]bool{"bad": true}}
	s := newTestServer(t, r, nil)

	rec := postMerge(t, s, testKey, MergeRequest{URLs: []string{"https://x.test/good", "https://x.test/bad"}})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "RENDER_FAILURE", resp.Code)
	assert.Contains(t, resp.Error, "item 1")
	assert.Contains(t, resp.Error, "navigation failed for bad")
	assert.Equal(t, rec.Header().Get(RequestIDHeader), resp.RequestID)
}

func TestMerge_UnreadableRenderOutput(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{garbage: true}, nil)

	rec := postMerge(t, s, testKey, MergeRequest{HTMLs: []string{"<p>x</p>"}})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "SOURCE_LOAD_FAILURE", decodeError(t, rec).Code)
}

func TestMerge_InvalidRequests(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"urls":`},
		{"neither", `{}`},
		{"both", `{"urls":["https://a.test/"],"htmls":["<p>x</p>"]}`},
		{"empty urls", `{"urls":[]}`},
		{"not a url", `{"urls":["file:///etc/passwd"]}`},
		{"empty html", `{"htmls":[""]}`},
		{"unknown field", `{"htmls":["<p>x</p>"],"password":"x"}`},
		{"bad scale", `{"htmls":["<p>x</p>"],"settings":{"scale":5}}`},
		{"bad format", `{"htmls":["<p>x</p>"],"settings":{"format":"B5"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postMerge(t, s, testKey, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, codeInvalidRequest, decodeError(t, rec).Code)
		})
	}

	t.Run("bad margin length", func(t *testing.T) {
		rec := postMerge(t, s, testKey, `{"htmls":["<p>x</p>"],"settings":{"margin":{"left":"wide"}}}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "RENDER_FAILURE", decodeError(t, rec).Code)
	})
}

func TestMerge_BodyTooLarge(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{}, func(c *Config) { c.MaxBodyBytes = 64 })

	rec := postMerge(t, s, testKey, MergeRequest{HTMLs: []string{strings.Repeat("x", 200)}})

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, codeTooLarge, decodeError(t, rec).Code)
}

func TestMerge_Auth(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{}, nil)
	body := MergeRequest{HTMLs: []string{"<p>x</p>"}}

	t.Run("missing key", func(t *testing.T) {
		rec := postMerge(t, s, "", body)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, codeUnauthorized, decodeError(t, rec).Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		rec := postMerge(t, s, "nope", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("no key configured", func(t *testing.T) {
		open := newTestServer(t, &fakeRenderer{}, func(c *Config) { c.APIKey = "" })
		rec := postMerge(t, open, "", body)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestMerge_RateLimited(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{}, func(c *Config) {
		c.RateLimit = 0.001
		c.Burst = 1
	})
	body := MergeRequest{HTMLs: []string{"<p>x</p>"}}

	require.Equal(t, http.StatusOK, postMerge(t, s, testKey, body).Code)

	rec := postMerge(t, s, testKey, body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, codeRateLimited, decodeError(t, rec).Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestServer_ShuttingDown(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{}, nil)
	require.NoError(t, s.Stop(context.Background()))

	rec := postMerge(t, s, testKey, MergeRequest{HTMLs: []string{"<p>x</p>"}})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, codeUnavailable, decodeError(t, rec).Code)

	health := httptest.NewRecorder()
	s.Handler().ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, health.Code)
}

func TestServer_StartStop(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{}, func(c *Config) { c.Addr = "127.0.0.1:0" })
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestServer_RequestIDPropagation(t *testing.T) {
	s := newTestServer(t, &fakeRenderer{}, nil)

	id := "6f1c2d3e-4a5b-4c6d-8e7f-901234567890"
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, id)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(RequestIDHeader))
}

func TestMerge_StoresArtifact(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	defer st.Close()

	s := newTestServer(t, &fakeRenderer{}, func(c *Config) { c.Store = st })

	rec := postMerge(t, s, testKey, MergeRequest{HTMLs: []string{"<title>a</title>", "<title>b</title>"}, Filename: "pair"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	id := rec.Header().Get(ArtifactIDHeader)
	require.NotEmpty(t, id)

	a, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "pair.pdf", a.Filename)
	assert.Equal(t, 2, a.Pages)

	t.Run("fetch stored artifact", func(t *testing.T) {
		get := httptest.NewRecorder()
		s.Handler().ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/"+id+"?key="+testKey, nil))
		require.Equal(t, http.StatusOK, get.Code)
		assert.Equal(t, rec.Body.Bytes(), get.Body.Bytes())
		assert.Equal(t, `attachment; filename="pair.pdf"`, get.Header().Get("Content-Disposition"))
	})

	t.Run("unknown artifact", func(t *testing.T) {
		get := httptest.NewRecorder()
		s.Handler().ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/missing?key="+testKey, nil))
		require.Equal(t, http.StatusNotFound, get.Code)
		assert.Equal(t, codeNotFound, decodeError(t, get).Code)
	})

	t.Run("artifact requires key", func(t *testing.T) {
		get := httptest.NewRecorder()
		s.Handler().ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts/"+id, nil))
		assert.Equal(t, http.StatusUnauthorized, get.Code)
	})

	t.Run("list artifacts", func(t *testing.T) {
		list := httptest.NewRecorder()
		s.Handler().ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts?key="+testKey, nil))
		require.Equal(t, http.StatusOK, list.Code)

		var got []ArtifactSummary
		require.NoError(t, json.Unmarshal(list.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, id, got[0].ID)
		assert.Equal(t, 2, got[0].Pages)
		assert.Equal(t, int64(rec.Body.Len()), got[0].Size)

		bad := httptest.NewRecorder()
		s.Handler().ServeHTTP(bad, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts?limit=x&key="+testKey, nil))
		assert.Equal(t, http.StatusBadRequest, bad.Code)
	})

	t.Run("delete artifact", func(t *testing.T) {
		del := httptest.NewRecorder()
		s.Handler().ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/api/v1/artifacts/"+id+"?key="+testKey, nil))
		require.Equal(t, http.StatusNoContent, del.Code)

		_, err := st.Get(context.Background(), id)
		assert.ErrorIs(t, err, store.ErrNotFound)

		again := httptest.NewRecorder()
		s.Handler().ServeHTTP(again, httptest.NewRequest(http.MethodDelete, "/api/v1/artifacts/"+id+"?key="+testKey, nil))
		assert.Equal(t, http.StatusNotFound, again.Code)
	})
}

func TestServer_Metrics(t *testing.T) {
	m := metrics.NewMetrics()
	r := &fakeRenderer{fail: map[string]bool{"bad": true}}
	s := newTestServer(t, r, func(c *Config) { c.Metrics = m })

	rec := postMerge(t, s, testKey, MergeRequest{HTMLs: []string{"<title>a</title>", "<title>b</title>"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = postMerge(t, s, testKey, MergeRequest{HTMLs: []string{"<title>bad</title>"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergesTotal.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MergedPagesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RendersTotal.WithLabelValues("html", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RendersTotal.WithLabelValues("html", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FailuresTotal.WithLabelValues("RENDER_FAILURE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RendersInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodPost, "200")))

	scrape := httptest.NewRecorder()
	s.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, scrape.Code)
	assert.Contains(t, scrape.Body.String(), "pdfmerge_merges_total")
}

func TestAttachmentName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "merged.pdf"},
		{"report", "report.pdf"},
		{"report.pdf", "report.pdf"},
		{"Report.PDF", "Report.pdf"},
		{"../../etc/passwd", "etc_passwd.pdf"},
		{`a"b`, "a_b.pdf"},
		{"...", "merged.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, attachmentName(tt.in))
		})
	}
}
