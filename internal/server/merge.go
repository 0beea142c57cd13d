package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benedoc-inc/pdfmerge/core/merge"
	"github.com/benedoc-inc/pdfmerge/core/source"
	"github.com/benedoc-inc/pdfmerge/internal/render"
	"github.com/benedoc-inc/pdfmerge/internal/store"
	"github.com/benedoc-inc/pdfmerge/types"
)

// ArtifactIDHeader names the stored copy of a merge response
const ArtifactIDHeader = "X-Artifact-ID"

// MergeRequest is the body of POST /api/v1/merge. Exactly one of URLs and
// HTMLs is set.
type MergeRequest struct {
	URLs     []string         `json:"urls,omitempty"`
	HTMLs    []string         `json:"htmls,omitempty"`
	Settings *render.Settings `json:"settings,omitempty"`
	Metadata *MergeMetadata   `json:"metadata,omitempty"`
	Filename string           `json:"filename,omitempty"`
}

// MergeMetadata sets the Info dictionary of the merged document
type MergeMetadata struct {
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Keywords string `json:"keywords,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Producer string `json:"producer,omitempty"`
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "error"
	defer func() { s.metrics.MergesTotal.WithLabelValues(status).Inc() }()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, codeTooLarge, fmt.Sprintf("request body exceeds %d bytes", s.maxBodyBytes))
			return
		}
		s.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	if err := validateRequest(body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	var req MergeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	settings := s.defaults
	if req.Settings != nil {
		settings = req.Settings.Merge(s.defaults)
	}
	if err := settings.Validate(); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	log := s.logger.With().Str("request_id", requestIDFrom(r.Context())).Logger()

	buffers, err := s.renderAll(r.Context(), req, settings)
	if err != nil {
		log.Warn().Err(err).Msg("render failed")
		s.writeEngineError(w, r, err)
		return
	}

	session := merge.NewSession(
		merge.WithLogger(log),
		merge.WithSaveOptions(s.saveOptions),
		merge.WithResolver(source.NewChain(source.Options{})),
	)
	for i, buf := range buffers {
		if err := session.Add(r.Context(), buf, nil); err != nil {
			log.Warn().Err(err).Int("item", i).Msg("merge failed")
			s.writeEngineError(w, r, types.WrapErrorf(codeOf(err), err, "item %d", i))
			return
		}
	}
	session.SetMetadata(requestMetadata(req))

	out, err := session.Bytes()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	filename := attachmentName(req.Filename)

	if s.store != nil {
		a, err := s.store.Put(r.Context(), filename, session.PageCount(), out)
		if err != nil {
			log.Error().Err(err).Msg("store artifact")
			s.writeError(w, r, http.StatusInternalServerError, codeInternal, "failed to store artifact")
			return
		}
		w.Header().Set(ArtifactIDHeader, a.ID)
	}

	log.Info().
		Int("items", len(buffers)).
		Int("pages", session.PageCount()).
		Int("bytes", len(out)).
		Msg("merged")

	status = "ok"
	s.metrics.MergeDuration.Observe(time.Since(start).Seconds())
	s.metrics.MergedPagesTotal.Add(float64(session.PageCount()))

	writePDF(w, filename, out)
}

// renderAll renders every item with bounded parallelism and returns the
// buffers in request order. The first failure cancels the rest.
func (s *Server) renderAll(ctx context.Context, req MergeRequest, settings render.Settings) ([][]byte, error) {
	items, isHTML, kind := req.URLs, false, "url"
	if len(req.HTMLs) > 0 {
		items, isHTML, kind = req.HTMLs, true, "html"
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	buffers := make([][]byte, len(items))
	errs := make([]error, len(items))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		}
		wg.Add(1)
		go func(i int, item string) {
			defer wg.Done()
			defer func() { <-sem }()

			s.metrics.RendersInFlight.Inc()
			began := time.Now()

			var (
				data []byte
				err  error
			)
			if isHTML {
				data, err = s.renderer.RenderHTML(ctx, item, settings)
			} else {
				data, err = s.renderer.RenderURL(ctx, item, settings)
			}

			s.metrics.RendersInFlight.Dec()
			s.metrics.RenderDuration.WithLabelValues(kind).Observe(time.Since(began).Seconds())
			if err != nil {
				s.metrics.RendersTotal.WithLabelValues(kind, "error").Inc()
				errs[i] = err
				cancel()
				return
			}
			s.metrics.RendersTotal.WithLabelValues(kind, "ok").Inc()
			buffers[i] = data
		}(i, item)
	}
	wg.Wait()

	// Report the lowest-index failure that is not a cancellation caused by it.
	var first error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return nil, wrapRender(err, i)
		}
		if first == nil {
			first = wrapRender(err, i)
		}
	}
	if first != nil {
		return nil, first
	}
	return buffers, nil
}

func wrapRender(err error, i int) error {
	if _, ok := types.IsPDFError(err); ok {
		return types.WrapErrorf(types.ErrCodeRenderFailure, err, "item %d", i).WithContext("item", i)
	}
	return types.WrapErrorf(types.ErrCodeRenderFailure, err, "item %d: render failed", i).WithContext("item", i)
}

func codeOf(err error) types.PDFErrorCode {
	if code, ok := types.GetErrorCode(err); ok {
		return code
	}
	return types.ErrCodeSourceLoad
}

func requestMetadata(req MergeRequest) types.DocumentMetadata {
	var md types.DocumentMetadata
	if m := req.Metadata; m != nil {
		md = types.DocumentMetadata{
			Title:    m.Title,
			Author:   m.Author,
			Subject:  m.Subject,
			Keywords: m.Keywords,
			Creator:  m.Creator,
			Producer: m.Producer,
		}
	}
	if md.Title == "" && len(req.HTMLs) > 0 {
		md.Title = render.Title(req.HTMLs[0])
	}
	return md
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// attachmentName turns a requested filename into "<name>.pdf"
func attachmentName(requested string) string {
	name := strings.TrimSpace(requested)
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".pdf"), ".PDF")
	name = strings.Trim(unsafeFilenameChars.ReplaceAllString(name, "_"), "._")
	if name == "" {
		name = "merged"
	}
	return name + ".pdf"
}

func writePDF(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, r, http.StatusNotFound, codeNotFound, "artifact not found")
			return
		}
		s.logger.Error().Err(err).Msg("get artifact")
		s.writeError(w, r, http.StatusInternalServerError, codeInternal, "failed to load artifact")
		return
	}
	w.Header().Set("Last-Modified", a.CreatedAt.UTC().Format(http.TimeFormat))
	writePDF(w, a.Filename, a.Data)
}

// ArtifactSummary describes a stored artifact without its data
type ArtifactSummary struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Pages     int       `json:"pages"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, r, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	artifacts, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list artifacts")
		s.writeError(w, r, http.StatusInternalServerError, codeInternal, "failed to list artifacts")
		return
	}

	out := make([]ArtifactSummary, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, ArtifactSummary{
			ID:        a.ID,
			Filename:  a.Filename,
			Pages:     a.Pages,
			Size:      a.Size,
			CreatedAt: a.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, r, http.StatusNotFound, codeNotFound, "artifact not found")
			return
		}
		s.logger.Error().Err(err).Msg("delete artifact")
		s.writeError(w, r, http.StatusInternalServerError, codeInternal, "failed to delete artifact")
		return
	}
	s.logger.Info().Str("artifact", id).Msg("artifact deleted")
	w.WriteHeader(http.StatusNoContent)
}
