// Package api serves the folder tree over HTTP.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fruitsalade/folderserve/internal/content"
	"github.com/fruitsalade/folderserve/internal/fsutil"
	"github.com/fruitsalade/folderserve/internal/index"
	"github.com/fruitsalade/folderserve/internal/listing"
	"github.com/fruitsalade/folderserve/internal/logging"
	"github.com/fruitsalade/folderserve/internal/metrics"
	"github.com/fruitsalade/folderserve/internal/storage"
	"github.com/fruitsalade/folderserve/internal/storage/local"
)

// Messages sent to clients. They never include paths or OS errors.
const (
	msgAccessDenied = "Access denied"
	msgNotFound     = "File or directory not found"
	msgServeError   = "Error serving file"
)

// Options configures a Server.
type Options struct {
	// Root is the absolute, symlink-resolved served directory.
	Root string

	// Index, when set, is authoritative for which paths exist and what
	// directories contain. When nil, directories are listed live.
	Index *index.Index

	Negotiator *content.Negotiator

	// Files reads file content. Defaults to a local backend on Root.
	Files storage.Backend

	DefaultPageSize  int
	ListingCacheSize int
	ListingCacheTTL  time.Duration
}

// Server is the HTTP server.
type Server struct {
	root       string
	index      *index.Index
	negotiator *content.Negotiator
	files      storage.Backend
	pageSize   int
	dirs       *dirCache
}

// NewServer creates a new server.
func NewServer(opts Options) (*Server, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root is required")
	}
	if opts.Negotiator == nil {
		opts.Negotiator = content.NewNegotiator(nil)
	}
	if opts.Files == nil {
		files, err := local.New(local.Config{RootPath: opts.Root})
		if err != nil {
			return nil, err
		}
		opts.Files = files
	}
	if opts.DefaultPageSize == 0 {
		opts.DefaultPageSize = 20
	}

	s := &Server{
		root:       opts.Root,
		index:      opts.Index,
		negotiator: opts.Negotiator,
		files:      opts.Files,
		pageSize:   listing.ClampPageSize(opts.DefaultPageSize),
	}
	if s.index == nil {
		dirs, err := newDirCache(opts.ListingCacheSize, opts.ListingCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("listing cache: %w", err)
		}
		s.dirs = dirs
	}
	return s, nil
}

// IndexMode reports whether listings come from the index.
func (s *Server) IndexMode() bool { return s.index != nil }

// Handler returns the HTTP handler with logging, metrics, CORS and
// compression middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Use(middleware.Compress(5, "text/html"))

	r.Get("/*", s.handleServe)
	r.Head("/*", s.handleServe)
	return r
}

// HealthHandler reports liveness and index size.
func (s *Server) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok", "mode": "live"}
		if s.index != nil {
			resp["mode"] = "index"
			resp["index_entries"] = s.index.Len()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
}

func (s *Server) handleServe(w http.ResponseWriter, r *http.Request) {
	// r.URL.Path is already percent-decoded; the chi wildcard is not when
	// RawPath is set.
	reqPath := strings.TrimPrefix(r.URL.Path, "/")
	log := logging.WithContext(r.Context())

	res, err := fsutil.Resolve(s.root, reqPath)
	switch {
	case errors.Is(err, fsutil.ErrAccessDenied):
		log.Warn("access denied", zap.String("path", reqPath))
		s.sendError(w, http.StatusForbidden, msgAccessDenied)
		return
	case errors.Is(err, fsutil.ErrNotFound):
		s.sendError(w, http.StatusNotFound, msgNotFound)
		return
	case err != nil:
		log.Error("resolve failed", zap.String("path", reqPath), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, msgServeError)
		return
	}

	if s.index != nil && res.Rel != "" {
		if _, ok := s.index.Lookup(res.Rel); !ok {
			s.sendError(w, http.StatusNotFound, msgNotFound)
			return
		}
	}

	if res.IsDir() {
		s.serveDirectory(w, r, res)
		return
	}
	s.serveFile(w, r, res)
}

func (s *Server) serveDirectory(w http.ResponseWriter, r *http.Request, res fsutil.Resolved) {
	var l listing.Listing
	if s.index != nil {
		q := r.URL.Query()
		page, size := listing.ParsePaging(q.Get("page"), q.Get("page_size"), s.pageSize)
		l = listing.BuildPage(res.Rel, s.index.Children(res.Rel), page, size)
	} else {
		entries, err := s.dirs.List(res.Abs, res.Rel, res.Info.ModTime())
		if err != nil {
			logging.WithContext(r.Context()).Error("list directory failed",
				zap.String("path", res.Abs), zap.Error(err))
			s.sendError(w, http.StatusInternalServerError, msgServeError)
			return
		}
		l = listing.Build(res.Rel, entries)
	}

	var buf bytes.Buffer
	if err := listing.Render(&buf, l); err != nil {
		logging.WithContext(r.Context()).Error("render listing failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, msgServeError)
		return
	}

	w.Header().Set("Content-Type", listing.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(buf.Bytes())
	}
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, res fsutil.Resolved) {
	log := logging.WithContext(r.Context())
	neg := s.negotiator.Negotiate(path.Base(res.Rel), content.ParseView(r.URL.Query().Get("view")))
	total := res.Info.Size()

	var (
		rng     content.Range
		partial bool
	)
	if spec := r.Header.Get("Range"); spec != "" && neg.RangeEligible() {
		parsed, err := content.ParseRange(spec, total)
		if err != nil {
			log.Debug("ignoring range", zap.String("range", spec), zap.Error(err))
		} else {
			rng, partial = parsed, true
		}
	}

	h := w.Header()
	h.Set("Content-Type", neg.MIME)
	h.Set("Content-Disposition", neg.ContentDisposition())
	h.Set("Cache-Control", neg.CacheControl())
	h.Set("Last-Modified", res.Info.ModTime().UTC().Format(http.TimeFormat))
	if neg.RangeEligible() {
		h.Set("Accept-Ranges", "bytes")
	}

	if r.Method == http.MethodHead {
		if partial {
			h.Set("Content-Range", rng.ContentRange(total))
			h.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
			w.WriteHeader(http.StatusPartialContent)
			return
		}
		h.Set("Content-Length", strconv.FormatInt(total, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	var offset, length int64
	if partial {
		offset, length = rng.Start, rng.Length()
	}
	reader, n, err := s.files.GetObject(r.Context(), res.Rel, offset, length)
	if err != nil {
		// Resolution saw the file; anything failing now is an I/O error.
		for _, k := range []string{"Content-Disposition", "Cache-Control", "Last-Modified", "Accept-Ranges"} {
			h.Del(k)
		}
		log.Error("open file failed", zap.String("path", res.Abs), zap.Error(err))
		metrics.RecordContent("error", 0)
		s.sendError(w, http.StatusInternalServerError, msgServeError)
		return
	}
	defer reader.Close()

	kind := "full"
	if partial {
		kind = "partial"
		h.Set("Content-Range", rng.ContentRange(total))
		h.Set("Content-Length", strconv.FormatInt(n, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		h.Set("Content-Length", strconv.FormatInt(n, 10))
		w.WriteHeader(http.StatusOK)
	}

	written, err := io.Copy(w, reader)
	if err != nil {
		log.Warn("content transfer error", zap.String("path", res.Rel), zap.Error(err))
	}
	metrics.RecordContent(kind, written)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	http.Error(w, message, code)
}
