// Package httpapi serves health and search endpoints over the loaded corpus.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mfenderov/wikibot/internal/corpus"
	"github.com/mfenderov/wikibot/pkg/models"
)

const (
	defaultLimit = 5
	maxLimit     = 50
)

// Source supplies the corpus to search.
type Source interface {
	Current() *corpus.Corpus
}

// Server is the HTTP surface of a running bot.
type Server struct {
	source Source
	router chi.Router
}

// Health is the /healthz response.
type Health struct {
	Status      string    `json:"status"`
	Pages       int       `json:"pages"`
	GeneratedAt time.Time `json:"generated_at"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// New builds the router.
func New(source Source) *Server {
	s := &Server{source: source}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/search", s.handleSearch)
	r.Get("/pages/*", s.handlePage)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	c := s.source.Current()
	writeJSON(w, http.StatusOK, Health{
		Status:      "ok",
		Pages:       c.Snapshot.Len(),
		GeneratedAt: c.Snapshot.GeneratedAt,
		LoadedAt:    c.LoadedAt,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLimit)
	}

	pages := s.source.Current().Select(query, limit)
	if pages == nil {
		pages = []models.WikiPage{}
	}
	writeJSON(w, http.StatusOK, pages)
}

// handlePage accepts titles as they appear in page URLs: spaces or
// underscores, with subpages as extra path segments.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	title := pageTitle(r)
	p, ok := s.source.Current().Snapshot.Page(title)
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// pageTitle reverses mediawiki.PageURL. chi routes on the escaped path when
// one is present, so the wildcard is only unescaped in that case.
func pageTitle(r *http.Request) string {
	raw := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(raw); err == nil {
			raw = unescaped
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(raw, "_", " "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
