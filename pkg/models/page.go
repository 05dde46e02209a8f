package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// WikiPage is a single harvested wiki page with its markup stripped.
type WikiPage struct {
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	Content         string    `json:"content"`
	SectionHeadings []string  `json:"section_headings"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// Snapshot is the full harvested corpus written by one harvester run.
// It is never modified after it has been written or loaded.
type Snapshot struct {
	GeneratedAt   time.Time  `json:"generated_at"`
	SourceBaseURL string     `json:"source_base_url"`
	Pages         []WikiPage `json:"pages"`
}

// Len returns the number of pages, treating a nil snapshot as empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Pages)
}

// Page returns the page with the given title (case-insensitive).
func (s *Snapshot) Page(title string) (WikiPage, bool) {
	if s == nil {
		return WikiPage{}, false
	}
	for _, p := range s.Pages {
		if strings.EqualFold(p.Title, title) {
			return p, true
		}
	}
	return WikiPage{}, false
}

// Validate checks that titles are unique and that every page has content.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	seen := make(map[string]struct{}, len(s.Pages))
	for i, p := range s.Pages {
		if p.Title == "" {
			return fmt.Errorf("page %d has an empty title", i)
		}
		if strings.TrimSpace(p.Content) == "" {
			return fmt.Errorf("page %q has empty content", p.Title)
		}
		if _, dup := seen[p.Title]; dup {
			return fmt.Errorf("duplicate page title %q", p.Title)
		}
		seen[p.Title] = struct{}{}
	}
	return nil
}

// GenerateDocumentID creates a deterministic ID from a page key (title or URL).
// The ID is a SHA-256 hash (first 16 chars) of the key.
func GenerateDocumentID(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])[:16]
}
