// Package snapshot reads and writes the harvested corpus file.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mfenderov/wikibot/pkg/models"
)

// Save writes snap to path as indented JSON. The file is written to a
// temporary file in the same directory and renamed into place, so readers
// see either the previous snapshot or the new one.
func Save(path string, snap *models.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid snapshot: %w", err)
	}

	data, err := Encode(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set snapshot permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	committed = true

	slog.Debug("saved snapshot", "path", path, "pages", snap.Len(), "bytes", len(data))
	return nil
}

// Encode marshals a snapshot the way Save writes it.
func Encode(snap *models.Snapshot) ([]byte, error) {
	out := *snap
	if out.Pages == nil {
		out.Pages = []models.WikiPage{}
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Load reads a snapshot file. A missing file yields an error wrapping
// fs.ErrNotExist.
func Load(path string) (*models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	snap, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", path, err)
	}
	return snap, nil
}

// legacyPage is one element of the bare JSON array written by the first
// generation of scraper scripts.
type legacyPage struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
	PageID  int    `json:"pageid"`
}

// Decode parses snapshot JSON. Both the snapshot object and the legacy bare
// array of {title, content} records are accepted. Pages without content are
// dropped and repeated titles keep their first occurrence.
func Decode(data []byte) (*models.Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("snapshot is empty")
	}

	var snap models.Snapshot
	if data[0] == '[' {
		var legacy []legacyPage
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("invalid legacy snapshot: %w", err)
		}
		for _, p := range legacy {
			snap.Pages = append(snap.Pages, models.WikiPage{
				Title:           p.Title,
				URL:             p.URL,
				Content:         p.Content,
				SectionHeadings: []string{},
			})
		}
	} else if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}

	snap.Pages = clean(snap.Pages)
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func clean(pages []models.WikiPage) []models.WikiPage {
	out := make([]models.WikiPage, 0, len(pages))
	seen := make(map[string]struct{}, len(pages))
	for _, p := range pages {
		if p.Title == "" || strings.TrimSpace(p.Content) == "" {
			slog.Debug("dropping page without content", "title", p.Title)
			continue
		}
		if _, dup := seen[p.Title]; dup {
			slog.Warn("dropping duplicate page", "title", p.Title)
			continue
		}
		seen[p.Title] = struct{}{}
		if p.SectionHeadings == nil {
			p.SectionHeadings = []string{}
		}
		out = append(out, p)
	}
	return out
}
