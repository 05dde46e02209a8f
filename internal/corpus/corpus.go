// Package corpus holds the snapshot the answer service reads from and lets
// it be replaced while messages are in flight.
package corpus

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mfenderov/wikibot/internal/selector"
	"github.com/mfenderov/wikibot/internal/snapshot"
	"github.com/mfenderov/wikibot/pkg/models"
)

// Corpus is an immutable snapshot together with its search index.
type Corpus struct {
	Snapshot *models.Snapshot
	Index    *selector.Index
	LoadedAt time.Time
}

// New indexes snap. A nil snapshot gives an empty corpus.
func New(snap *models.Snapshot) *Corpus {
	if snap == nil {
		snap = &models.Snapshot{Pages: []models.WikiPage{}}
	}
	return &Corpus{
		Snapshot: snap,
		Index:    selector.NewIndex(snap),
		LoadedAt: time.Now(),
	}
}

// Select returns up to k pages relevant to query.
func (c *Corpus) Select(query string, k int) []models.WikiPage {
	return c.Index.Select(query, k)
}

// Holder gives concurrent readers the current corpus. Swap replaces it
// atomically; readers that already hold the old corpus keep using it.
type Holder struct {
	current atomic.Pointer[Corpus]
}

// NewHolder creates a holder serving c.
func NewHolder(c *Corpus) *Holder {
	h := &Holder{}
	if c == nil {
		c = New(nil)
	}
	h.current.Store(c)
	return h
}

// Current returns the corpus in use.
func (h *Holder) Current() *Corpus {
	return h.current.Load()
}

// Swap installs a new snapshot and returns the corpus it replaced.
func (h *Holder) Swap(snap *models.Snapshot) *Corpus {
	next := New(snap)
	prev := h.current.Swap(next)
	slog.Info("corpus replaced", "pages", next.Snapshot.Len(), "previous_pages", prev.Snapshot.Len())
	return prev
}

// Load reads the snapshot at path into a new corpus. When allowMissing is
// set, a missing file gives an empty corpus and a warning instead of an
// error; malformed files are always an error.
func Load(path string, allowMissing bool) (*Corpus, error) {
	snap, err := snapshot.Load(path)
	if err != nil {
		if allowMissing && errors.Is(err, fs.ErrNotExist) {
			slog.Warn("snapshot not found, starting with an empty corpus", "path", path)
			return New(nil), nil
		}
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	slog.Info("corpus loaded", "path", path, "pages", snap.Len(), "generated_at", snap.GeneratedAt)
	return New(snap), nil
}
