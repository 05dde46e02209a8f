package corpus

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mfenderov/wikibot/internal/snapshot"
	"github.com/mfenderov/wikibot/pkg/models"
)

func snap(titles ...string) *models.Snapshot {
	s := &models.Snapshot{}
	for _, t := range titles {
		s.Pages = append(s.Pages, models.WikiPage{Title: t, Content: t + " guide text", SectionHeadings: []string{}})
	}
	return s
}

func TestHolder_Swap(t *testing.T) {
	h := NewHolder(New(snap("Fishing")))

	before := h.Current()
	prev := h.Swap(snap("Fishing", "Mining"))

	if prev != before {
		t.Error("Swap() should return the previous corpus")
	}
	if got := h.Current().Snapshot.Len(); got != 2 {
		t.Errorf("current corpus has %d pages, want 2", got)
	}
	// Readers holding the old corpus are unaffected
	if got := before.Snapshot.Len(); got != 1 {
		t.Errorf("previous corpus has %d pages, want 1", got)
	}
}

func TestHolder_ConcurrentReaders(t *testing.T) {
	h := NewHolder(nil)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c := h.Current()
				c.Select("mining", 2)
				if i == 0 {
					h.Swap(snap("Mining"))
				}
			}
		}()
	}
	wg.Wait()

	if got := h.Current().Snapshot.Len(); got != 1 {
		t.Errorf("current corpus has %d pages, want 1", got)
	}
}

func TestNew_NilSnapshot(t *testing.T) {
	c := New(nil)
	if c.Snapshot.Len() != 0 {
		t.Errorf("expected empty corpus, got %d pages", c.Snapshot.Len())
	}
	if got := c.Select("anything", 3); len(got) != 0 {
		t.Errorf("Select() on empty corpus = %v", got)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wiki.json")
	if err := snapshot.Save(path, snap("Fishing", "Mining")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	c, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := c.Select("mining", 2); len(got) != 1 || got[0].Title != "Mining" {
		t.Errorf("Select() = %v", got)
	}
}

func TestLoad_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	if _, err := Load(path, false); err == nil {
		t.Error("expected error for missing snapshot")
	}

	c, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load(allowMissing) error = %v", err)
	}
	if c.Snapshot.Len() != 0 {
		t.Errorf("expected empty corpus, got %d pages", c.Snapshot.Len())
	}
}

func TestLoad_MalformedIsAlwaysAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wiki.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path, true); err == nil {
		t.Error("expected error for malformed snapshot")
	}
}
