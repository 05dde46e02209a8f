package sqldump

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mfenderov/wikibot/internal/mediawiki"
	"github.com/mfenderov/wikibot/internal/wikitext"
	"github.com/mfenderov/wikibot/pkg/models"
)

// systemPrefixes are title prefixes of pages that hold no player-facing content.
var systemPrefixes = []string{
	"MediaWiki:", "Special:", "Template:", "Help:", "User:", "Talk:",
	"User talk:", "Template talk:", "Help talk:", "File:", "File talk:",
	"Category:", "Category talk:", "Wikipedia:", "Wikipedia talk:",
	"Portal:", "Portal talk:",
}

// Stats counts what an import kept and dropped.
type Stats struct {
	Pages     int // namespace-0 pages listed in the dump
	Revisions int
	Texts     int
	Imported  int
	System    int // dropped by title prefix
	Redirects int
	Empty     int // no text row, or nothing left after stripping markup
}

type pageRow struct {
	id    int64
	title string
}

// dump collects the three tables as they are parsed.
type dump struct {
	pages  []pageRow
	latest map[int64]int64 // page id -> newest revision id
	texts  map[int64]string
}

// ImportFile reads a dump from path. Files ending in .gz are decompressed.
func ImportFile(path, baseURL string) (*models.Snapshot, *Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sql dump: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open gzip sql dump: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	return Import(r, baseURL)
}

// Import builds a snapshot from the page, revision and text tables of a
// mysqldump. Each page gets the text of its newest revision; the text row
// is the one whose old_id equals the revision id.
func Import(r io.Reader, baseURL string) (*models.Snapshot, *Stats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sql dump: %w", err)
	}

	d := &dump{latest: map[int64]int64{}, texts: map[int64]string{}}
	if err := ParseInserts(data, d.add); err != nil {
		return nil, nil, err
	}

	stats := &Stats{Pages: len(d.pages), Revisions: len(d.latest), Texts: len(d.texts)}
	now := time.Now().UTC()
	snap := &models.Snapshot{
		GeneratedAt:   now,
		SourceBaseURL: baseURL,
		Pages:         []models.WikiPage{},
	}

	seen := map[string]bool{}
	for _, p := range d.pages {
		if isSystemTitle(p.title) {
			stats.System++
			continue
		}
		if seen[p.title] {
			continue
		}

		raw, ok := d.texts[d.latest[p.id]]
		if !ok {
			stats.Empty++
			continue
		}
		if wikitext.IsRedirect(raw) {
			stats.Redirects++
			continue
		}

		content, headings := wikitext.Strip(raw)
		if content == "" {
			stats.Empty++
			continue
		}

		seen[p.title] = true
		snap.Pages = append(snap.Pages, models.WikiPage{
			Title:           p.title,
			URL:             mediawiki.PageURL(baseURL, p.title),
			Content:         content,
			SectionHeadings: headings,
			FetchedAt:       now,
		})
	}
	stats.Imported = len(snap.Pages)

	slog.Info("sql dump imported",
		"pages", stats.Pages,
		"imported", stats.Imported,
		"system", stats.System,
		"redirects", stats.Redirects,
		"empty", stats.Empty)

	return snap, stats, nil
}

func (d *dump) add(ins Insert) error {
	switch ins.Table {
	case "page":
		idCol := columnIndex(ins.Columns, "page_id", 0)
		nsCol := columnIndex(ins.Columns, "page_namespace", 1)
		titleCol := columnIndex(ins.Columns, "page_title", 2)
		for _, row := range ins.Rows {
			id, ok := intField(row, idCol)
			if !ok || field(row, nsCol) != "0" {
				continue
			}
			title := strings.ReplaceAll(field(row, titleCol), "_", " ")
			if title == "" {
				continue
			}
			d.pages = append(d.pages, pageRow{id: id, title: title})
		}

	case "revision":
		revCol := columnIndex(ins.Columns, "rev_id", 0)
		pageCol := columnIndex(ins.Columns, "rev_page", 1)
		for _, row := range ins.Rows {
			rev, ok1 := intField(row, revCol)
			page, ok2 := intField(row, pageCol)
			if !ok1 || !ok2 {
				continue
			}
			if rev > d.latest[page] {
				d.latest[page] = rev
			}
		}

	case "text":
		idCol := columnIndex(ins.Columns, "old_id", 0)
		textCol := columnIndex(ins.Columns, "old_text", 1)
		flagsCol := columnIndex(ins.Columns, "old_flags", 2)
		for _, row := range ins.Rows {
			id, ok := intField(row, idCol)
			if !ok {
				continue
			}
			text, err := decodeText(field(row, textCol), field(row, flagsCol))
			if err != nil {
				slog.Warn("skipping undecodable text row", "old_id", id, "error", err)
				continue
			}
			d.texts[id] = text
		}
	}
	return nil
}

// decodeText applies the old_flags of a text row.
func decodeText(text, flags string) (string, error) {
	compressed := false
	for _, f := range strings.Split(flags, ",") {
		switch strings.TrimSpace(f) {
		case "gzip":
			compressed = true
		case "external":
			return "", fmt.Errorf("text is stored externally")
		case "object":
			return "", fmt.Errorf("serialized text objects are not supported")
		}
	}
	if !compressed {
		return text, nil
	}

	inflated, err := io.ReadAll(flate.NewReader(strings.NewReader(text)))
	if err != nil {
		return "", fmt.Errorf("failed to inflate text: %w", err)
	}
	return string(inflated), nil
}

func isSystemTitle(title string) bool {
	for _, p := range systemPrefixes {
		if strings.HasPrefix(title, p) {
			return true
		}
	}
	return false
}

func columnIndex(columns []string, name string, fallback int) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return fallback
}

func field(row []Value, i int) string {
	if i < 0 || i >= len(row) || row[i].Null {
		return ""
	}
	return row[i].Text
}

func intField(row []Value, i int) (int64, bool) {
	n, err := strconv.ParseInt(field(row, i), 10, 64)
	return n, err == nil
}
