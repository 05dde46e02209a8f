// Package selector ranks wiki pages against a free-text question by token
// overlap.
package selector

import (
	"sort"
	"strings"
	"unicode"

	"github.com/mfenderov/wikibot/pkg/models"
)

// TitleWeight multiplies matches against a page title.
const TitleWeight = 2

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an and are as at be but by can do does for from how
		i if in into is it its me my of on or so that the their then there these this to
		was were what when where which who why will with you your`) {
		stopwords[w] = struct{}{}
	}
}

// Tokenize lowercases s and splits it into words, dropping stopwords.
// A word is a run of Unicode letters or digits.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokenize(s) {
		set[t] = struct{}{}
	}
	return set
}

type entry struct {
	page  models.WikiPage
	title map[string]struct{}
	all   map[string]struct{} // title and content tokens
}

// Index holds the tokenized pages of one snapshot. It is read-only after
// construction and safe for concurrent use.
type Index struct {
	entries []entry
}

// NewIndex tokenizes every page of snap. A nil snapshot gives an empty index.
func NewIndex(snap *models.Snapshot) *Index {
	idx := &Index{entries: make([]entry, 0, snap.Len())}
	if snap == nil {
		return idx
	}
	for _, p := range snap.Pages {
		title := tokenSet(p.Title)
		all := tokenSet(p.Content)
		for t := range title {
			all[t] = struct{}{}
		}
		idx.entries = append(idx.entries, entry{page: p, title: title, all: all})
	}
	return idx
}

// Len returns the number of indexed pages.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Match is a selected page with its score.
type Match struct {
	Page  models.WikiPage
	Score int
}

// Rank returns up to k pages sharing at least one token with query, best
// first. Ties keep snapshot order.
func (idx *Index) Rank(query string, k int) []Match {
	if k <= 0 || len(idx.entries) == 0 {
		return nil
	}
	q := tokenSet(query)
	if len(q) == 0 {
		return nil
	}

	var matches []Match
	for _, e := range idx.entries {
		score := 0
		for t := range q {
			if _, ok := e.title[t]; ok {
				score += TitleWeight
			}
			if _, ok := e.all[t]; ok {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, Match{Page: e.page, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Select returns up to k pages relevant to query, most relevant first.
func (idx *Index) Select(query string, k int) []models.WikiPage {
	matches := idx.Rank(query, k)
	pages := make([]models.WikiPage, len(matches))
	for i, m := range matches {
		pages[i] = m.Page
	}
	return pages
}

// Select is a one-shot form of NewIndex(snap).Select(query, k).
func Select(snap *models.Snapshot, query string, k int) []models.WikiPage {
	return NewIndex(snap).Select(query, k)
}
