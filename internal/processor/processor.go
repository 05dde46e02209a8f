package processor

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/mfenderov/wikibot/internal/markdown"
)

// noise matches rendered MediaWiki elements that are not page content.
const noise = "script, style, noscript, .mw-editsection, #toc, .toc, " +
	"sup.reference, .reference, .mw-references-wrap, .navbox, .printfooter, " +
	".catlinks, .mw-empty-elt, .noprint"

// Result is the normalized form of a rendered page.
type Result struct {
	Markdown string
	Content  string   // plain text, block boundaries kept as line breaks
	Headings []string // section headings in document order
}

// Processor converts rendered wiki HTML into plain text and headings.
type Processor struct{}

// New creates a new processor.
func New() *Processor {
	return &Processor{}
}

// Process cleans htmlContent, converts it to Markdown and derives the
// plain text and heading list from it.
func (p *Processor) Process(htmlContent string) (*Result, error) {
	if strings.TrimSpace(htmlContent) == "" {
		return &Result{Headings: []string{}}, nil
	}

	cleaned, err := p.Clean(htmlContent)
	if err != nil {
		return nil, err
	}

	md, err := p.Convert(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to markdown: %w", err)
	}

	return &Result{
		Markdown: md,
		Content:  markdown.PlainText(md),
		Headings: markdown.Headings(md),
	}, nil
}

// Clean removes scripts, styles, edit links, tables of contents, reference
// markers and navigation boxes, returning the remaining body HTML.
func (p *Processor) Clean(htmlContent string) (string, error) {
	root, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc := goquery.NewDocumentFromNode(root)
	doc.Find(noise).Remove()

	body, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("failed to render html: %w", err)
	}
	return body, nil
}

// Convert transforms HTML content into Markdown.
func (p *Processor) Convert(htmlContent string) (string, error) {
	if htmlContent == "" {
		return "", nil
	}

	md, err := htmltomarkdown.ConvertString(htmlContent)
	if err != nil {
		return "", err
	}

	// Clean up excessive whitespace
	md = strings.TrimSpace(md)
	return md, nil
}
