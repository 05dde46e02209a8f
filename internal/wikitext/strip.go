// Package wikitext reduces raw MediaWiki markup to plain text.
package wikitext

import (
	"html"
	"regexp"
	"strings"
)

var (
	commentRe     = regexp.MustCompile(`(?s)<!--.*?-->`)
	refSelfRe     = regexp.MustCompile(`(?i)<ref[^>]*/>`)
	refRe         = regexp.MustCompile(`(?is)<ref[^>]*>.*?</ref>`)
	externalRe    = regexp.MustCompile(`\[(?:https?:)?//[^\s\]]+(?:\s+([^\]]*))?\]`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	magicRe       = regexp.MustCompile(`__[A-Z]+__`)
	emphasisRe    = regexp.MustCompile(`'{2,5}`)
	headingRe     = regexp.MustCompile(`^(={1,6})\s*(.+?)\s*=+\s*$`)
	listMarkerRe  = regexp.MustCompile(`^[*#:;]+\s*`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
	droppedPrefix = []string{"file:", "image:", "media:", "category:"}
)

// Strip removes templates, tables, references, link syntax, emphasis and
// list markers from src. Heading lines are kept as plain lines and also
// returned, in order, as headings.
func Strip(src string) (text string, headings []string) {
	s := strings.ReplaceAll(src, "\r\n", "\n")
	s = commentRe.ReplaceAllString(s, "")
	s = refSelfRe.ReplaceAllString(s, "")
	s = refRe.ReplaceAllString(s, "")
	s = replaceNested(s, "{{", "}}", func(string) string { return "" })
	s = replaceNested(s, "{|", "|}", func(string) string { return "" })
	s = replaceNested(s, "[[", "]]", linkText)
	s = externalRe.ReplaceAllString(s, "$1")
	s = tagRe.ReplaceAllString(s, "")
	s = magicRe.ReplaceAllString(s, "")
	s = emphasisRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	headings = []string{}
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if m := headingRe.FindStringSubmatch(line); m != nil {
			headings = append(headings, m[2])
			out = append(out, m[2])
			continue
		}
		if strings.HasPrefix(line, "----") {
			out = append(out, "")
			continue
		}
		out = append(out, strings.TrimSpace(listMarkerRe.ReplaceAllString(line, "")))
	}

	text = blankRunRe.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
	return strings.TrimSpace(text), headings
}

// IsRedirect reports whether src is a redirect page.
func IsRedirect(src string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(src)), "#REDIRECT")
}

// linkText renders the inside of a [[...]] link.
func linkText(inner string) string {
	target := strings.TrimPrefix(strings.TrimSpace(inner), ":")
	lower := strings.ToLower(target)
	for _, p := range droppedPrefix {
		if strings.HasPrefix(lower, p) {
			return ""
		}
	}
	if i := strings.LastIndex(target, "|"); i >= 0 {
		return target[i+1:]
	}
	return target
}

// replaceNested replaces each outermost open...close span with repl of its
// inside. Unterminated spans are left as they are.
func replaceNested(s, open, close string, repl func(inner string) string) string {
	var b strings.Builder
	depth, start := 0, 0
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], open):
			if depth == 0 {
				b.WriteString(s[start:i])
				start = i
			}
			depth++
			i += len(open)
		case depth > 0 && strings.HasPrefix(s[i:], close):
			depth--
			i += len(close)
			if depth == 0 {
				b.WriteString(repl(s[start+len(open) : i-len(close)]))
				start = i
			}
		default:
			i++
		}
	}
	b.WriteString(s[start:])
	return b.String()
}
