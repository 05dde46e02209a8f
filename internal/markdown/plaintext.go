// Package markdown turns converted page Markdown into the plain text and
// heading list stored in snapshots.
package markdown

import (
	"regexp"
	"strings"
)

var (
	atxHeading  = regexp.MustCompile(`^\s{0,3}(#{1,6})\s+(.*?)\s*#*\s*$`)
	fence       = regexp.MustCompile("^\\s{0,3}(```|~~~)")
	listMarker  = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
	blockquote  = regexp.MustCompile(`^\s*(?:>\s?)+`)
	thematic    = regexp.MustCompile(`^\s{0,3}(?:(?:\*\s*){3,}|(?:-\s*){3,}|(?:_\s*){3,})$`)
	image       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	link        = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	strong      = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	emphasis    = regexp.MustCompile(`\*(\S(?:[^*]*\S)?)\*`)
	underscored = regexp.MustCompile(`(^|[^\w])_(\S(?:[^_]*\S)?)_($|[^\w])`)
	strike      = regexp.MustCompile(`~~(.+?)~~`)
	inlineCode  = regexp.MustCompile("`([^`]*)`")
	escaped     = regexp.MustCompile(`\\([!-/:-@\[-` + "`" + `{-~])`)
	spaces      = regexp.MustCompile(`[ \t\x{00a0}]+`)
)

// IsHeading reports whether a line is an ATX heading and returns its text.
func IsHeading(line string) (string, bool) {
	m := atxHeading.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	text := Inline(m[2])
	if text == "" {
		return "", false
	}
	return text, true
}

// Headings returns the text of every ATX heading in document order,
// ignoring lines inside fenced code blocks.
func Headings(md string) []string {
	headings := []string{}
	inFence := false
	for _, line := range strings.Split(md, "\n") {
		if fence.MatchString(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if text, ok := IsHeading(line); ok {
			headings = append(headings, text)
		}
	}
	return headings
}

// Inline strips inline Markdown syntax (links, images, emphasis, code spans,
// escapes) from a single line.
func Inline(s string) string {
	s = escaped.ReplaceAllStringFunc(s, protect)
	s = image.ReplaceAllString(s, "$1")
	s = link.ReplaceAllString(s, "$1")
	s = strong.ReplaceAllString(s, "$1$2")
	s = emphasis.ReplaceAllString(s, "$1")
	s = underscored.ReplaceAllString(s, "$1$2$3")
	s = strike.ReplaceAllString(s, "$1")
	s = inlineCode.ReplaceAllString(s, "$1")
	s = strings.Map(restore, s)
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Escaped punctuation is parked in the private use area while the emphasis
// patterns run, so an escaped underscore never opens an emphasis span.
const parked = 0xE000

func protect(m string) string {
	return string(rune(parked + int(m[1])))
}

func restore(r rune) rune {
	if r >= parked && r < parked+0x80 {
		return r - parked
	}
	return r
}

// PlainText converts Markdown to plain text. Block structure survives as
// line breaks: headings stay on their own line, runs of blank lines collapse
// to one.
func PlainText(md string) string {
	var out []string
	inFence := false
	blank := true

	emit := func(line string) {
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			return
		}
		out = append(out, line)
		blank = false
	}

	for _, line := range strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n") {
		if fence.MatchString(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			emit(strings.TrimRight(line, " \t"))
			continue
		}
		if thematic.MatchString(line) {
			emit("")
			continue
		}
		if text, ok := IsHeading(line); ok {
			emit("")
			emit(text)
			continue
		}

		line = blockquote.ReplaceAllString(line, "")
		line = listMarker.ReplaceAllString(line, "")
		emit(Inline(line))
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
