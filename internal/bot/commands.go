package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Discord rejects messages longer than MaxMessageChars; longer replies are
// sent in chunks of ChunkChars.
const (
	MaxMessageChars = 2000
	ChunkChars      = 1900
)

const helpText = `**Wiki Bot Commands:**

Mention me or send me a direct message with any question about the game and I will answer from the wiki.

**Example messages:**
- How do I train combat skills?
- What are the best money making methods?
- What gear should I use for boss fights?

**Commands:**
` + "`%[1]swikihelp`" + ` - Show this help message
` + "`%[1]swikistats`" + ` - Show what the bot knows`

// command returns the reply to a bot command, if text is one.
func (b *Bot) command(text string) (string, bool) {
	prefix := b.config.Trigger.CommandPrefix
	if prefix == "" {
		return "", false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], prefix) {
		return "", false
	}

	switch strings.ToLower(strings.TrimPrefix(fields[0], prefix)) {
	case "wikihelp":
		return fmt.Sprintf(helpText, prefix), true
	case "wikistats":
		return b.stats(), true
	default:
		return "", false
	}
}

func (b *Bot) stats() string {
	if b.source == nil {
		return "No wiki snapshot loaded."
	}
	snap := b.source.Current().Snapshot
	if snap.Len() == 0 {
		return "No wiki pages loaded."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Wiki pages loaded: %d", snap.Len())
	if snap.SourceBaseURL != "" {
		fmt.Fprintf(&sb, "\nSource: %s", snap.SourceBaseURL)
	}
	if !snap.GeneratedAt.IsZero() {
		fmt.Fprintf(&sb, "\nLast harvested: %s", snap.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return sb.String()
}

// SplitReply splits text into messages Discord accepts. Replies up to
// MaxMessageChars are sent as is; longer ones are cut into ChunkChars pieces
// labelled "Response i/n:".
func SplitReply(text string) []string {
	if utf8.RuneCountInString(text) <= MaxMessageChars {
		return []string{text}
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += ChunkChars {
		end := min(start+ChunkChars, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	for i, chunk := range chunks {
		chunks[i] = fmt.Sprintf("Response %d/%d:\n%s", i+1, len(chunks), chunk)
	}
	return chunks
}
