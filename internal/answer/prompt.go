package answer

import (
	"strings"
	"unicode/utf8"

	"github.com/mfenderov/wikibot/internal/llm"
	"github.com/mfenderov/wikibot/pkg/models"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = `You are a helpful assistant for the community wiki.
Answer questions based on the wiki information provided. Be helpful, accurate, and concise.
If the wiki context does not cover the question, say so instead of guessing.`

const (
	contextHeader  = "\n\nWiki Context:\n"
	noContext      = "(no relevant wiki pages were found)"
	pageSeparator  = "\n\n"
	questionPrefix = "Question: "
	ellipsis       = "..."
)

// MinQuestionChars is the part of a question always kept, whatever the
// prompt budget.
const MinQuestionChars = 64

// PromptLimits bounds the size of a prompt, in characters.
type PromptLimits struct {
	MaxPageChars   int // per page content; 0 means unlimited
	MaxPromptChars int // system and user messages together; 0 means unlimited
}

// BuildPrompt returns the system and user messages for a question. Pages are
// expected best first. Each page is cut to MaxPageChars, then pages are added
// while the prompt stays within MaxPromptChars: the first page is shortened
// to fit, the remaining ones are dropped once one does not fit.
func BuildPrompt(systemPrompt, question string, pages []models.WikiPage, limits PromptLimits) []llm.Message {
	system := systemMessage(systemPrompt)
	user := questionPrefix + strings.TrimSpace(question)

	limited := limits.MaxPromptChars > 0
	budget := limits.MaxPromptChars - runeLen(system) - runeLen(user)

	var blocks []string
	used := 0
	for _, page := range pages {
		block := pageBlock(page, limits.MaxPageChars)
		cost := runeLen(block)
		if len(blocks) > 0 {
			cost += len(pageSeparator)
		}

		if limited && used+cost > budget {
			// Keep as much of the best page as fits.
			if len(blocks) == 0 && budget > runeLen(pageHeading(page))+len(ellipsis) {
				blocks = append(blocks, truncate(block, budget))
			}
			break
		}

		blocks = append(blocks, block)
		used += cost
	}

	context := strings.Join(blocks, pageSeparator)
	if context == "" {
		context = noContext
		if limited && runeLen(noContext) > budget {
			// An oversized question loses its tail, never its start.
			keep := max(limits.MaxPromptChars-runeLen(system)-runeLen(noContext), len(questionPrefix)+MinQuestionChars)
			user = truncate(user, keep)
		}
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system + context},
		{Role: llm.RoleUser, Content: user},
	}
}

// MinPromptChars returns the smallest prompt budget that holds the system
// prompt, the empty context marker and MinQuestionChars of the question.
func MinPromptChars(systemPrompt string) int {
	return runeLen(systemMessage(systemPrompt)) + runeLen(noContext) + len(questionPrefix) + MinQuestionChars
}

func systemMessage(systemPrompt string) string {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return strings.TrimRight(systemPrompt, "\n") + contextHeader
}

func pageHeading(page models.WikiPage) string {
	return "### " + page.Title + "\n"
}

func pageBlock(page models.WikiPage, maxChars int) string {
	content := strings.TrimSpace(page.Content)
	if maxChars > 0 {
		content = truncate(content, maxChars)
	}
	return pageHeading(page) + content
}

// PromptChars returns the total size of messages in characters.
func PromptChars(messages []llm.Message) int {
	n := 0
	for _, m := range messages {
		n += runeLen(m.Content)
	}
	return n
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if runeLen(s) <= n {
		return s
	}
	if n <= len(ellipsis) {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-len(ellipsis)]) + ellipsis
}
