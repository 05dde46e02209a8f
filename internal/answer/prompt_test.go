package answer

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mfenderov/wikibot/internal/llm"
	"github.com/mfenderov/wikibot/pkg/models"
)

func page(title string, size int) models.WikiPage {
	return models.WikiPage{Title: title, Content: strings.Repeat("x", size)}
}

func TestBuildPrompt(t *testing.T) {
	messages := BuildPrompt("Be brief.", "  how do I fish? ", []models.WikiPage{
		{Title: "Fishing", Content: "Catch shrimp."},
		{Title: "Cooking", Content: "Cook shrimp."},
	}, PromptLimits{})

	want := []llm.Message{
		{Role: llm.RoleSystem, Content: "Be brief.\n\nWiki Context:\n### Fishing\nCatch shrimp.\n\n### Cooking\nCook shrimp."},
		{Role: llm.RoleUser, Content: "Question: how do I fish?"},
	}
	if diff := cmp.Diff(want, messages); diff != "" {
		t.Errorf("BuildPrompt() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPrompt_DefaultSystemPrompt(t *testing.T) {
	messages := BuildPrompt("", "hi", nil, PromptLimits{})
	if !strings.HasPrefix(messages[0].Content, DefaultSystemPrompt) {
		t.Errorf("system message = %q, want default prompt", messages[0].Content)
	}
	if !strings.HasSuffix(messages[0].Content, noContext) {
		t.Errorf("system message = %q, want empty context marker", messages[0].Content)
	}
}

func TestBuildPrompt_CapsEachPage(t *testing.T) {
	messages := BuildPrompt("S", "q", []models.WikiPage{page("Big", 5000)}, PromptLimits{MaxPageChars: 2000})

	content := messages[0].Content
	if !strings.Contains(content, strings.Repeat("x", 1997)+"...") {
		t.Error("page was not cut to 2000 characters")
	}
	if strings.Contains(content, strings.Repeat("x", 1998)) {
		t.Error("page exceeds 2000 characters")
	}
}

func TestBuildPrompt_StaysWithinBudget(t *testing.T) {
	pages := []models.WikiPage{page("First", 1500), page("Second", 1500), page("Third", 1500)}

	for _, limit := range []int{100, 500, 1600, 3000, 3200, 10000} {
		messages := BuildPrompt("System.", "a question", pages, PromptLimits{MaxPageChars: 2000, MaxPromptChars: limit})
		if got := PromptChars(messages); got > limit {
			t.Errorf("MaxPromptChars=%d: prompt has %d characters", limit, got)
		}
	}
}

func TestBuildPrompt_DropsLowerRankedPagesFirst(t *testing.T) {
	pages := []models.WikiPage{page("First", 1500), page("Second", 1500), page("Third", 10)}

	messages := BuildPrompt("System.", "q", pages, PromptLimits{MaxPromptChars: 2000})

	content := messages[0].Content
	if !strings.Contains(content, "### First") {
		t.Error("best page missing")
	}
	// Once a page does not fit, lower ranked ones are not considered.
	for _, title := range []string{"### Second", "### Third"} {
		if strings.Contains(content, title) {
			t.Errorf("prompt contains %q", title)
		}
	}
}

func TestBuildPrompt_TruncatesBestPageToFit(t *testing.T) {
	messages := BuildPrompt("System.", "q", []models.WikiPage{page("Huge", 5000)}, PromptLimits{MaxPromptChars: 1000})

	if !strings.Contains(messages[0].Content, "### Huge") || !strings.HasSuffix(messages[0].Content, "...") {
		t.Errorf("best page not shortened: %q", messages[0].Content[:40])
	}
	if got := PromptChars(messages); got != 1000 {
		t.Errorf("PromptChars() = %d, want 1000", got)
	}
}

func TestBuildPrompt_OversizedQuestion(t *testing.T) {
	question := strings.Repeat("why ", 500)
	messages := BuildPrompt("System.", question, []models.WikiPage{page("A", 100)}, PromptLimits{MaxPromptChars: 300})

	if got := PromptChars(messages); got > 300 {
		t.Errorf("PromptChars() = %d, want <= 300", got)
	}
	if !strings.HasPrefix(messages[1].Content, "Question: why") {
		t.Errorf("user message = %q", messages[1].Content)
	}
	if !strings.HasSuffix(messages[0].Content, noContext) {
		t.Errorf("system message = %q, want empty context marker", messages[0].Content)
	}
}

func TestBuildPrompt_KeepsQuestionWhenBudgetTooSmall(t *testing.T) {
	pages := []models.WikiPage{{Title: "Alpha", Content: "Alpha is the first letter."}}

	tests := []struct {
		name     string
		question string
		want     string
	}{
		{name: "short question", question: "what is alpha", want: "Question: what is alpha"},
		{
			name:     "long question",
			question: strings.Repeat("a", 500),
			want:     "Question: " + strings.Repeat("a", MinQuestionChars-len(ellipsis)) + ellipsis,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages := BuildPrompt("", tt.question, pages, PromptLimits{MaxPromptChars: 100})
			if got := messages[1].Content; got != tt.want {
				t.Errorf("user message = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMinPromptChars(t *testing.T) {
	limit := MinPromptChars("System.")
	question := strings.Repeat("q", 1000)

	messages := BuildPrompt("System.", question, nil, PromptLimits{MaxPromptChars: limit})
	if got := PromptChars(messages); got != limit {
		t.Errorf("PromptChars() = %d, want %d", got, limit)
	}
	if got := runeLen(messages[1].Content) - len(questionPrefix); got != MinQuestionChars {
		t.Errorf("question kept %d characters, want %d", got, MinQuestionChars)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 8, "hello..."},
		{"héllo wörld", 8, "héllo..."},
		{"hello", 2, "he"},
		{"hello", 0, ""},
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
