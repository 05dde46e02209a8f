package answer

import (
	"testing"

	"github.com/mfenderov/wikibot/pkg/models"
)

func TestShouldRespond(t *testing.T) {
	withPrefix := DefaultTrigger()
	withPrefix.Prefix = "?wiki"

	mentionsOnly := Trigger{RespondToMentions: true, CommandPrefix: "!"}

	tests := []struct {
		name     string
		trigger  Trigger
		msg      models.IncomingMessage
		wantText string
		wantOK   bool
	}{
		{
			name:     "direct message",
			trigger:  DefaultTrigger(),
			msg:      models.IncomingMessage{Text: " how do I fish? ", IsDirect: true},
			wantText: "how do I fish?",
			wantOK:   true,
		},
		{
			name:     "mention in channel",
			trigger:  DefaultTrigger(),
			msg:      models.IncomingMessage{Text: "combat training", Mentioned: true},
			wantText: "combat training",
			wantOK:   true,
		},
		{
			name:    "plain channel message",
			trigger: DefaultTrigger(),
			msg:     models.IncomingMessage{Text: "combat training"},
		},
		{
			name:    "own message",
			trigger: DefaultTrigger(),
			msg:     models.IncomingMessage{Text: "hello", IsDirect: true, FromSelf: true},
		},
		{
			name:    "command",
			trigger: DefaultTrigger(),
			msg:     models.IncomingMessage{Text: "!wikihelp", Mentioned: true},
		},
		{
			name:    "empty mention",
			trigger: DefaultTrigger(),
			msg:     models.IncomingMessage{Text: "   ", Mentioned: true},
		},
		{
			name:     "prefix in channel",
			trigger:  withPrefix,
			msg:      models.IncomingMessage{Text: "?wiki  best money making"},
			wantText: "best money making",
			wantOK:   true,
		},
		{
			name:    "prefix without question",
			trigger: withPrefix,
			msg:     models.IncomingMessage{Text: "?wiki"},
		},
		{
			name:    "direct messages disabled",
			trigger: mentionsOnly,
			msg:     models.IncomingMessage{Text: "hello", IsDirect: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, ok := ShouldRespond(tt.trigger, tt.msg)
			if ok != tt.wantOK || text != tt.wantText {
				t.Errorf("ShouldRespond() = (%q, %v), want (%q, %v)", text, ok, tt.wantText, tt.wantOK)
			}
		})
	}
}
