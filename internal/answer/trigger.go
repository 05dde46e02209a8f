package answer

import (
	"strings"

	"github.com/mfenderov/wikibot/pkg/models"
)

// Trigger decides which messages the bot answers.
type Trigger struct {
	RespondToDirect   bool
	RespondToMentions bool
	Prefix            string // messages starting with it are answered, prefix removed
	CommandPrefix     string // messages starting with it are commands, never questions
}

// DefaultTrigger answers direct messages and mentions and treats "!" as the
// command prefix.
func DefaultTrigger() Trigger {
	return Trigger{
		RespondToDirect:   true,
		RespondToMentions: true,
		CommandPrefix:     "!",
	}
}

// ShouldRespond reports whether msg is a question for the bot and returns
// the question text.
func ShouldRespond(trigger Trigger, msg models.IncomingMessage) (string, bool) {
	if msg.FromSelf {
		return "", false
	}

	text := strings.TrimSpace(msg.Text)
	if trigger.CommandPrefix != "" && strings.HasPrefix(text, trigger.CommandPrefix) {
		return "", false
	}

	if trigger.Prefix != "" && strings.HasPrefix(text, trigger.Prefix) {
		text = strings.TrimSpace(strings.TrimPrefix(text, trigger.Prefix))
		return text, text != ""
	}

	if text == "" {
		return "", false
	}
	if msg.IsDirect && trigger.RespondToDirect {
		return text, true
	}
	if msg.Mentioned && trigger.RespondToMentions {
		return text, true
	}
	return "", false
}
