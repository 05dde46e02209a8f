package bot

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/goleak"

	"github.com/mfenderov/wikibot/internal/answer"
	"github.com/mfenderov/wikibot/internal/corpus"
	"github.com/mfenderov/wikibot/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sent struct {
	channel string
	content string
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sent
	typings atomic.Int32
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{channel: channelID, content: content})
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeSender) ChannelTyping(string, ...discordgo.RequestOption) error {
	f.typings.Add(1)
	return nil
}

func (f *fakeSender) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeAnswerer struct {
	handle func(ctx context.Context, msg models.IncomingMessage) string
}

func (f *fakeAnswerer) HandleMessage(ctx context.Context, msg models.IncomingMessage) string {
	return f.handle(ctx, msg)
}

func (f *fakeAnswerer) FallbackReply() string { return "fallback" }

func echoAnswerer() *fakeAnswerer {
	return &fakeAnswerer{handle: func(_ context.Context, msg models.IncomingMessage) string {
		return "answer: " + msg.Text
	}}
}

func newBot(t *testing.T, answerer Answerer) *Bot {
	t.Helper()
	holder := corpus.NewHolder(corpus.New(&models.Snapshot{
		SourceBaseURL: "https://wiki.example.org/wiki",
		GeneratedAt:   time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC),
		Pages:         []models.WikiPage{{Title: "Fishing", Content: "Catch shrimp."}},
	}))
	b, err := New(Config{Trigger: answer.DefaultTrigger(), MaxConcurrent: 2}, answerer, holder)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b
}

func TestBot_Dispatch_AnswersMentions(t *testing.T) {
	b := newBot(t, echoAnswerer())
	out := &fakeSender{}

	b.Dispatch(t.Context(), out, models.IncomingMessage{Text: "how to fish", Origin: "c1", Mentioned: true})
	b.Dispatch(t.Context(), out, models.IncomingMessage{Text: "ignored chatter", Origin: "c1"})
	b.Wait()

	got := out.messages()
	if len(got) != 1 {
		t.Fatalf("expected 1 reply, got %d: %v", len(got), got)
	}
	if got[0].channel != "c1" || got[0].content != "answer: how to fish" {
		t.Errorf("reply = %+v", got[0])
	}
	if out.typings.Load() == 0 {
		t.Error("typing indicator was never shown")
	}
}

func TestBot_Dispatch_IgnoresOwnMessages(t *testing.T) {
	b := newBot(t, echoAnswerer())
	out := &fakeSender{}

	b.Dispatch(t.Context(), out, models.IncomingMessage{Text: "!wikihelp", Origin: "c1", IsDirect: true, FromSelf: true})
	b.Wait()

	if got := out.messages(); len(got) != 0 {
		t.Errorf("expected no replies, got %v", got)
	}
}

func TestBot_Dispatch_Commands(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		contains string
	}{
		{name: "help", text: "!wikihelp", contains: "!wikistats"},
		{name: "help is case insensitive", text: "!WikiHelp", contains: "Wiki Bot Commands"},
		{name: "stats", text: "!wikistats", contains: "Wiki pages loaded: 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBot(t, echoAnswerer())
			out := &fakeSender{}

			b.Dispatch(t.Context(), out, models.IncomingMessage{Text: tt.text, Origin: "c1"})
			b.Wait()

			got := out.messages()
			if len(got) != 1 || !strings.Contains(got[0].content, tt.contains) {
				t.Errorf("replies = %v, want one containing %q", got, tt.contains)
			}
		})
	}
}

func TestBot_Dispatch_UnknownCommandIsIgnored(t *testing.T) {
	b := newBot(t, echoAnswerer())
	out := &fakeSender{}

	b.Dispatch(t.Context(), out, models.IncomingMessage{Text: "!roll 20", Origin: "c1", IsDirect: true})
	b.Wait()

	if got := out.messages(); len(got) != 0 {
		t.Errorf("expected no replies, got %v", got)
	}
}

func TestBot_Dispatch_RecoversFromPanics(t *testing.T) {
	b := newBot(t, &fakeAnswerer{handle: func(_ context.Context, msg models.IncomingMessage) string {
		if msg.Text == "boom" {
			panic("boom")
		}
		return "fine"
	}})
	out := &fakeSender{}

	b.Dispatch(t.Context(), out, models.IncomingMessage{Text: "boom", Origin: "c1", IsDirect: true})
	b.Wait()
	b.Dispatch(t.Context(), out, models.IncomingMessage{Text: "next", Origin: "c2", IsDirect: true})
	b.Wait()

	got := out.messages()
	if len(got) != 2 {
		t.Fatalf("expected 2 replies, got %v", got)
	}
	if got[0].content != "fallback" || got[1].content != "fine" {
		t.Errorf("replies = %v", got)
	}
}

func TestBot_Dispatch_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})

	b := newBot(t, &fakeAnswerer{handle: func(context.Context, models.IncomingMessage) string {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return "ok"
	}})
	out := &fakeSender{}

	for range 6 {
		b.Dispatch(t.Context(), out, models.IncomingMessage{Text: "q", Origin: "c1", IsDirect: true})
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	b.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
	if got := len(out.messages()); got != 6 {
		t.Errorf("expected 6 replies, got %d", got)
	}
}

func TestBot_Dispatch_CancelledContextDropsQueuedMessages(t *testing.T) {
	release := make(chan struct{})
	b := newBot(t, &fakeAnswerer{handle: func(context.Context, models.IncomingMessage) string {
		<-release
		return "ok"
	}})
	out := &fakeSender{}

	ctx, cancel := context.WithCancel(t.Context())
	for range 4 {
		b.Dispatch(ctx, out, models.IncomingMessage{Text: "q", Origin: "c1", IsDirect: true})
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(release)
	b.Wait()

	if got := len(out.messages()); got != 2 {
		t.Errorf("expected the 2 admitted messages to be answered, got %d", got)
	}
}

func TestFromDiscord(t *testing.T) {
	self := &discordgo.User{ID: "42", Username: "wikibot"}
	user := &discordgo.User{ID: "7", Username: "player"}

	tests := []struct {
		name string
		msg  *discordgo.Message
		want models.IncomingMessage
	}{
		{
			name: "mention in guild",
			msg: &discordgo.Message{
				ChannelID: "c1", GuildID: "g1", Author: user,
				Content: "<@42> how do I fish?", Mentions: []*discordgo.User{self},
			},
			want: models.IncomingMessage{Text: "how do I fish?", Origin: "c1", Author: "player", Mentioned: true},
		},
		{
			name: "nickname mention",
			msg: &discordgo.Message{
				ChannelID: "c1", GuildID: "g1", Author: user,
				Content: "hey <@!42>  combat", Mentions: []*discordgo.User{self},
			},
			want: models.IncomingMessage{Text: "hey   combat", Origin: "c1", Author: "player", Mentioned: true},
		},
		{
			name: "direct message",
			msg:  &discordgo.Message{ChannelID: "dm", Author: user, Content: "fishing"},
			want: models.IncomingMessage{Text: "fishing", Origin: "dm", Author: "player", IsDirect: true},
		},
		{
			name: "own message",
			msg:  &discordgo.Message{ChannelID: "c1", GuildID: "g1", Author: self, Content: "reply"},
			want: models.IncomingMessage{Text: "reply", Origin: "c1", Author: "wikibot", FromSelf: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromDiscord(tt.msg, "42"); got != tt.want {
				t.Errorf("FromDiscord() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSplitReply(t *testing.T) {
	short := strings.Repeat("a", MaxMessageChars)
	if got := SplitReply(short); len(got) != 1 || got[0] != short {
		t.Errorf("reply of %d chars should not be split", MaxMessageChars)
	}

	long := strings.Repeat("é", 4000)
	chunks := SplitReply(long)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	var rebuilt strings.Builder
	for i, chunk := range chunks {
		if n := utf8.RuneCountInString(chunk); n > MaxMessageChars {
			t.Errorf("chunk %d has %d chars", i, n)
		}
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
		header, body, _ := strings.Cut(chunk, "\n")
		if want := "Response " + string(rune('1'+i)) + "/3:"; header != want {
			t.Errorf("chunk %d header = %q, want %q", i, header, want)
		}
		rebuilt.WriteString(body)
	}
	if rebuilt.String() != long {
		t.Error("chunks do not reassemble to the original reply")
	}
}

func TestBot_Stop_DropsLaterMessages(t *testing.T) {
	b := newBot(t, echoAnswerer())
	out := &fakeSender{}

	b.Dispatch(t.Context(), out, models.IncomingMessage{Text: "before", Origin: "c1", IsDirect: true})
	b.Stop()
	b.Dispatch(t.Context(), out, models.IncomingMessage{Text: "after", Origin: "c1", IsDirect: true})
	b.Wait()

	got := out.messages()
	if len(got) != 1 || got[0].content != "answer: before" {
		t.Errorf("replies = %+v, want only the message sent before Stop", got)
	}
}

func TestBot_Stop_WhileDispatching(t *testing.T) {
	b := newBot(t, echoAnswerer())
	out := &fakeSender{}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				b.Dispatch(t.Context(), out, models.IncomingMessage{Text: "q", Origin: "c1", IsDirect: true})
			}
		}()
	}
	b.Stop()
	wg.Wait()
	b.Wait()

	if got := len(out.messages()); got > 200 {
		t.Errorf("got %d replies for 200 messages", got)
	}
}
