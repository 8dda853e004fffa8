// ABOUTME: Local, rule-based implementation of the conversation assistant
// ABOUTME: Keyword smart replies, extractive summaries, and pass-through translation

// Package assist provides an Assistant that runs entirely on the client.
// It has no model behind it: replies come from keyword rules and summaries
// are an excerpt of recent text.
package assist

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/2389/coven-chat/internal/chat"
)

const (
	// replyWindow is how many of the peer's latest messages are considered.
	replyWindow = 3
	maxReplies  = 3

	summaryWindow  = 10
	summaryExcerpt = 100

	// NothingToSummarize is returned for conversations without text.
	NothingToSummarize = "No messages to summarize"
)

type replyRule struct {
	match   *regexp.Regexp
	replies []string
}

var (
	rules = []replyRule{
		{regexp.MustCompile(`\b(hello|hi)\b`), []string{"Hey!", "Hello!", "Hi there!"}},
		{regexp.MustCompile(`how are you`), []string{"I'm doing great, thanks!", "All good!", "Pretty good!"}},
		{regexp.MustCompile(`thank`), []string{"You're welcome!", "No problem!", "Anytime!"}},
	}
	fallbackReplies = []string{"Got it!", "Sounds good!", "Okay!"}
)

// Heuristic is a rule-based conversation.Assistant.
type Heuristic struct {
	logger *slog.Logger
}

// New creates a Heuristic assistant. Pass nil logger for default.
func New(logger *slog.Logger) *Heuristic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heuristic{logger: logger.With("component", "assist")}
}

// SmartReplies suggests up to three replies to the peer's latest text.
// History with nothing from the peer yields no suggestions.
func (h *Heuristic) SmartReplies(ctx context.Context, selfID string, history []chat.Message) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var fromPeer []chat.Message
	for _, m := range history {
		if !m.SentBy(selfID) {
			fromPeer = append(fromPeer, m)
		}
	}
	if len(fromPeer) > replyWindow {
		fromPeer = fromPeer[len(fromPeer)-replyWindow:]
	}

	last := ""
	for _, m := range fromPeer {
		if m.Text != "" {
			last = strings.ToLower(m.Text)
		}
	}
	if last == "" {
		return nil, nil
	}

	replies := fallbackReplies
	for _, r := range rules {
		if r.match.MatchString(last) {
			replies = r.replies
			break
		}
	}
	return append([]string(nil), replies[:min(len(replies), maxReplies)]...), nil
}

// Summarize describes the conversation by message count and an excerpt of
// the most recent text.
func (h *Heuristic) Summarize(ctx context.Context, history []chat.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var texts []string
	for _, m := range history {
		if m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	if len(texts) == 0 {
		return NothingToSummarize, nil
	}

	recent := texts[max(0, len(texts)-summaryWindow):]
	topics := []rune(strings.Join(recent, " "))
	if len(topics) > summaryExcerpt {
		topics = topics[:summaryExcerpt]
	}
	return fmt.Sprintf("Recent conversation includes %d messages. Main topics discussed: %s...", len(texts), string(topics)), nil
}

// Translate returns text unchanged. No translation backend is wired.
func (h *Heuristic) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h.logger.Debug("translation passthrough", "target_lang", targetLang, "chars", len(text))
	return text, nil
}
