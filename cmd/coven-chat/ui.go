// ABOUTME: Line-oriented chat interface: command dispatch and live conversation rendering
// ABOUTME: One goroutine reads stdin, another renders engine updates as they arrive

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/store"
)

// engine is the part of *conversation.Engine the UI drives.
type engine interface {
	SelfID() string
	ActivePeer() string
	Select(ctx context.Context, peerID string) error
	Deselect(ctx context.Context) error
	Messages() []chat.Message
	Message(id string) (*chat.Message, bool)
	Send(ctx context.Context, draft chat.Draft) (*chat.Message, error)
	SetReaction(ctx context.Context, messageID, emoji string) (conversation.ReactionIntent, error)
	RemoveReaction(ctx context.Context, messageID string) (conversation.ReactionIntent, error)
	NotifyTyping()
	Contacts(ctx context.Context) ([]chat.Contact, error)
	ChatPartners(ctx context.Context) ([]chat.Contact, error)
	SmartReplies(ctx context.Context) ([]string, error)
	Summarize(ctx context.Context) (string, error)
	Translate(ctx context.Context, text, targetLang string) (string, error)
	SetNotifications(enabled bool)
	Subscribe(ctx context.Context, peerID string) <-chan conversation.Update
}

var errQuit = errors.New("quit")

type chatUI struct {
	eng    engine
	online func(userID string) bool

	mu      sync.Mutex // guards out and the fields below
	out     io.Writer
	printed map[string]bool
	names   map[string]string
	typing  bool
	loading bool
	replies []string
}

func newChatUI(eng engine, out io.Writer, online func(string) bool) *chatUI {
	if online == nil {
		online = func(string) bool { return false }
	}
	return &chatUI{
		eng:     eng,
		online:  online,
		out:     out,
		printed: make(map[string]bool),
		names:   make(map[string]string),
	}
}

func (u *chatUI) printf(format string, args ...any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintf(u.out, format, args...)
}

// run reads commands from in until EOF, /quit or ctx ends.
func (u *chatUI) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			return nil
		case line := <-lines:
			if err := u.handle(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				u.printf("%s %v\n", color.RedString("[error]"), err)
			}
		}
	}
}

// parseCommand splits "/name rest of line" into name and rest. Plain text
// has an empty name.
func parseCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

func (u *chatUI) handle(ctx context.Context, line string) error {
	name, args := parseCommand(line)
	switch name {
	case "":
		if args == "" {
			return nil
		}
		u.eng.NotifyTyping()
		_, err := u.eng.Send(ctx, chat.Draft{Text: args})
		return err
	case "quit", "exit", "q":
		return errQuit
	case "help":
		u.printHelp()
		return nil
	case "contacts":
		contacts, err := u.eng.Contacts(ctx)
		if err != nil {
			return err
		}
		u.printContacts("Contacts", contacts)
		return nil
	case "chats":
		partners, err := u.eng.ChatPartners(ctx)
		if err != nil {
			return err
		}
		u.printContacts("Chats", partners)
		return nil
	case "use":
		return u.use(ctx, args)
	case "leave":
		return u.eng.Deselect(ctx)
	case "history":
		u.printHistory()
		return nil
	case "reply":
		id, text, ok := strings.Cut(args, " ")
		if !ok || strings.TrimSpace(text) == "" {
			return errors.New("usage: /reply <message-id> <text>")
		}
		_, err := u.eng.Send(ctx, chat.Draft{Text: text, ReplyToID: id})
		return err
	case "react":
		id, emoji, ok := strings.Cut(args, " ")
		if !ok {
			return errors.New("usage: /react <message-id> <emoji>")
		}
		intent, err := u.eng.SetReaction(ctx, id, strings.TrimSpace(emoji))
		if err == nil {
			u.printf("%s\n", color.HiBlackString("reaction %s", intent))
		}
		return err
	case "unreact":
		if args == "" {
			return errors.New("usage: /unreact <message-id>")
		}
		intent, err := u.eng.RemoveReaction(ctx, args)
		if err == nil && intent == conversation.ReactionNone {
			u.printf("%s\n", color.HiBlackString("no reaction to remove"))
		}
		return err
	case "replies":
		return u.smartReplies(ctx)
	case "pick":
		return u.pick(ctx, args)
	case "translate":
		lang, text, ok := strings.Cut(args, " ")
		if !ok {
			return errors.New("usage: /translate <lang> <text>")
		}
		out, err := u.eng.Translate(ctx, text, lang)
		if err != nil {
			return err
		}
		u.printf("%s %s\n", color.CyanString("[%s]", lang), out)
		return nil
	case "summary":
		summary, err := u.eng.Summarize(ctx)
		if err != nil {
			return err
		}
		u.printf("%s\n", summary)
		return nil
	case "image":
		return u.sendMedia(ctx, chat.MediaImage, args)
	case "video":
		return u.sendMedia(ctx, chat.MediaVideo, args)
	case "notify":
		switch args {
		case "on":
			u.eng.SetNotifications(true)
		case "off":
			u.eng.SetNotifications(false)
		default:
			return errors.New("usage: /notify on|off")
		}
		return nil
	default:
		return fmt.Errorf("unknown command /%s (try /help)", name)
	}
}

func (u *chatUI) use(ctx context.Context, peerID string) error {
	if peerID == "" {
		return errors.New("usage: /use <user-id>")
	}

	u.mu.Lock()
	u.loading = true
	u.typing = false
	u.replies = nil
	u.mu.Unlock()

	err := u.eng.Select(ctx, peerID)

	u.mu.Lock()
	defer u.mu.Unlock()
	u.loading = false
	fmt.Fprintf(u.out, "%s %s\n", color.GreenString("▶ Now chatting with"), u.nameLocked(peerID))
	u.printHistoryLocked()
	return err
}

func (u *chatUI) smartReplies(ctx context.Context) error {
	replies, err := u.eng.SmartReplies(ctx)
	if err != nil {
		return err
	}
	u.mu.Lock()
	u.replies = replies
	u.mu.Unlock()

	if len(replies) == 0 {
		u.printf("No suggestions\n")
		return nil
	}
	for i, r := range replies {
		u.printf("  %d) %s\n", i+1, r)
	}
	u.printf("%s\n", color.HiBlackString("send one with /pick <n>"))
	return nil
}

func (u *chatUI) pick(ctx context.Context, args string) error {
	n, err := strconv.Atoi(args)
	u.mu.Lock()
	replies := u.replies
	u.mu.Unlock()
	if err != nil || n < 1 || n > len(replies) {
		return errors.New("usage: /pick <n> after /replies")
	}
	_, err = u.eng.Send(ctx, chat.Draft{Text: replies[n-1]})
	return err
}

func (u *chatUI) sendMedia(ctx context.Context, kind chat.MediaKind, args string) error {
	path, caption, _ := strings.Cut(args, " ")
	if path == "" {
		return fmt.Errorf("usage: /%s <path> [caption]", kind)
	}
	media, err := loadMedia(kind, path)
	if err != nil {
		return err
	}
	_, err = u.eng.Send(ctx, chat.Draft{Text: caption, Media: media})
	return err
}

func (u *chatUI) printHelp() {
	u.printf(`Commands:
  /contacts                 List everyone you can message
  /chats                    List people you have talked to
  /use <user-id>            Open a conversation
  /leave                    Close the conversation
  /history                  Reprint the conversation
  /reply <msg-id> <text>    Reply to a message
  /react <msg-id> <emoji>   React (same emoji again removes it)
  /unreact <msg-id>         Remove your reaction
  /replies                  Suggest replies, then /pick <n>
  /translate <lang> <text>  Translate text
  /summary                  Summarize the conversation
  /image <path> [caption]   Send an image (up to 10 MiB)
  /video <path> [caption]   Send a video (up to 50 MiB)
  /notify on|off            Toggle the new message bell
  /help                     Show this help
  /quit                     Exit
Anything else is sent as a message.
`)
}

func (u *chatUI) printContacts(title string, contacts []chat.Contact) {
	u.mu.Lock()
	for _, c := range contacts {
		if c.FullName != "" {
			u.names[c.ID] = c.FullName
		}
	}
	u.mu.Unlock()

	if len(contacts) == 0 {
		u.printf("%s: none\n", title)
		return
	}
	u.printf("%s:\n", title)
	for _, c := range contacts {
		marker := " "
		if u.online(c.ID) {
			marker = color.GreenString("●")
		}
		u.printf("  %s %s  %s\n", marker, c.ID, c.FullName)
	}
}

func (u *chatUI) printHistory() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.printHistoryLocked()
}

func (u *chatUI) printHistoryLocked() {
	msgs := u.eng.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(u.out, color.HiBlackString("(no messages)"))
		return
	}
	self := u.eng.SelfID()
	for _, m := range msgs {
		u.printed[m.ID] = true
		fmt.Fprintln(u.out, formatMessage(m, self, u.names))
	}
}

// watch renders engine updates until ctx ends or the engine closes.
func (u *chatUI) watch(ctx context.Context) {
	updates := u.eng.Subscribe(ctx, conversation.AllPeers)
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			u.render(up)
		}
	}
}

func (u *chatUI) render(up conversation.Update) {
	switch up.Kind {
	case conversation.UpdateMessages:
		if up.Change != nil {
			u.renderChange(*up.Change)
		}
	case conversation.UpdateTyping:
		u.mu.Lock()
		defer u.mu.Unlock()
		typing := slices.Contains(up.TypingPeers, up.PeerID)
		if typing && !u.typing {
			fmt.Fprintln(u.out, color.HiBlackString("%s is typing…", u.nameLocked(up.PeerID)))
		}
		u.typing = typing
	}
}

func (u *chatUI) renderChange(c store.Change) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.loading {
		return
	}
	self := u.eng.SelfID()

	switch c.Kind {
	case store.ChangeReset:
		clear(u.printed)
	case store.ChangeUpsert:
		for _, id := range c.IDs {
			if u.printed[id] {
				continue
			}
			if m, ok := u.eng.Message(id); ok {
				u.printed[id] = true
				fmt.Fprintln(u.out, formatMessage(*m, self, u.names))
			}
		}
	case store.ChangeReplace:
		delete(u.printed, c.OldID)
		for _, id := range c.IDs {
			u.printed[id] = true
			fmt.Fprintln(u.out, color.HiBlackString("  ✓ sent as #%s", id))
		}
	case store.ChangeRemove:
		for _, id := range c.IDs {
			if u.printed[id] && chat.IsTempID(id) {
				fmt.Fprintln(u.out, color.RedString("  ✗ message was not sent"))
			}
			delete(u.printed, id)
		}
	case store.ChangePatch:
		if len(c.IDs) > 1 {
			fmt.Fprintln(u.out, color.HiBlackString("  ✓✓ %d messages updated", len(c.IDs)))
			return
		}
		for _, id := range c.IDs {
			if m, ok := u.eng.Message(id); ok {
				fmt.Fprintln(u.out, color.HiBlackString("  ~ %s", formatMessage(*m, self, u.names)))
			}
		}
	}
}

func (u *chatUI) nameLocked(id string) string {
	if name, ok := u.names[id]; ok {
		return name
	}
	return id
}

// formatMessage renders one message as a single line.
func formatMessage(m chat.Message, selfID string, names map[string]string) string {
	var b strings.Builder

	b.WriteString(color.HiBlackString("[%s] #%s ", m.CreatedAt.Local().Format("15:04"), m.ID))
	if m.SentBy(selfID) {
		b.WriteString(color.GreenString("you: "))
	} else {
		sender := m.SenderID
		if name, ok := names[sender]; ok {
			sender = name
		}
		b.WriteString(color.CyanString("%s: ", sender))
	}

	if m.ReplyTo != nil || m.ReplyToID != "" {
		preview := m.ReplyToID
		if m.ReplyTo != nil {
			preview = m.ReplyTo.Text
			if preview == "" && m.ReplyTo.MediaKind != "" {
				preview = "[" + string(m.ReplyTo.MediaKind) + "]"
			}
		}
		b.WriteString(color.HiBlackString("↳ %q ", truncate(preview, 30)))
	}

	b.WriteString(m.Text)
	if m.Media != nil {
		label := string(m.Media.Kind)
		if m.Media.URL != "" {
			label += ": " + m.Media.URL
		} else if m.Media.Name != "" {
			label += ": " + m.Media.Name
		}
		if m.Text != "" {
			b.WriteString(" ")
		}
		b.WriteString(color.MagentaString("[%s]", label))
	}

	if len(m.Reactions) > 0 {
		users := make([]string, 0, len(m.Reactions))
		for user := range m.Reactions {
			users = append(users, user)
		}
		slices.Sort(users)
		parts := make([]string, 0, len(users))
		for _, user := range users {
			parts = append(parts, m.Reactions[user])
		}
		b.WriteString(" " + strings.Join(parts, ""))
	}

	switch {
	case m.Pending:
		b.WriteString(color.HiBlackString(" …"))
	case !m.SentBy(selfID):
	case m.ReadAt != nil:
		b.WriteString(color.BlueString(" ✓✓"))
	case m.DeliveredAt != nil:
		b.WriteString(color.HiBlackString(" ✓✓"))
	default:
		b.WriteString(color.HiBlackString(" ✓"))
	}

	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// bellNotifier rings the terminal bell for new messages from the active peer.
type bellNotifier struct {
	out io.Writer
}

func (b bellNotifier) MessageReceived(chat.Message) {
	fmt.Fprint(b.out, "\a")
}
