// ABOUTME: Hand-written collaborator fakes for engine tests
// ABOUTME: Transport with per-call gates, event stream with handler tables, assistant and notifier

package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/typing"
)

const (
	selfID = "me"
	peerP  = "peer-p"
	peerQ  = "peer-q"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// gate blocks a fake call until released. entered is closed when the call arrives.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) wait() {
	close(g.entered)
	<-g.release
}

// mockTransport implements Transport and Directory for testing
type mockTransport struct {
	mu sync.Mutex

	history     map[string][]chat.Message
	historyErr  error
	historyGate map[string]*gate

	sendFn    func(peerID string, p chat.SendPayload) (*chat.Message, error)
	sendGates []*gate
	sends     []chat.SendPayload

	reactions    map[string]map[string]string
	reactionErr  error
	reactionCall []string

	markReadErr error
	markReads   []string
	fetches     []string

	contacts []chat.Contact
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		history:     make(map[string][]chat.Message),
		historyGate: make(map[string]*gate),
		reactions:   make(map[string]map[string]string),
	}
}

func (m *mockTransport) FetchHistory(ctx context.Context, peerID string) ([]chat.Message, error) {
	m.mu.Lock()
	m.fetches = append(m.fetches, peerID)
	g := m.historyGate[peerID]
	delete(m.historyGate, peerID)
	m.mu.Unlock()

	if g != nil {
		g.wait()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return append([]chat.Message(nil), m.history[peerID]...), nil
}

func (m *mockTransport) SendMessage(ctx context.Context, peerID string, p chat.SendPayload) (*chat.Message, error) {
	m.mu.Lock()
	m.sends = append(m.sends, p)
	var g *gate
	if len(m.sendGates) > 0 {
		g = m.sendGates[0]
		m.sendGates = m.sendGates[1:]
	}
	fn := m.sendFn
	m.mu.Unlock()

	if g != nil {
		g.wait()
	}
	if fn != nil {
		return fn(peerID, p)
	}
	return &chat.Message{
		ID:         "srv-" + p.TempID,
		SenderID:   selfID,
		ReceiverID: peerID,
		Text:       p.Text,
		ReplyToID:  p.ReplyToID,
		CreatedAt:  t0,
	}, nil
}

func (m *mockTransport) SetReaction(ctx context.Context, messageID, emoji string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactionCall = append(m.reactionCall, messageID+":"+emoji)
	if m.reactionErr != nil {
		return nil, m.reactionErr
	}
	current := m.reactions[messageID]
	next := make(map[string]string)
	for k, v := range current {
		next[k] = v
	}
	if next[selfID] == emoji {
		delete(next, selfID)
	} else {
		next[selfID] = emoji
	}
	m.reactions[messageID] = next
	return next, nil
}

func (m *mockTransport) MarkRead(ctx context.Context, peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markReads = append(m.markReads, peerID)
	return m.markReadErr
}

func (m *mockTransport) Contacts(ctx context.Context) ([]chat.Contact, error) {
	return m.contacts, nil
}

func (m *mockTransport) ChatPartners(ctx context.Context) ([]chat.Contact, error) {
	return nil, errors.New("directory offline")
}

func (m *mockTransport) gateSend() *gate {
	g := newGate()
	m.mu.Lock()
	m.sendGates = append(m.sendGates, g)
	m.mu.Unlock()
	return g
}

func (m *mockTransport) gateHistory(peerID string) *gate {
	g := newGate()
	m.mu.Lock()
	m.historyGate[peerID] = g
	m.mu.Unlock()
	return g
}

func (m *mockTransport) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

func (m *mockTransport) reactionCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reactionCall...)
}

// mockStream implements EventStream, recording every attached table.
type mockStream struct {
	mu        sync.Mutex
	tables    []*Handlers
	detached  []bool
	attachErr error
	signals   []chat.Signal
}

type mockSubscription struct {
	stream *mockStream
	index  int
}

func (s *mockSubscription) Detach() {
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()
	s.stream.detached[s.index] = true
}

func (m *mockStream) Attach(h *Handlers) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachErr != nil {
		return nil, m.attachErr
	}
	m.tables = append(m.tables, h)
	m.detached = append(m.detached, false)
	return &mockSubscription{stream: m, index: len(m.tables) - 1}, nil
}

func (m *mockStream) Emit(ctx context.Context, s chat.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, s)
	return nil
}

// table returns the i-th attached handler table, whether or not it is detached.
func (m *mockStream) table(i int) *Handlers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[i]
}

// live returns the single attached table that has not been detached.
func (m *mockStream) live(t *testing.T) *Handlers {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var live *Handlers
	for i, h := range m.tables {
		if !m.detached[i] {
			require.Nil(t, live, "more than one handler table attached")
			live = h
		}
	}
	require.NotNil(t, live, "no handler table attached")
	return live
}

func (m *mockStream) isDetached(i int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detached[i]
}

func (m *mockStream) attachCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables)
}

func (m *mockStream) liveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.detached {
		if !d {
			n++
		}
	}
	return n
}

func (m *mockStream) emitted() []chat.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.Signal(nil), m.signals...)
}

type mockNotifier struct {
	mu   sync.Mutex
	msgs []chat.Message
}

func (n *mockNotifier) MessageReceived(msg chat.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *mockNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

type mockAssistant struct {
	err error
}

func (a *mockAssistant) SmartReplies(ctx context.Context, self string, history []chat.Message) ([]string, error) {
	if a.err != nil {
		return nil, a.err
	}
	return []string{fmt.Sprintf("%d messages", len(history))}, nil
}

func (a *mockAssistant) Translate(ctx context.Context, text, lang string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return lang + ":" + text, nil
}

func (a *mockAssistant) Summarize(ctx context.Context, history []chat.Message) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return fmt.Sprintf("summary of %d", len(history)), nil
}

type testEngine struct {
	*Engine
	transport *mockTransport
	stream    *mockStream
	notifier  *mockNotifier
	clock     *typing.FakeClock
}

type engineOption func(*Config, *Deps)

func newTestEngine(t *testing.T, opts ...engineOption) *testEngine {
	t.Helper()
	tr := newMockTransport()
	st := &mockStream{}
	nt := &mockNotifier{}
	clock := typing.NewFakeClock(t0)

	var seq int
	var seqMu sync.Mutex
	cfg := Config{SelfID: selfID, Notifications: true}
	deps := Deps{
		Transport: tr,
		Stream:    st,
		Directory: tr,
		Notifier:  nt,
		Clock:     clock,
		NewTempID: func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("%s%d", chat.TempIDPrefix, seq)
		},
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	eng, err := New(cfg, deps)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(context.Background())
	}()
	t.Cleanup(func() {
		_ = eng.Close()
		<-done
	})

	return &testEngine{Engine: eng, transport: tr, stream: st, notifier: nt, clock: clock}
}

// sync waits until every previously posted loop operation has run.
func (te *testEngine) sync(t *testing.T) State {
	t.Helper()
	st, err := te.Snapshot(t.Context())
	require.NoError(t, err)
	return st
}

func ids(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func peerMsg(id string, at time.Duration) chat.Message {
	return chat.Message{ID: id, SenderID: peerP, ReceiverID: selfID, Text: "from peer " + id, CreatedAt: t0.Add(at)}
}

func myMsg(id string, at time.Duration) chat.Message {
	return chat.Message{ID: id, SenderID: selfID, ReceiverID: peerP, Text: "from me " + id, CreatedAt: t0.Add(at)}
}
