// ABOUTME: Tests for the typing controller debounce and remote typing set
// ABOUTME: Uses FakeClock so timer behaviour is deterministic

package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/chat"
)

type emitted struct {
	at     time.Duration
	signal chat.Signal
}

type signalLog struct {
	mu    sync.Mutex
	clock *FakeClock
	start time.Time
	got   []emitted
}

func (l *signalLog) emit(s chat.Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, emitted{at: l.clock.Now().Sub(l.start), signal: s})
}

func (l *signalLog) signals() []emitted {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]emitted(nil), l.got...)
}

func newTestController(t *testing.T) (*Controller, *FakeClock, *signalLog) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	log := &signalLog{clock: clock, start: start}
	c := NewController(Config{Clock: clock, Emit: log.emit})
	c.SetPeer("peer-p")
	return c, clock, log
}

func TestController_DebounceBurst(t *testing.T) {
	c, clock, log := newTestController(t)

	// Keystrokes at 0, 200, 400, 600 ms.
	c.NotifyTyping()
	for range 3 {
		clock.Advance(200 * time.Millisecond)
		c.NotifyTyping()
	}
	clock.Advance(2 * time.Second)

	got := log.signals()
	require.Len(t, got, 2)
	assert.Equal(t, emitted{at: 0, signal: chat.Signal{Kind: chat.SignalTyping, PeerID: "peer-p"}}, got[0])
	assert.Equal(t, emitted{at: 1600 * time.Millisecond, signal: chat.Signal{Kind: chat.SignalStopTyping, PeerID: "peer-p"}}, got[1])
	assert.Equal(t, 0, clock.Pending(), "only one timer may be live at a time")
}

func TestController_NewBurstAfterStop(t *testing.T) {
	c, clock, log := newTestController(t)

	c.NotifyTyping()
	clock.Advance(time.Second)
	c.NotifyTyping()
	clock.Advance(time.Second)

	kinds := []chat.SignalKind{}
	for _, e := range log.signals() {
		kinds = append(kinds, e.signal.Kind)
	}
	assert.Equal(t, []chat.SignalKind{chat.SignalTyping, chat.SignalStopTyping, chat.SignalTyping, chat.SignalStopTyping}, kinds)
}

func TestController_CancelSuppressesStop(t *testing.T) {
	c, clock, log := newTestController(t)

	c.NotifyTyping()
	c.Cancel()
	clock.Advance(5 * time.Second)

	got := log.signals()
	require.Len(t, got, 1)
	assert.Equal(t, chat.SignalTyping, got[0].signal.Kind)
	assert.False(t, c.localTyping())
	assert.Equal(t, 0, clock.Pending())
}

func TestController_SetPeerCancelsBurst(t *testing.T) {
	c, clock, log := newTestController(t)

	c.NotifyTyping()
	c.SetPeer("peer-q")
	clock.Advance(5 * time.Second)
	c.NotifyTyping()

	got := log.signals()
	require.Len(t, got, 2)
	assert.Equal(t, "peer-p", got[0].signal.PeerID)
	assert.Equal(t, chat.Signal{Kind: chat.SignalTyping, PeerID: "peer-q"}, got[1].signal)
}

func TestController_NoPeerNoSignals(t *testing.T) {
	clock := NewFakeClock(time.Now())
	var count int
	c := NewController(Config{Clock: clock, Emit: func(chat.Signal) { count++ }})

	c.NotifyTyping()
	clock.Advance(time.Minute)
	assert.Zero(t, count)
}

func TestController_CustomQuietPeriod(t *testing.T) {
	start := time.Now()
	clock := NewFakeClock(start)
	log := &signalLog{clock: clock, start: start}
	c := NewController(Config{Clock: clock, Emit: log.emit, QuietPeriod: 3 * time.Second})
	c.SetPeer("p")

	c.NotifyTyping()
	clock.Advance(2 * time.Second)
	assert.Len(t, log.signals(), 1)
	clock.Advance(time.Second)
	assert.Len(t, log.signals(), 2)
}

func TestController_RemoteTypingSet(t *testing.T) {
	c, _, _ := newTestController(t)

	assert.True(t, c.SetPeerTyping("peer-p", true))
	assert.False(t, c.SetPeerTyping("peer-p", true))
	assert.True(t, c.IsTyping("peer-p"))
	assert.Equal(t, []string{"peer-p"}, c.TypingPeers())

	assert.True(t, c.SetPeerTyping("peer-p", false))
	assert.False(t, c.SetPeerTyping("peer-p", false))
	assert.False(t, c.IsTyping("peer-p"))

	c.SetPeerTyping("b", true)
	c.SetPeerTyping("a", true)
	assert.Equal(t, []string{"a", "b"}, c.TypingPeers())

	assert.True(t, c.Reset())
	assert.Empty(t, c.TypingPeers())
	assert.False(t, c.Reset())
}

func TestFakeClock_StopPreventsFire(t *testing.T) {
	clock := NewFakeClock(time.Now())
	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	clock.Advance(time.Minute)
	assert.False(t, fired)
}

func TestRealClock_AfterFunc(t *testing.T) {
	done := make(chan struct{})
	RealClock{}.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
