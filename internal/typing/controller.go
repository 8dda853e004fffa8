// ABOUTME: Typing indicator controller with debounced local signals
// ABOUTME: Emits one Typing per burst and one StopTyping after the quiet period

package typing

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/chat"
)

// DefaultQuietPeriod is how long after the last keystroke StopTyping is sent.
const DefaultQuietPeriod = time.Second

// EmitFunc delivers an outbound signal. It is called without the controller
// lock held and must not block for long.
type EmitFunc func(chat.Signal)

// Controller tracks local and remote typing state for one conversation at a time.
type Controller struct {
	mu     sync.Mutex
	clock  Clock
	quiet  time.Duration
	emit   EmitFunc
	logger *slog.Logger

	peerID string
	typing bool
	timer  Timer
	epoch  uint64 // bumped on Cancel and on every re-arm so stale timers are ignored
	remote map[string]struct{}
}

// Config holds controller dependencies. Zero values select defaults.
type Config struct {
	Clock       Clock
	QuietPeriod time.Duration
	Emit        EmitFunc
	Logger      *slog.Logger
}

// NewController creates a controller with no active peer.
func NewController(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = DefaultQuietPeriod
	}
	if cfg.Emit == nil {
		cfg.Emit = func(chat.Signal) {}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		clock:  cfg.Clock,
		quiet:  cfg.QuietPeriod,
		emit:   cfg.Emit,
		logger: cfg.Logger.With("component", "typing"),
		remote: make(map[string]struct{}),
	}
}

// SetPeer binds local signals to peerID. Any running burst is cancelled
// without emitting StopTyping.
func (c *Controller) SetPeer(peerID string) {
	c.mu.Lock()
	c.cancelLocked()
	c.peerID = peerID
	c.mu.Unlock()
}

// NotifyTyping records a local keystroke.
func (c *Controller) NotifyTyping() {
	c.mu.Lock()
	if c.peerID == "" {
		c.mu.Unlock()
		return
	}
	peer := c.peerID
	start := !c.typing
	c.typing = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.epoch++
	epoch := c.epoch
	c.timer = c.clock.AfterFunc(c.quiet, func() { c.quietElapsed(epoch) })
	c.mu.Unlock()

	if start {
		c.logger.Debug("typing started", "peer_id", peer)
		c.emit(chat.Signal{Kind: chat.SignalTyping, PeerID: peer})
	}
}

func (c *Controller) quietElapsed(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || !c.typing {
		c.mu.Unlock()
		return
	}
	peer := c.peerID
	c.typing = false
	c.timer = nil
	c.mu.Unlock()

	c.logger.Debug("typing stopped", "peer_id", peer)
	c.emit(chat.Signal{Kind: chat.SignalStopTyping, PeerID: peer})
}

// Cancel stops the pending quiet timer without emitting StopTyping.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.cancelLocked()
	c.mu.Unlock()
}

// cancelLocked must be called with mu held.
func (c *Controller) cancelLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.typing = false
	c.epoch++
}

// localTyping reports whether a local burst is in progress.
func (c *Controller) localTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// SetPeerTyping records a remote typing update and reports whether the set changed.
func (c *Controller) SetPeerTyping(peerID string, isTyping bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, present := c.remote[peerID]
	switch {
	case isTyping && !present:
		c.remote[peerID] = struct{}{}
		return true
	case !isTyping && present:
		delete(c.remote, peerID)
		return true
	}
	return false
}

// IsTyping reports whether peerID is currently typing.
func (c *Controller) IsTyping(peerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.remote[peerID]
	return ok
}

// TypingPeers returns the remote typing set, sorted.
func (c *Controller) TypingPeers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.remote))
	for id := range c.remote {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Reset clears the remote typing set and reports whether it was non-empty.
func (c *Controller) Reset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	had := len(c.remote) > 0
	clear(c.remote)
	return had
}
