// ABOUTME: Reconnecting websocket client implementing conversation.EventStream
// ABOUTME: Reader goroutine feeds a per-connection loop that owns all writes

package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/conversation"
)

const (
	DefaultReconnectMin = time.Second
	DefaultReconnectMax = 30 * time.Second
	DefaultReadLimit    = 1 << 20

	// inboundChanSize buffers frames between the reader goroutine and the loop.
	inboundChanSize = 64

	// outboundChanSize buffers signals waiting for the loop to write them.
	outboundChanSize = 16

	// jitter is uniform in [0, backoff/jitterDivisor).
	jitterDivisor = 2

	reconnectBackoffMultiplier = 2
)

var (
	ErrNotConnected   = errors.New("event stream not connected")
	ErrUnauthorized   = errors.New("event stream rejected credentials")
	ErrAlreadyRunning = errors.New("event stream already running")
	ErrNilHandlers    = errors.New("handler table is nil")
	ErrNoURL          = errors.New("websocket URL is required")
)

// wsConn abstracts the websocket so the stream can be tested without a
// network. *websocket.Conn satisfies it.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// Config configures a Stream.
type Config struct {
	URL        string
	Token      string
	CookieName string

	ReconnectMin time.Duration
	ReconnectMax time.Duration
	ReadLimit    int64

	// OnPresence is called with the sorted online user set whenever it changes.
	OnPresence func(online []string)

	Logger *slog.Logger
}

type inboundMsg struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

// Stream is a websocket-backed conversation.EventStream.
type Stream struct {
	cfg    Config
	logger *slog.Logger
	dial   func(ctx context.Context) (wsConn, error)

	attached  atomic.Pointer[attachment]
	out       chan []byte
	connected atomic.Bool
	running   atomic.Bool

	mu     sync.RWMutex
	online map[string]struct{}
}

// New creates a stream. Call Run to connect.
func New(cfg Config) (*Stream, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = DefaultReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = max(DefaultReconnectMax, cfg.ReconnectMin)
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Stream{
		cfg:    cfg,
		logger: logger.With("component", "realtime"),
		out:    make(chan []byte, outboundChanSize),
		online: make(map[string]struct{}),
	}
	s.dial = s.dialWebsocket
	return s, nil
}

func (s *Stream) dialWebsocket(ctx context.Context) (wsConn, error) {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
		if s.cfg.CookieName != "" {
			header.Set("Cookie", (&http.Cookie{Name: s.cfg.CookieName, Value: s.cfg.Token}).String())
		}
	}

	conn, resp, err := websocket.Dial(ctx, s.cfg.URL, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", s.cfg.URL, err)
	}
	return conn, nil
}

// Run connects and keeps the connection alive until ctx is cancelled or the
// server rejects the credentials.
func (s *Stream) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	backoff := s.cfg.ReconnectMin
	for {
		conn, err := s.dial(ctx)
		if err == nil {
			s.logger.Info("connected", "url", s.cfg.URL)
			backoff = s.cfg.ReconnectMin
			err = s.serve(ctx, conn)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrUnauthorized) {
			return fmt.Errorf("permanent error: %w", err)
		}

		s.logger.Warn("connection lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)

		jitter := time.Duration(rand.Int64N(int64(backoff)/jitterDivisor + 1)) //nolint:gosec // G404: reconnect jitter has no security impact
		timer := time.NewTimer(backoff + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*reconnectBackoffMultiplier, s.cfg.ReconnectMax)
	}
}

// serve runs one connection until it fails or ctx ends. All writes happen here.
func (s *Stream) serve(ctx context.Context, conn wsConn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn.SetReadLimit(s.cfg.ReadLimit)
	s.connected.Store(true)
	defer func() {
		s.connected.Store(false)
		s.setPresence(nil)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	in := make(chan inboundMsg, inboundChanSize)
	go func() {
		for {
			typ, data, err := conn.Read(connCtx)
			select {
			case in <- inboundMsg{typ: typ, data: data, err: err}:
			case <-connCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-in:
			if msg.err != nil {
				return fmt.Errorf("reading message: %w", msg.err)
			}
			if msg.typ == websocket.MessageBinary {
				s.logger.Debug("unexpected binary frame", slog.Int("bytes", len(msg.data)))
				continue
			}
			s.dispatch(msg.data)

		case data := <-s.out:
			if err := conn.Write(connCtx, websocket.MessageText, data); err != nil {
				return fmt.Errorf("writing frame: %w", err)
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Stream) dispatch(data []byte) {
	name, payload, err := decodeFrame(data)
	if err != nil {
		s.logger.Warn("dropping malformed event", "event", name, "error", err)
		return
	}
	if payload == nil {
		s.logger.Debug("ignoring unknown event", "event", name)
		return
	}
	if p, ok := payload.(presence); ok {
		s.setPresence(p.Online)
		return
	}

	a := s.attached.Load()
	if a == nil {
		s.logger.Debug("no handlers attached, dropping event", "event", name)
		return
	}
	h := a.handlers

	switch ev := payload.(type) {
	case chat.MessageCreated:
		if h.MessageCreated != nil {
			h.MessageCreated(ev)
		}
	case chat.ReactionChanged:
		if h.ReactionChanged != nil {
			h.ReactionChanged(ev)
		}
	case chat.DeliveryConfirmed:
		if h.DeliveryConfirmed != nil {
			h.DeliveryConfirmed(ev)
		}
	case chat.ReadConfirmed:
		if h.ReadConfirmed != nil {
			h.ReadConfirmed(ev)
		}
	case chat.PeerTyping:
		if h.PeerTyping != nil {
			h.PeerTyping(ev)
		}
	}
}

// attachment is the Subscription handed out by Attach.
type attachment struct {
	stream   *Stream
	handlers conversation.Handlers
}

// Detach stops delivery if this table is still the attached one.
func (a *attachment) Detach() {
	a.stream.attached.CompareAndSwap(a, nil)
}

// Attach installs h as the handler table, replacing any previous one.
// The table is copied; later changes to h have no effect.
func (s *Stream) Attach(h *conversation.Handlers) (conversation.Subscription, error) {
	if h == nil {
		return nil, ErrNilHandlers
	}
	a := &attachment{stream: s, handlers: *h}
	s.attached.Store(a)
	return a, nil
}

// Emit queues sig for the connection loop. It fails fast while disconnected.
func (s *Stream) Emit(ctx context.Context, sig chat.Signal) error {
	data, err := encodeSignal(sig)
	if err != nil {
		return err
	}
	if !s.connected.Load() {
		return ErrNotConnected
	}
	select {
	case s.out <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether a connection is currently open.
func (s *Stream) Connected() bool { return s.connected.Load() }

// IsOnline reports whether userID was in the last presence update.
func (s *Stream) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.online[userID]
	return ok
}

// OnlineUsers returns the last presence set, sorted.
func (s *Stream) OnlineUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.online)
}

func (s *Stream) setPresence(ids []string) {
	s.mu.Lock()
	if len(ids) == 0 && len(s.online) == 0 {
		s.mu.Unlock()
		return
	}
	s.online = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.online[id] = struct{}{}
	}
	online := sortedKeys(s.online)
	s.mu.Unlock()

	if s.cfg.OnPresence != nil {
		s.cfg.OnPresence(online)
	}
}

func sortedKeys(m map[string]struct{}) []string {
	return slices.Sorted(maps.Keys(m))
}

var (
	_ conversation.EventStream  = (*Stream)(nil)
	_ conversation.Subscription = (*attachment)(nil)
)
