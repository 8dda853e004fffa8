// ABOUTME: Conversation engine owning the event loop that serializes all state mutation
// ABOUTME: Public operations post closures to the loop; network calls run on caller goroutines

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/store"
	"github.com/2389/coven-chat/internal/typing"
)

const (
	defaultQueueSize = 256

	// signalTimeout bounds a single outbound typing signal.
	signalTimeout = 5 * time.Second
)

var (
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("engine already running")

	// ErrNoAssistant is returned by AI operations when no Assistant is configured.
	ErrNoAssistant = errors.New("no assistant configured")

	// ErrNoDirectory is returned by contact listings when no Directory is configured.
	ErrNoDirectory = errors.New("no directory configured")
)

// Phase is the session state machine position.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseLoading    Phase = "loading"
	PhaseSubscribed Phase = "subscribed"
)

// Status is the published session state.
type Status struct {
	PeerID     string
	Phase      Phase
	Loading    bool
	Generation uint64
}

// State is a full copy of the active conversation.
type State struct {
	Status
	Messages    []chat.Message
	TypingPeers []string
}

// Config tunes the engine. Zero values select defaults.
type Config struct {
	// SelfID is the local user's id. Required.
	SelfID            string
	TypingQuietPeriod time.Duration
	Notifications     bool
	RetiredCapacity   int
	QueueSize         int
}

// Deps are the engine's collaborators. Transport and Stream are required.
type Deps struct {
	Transport Transport
	Stream    EventStream
	Directory Directory
	Assistant Assistant
	Notifier  Notifier
	Clock     typing.Clock
	Metrics   *Metrics
	Logger    *slog.Logger

	// NewTempID overrides temporary id generation. It must return ids
	// carrying chat.TempIDPrefix.
	NewTempID func() string
}

type opKind string

const (
	opSend     opKind = "send"
	opReaction opKind = "reaction"
)

// pendingOp is an in-flight send or reaction change.
type pendingOp struct {
	kind       opKind
	target     string // temp id or message id
	generation uint64
	started    time.Time
	prior      string // reaction held before the change
}

// Engine synchronizes the selected conversation with the server.
type Engine struct {
	cfg       Config
	transport Transport
	stream    EventStream
	directory Directory
	assistant Assistant
	notifier  Notifier
	clock     typing.Clock
	metrics   *Metrics
	logger    *slog.Logger
	newTempID func() string

	store       *store.MessageStore
	typing      *typing.Controller
	broadcaster *EventBroadcaster
	unobserve   func()

	ops       chan func()
	closing   chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	status    atomic.Pointer[Status]
	notify    atomic.Bool

	// Owned by the loop goroutine.
	peerID     string
	phase      Phase
	loading    bool
	generation uint64
	sub        Subscription
	pending    map[string]*pendingOp
}

// New creates an engine. Call Run to start processing.
func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.SelfID == "" {
		return nil, errors.New("self id is required")
	}
	if deps.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if deps.Stream == nil {
		return nil, errors.New("event stream is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = typing.RealClock{}
	}
	if deps.NewTempID == nil {
		deps.NewTempID = func() string { return chat.TempIDPrefix + uuid.New().String() }
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	e := &Engine{
		cfg:         cfg,
		transport:   deps.Transport,
		stream:      deps.Stream,
		directory:   deps.Directory,
		assistant:   deps.Assistant,
		notifier:    deps.Notifier,
		clock:       deps.Clock,
		metrics:     deps.Metrics,
		logger:      deps.Logger.With("component", "engine"),
		newTempID:   deps.NewTempID,
		store:       store.New(cfg.RetiredCapacity),
		broadcaster: NewEventBroadcaster(deps.Logger),
		ops:         make(chan func(), cfg.QueueSize),
		closing:     make(chan struct{}),
		stopped:     make(chan struct{}),
		phase:       PhaseIdle,
		pending:     make(map[string]*pendingOp),
	}
	e.notify.Store(cfg.Notifications)
	e.typing = typing.NewController(typing.Config{
		Clock:       deps.Clock,
		QuietPeriod: cfg.TypingQuietPeriod,
		Emit:        e.emitSignal,
		Logger:      deps.Logger,
	})
	e.unobserve = e.store.Observe(func(c store.Change) {
		e.broadcaster.Publish(Update{Kind: UpdateMessages, PeerID: e.peerID, Generation: e.generation, Change: &c})
	})
	e.status.Store(&Status{Phase: PhaseIdle})
	return e, nil
}

// Run processes operations until ctx is done or Close is called.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(e.stopped)
	defer e.shutdown()

	e.logger.Info("engine started", "self_id", e.cfg.SelfID)
	for {
		select {
		case fn := <-e.ops:
			fn()
		case <-e.closing:
			return nil
		case <-ctx.Done():
			e.closeOnce.Do(func() { close(e.closing) })
			return ctx.Err()
		}
	}
}

// Close detaches the event stream, cancels the typing timer and stops the
// loop. It waits for Run to return. Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.closing) })
	if e.started.CompareAndSwap(false, true) {
		e.shutdown()
		close(e.stopped)
		return nil
	}
	<-e.stopped
	return nil
}

func (e *Engine) shutdown() {
	if e.sub != nil {
		e.sub.Detach()
		e.sub = nil
	}
	e.typing.Cancel()
	e.unobserve()
	e.broadcaster.Close()
	e.metrics.setPending(0)
	e.logger.Info("engine stopped", "pending_operations", len(e.pending))
}

// do runs fn on the loop and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	op := func() {
		defer close(done)
		fn()
	}

	select {
	case e.ops <- op:
	case <-e.closing:
		return chat.ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-e.stopped:
		select {
		case <-done:
			return nil
		default:
			return chat.ErrEngineClosed
		}
	}
}

// post queues fn without waiting. Used by event handlers.
func (e *Engine) post(fn func()) {
	select {
	case e.ops <- fn:
	case <-e.closing:
	}
}

// current reports whether gen is the active session. Loop only.
func (e *Engine) current(gen uint64) bool {
	return gen == e.generation && e.phase != PhaseIdle
}

// publishStatus must be called on the loop after every transition.
func (e *Engine) publishStatus() {
	st := &Status{PeerID: e.peerID, Phase: e.phase, Loading: e.loading, Generation: e.generation}
	e.status.Store(st)
	e.broadcaster.Publish(Update{Kind: UpdateSession, PeerID: e.peerID, Generation: e.generation, Status: *st})
}

func (e *Engine) publishTyping() {
	e.broadcaster.Publish(Update{
		Kind:        UpdateTyping,
		PeerID:      e.peerID,
		Generation:  e.generation,
		TypingPeers: e.typing.TypingPeers(),
	})
}

func (e *Engine) track(id string, op *pendingOp) {
	e.pending[id] = op
	e.metrics.setPending(len(e.pending))
}

func (e *Engine) untrack(id string) *pendingOp {
	op := e.pending[id]
	delete(e.pending, id)
	e.metrics.setPending(len(e.pending))
	return op
}

// normalize fills PeerID from the local user's point of view and clears
// local-only flags on server messages.
func (e *Engine) normalize(m chat.Message) chat.Message {
	if m.PeerID == "" {
		if m.SenderID == e.cfg.SelfID {
			m.PeerID = m.ReceiverID
		} else {
			m.PeerID = m.SenderID
		}
	}
	m.Pending = false
	m.Failed = false
	return m
}

func (e *Engine) emitSignal(s chat.Signal) {
	ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
	defer cancel()
	if err := e.stream.Emit(ctx, s); err != nil {
		e.logger.Warn("failed to emit signal", "kind", s.Kind, "peer_id", s.PeerID, "error", err)
	}
}

// SelfID returns the local user's id.
func (e *Engine) SelfID() string { return e.cfg.SelfID }

// Status returns the last published session state.
func (e *Engine) Status() Status { return *e.status.Load() }

// ActivePeer returns the selected peer, or "" when idle.
func (e *Engine) ActivePeer() string { return e.status.Load().PeerID }

// Phase returns the session phase.
func (e *Engine) Phase() Phase { return e.status.Load().Phase }

// Loading reports whether history is being fetched.
func (e *Engine) Loading() bool { return e.status.Load().Loading }

// Messages returns the active conversation in display order.
func (e *Engine) Messages() []chat.Message { return e.store.Messages() }

// Message returns a copy of one message of the active conversation.
func (e *Engine) Message(id string) (*chat.Message, bool) { return e.store.Get(id) }

// TypingPeers returns the peers currently typing.
func (e *Engine) TypingPeers() []string { return e.typing.TypingPeers() }

// Snapshot returns a consistent copy of the conversation state.
func (e *Engine) Snapshot(ctx context.Context) (State, error) {
	var st State
	err := e.do(ctx, func() {
		st = State{
			Status:      Status{PeerID: e.peerID, Phase: e.phase, Loading: e.loading, Generation: e.generation},
			Messages:    e.store.Messages(),
			TypingPeers: e.typing.TypingPeers(),
		}
	})
	return st, err
}

// Subscribe streams engine updates for peerID, or every peer with AllPeers.
func (e *Engine) Subscribe(ctx context.Context, peerID string) <-chan Update {
	ch, _ := e.broadcaster.Subscribe(ctx, peerID)
	return ch
}

// NotifyTyping records a local keystroke in the composer.
func (e *Engine) NotifyTyping() { e.typing.NotifyTyping() }

// SetNotifications toggles the incoming-message notifier.
func (e *Engine) SetNotifications(enabled bool) { e.notify.Store(enabled) }

// Notifications reports whether the notifier is enabled.
func (e *Engine) Notifications() bool { return e.notify.Load() }
