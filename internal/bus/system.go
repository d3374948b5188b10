package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Handler is the behavior of an actor.
//
// Receive is called once per delivered message, on the actor's goroutine.
// The returned payload is the reply; a returned error is reported to the
// sender as an ExecutionError. Replies are only routed for send-for-reply
// messages.
type Handler interface {
	Receive(c *Context) ([]byte, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(c *Context) ([]byte, error)

// Receive calls f(c).
func (f HandlerFunc) Receive(c *Context) ([]byte, error) {
	return f(c)
}

// System is an in-process actor system.
//
// Every actor owns one goroutine that drains its mailbox sequentially, so a
// handler never runs concurrently with itself. Replies travel on a separate
// path: they are pushed into the inbox of the handling context that sent the
// request, keyed by message id.
//
// Thread-safety: all exported methods are safe for concurrent use.
type System struct {
	ids    IDGenerator
	clock  *Clock
	logger *slog.Logger

	mu      sync.RWMutex
	actors  map[ActorID]*actor
	waiting map[MessageID]*queue[Reply]
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// Option configures a System.
type Option func(*System)

// WithIDGenerator sets the actor id generator (default UUIDv7Generator).
func WithIDGenerator(g IDGenerator) Option {
	return func(s *System) {
		s.ids = g
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *System) {
		s.logger = l
	}
}

// NewSystem creates an empty, running system.
func NewSystem(opts ...Option) *System {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	s := &System{
		ids:     UUIDv7Generator{},
		clock:   NewClock(),
		logger:  slog.Default(),
		actors:  make(map[ActorID]*actor),
		waiting: make(map[MessageID]*queue[Reply]),
		ctx:     gctx,
		cancel:  cancel,
		group:   group,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type actor struct {
	id      ActorID
	handler Handler
	mailbox *queue[Message]
	limiter *rate.Limiter
}

// SpawnOption configures a single actor.
type SpawnOption func(*actor)

// WithDeliveryRate throttles delivery into the actor to rps messages per
// second with the given burst. Useful to model a slow target.
func WithDeliveryRate(rps float64, burst int) SpawnOption {
	return func(a *actor) {
		a.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Spawn starts an actor under a freshly generated id.
func (s *System) Spawn(h Handler, opts ...SpawnOption) (ActorID, error) {
	id := s.ids.Generate()
	if err := s.SpawnAt(id, h, opts...); err != nil {
		return "", err
	}
	return id, nil
}

// SpawnAt starts an actor under a caller-chosen id.
func (s *System) SpawnAt(id ActorID, h Handler, opts ...SpawnOption) error {
	a := &actor{
		id:      id,
		handler: h,
		mailbox: newQueue[Message](),
	}
	for _, opt := range opts {
		opt(a)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, exists := s.actors[id]; exists {
		return fmt.Errorf("spawn %s: %w", id, ErrActorExists)
	}
	s.actors[id] = a

	s.group.Go(func() error {
		s.loop(a)
		return nil
	})

	s.logger.Debug("actor spawned", "actor", id)
	return nil
}

// Send delivers payload to `to` on behalf of `from` without expecting a reply.
// from may be empty for anonymous senders.
func (s *System) Send(from, to ActorID, payload []byte, gas, value uint64) error {
	_, err := s.post(Message{
		Source:  from,
		Dest:    to,
		Payload: payload,
		Gas:     gas,
		Value:   value,
	}, nil)
	return err
}

// Call sends payload to `to` on behalf of `from` and blocks until the reply
// arrives or ctx is done.
//
// A target-side failure is returned inside Reply.Err, not as the error
// result; the error result is reserved for delivery problems.
func (s *System) Call(ctx context.Context, from, to ActorID, payload []byte, gas, value uint64) (Reply, error) {
	inbox := newQueue[Reply]()
	defer inbox.Close()

	id, err := s.post(Message{
		Source:        from,
		Dest:          to,
		Payload:       payload,
		Gas:           gas,
		Value:         value,
		ReplyExpected: true,
	}, inbox)
	if err != nil {
		return Reply{}, err
	}
	defer s.forget(id)

	reply, err := inbox.Pop(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("await reply to %d: %w", id, err)
	}
	return reply, nil
}

// Close stops every actor and waits for their goroutines to exit.
// Messages still queued are dropped.
func (s *System) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, a := range s.actors {
		a.mailbox.Close()
	}
	s.mu.Unlock()

	s.cancel()
	return s.group.Wait()
}

// post stamps msg with a fresh id and enqueues it. When inbox is non-nil the
// reply is routed there.
//
// The correlation entry is registered before the message becomes visible to
// the target, so a fast reply can never miss it.
func (s *System) post(msg Message, inbox *queue[Reply]) (MessageID, error) {
	msg.ID = s.clock.Next()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	a, ok := s.actors[msg.Dest]
	if !ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("send to %s: %w", msg.Dest, ErrUnknownActor)
	}
	if inbox != nil {
		s.waiting[msg.ID] = inbox
	}
	s.mu.Unlock()

	if !a.mailbox.Push(msg) {
		s.forget(msg.ID)
		return 0, fmt.Errorf("send to %s: %w", msg.Dest, ErrClosed)
	}

	s.logger.Debug("message posted",
		"id", msg.ID,
		"from", msg.Source,
		"to", msg.Dest,
		"gas", msg.Gas,
		"reply_expected", msg.ReplyExpected,
	)
	return msg.ID, nil
}

// forget removes the correlation entry for id, if any.
func (s *System) forget(id MessageID) {
	s.mu.Lock()
	delete(s.waiting, id)
	s.mu.Unlock()
}

// route hands reply to whoever is waiting on it. Replies nobody waits for
// any more are dropped.
func (s *System) route(reply Reply) {
	s.mu.Lock()
	inbox, ok := s.waiting[reply.To]
	delete(s.waiting, reply.To)
	s.mu.Unlock()

	if !ok || !inbox.Push(reply) {
		s.logger.Debug("reply dropped", "to", reply.To, "from", reply.From)
	}
}

func (s *System) loop(a *actor) {
	for {
		msg, err := a.mailbox.Pop(s.ctx)
		if err != nil {
			return
		}
		if a.limiter != nil {
			if err := a.limiter.Wait(s.ctx); err != nil {
				return
			}
		}
		s.deliver(a, msg)
	}
}

func (s *System) deliver(a *actor, msg Message) {
	c := newContext(s, a.id, msg)
	payload, err := receive(a.handler, c)
	c.finish()

	if err != nil {
		s.logger.Debug("handler failed", "actor", a.id, "message", msg.ID, "error", err)
	}

	if !msg.ReplyExpected {
		return
	}

	reply := Reply{To: msg.ID, From: a.id, Payload: payload}
	if err != nil {
		reply.Payload = nil
		reply.Err = &ExecutionError{Actor: a.id, Reason: err.Error()}
	}
	s.route(reply)
}

// receive runs the handler, turning a panic into an error so one broken
// actor cannot take the system down.
func receive(h Handler, c *Context) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Receive(c)
}
