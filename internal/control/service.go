package control

import (
	"errors"
	"log/slog"

	"github.com/roach88/actest/internal/bus"
)

// ErrNotOwner is reported by a Service with owner checks enabled when a
// mutating command comes from anyone but the current owner.
var ErrNotOwner = errors.New("sender is not the owner")

// Service exposes a Dispatcher as an actor. Each message is one encoded
// command; the reply is the encoded Reply. The gas a RunFixtures message
// carries is the gas the run may spend.
type Service struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
	ownerOnly  bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger (default slog.Default()).
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOwnerCheck rejects every command other than GetOwner and GetFixtures
// unless it is sent by the engine's current owner.
func WithOwnerCheck() ServiceOption {
	return func(s *Service) {
		s.ownerOnly = true
	}
}

// NewService creates a service around d.
func NewService(d *Dispatcher, opts ...ServiceOption) *Service {
	s := &Service{dispatcher: d, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Receive implements bus.Handler.
func (s *Service) Receive(c *bus.Context) ([]byte, error) {
	cmd, err := DecodeCommand(c.Payload())
	if err != nil {
		s.logger.Warn("rejected command", "source", c.Source(), "error", err)
		return nil, err
	}

	if s.ownerOnly && mutates(cmd) && c.Source() != s.dispatcher.Engine().Owner() {
		s.logger.Warn("command from non-owner", "kind", cmd.Kind(), "source", c.Source())
		return nil, ErrNotOwner
	}

	reply, err := s.dispatcher.Dispatch(c.Ctx(), cmd, c)
	if err != nil {
		return nil, err
	}
	return reply.Encode()
}

func mutates(cmd Command) bool {
	switch cmd.(type) {
	case GetOwner, GetFixtures:
		return false
	}
	return true
}
