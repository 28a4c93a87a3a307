package peer

import (
	"log/slog"
	"slices"
	"sync"
)

// conn holds what both roles share: the link, the state and its observers.
type conn struct {
	sig    Signaler
	link   Link
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	released  bool
	observers []func(State)
}

func (c *conn) init(sig Signaler, link Link, logger *slog.Logger) {
	c.sig = sig
	c.link = link
	c.logger = logger
}

// State returns the current state.
func (c *conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn to be called after every transition.
func (c *conn) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Link hands the established link over to the caller, who then owns it and
// must close it. Only the first call succeeds; later ones get ErrLinkReleased.
func (c *conn) Link() (Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Established {
		return nil, ErrInvalidState
	}
	if c.released {
		return nil, ErrLinkReleased
	}
	c.released = true
	return c.link, nil
}

// advance moves from one of the expected states to next.
func (c *conn) advance(next State, from ...State) error {
	c.mu.Lock()
	ok := false
	for _, s := range from {
		if c.state == s {
			ok = true
			break
		}
	}
	if !ok {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.state = next
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	c.logger.Debug("peer connection state changed", "state", next)
	for _, fn := range observers {
		fn(next)
	}
	return nil
}

// fail moves to Failed, closes the link and returns err wrapped for op.
func (c *conn) fail(op string, err error) error {
	c.mu.Lock()
	at := c.state
	if at.Terminal() {
		c.mu.Unlock()
		return newError(op, at, err)
	}
	c.state = Failed
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	if cerr := c.link.Close(); cerr != nil {
		c.logger.Debug("closing failed link", "err", cerr)
	}
	c.logger.Debug("peer connection failed", "op", op, "state", at, "err", err)
	for _, fn := range observers {
		fn(Failed)
	}
	return newError(op, at, err)
}
