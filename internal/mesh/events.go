package mesh

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/behide-game/Behide/internal/signaling"
)

type EventKind int

const (
	PeerPending EventKind = iota
	PeerConnected
	PeerFailed
	PeerDisconnected
)

func (k EventKind) String() string {
	switch k {
	case PeerPending:
		return "pending"
	case PeerConnected:
		return "connected"
	case PeerFailed:
		return "failed"
	case PeerDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a change in one peer's connection.
type Event struct {
	Kind EventKind
	Peer signaling.PeerID
	Err  error
}

type eventQueue struct {
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
	ch     chan Event
}

func newEventQueue(logger *slog.Logger) *eventQueue {
	return &eventQueue{logger: logger, ch: make(chan Event, 64)}
}

func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- e:
	default:
		q.logger.Debug("event queue full, dropping event", "kind", e.Kind, "peer_id", e.Peer)
	}
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
