// Package mesh brings up a full peer-to-peer mesh for a room: every peer
// ends up with one established connection to every other peer.
package mesh

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/behide-game/Behide/internal/peer"
	"github.com/behide-game/Behide/internal/result"
	"github.com/behide-game/Behide/internal/room"
	"github.com/behide-game/Behide/internal/signaling"
)

// DefaultNegotiationTimeout bounds each peer connection handshake.
const DefaultNegotiationTimeout = 30 * time.Second

// leaveTimeout bounds the leave_room call made on teardown.
const leaveTimeout = 5 * time.Second

var (
	ErrAlreadyStarted = errors.New("mesh session already started")
	ErrDuplicatePeer  = errors.New("peer already registered")
	ErrClosed         = errors.New("mesh closed")
)

// Signaling is what the manager needs from the signaling client.
type Signaling interface {
	peer.Signaler
	CreateRoom(ctx context.Context) (room.ID, error)
	JoinRoom(ctx context.Context, id room.ID) (*signaling.JoinRoomInfo, error)
	LeaveRoom(ctx context.Context) error
	OfferRequests() <-chan *signaling.OfferRequest
	Done() <-chan struct{}
}

// Transport receives every established link. transport.Mesh implements it.
// Reset must leave it ready for another CreateMesh.
type Transport interface {
	CreateMesh(self signaling.PeerID) error
	AddPeer(id signaling.PeerID, link peer.Link) error
	Reset() error
	Close() error
}

// LinkFactory creates a fresh, unconnected link.
type LinkFactory func() (peer.Link, error)

type entryState int

const (
	statePending entryState = iota
	stateEstablished
)

type entry struct {
	state entryState
	link  peer.Link // nil for the local peer
}

// Manager coordinates mesh bring-up for one session.
type Manager struct {
	sig     Signaling
	newLink LinkFactory
	tr      Transport
	logger  *slog.Logger
	timeout time.Duration

	events *eventQueue

	mu       sync.Mutex
	started  bool
	closed   bool
	self     signaling.PeerID
	room     room.ID
	registry map[signaling.PeerID]*entry
	cancel   context.CancelFunc
	session  context.Context
	wg       sync.WaitGroup
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithNegotiationTimeout bounds each handshake. Non-positive values are ignored.
func WithNegotiationTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// NewManager wires the manager to its collaborators. Nothing is started.
func NewManager(sig Signaling, newLink LinkFactory, tr Transport, opts ...Option) *Manager {
	m := &Manager{
		sig:      sig,
		newLink:  newLink,
		tr:       tr,
		logger:   slog.Default(),
		timeout:  DefaultNegotiationTimeout,
		registry: make(map[signaling.PeerID]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "mesh")
	m.events = newEventQueue(m.logger)
	return m
}

// begin creates the mesh with self as the local peer and starts answering
// offer requests.
func (m *Manager) begin(self signaling.PeerID, id room.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}
	if err := m.tr.CreateMesh(self); err != nil {
		return err
	}

	m.started = true
	m.self = self
	m.room = id
	m.registry = map[signaling.PeerID]*entry{self: {state: stateEstablished}}
	m.session, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.serveOfferRequests(m.session)
	return nil
}

// reserve claims a registry slot for id. It fails if id already has an entry.
func (m *Manager) reserve(id signaling.PeerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.registry[id]; taken || !m.started {
		return false
	}
	m.registry[id] = &entry{state: statePending}
	return true
}

// release drops a pending entry and closes its link, if any.
func (m *Manager) release(id signaling.PeerID, link peer.Link) {
	m.mu.Lock()
	if e, ok := m.registry[id]; ok && e.state == statePending {
		delete(m.registry, id)
	}
	m.mu.Unlock()

	if link != nil {
		link.Close()
	}
}

// establish hands the link to the transport and marks the entry established.
func (m *Manager) establish(id signaling.PeerID, link peer.Link) error {
	if err := m.tr.AddPeer(id, link); err != nil {
		m.release(id, link)
		return err
	}

	m.mu.Lock()
	e, ok := m.registry[id]
	if ok {
		e.state = stateEstablished
		e.link = link
	}
	session := m.session
	m.mu.Unlock()

	if !ok {
		// The session was torn down while negotiating.
		link.Close()
		return ErrClosed
	}

	m.logger.Info("peer connected", "peer_id", id)
	m.events.push(Event{Kind: PeerConnected, Peer: id})

	m.wg.Add(1)
	go m.watch(session, id, link)
	return nil
}

// watch reports a dropped link. Established entries stay in the registry.
func (m *Manager) watch(session context.Context, id signaling.PeerID, link peer.Link) {
	defer m.wg.Done()
	select {
	case <-link.Done():
		m.logger.Info("peer disconnected", "peer_id", id)
		m.events.push(Event{Kind: PeerDisconnected, Peer: id})
	case <-session.Done():
	}
}

func (m *Manager) fail(id signaling.PeerID, err error) {
	m.logger.Warn("peer connection failed", "peer_id", id, "err", err)
	m.events.push(Event{Kind: PeerFailed, Peer: id, Err: err})
}

// Self returns the local peer id, or 0 before a session started.
func (m *Manager) Self() signaling.PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self
}

// Room returns the room of the current session.
func (m *Manager) Room() room.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

// Peers returns every registered peer id, the local one included, in order.
func (m *Manager) Peers() []signaling.PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]signaling.PeerID, 0, len(m.registry))
	for id := range m.registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// PeerStatus is one registry entry as shown in the lobby.
type PeerStatus struct {
	ID          signaling.PeerID
	Self        bool
	Established bool
}

// Snapshot returns the registry in peer id order.
func (m *Manager) Snapshot() []PeerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PeerStatus, 0, len(m.registry))
	for id, e := range m.registry {
		out = append(out, PeerStatus{ID: id, Self: id == m.self, Established: e.state == stateEstablished})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Len returns the number of registry entries, the local peer included.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registry)
}

// Events reports peer progress for the UI. Slow readers miss events.
func (m *Manager) Events() <-chan Event {
	return m.events.ch
}

// teardown ends the session: background work stops, links are closed, the
// registry is cleared and the room is left. The manager can start again.
func (m *Manager) teardown() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cancel := m.cancel
	registry := m.registry
	id := m.room
	m.registry = make(map[signaling.PeerID]*entry)
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	for _, e := range registry {
		if e.link != nil {
			e.link.Close()
		}
	}
	if err := m.tr.Reset(); err != nil {
		m.logger.Debug("resetting transport", "err", err)
	}

	if !id.IsZero() {
		m.leave(id)
	}
	m.rejectQueued()
}

// leave stops the service from asking this peer for offers.
func (m *Manager) leave(id room.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()

	err := m.sig.LeaveRoom(ctx)
	switch {
	case err == nil:
		m.logger.Info("left room", "room", id.String())
	case errors.Is(err, signaling.ErrNotInRoom), errors.Is(err, signaling.ErrClosed):
		m.logger.Debug("leave room", "room", id.String(), "err", err)
	default:
		m.logger.Warn("failed to leave room", "room", id.String(), "err", err)
	}
}

// rejectQueued fails offer requests that arrived after the session stopped
// serving them, so the joins waiting on them end now.
func (m *Manager) rejectQueued() {
	for {
		select {
		case req := <-m.sig.OfferRequests():
			m.reply(req, result.Fail[signaling.OfferID](ErrClosed))
		default:
			return
		}
	}
}

// Close ends the session and releases every link and the transport. It is
// safe to call twice.
func (m *Manager) Close() error {
	m.teardown()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.events.close()
		if err := m.tr.Close(); err != nil {
			m.logger.Debug("closing transport", "err", err)
		}
	}
	return nil
}
