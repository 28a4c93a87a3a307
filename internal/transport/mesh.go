// Package transport carries game traffic over the links of an established mesh.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/behide-game/Behide/internal/peer"
	"github.com/behide-game/Behide/internal/signaling"
	"github.com/behide-game/Behide/internal/version"
)

var (
	ErrNoMesh      = errors.New("mesh not created")
	ErrMeshExists  = errors.New("mesh already created")
	ErrUnknownPeer = errors.New("unknown peer")
	ErrPeerExists  = errors.New("peer already added")
	ErrClosed      = errors.New("transport closed")
)

// Packet is a frame received from a peer.
type Packet struct {
	Type    string
	From    signaling.PeerID
	Payload []byte
}

// Decode decodes the packet payload into v.
func (p Packet) Decode(v any) error {
	return Message{Payload: p.Payload}.DecodePayload(v)
}

type remote struct {
	id   signaling.PeerID
	link peer.Link

	mu       sync.Mutex
	rtt      time.Duration
	lastPong uint32
	lastSeen time.Time
	version  string
	name     string
}

// Mesh is the multiplayer transport: a set of links, one per remote peer.
type Mesh struct {
	logger    *slog.Logger
	heartbeat time.Duration
	name      string

	mu      sync.Mutex
	created bool
	closed  bool
	self    signaling.PeerID
	peers   map[signaling.PeerID]*remote
	seq     uint32

	messages chan Packet
	stop     chan struct{}
	wg       sync.WaitGroup
}

type Option func(*Mesh)

// WithHeartbeat pings every peer at the given interval. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(m *Mesh) { m.heartbeat = d }
}

// WithName sets the player name announced in hello frames.
func WithName(name string) Option {
	return func(m *Mesh) { m.name = name }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Mesh) { m.logger = l }
}

func New(opts ...Option) *Mesh {
	m := &Mesh{
		logger:   slog.Default(),
		peers:    make(map[signaling.PeerID]*remote),
		messages: make(chan Packet, 256),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "transport")
	return m
}

// CreateMesh sets the local peer id. It must be called once before AddPeer,
// and again only after Reset.
func (m *Mesh) CreateMesh(self signaling.PeerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.created {
		return ErrMeshExists
	}
	m.created = true
	m.self = self

	if m.heartbeat > 0 {
		m.wg.Add(1)
		go m.heartbeatLoop(m.stop)
	}
	m.logger.Debug("mesh created", "self", self)
	return nil
}

// AddPeer starts carrying traffic over link and greets the peer.
func (m *Mesh) AddPeer(id signaling.PeerID, link peer.Link) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case !m.created:
		m.mu.Unlock()
		return ErrNoMesh
	}
	if _, ok := m.peers[id]; ok {
		m.mu.Unlock()
		return fmt.Errorf("add peer %d: %w", id, ErrPeerExists)
	}
	r := &remote{id: id, link: link, lastSeen: time.Now()}
	m.peers[id] = r
	self, stop := m.self, m.stop
	m.wg.Add(1)
	m.mu.Unlock()

	// Frames the link queued before this point are replayed here.
	link.OnMessage(func(data []byte) { m.receive(r, data) })

	go m.watch(r, stop)

	m.logger.Debug("peer added", "peer_id", id)
	return m.send(r, TypeHello, HelloPayload{
		PeerID:  self,
		Version: strings.TrimPrefix(version.Version, "v"),
		Name:    m.name,
	})
}

// watch removes the peer once its link drops.
func (m *Mesh) watch(r *remote, stop <-chan struct{}) {
	defer m.wg.Done()

	select {
	case <-r.link.Done():
	case <-stop:
		return
	}

	m.mu.Lock()
	current, ok := m.peers[r.id]
	if ok && current == r {
		delete(m.peers, r.id)
	}
	m.mu.Unlock()

	if ok && current == r {
		m.logger.Info("peer left", "peer_id", r.id)
		m.deliver(Packet{Type: TypePeerLeft, From: r.id})
	}
}

func (m *Mesh) receive(r *remote, data []byte) {
	msg, err := decode(data)
	if err != nil {
		m.logger.Warn("dropping malformed frame", "peer_id", r.id, "err", err)
		return
	}

	r.mu.Lock()
	r.lastSeen = time.Now()
	r.mu.Unlock()

	switch msg.Type {
	case TypePing:
		var ping PingPayload
		if err := msg.DecodePayload(&ping); err != nil {
			return
		}
		if err := m.send(r, TypePong, ping); err != nil {
			m.logger.Debug("pong failed", "peer_id", r.id, "err", err)
		}
		return

	case TypePong:
		var pong PingPayload
		if err := msg.DecodePayload(&pong); err != nil {
			return
		}
		rtt := time.Since(time.Unix(0, pong.SentAt))
		r.mu.Lock()
		r.rtt = rtt
		r.lastPong = pong.Seq
		r.mu.Unlock()
		return

	case TypeHello:
		var hello HelloPayload
		if err := msg.DecodePayload(&hello); err == nil {
			r.mu.Lock()
			r.version = hello.Version
			r.name = hello.Name
			r.mu.Unlock()
			if hello.PeerID != r.id {
				m.logger.Warn("peer id mismatch in hello", "link_peer_id", r.id, "hello_peer_id", hello.PeerID)
			}
		}
	}

	// Frames are attributed to the link they arrived on.
	m.deliver(Packet{Type: msg.Type, From: r.id, Payload: msg.Payload})
}

func (m *Mesh) deliver(p Packet) {
	select {
	case m.messages <- p:
	default:
		m.logger.Warn("message queue full, dropping packet", "type", p.Type, "peer_id", p.From)
	}
}

func (m *Mesh) send(r *remote, msgType string, payload any) error {
	m.mu.Lock()
	self := m.self
	m.mu.Unlock()

	msg, err := NewMessage(msgType, self, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	data, err := encode(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	return r.link.Send(data)
}

func (m *Mesh) lookup(id signaling.PeerID) (*remote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	r, ok := m.peers[id]
	if !ok {
		return nil, fmt.Errorf("peer %d: %w", id, ErrUnknownPeer)
	}
	return r, nil
}

func (m *Mesh) snapshot() []*remote {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*remote, 0, len(m.peers))
	for _, r := range m.peers {
		out = append(out, r)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].id < out[b].id })
	return out
}

// Send sends one frame to peer id.
func (m *Mesh) Send(id signaling.PeerID, msgType string, payload any) error {
	r, err := m.lookup(id)
	if err != nil {
		return err
	}
	return m.send(r, msgType, payload)
}

// Broadcast sends one frame to every peer and returns the joined errors.
func (m *Mesh) Broadcast(msgType string, payload any) error {
	var errs []error
	for _, r := range m.snapshot() {
		if err := m.send(r, msgType, payload); err != nil {
			errs = append(errs, fmt.Errorf("peer %d: %w", r.id, err))
		}
	}
	return errors.Join(errs...)
}

// Messages delivers frames from every peer.
func (m *Mesh) Messages() <-chan Packet {
	return m.messages
}

// Peers returns the connected remote peers in ascending order.
func (m *Mesh) Peers() []signaling.PeerID {
	remotes := m.snapshot()
	ids := make([]signaling.PeerID, len(remotes))
	for i, r := range remotes {
		ids[i] = r.id
	}
	return ids
}

// RTT returns the last measured round trip time to peer id.
func (m *Mesh) RTT(id signaling.PeerID) (time.Duration, error) {
	r, err := m.lookup(id)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rtt, nil
}

// Name returns the player name peer id announced in its hello, if any yet.
func (m *Mesh) Name(id signaling.PeerID) (string, error) {
	r, err := m.lookup(id)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name, nil
}

// Ping sends a heartbeat to every peer.
func (m *Mesh) Ping() {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	payload := PingPayload{Seq: seq, SentAt: time.Now().UnixNano()}
	for _, r := range m.snapshot() {
		if err := m.send(r, TypePing, payload); err != nil {
			m.logger.Debug("ping failed", "peer_id", r.id, "err", err)
		}
	}
}

func (m *Mesh) heartbeatLoop(stop <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Ping()
		case <-stop:
			return
		}
	}
}

// Reset closes every link and forgets the local peer id so CreateMesh can
// be called again. Messages already queued stay readable.
func (m *Mesh) Reset() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if !m.created {
		m.mu.Unlock()
		return nil
	}
	m.created = false
	m.self = 0
	peers, stop := m.takePeers()
	m.stop = make(chan struct{})
	m.mu.Unlock()

	m.logger.Debug("mesh reset", "peers", len(peers))
	return m.shutdown(peers, stop)
}

// Close closes every link and stops background work.
func (m *Mesh) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	peers, stop := m.takePeers()
	m.mu.Unlock()

	return m.shutdown(peers, stop)
}

// takePeers empties the peer table. m.mu must be held.
func (m *Mesh) takePeers() (map[signaling.PeerID]*remote, chan struct{}) {
	peers := m.peers
	m.peers = make(map[signaling.PeerID]*remote)
	return peers, m.stop
}

func (m *Mesh) shutdown(peers map[signaling.PeerID]*remote, stop chan struct{}) error {
	close(stop)

	var errs []error
	for _, r := range peers {
		if err := r.link.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.wg.Wait()
	return errors.Join(errs...)
}
