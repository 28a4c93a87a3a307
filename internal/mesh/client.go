package mesh

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/behide-game/Behide/internal/peer"
	"github.com/behide-game/Behide/internal/room"
	"github.com/behide-game/Behide/internal/signaling"
)

// StartClient joins room id and connects to every member concurrently.
// It returns once all connections are established. If the join fails no
// mesh is created and no link is opened. If any connection fails the whole
// session is torn down and the first error is returned.
func (m *Manager) StartClient(ctx context.Context, id room.ID) error {
	m.mu.Lock()
	started, closed := m.started, m.closed
	m.mu.Unlock()
	switch {
	case closed:
		return ErrClosed
	case started:
		return ErrAlreadyStarted
	}

	info, err := m.sig.JoinRoom(ctx, id)
	if err != nil {
		return err
	}

	if err := m.begin(info.PeerID, id); err != nil {
		return err
	}
	m.logger.Info("joined room", "room", id.String(), "self", info.PeerID, "members", len(info.Peers))

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range info.Peers {
		if !m.reserve(p.PeerID) {
			m.teardown()
			return fmt.Errorf("peer %d: %w", p.PeerID, ErrDuplicatePeer)
		}
		m.events.push(Event{Kind: PeerPending, Peer: p.PeerID})

		p := p
		g.Go(func() error {
			return m.connect(gctx, p)
		})
	}

	if err := g.Wait(); err != nil {
		m.teardown()
		return err
	}
	return nil
}

// connect answers the offer published by an existing member.
func (m *Manager) connect(ctx context.Context, p signaling.PeerConnectionInfo) error {
	link, err := m.newLink()
	if err != nil {
		m.release(p.PeerID, nil)
		m.fail(p.PeerID, err)
		return fmt.Errorf("peer %d: %w", p.PeerID, err)
	}

	negCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	answerer := peer.NewAnswerer(m.sig, link, p.OfferID, m.logger.With("peer_id", p.PeerID))
	if err := answerer.Connect(negCtx); err != nil {
		m.release(p.PeerID, nil)
		m.fail(p.PeerID, err)
		return fmt.Errorf("peer %d: %w", p.PeerID, err)
	}

	established, err := answerer.Link()
	if err != nil {
		m.release(p.PeerID, nil)
		m.fail(p.PeerID, err)
		return fmt.Errorf("peer %d: %w", p.PeerID, err)
	}
	if err := m.establish(p.PeerID, established); err != nil {
		m.fail(p.PeerID, err)
		return fmt.Errorf("peer %d: %w", p.PeerID, err)
	}
	return nil
}
