package mesh

import (
	"context"

	"github.com/behide-game/Behide/internal/peer"
	"github.com/behide-game/Behide/internal/result"
	"github.com/behide-game/Behide/internal/room"
	"github.com/behide-game/Behide/internal/signaling"
)

// StartHost creates a mesh as HostPeerID and registers a room. Offer
// requests are served before the room exists, so no join can be missed.
// A CreateRoom failure is returned unchanged and ends the session.
func (m *Manager) StartHost(ctx context.Context) (room.ID, error) {
	if err := m.begin(signaling.HostPeerID, room.ID{}); err != nil {
		return room.ID{}, err
	}

	id, err := m.sig.CreateRoom(ctx)
	if err != nil {
		m.teardown()
		return room.ID{}, err
	}

	m.mu.Lock()
	m.room = id
	m.mu.Unlock()

	m.logger.Info("hosting room", "room", id.String())
	return id, nil
}

// serveOfferRequests answers every offer request until the session ends.
func (m *Manager) serveOfferRequests(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case req := <-m.sig.OfferRequests():
			m.handleOfferRequest(ctx, req)
		case <-m.sig.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleOfferRequest reserves the asking peer's slot, then creates and
// reports an offer for it. The rest of the handshake runs in the background.
func (m *Manager) handleOfferRequest(ctx context.Context, req *signaling.OfferRequest) {
	asking := req.AskingPeer
	logger := m.logger.With("peer_id", asking)

	if !m.reserve(asking) {
		logger.Warn("offer requested for a peer that is already registered")
		m.reply(req, result.Fail[signaling.OfferID](ErrDuplicatePeer))
		return
	}
	m.events.push(Event{Kind: PeerPending, Peer: asking})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		link, err := m.newLink()
		if err != nil {
			m.release(asking, nil)
			m.reply(req, result.Fail[signaling.OfferID](err))
			m.fail(asking, err)
			return
		}

		negCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		offerer := peer.NewOfferer(m.sig, link, logger)
		id, err := offerer.CreateOffer(negCtx)
		m.reply(req, result.Of(id, err))
		if err != nil {
			m.release(asking, nil)
			m.fail(asking, err)
			return
		}

		if err := offerer.Wait(negCtx); err != nil {
			m.release(asking, nil)
			m.fail(asking, err)
			return
		}

		established, err := offerer.Link()
		if err != nil {
			m.release(asking, nil)
			m.fail(asking, err)
			return
		}
		if err := m.establish(asking, established); err != nil {
			m.fail(asking, err)
		}
	}()
}

func (m *Manager) reply(req *signaling.OfferRequest, res result.Result[signaling.OfferID]) {
	if err := req.Reply(res); err != nil {
		m.logger.Warn("failed to reply to offer request", "peer_id", req.AskingPeer, "err", err)
	}
}
