package signaling

import (
	"context"
	"sync"

	"github.com/behide-game/Behide/internal/result"
)

// OfferRequest is the service asking this peer for a fresh offer on behalf
// of a peer that is joining the room. The service holds the join until
// Reply is called, so every request must be answered exactly once.
type OfferRequest struct {
	AskingPeer PeerID

	requestID string
	client    *Client
	once      sync.Once
}

// Reply relays the outcome of offer creation back to the service.
// A second call returns ErrAlreadyReplied.
func (r *OfferRequest) Reply(res result.Result[OfferID]) error {
	err := ErrAlreadyReplied
	r.once.Do(func() {
		var payload OfferCreatedPayload
		res.Match(
			func(id OfferID) { payload.OfferID = id },
			func(e error) { payload.Error = e.Error() },
		)

		msg, merr := NewMessage(MessageTypeOfferCreated, r.requestID, payload)
		if merr != nil {
			err = NewError("reply offer request", merr)
			return
		}
		if serr := r.client.send(context.Background(), msg); serr != nil {
			err = NewError("reply offer request", serr)
			return
		}
		err = nil
	})
	return err
}

// OfferRequests delivers "new peer wants to join" requests.
// The channel is never closed; select on Done to notice disconnection.
func (c *Client) OfferRequests() <-chan *OfferRequest {
	return c.offerRequests
}

// handleOfferRequested queues an offer request. The read pump never blocks
// on a slow consumer and a request is never dropped.
func (c *Client) handleOfferRequested(msg *Message) {
	var payload OfferRequestedPayload
	if err := msg.DecodePayload(&payload); err != nil || msg.RequestID == "" {
		c.logger.Warn("malformed offer request from signaling server", "err", err)
		return
	}

	req := &OfferRequest{
		AskingPeer: payload.AskingPeerID,
		requestID:  msg.RequestID,
		client:     c,
	}
	c.logger.Debug("offer requested", "asking_peer_id", req.AskingPeer)

	select {
	case c.offerRequests <- req:
	default:
		go func() {
			select {
			case c.offerRequests <- req:
			case <-c.done:
			}
		}()
	}
}
