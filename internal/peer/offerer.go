package peer

import (
	"context"
	"log/slog"

	"github.com/behide-game/Behide/internal/signaling"
)

// Offerer is the side of a connection that publishes an offer and waits for
// the remote peer to answer it.
type Offerer struct {
	conn
	offerID signaling.OfferID
}

func NewOfferer(sig Signaler, link Link, logger *slog.Logger) *Offerer {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Offerer{}
	o.init(sig, link, logger.With("role", "offerer"))
	return o
}

// CreateOffer generates the local description, submits it to the signaling
// service and returns its id without waiting for the answer.
func (o *Offerer) CreateOffer(ctx context.Context) (signaling.OfferID, error) {
	if err := o.advance(NegotiatingLocal, Created); err != nil {
		return "", newError("create offer", o.State(), err)
	}

	sdp, err := o.link.Offer(ctx)
	if err != nil {
		return "", o.fail("create offer", err)
	}

	id, err := o.sig.AddOffer(ctx, sdp)
	if err != nil {
		return "", o.fail("submit offer", err)
	}
	o.offerID = id

	if err := o.advance(AwaitingRemote, NegotiatingLocal); err != nil {
		return "", o.fail("create offer", err)
	}
	return id, nil
}

// OfferID is the id returned by CreateOffer.
func (o *Offerer) OfferID() signaling.OfferID {
	return o.offerID
}

// Wait suspends until the remote answer arrives and the link connects.
// Cancelling ctx fails the connection and releases the link.
func (o *Offerer) Wait(ctx context.Context) error {
	if s := o.State(); s != AwaitingRemote {
		return newError("wait answer", s, ErrInvalidState)
	}

	answer, err := o.sig.AwaitAnswer(ctx, o.offerID)
	if err != nil {
		return o.fail("wait answer", err)
	}

	if err := o.link.AcceptAnswer(answer); err != nil {
		return o.fail("accept answer", err)
	}

	if err := o.link.WaitConnected(ctx); err != nil {
		return o.fail("connect", err)
	}

	if err := o.advance(Established, AwaitingRemote); err != nil {
		return o.fail("connect", err)
	}
	return nil
}
