package peer

import (
	"context"
	"log/slog"

	"github.com/behide-game/Behide/internal/signaling"
)

// Answerer connects to a peer by answering an offer it published.
type Answerer struct {
	conn
	offerID signaling.OfferID
}

func NewAnswerer(sig Signaler, link Link, offerID signaling.OfferID, logger *slog.Logger) *Answerer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Answerer{offerID: offerID}
	a.init(sig, link, logger.With("role", "answerer", "offer_id", offerID))
	return a
}

// Connect fetches the offer, answers it and suspends until the link is up.
// On any failure, including cancellation, the link is closed.
func (a *Answerer) Connect(ctx context.Context) error {
	if err := a.advance(NegotiatingLocal, Created); err != nil {
		return newError("connect", a.State(), err)
	}

	offer, err := a.sig.GetOffer(ctx, a.offerID)
	if err != nil {
		return a.fail("get offer", err)
	}

	answer, err := a.link.Answer(ctx, offer)
	if err != nil {
		return a.fail("create answer", err)
	}

	if err := a.advance(AwaitingRemote, NegotiatingLocal); err != nil {
		return a.fail("create answer", err)
	}

	if err := a.sig.AddAnswer(ctx, a.offerID, answer); err != nil {
		return a.fail("submit answer", err)
	}

	if err := a.link.WaitConnected(ctx); err != nil {
		return a.fail("connect", err)
	}

	if err := a.advance(Established, AwaitingRemote); err != nil {
		return a.fail("connect", err)
	}
	return nil
}
