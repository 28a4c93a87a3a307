package peer

import (
	"context"

	"github.com/behide-game/Behide/internal/signaling"
)

// Link is the underlying transport handle of one peer connection.
// Descriptions are complete (non-trickle): everything the remote side needs
// travels in the single offer or answer string.
type Link interface {
	// Offer produces the local offer description.
	Offer(ctx context.Context) (string, error)
	// Answer applies a remote offer and produces the local answer.
	Answer(ctx context.Context, offer string) (string, error)
	// AcceptAnswer applies the remote answer to a previously created offer.
	AcceptAnswer(answer string) error
	// WaitConnected blocks until the link is usable.
	WaitConnected(ctx context.Context) error

	Send(data []byte) error
	OnMessage(fn func(data []byte))

	// Done is closed once the link is closed or the remote side is lost.
	Done() <-chan struct{}
	Close() error
}

// Signaler is the part of the signaling client the roles rely on.
// *signaling.Client implements it.
type Signaler interface {
	AddOffer(ctx context.Context, sdp string) (signaling.OfferID, error)
	AwaitAnswer(ctx context.Context, id signaling.OfferID) (string, error)
	GetOffer(ctx context.Context, id signaling.OfferID) (string, error)
	AddAnswer(ctx context.Context, id signaling.OfferID, sdp string) error
}
