package signaling

import "context"

// AddOffer submits a local offer description and returns the id under which
// the service stores it.
func (c *Client) AddOffer(ctx context.Context, sdp string) (OfferID, error) {
	resp, err := c.call(ctx, "add offer", MessageTypeAddOffer, "", SDPPayload{SDP: sdp}, MessageTypeOfferAdded)
	if err != nil {
		return "", err
	}

	var payload SDPPayload
	if err := resp.DecodePayload(&payload); err != nil || payload.OfferID == "" {
		return "", WrapError("add offer", ErrSignalingError, "malformed offer_added payload")
	}

	// The answer may be relayed before anyone awaits it.
	c.answerChannel(payload.OfferID)
	return payload.OfferID, nil
}

// AwaitAnswer blocks until the answer to offer id is relayed by the service.
func (c *Client) AwaitAnswer(ctx context.Context, id OfferID) (string, error) {
	ch := c.answerChannel(id)

	// Offers are single use, so the slot is dropped whatever the outcome.
	defer c.forgetAnswer(id)

	select {
	case sdp := <-ch:
		return sdp, nil
	case <-c.done:
		return "", NewError("await answer", ErrClosed)
	case <-ctx.Done():
		return "", NewError("await answer", ctx.Err())
	}
}

func (c *Client) forgetAnswer(id OfferID) {
	c.mu.Lock()
	delete(c.answers, id)
	c.mu.Unlock()
}

// pendingAnswers counts offers whose answer slot is still held.
func (c *Client) pendingAnswers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.answers)
}

// GetOffer fetches the description stored under id.
func (c *Client) GetOffer(ctx context.Context, id OfferID) (string, error) {
	resp, err := c.call(ctx, "get offer", MessageTypeGetOffer, "", SDPPayload{OfferID: id}, MessageTypeOffer)
	if err != nil {
		return "", err
	}

	var payload SDPPayload
	if err := resp.DecodePayload(&payload); err != nil || payload.SDP == "" {
		return "", WrapError("get offer", ErrSignalingError, "malformed offer payload")
	}
	return payload.SDP, nil
}

// AddAnswer submits the answer to offer id. The service relays it to the
// offer's owner.
func (c *Client) AddAnswer(ctx context.Context, id OfferID, sdp string) error {
	_, err := c.call(ctx, "add answer", MessageTypeAddAnswer, "", SDPPayload{OfferID: id, SDP: sdp}, MessageTypeAnswerAdded)
	return err
}
