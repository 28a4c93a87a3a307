package signaling

import (
	"context"
	"errors"
	"testing"
)

func TestAwaitAnswer_ReleasesSlot(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", nil)

	// AddOffer reserves the slot before anyone awaits it.
	c.answerChannel("cancelled")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.AwaitAnswer(ctx, "cancelled"); !errors.Is(err, context.Canceled) {
		t.Fatalf("AwaitAnswer err=%v, want context.Canceled", err)
	}
	if n := c.pendingAnswers(); n != 0 {
		t.Fatalf("answer slots=%d after cancelled wait, want 0", n)
	}

	c.handleAnswer(&Message{Type: MessageTypeAnswer, Payload: []byte(`{"offer_id":"answered","sdp":"v=0"}`)})
	sdp, err := c.AwaitAnswer(context.Background(), "answered")
	if err != nil || sdp != "v=0" {
		t.Fatalf("AwaitAnswer=%q,%v, want v=0", sdp, err)
	}

	c.answerChannel("closed")
	c.Close()
	if _, err := c.AwaitAnswer(context.Background(), "closed"); !errors.Is(err, ErrClosed) {
		t.Fatalf("AwaitAnswer after Close err=%v, want ErrClosed", err)
	}
	if n := c.pendingAnswers(); n != 0 {
		t.Fatalf("answer slots=%d, want 0", n)
	}
}
