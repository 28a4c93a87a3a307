package peer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/behide-game/Behide/internal/peer"
	"github.com/behide-game/Behide/internal/peer/peertest"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newLink(t *testing.T, n *peertest.Network) *peertest.Link {
	l, err := n.NewLink()
	if err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	return l
}

// recorder collects state transitions.
type recorder struct {
	mu     sync.Mutex
	states []peer.State
}

func (r *recorder) record(s peer.State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) get() []peer.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]peer.State{}, r.states...)
}

func equalStates(a, b []peer.State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOffererAnswerer_Establish(t *testing.T) {
	ctx := testContext(t)
	net := peertest.NewNetwork()
	sig := peertest.NewSignaler()

	offerLink, answerLink := newLink(t, net), newLink(t, net)

	offerer := peer.NewOfferer(sig, offerLink, nil)
	var offerStates recorder
	offerer.OnStateChange(offerStates.record)

	id, err := offerer.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offerer.State() != peer.AwaitingRemote {
		t.Fatalf("offerer state=%v, want %v", offerer.State(), peer.AwaitingRemote)
	}

	answerer := peer.NewAnswerer(sig, answerLink, id, nil)
	var answerStates recorder
	answerer.OnStateChange(answerStates.record)

	errs := make(chan error, 1)
	go func() { errs <- answerer.Connect(ctx) }()

	if err := offerer.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := <-errs; err != nil {
		t.Fatalf("Connect: %v", err)
	}

	want := []peer.State{peer.NegotiatingLocal, peer.AwaitingRemote, peer.Established}
	if got := offerStates.get(); !equalStates(got, want) {
		t.Fatalf("offerer states=%v, want %v", got, want)
	}
	if got := answerStates.get(); !equalStates(got, want) {
		t.Fatalf("answerer states=%v, want %v", got, want)
	}

	link, err := offerer.Link()
	if err != nil || link != peer.Link(offerLink) {
		t.Fatalf("Link()=%v,%v, want the offerer's link", link, err)
	}
	if _, err := offerer.Link(); !errors.Is(err, peer.ErrLinkReleased) {
		t.Fatalf("second Link() err=%v, want ErrLinkReleased", err)
	}

	got := make(chan string, 1)
	answerLink.OnMessage(func(b []byte) { got <- string(b) })
	if err := link.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg := <-got; msg != "hello" {
		t.Fatalf("received %q, want hello", msg)
	}
}

func TestOfferer_CreateOfferFailureClosesLink(t *testing.T) {
	net := peertest.NewNetwork()
	link := newLink(t, net)
	link.OfferErr = errors.New("no ice")

	offerer := peer.NewOfferer(peertest.NewSignaler(), link, nil)
	_, err := offerer.CreateOffer(testContext(t))
	if !errors.Is(err, link.OfferErr) {
		t.Fatalf("CreateOffer err=%v, want %v", err, link.OfferErr)
	}

	var perr *peer.Error
	if !errors.As(err, &perr) || perr.State != peer.NegotiatingLocal {
		t.Fatalf("err=%#v, want *peer.Error at negotiating-local", err)
	}
	if offerer.State() != peer.Failed {
		t.Fatalf("state=%v, want failed", offerer.State())
	}
	if !link.Closed() {
		t.Fatalf("link not closed after failure")
	}
}

func TestOfferer_SubmitFailure(t *testing.T) {
	net := peertest.NewNetwork()
	link := newLink(t, net)
	sig := peertest.NewSignaler()
	sig.AddOfferErr = errors.New("signaling down")

	offerer := peer.NewOfferer(sig, link, nil)
	if _, err := offerer.CreateOffer(testContext(t)); !errors.Is(err, sig.AddOfferErr) {
		t.Fatalf("CreateOffer err=%v, want %v", err, sig.AddOfferErr)
	}
	if !link.Closed() {
		t.Fatalf("link not closed after failure")
	}
}

func TestOfferer_WaitCancelled(t *testing.T) {
	net := peertest.NewNetwork()
	link := newLink(t, net)
	offerer := peer.NewOfferer(peertest.NewSignaler(), link, nil)

	if _, err := offerer.CreateOffer(testContext(t)); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := offerer.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err=%v, want deadline exceeded", err)
	}
	if offerer.State() != peer.Failed || !link.Closed() {
		t.Fatalf("state=%v closed=%v, want failed and closed", offerer.State(), link.Closed())
	}
	if _, err := offerer.Link(); !errors.Is(err, peer.ErrInvalidState) {
		t.Fatalf("Link() err=%v, want ErrInvalidState", err)
	}
}

func TestOfferer_WaitBeforeCreate(t *testing.T) {
	net := peertest.NewNetwork()
	offerer := peer.NewOfferer(peertest.NewSignaler(), newLink(t, net), nil)

	if err := offerer.Wait(testContext(t)); !errors.Is(err, peer.ErrInvalidState) {
		t.Fatalf("Wait err=%v, want ErrInvalidState", err)
	}
	if offerer.State() != peer.Created {
		t.Fatalf("state=%v, want created", offerer.State())
	}
}

func TestOfferer_CreateOfferTwice(t *testing.T) {
	net := peertest.NewNetwork()
	offerer := peer.NewOfferer(peertest.NewSignaler(), newLink(t, net), nil)
	ctx := testContext(t)

	if _, err := offerer.CreateOffer(ctx); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if _, err := offerer.CreateOffer(ctx); !errors.Is(err, peer.ErrInvalidState) {
		t.Fatalf("second CreateOffer err=%v, want ErrInvalidState", err)
	}
}

func TestAnswerer_UnknownOffer(t *testing.T) {
	net := peertest.NewNetwork()
	link := newLink(t, net)
	answerer := peer.NewAnswerer(peertest.NewSignaler(), link, "missing", nil)

	if err := answerer.Connect(testContext(t)); err == nil {
		t.Fatalf("Connect succeeded for an unknown offer")
	}
	if answerer.State() != peer.Failed || !link.Closed() {
		t.Fatalf("state=%v closed=%v, want failed and closed", answerer.State(), link.Closed())
	}
}

func TestAnswerer_NeverConnects(t *testing.T) {
	ctx := testContext(t)
	net := peertest.NewNetwork()
	sig := peertest.NewSignaler()

	offerLink, answerLink := newLink(t, net), newLink(t, net)
	answerLink.NeverConnects = true

	offerer := peer.NewOfferer(sig, offerLink, nil)
	id, err := offerer.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	answerer := peer.NewAnswerer(sig, answerLink, id, nil)
	errs := make(chan error, 1)
	go func() { errs <- answerer.Connect(short) }()

	if err := offerer.Wait(short); err == nil {
		t.Fatalf("Wait succeeded on a link that never connects")
	}
	if err := <-errs; err == nil {
		t.Fatalf("Connect succeeded on a link that never connects")
	}
	if !offerLink.Closed() || !answerLink.Closed() {
		t.Fatalf("links not released after failure")
	}
}

func TestStateString(t *testing.T) {
	cases := map[peer.State]string{
		peer.Created:          "created",
		peer.NegotiatingLocal: "negotiating-local",
		peer.AwaitingRemote:   "awaiting-remote",
		peer.Established:      "established",
		peer.Failed:           "failed",
		peer.State(42):        "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String()=%q, want %q", s, got, want)
		}
	}
	if !peer.Failed.Terminal() || !peer.Established.Terminal() || peer.AwaitingRemote.Terminal() {
		t.Fatalf("Terminal() wrong")
	}
}
