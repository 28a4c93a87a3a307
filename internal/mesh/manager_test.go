package mesh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/behide-game/Behide/internal/peer"
	"github.com/behide-game/Behide/internal/peer/peertest"
	"github.com/behide-game/Behide/internal/room"
	"github.com/behide-game/Behide/internal/signaling"
	"github.com/behide-game/Behide/internal/transport"
)

// stubSignaling fails room operations with fixed errors.
type stubSignaling struct {
	*peertest.Signaler
	createErr error
	requests  chan *signaling.OfferRequest
	done      chan struct{}
	created   bool
	creates   int
	left      int

	// subscribed is closed the first time OfferRequests is read.
	subscribed chan struct{}
	once       sync.Once
}

func newStub() *stubSignaling {
	return &stubSignaling{
		Signaler:   peertest.NewSignaler(),
		requests:   make(chan *signaling.OfferRequest),
		done:       make(chan struct{}),
		subscribed: make(chan struct{}),
	}
}

func (s *stubSignaling) CreateRoom(context.Context) (room.ID, error) {
	select {
	case <-s.subscribed:
	case <-time.After(time.Second):
		return room.ID{}, errors.New("no offer request consumer running")
	}
	s.created = true
	s.creates++
	if s.createErr != nil {
		return room.ID{}, s.createErr
	}
	id, _ := room.Parse("ABC123")
	return id, nil
}

func (s *stubSignaling) JoinRoom(context.Context, room.ID) (*signaling.JoinRoomInfo, error) {
	return nil, signaling.ErrRoomNotFound
}

func (s *stubSignaling) LeaveRoom(context.Context) error {
	s.left++
	return nil
}

func (s *stubSignaling) OfferRequests() <-chan *signaling.OfferRequest {
	s.once.Do(func() { close(s.subscribed) })
	return s.requests
}
func (s *stubSignaling) Done() <-chan struct{} { return s.done }

func newTestManager(sig Signaling) *Manager {
	net := peertest.NewNetwork()
	return NewManager(sig, func() (peer.Link, error) { return net.NewLink() }, transport.New())
}

func TestStartHost_PropagatesCreateRoomError(t *testing.T) {
	sig := newStub()
	sig.createErr = errors.New("service unavailable")
	m := newTestManager(sig)
	defer m.Close()

	_, err := m.StartHost(context.Background())
	if err != sig.createErr {
		t.Fatalf("StartHost err=%v, want the CreateRoom error unchanged", err)
	}
	if m.Len() != 0 {
		t.Fatalf("registry size=%d after failure, want 0", m.Len())
	}
}

func TestStartHost_RetryAfterFailure(t *testing.T) {
	sig := newStub()
	sig.createErr = errors.New("service unavailable")
	m := newTestManager(sig)
	defer m.Close()

	if _, err := m.StartHost(context.Background()); err != sig.createErr {
		t.Fatalf("first StartHost err=%v, want the CreateRoom error", err)
	}
	if sig.left != 0 {
		t.Fatalf("left a room that was never created")
	}

	sig.createErr = nil
	id, err := m.StartHost(context.Background())
	if err != nil {
		t.Fatalf("StartHost retry: %v", err)
	}
	if id.String() != "ABC123" || sig.creates != 2 {
		t.Fatalf("room=%v creates=%d, want ABC123 after 2 attempts", id, sig.creates)
	}
	if m.Self() != signaling.HostPeerID || m.Len() != 1 {
		t.Fatalf("self=%d registry=%d, want host alone", m.Self(), m.Len())
	}

	m.Close()
	if sig.left != 1 {
		t.Fatalf("LeaveRoom calls=%d after Close, want 1", sig.left)
	}
}

func TestStartHost_HandlerRunsBeforeCreateRoom(t *testing.T) {
	sig := newStub()
	m := newTestManager(sig)
	defer m.Close()

	if _, err := m.StartHost(context.Background()); err != nil {
		t.Fatalf("StartHost: %v", err)
	}

	if !m.started || !sig.created {
		t.Fatalf("session not started")
	}
	if _, err := m.StartHost(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second StartHost err=%v, want ErrAlreadyStarted", err)
	}
}

func TestRegistry_AtMostOneEntryPerPeer(t *testing.T) {
	m := newTestManager(newStub())
	defer m.Close()

	if err := m.begin(signaling.HostPeerID, room.ID{}); err != nil {
		t.Fatalf("begin: %v", err)
	}

	if m.reserve(signaling.HostPeerID) {
		t.Fatalf("reserved the local peer id")
	}
	if !m.reserve(2) {
		t.Fatalf("first reserve(2) failed")
	}
	if m.reserve(2) {
		t.Fatalf("second reserve(2) succeeded")
	}

	m.release(2, nil)
	if !m.reserve(2) {
		t.Fatalf("reserve(2) after release failed")
	}
	if got := m.Len(); got != 2 {
		t.Fatalf("Len=%d, want 2", got)
	}
}

func TestRelease_KeepsEstablishedEntries(t *testing.T) {
	m := newTestManager(newStub())
	defer m.Close()

	if err := m.begin(signaling.HostPeerID, room.ID{}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	m.release(signaling.HostPeerID, nil)
	if m.Len() != 1 {
		t.Fatalf("established self entry was released")
	}
}

func TestClose_Idempotent(t *testing.T) {
	m := newTestManager(newStub())
	if _, err := m.StartHost(context.Background()); err != nil {
		t.Fatalf("StartHost: %v", err)
	}
	m.Close()
	m.Close()

	if _, ok := <-m.Events(); ok {
		t.Fatalf("events channel still open after Close")
	}
	if err := m.StartClient(context.Background(), room.ID{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("StartClient after Close err=%v, want ErrClosed", err)
	}
}
