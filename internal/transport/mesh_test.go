package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/behide-game/Behide/internal/peer/peertest"
	"github.com/behide-game/Behide/internal/signaling"
)

// connectedPair returns two links already connected to each other.
func connectedPair(t *testing.T) (*peertest.Link, *peertest.Link) {
	t.Helper()
	ctx := context.Background()
	net := peertest.NewNetwork()

	a, _ := net.NewLink()
	b, _ := net.NewLink()

	offer, err := a.Offer(ctx)
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	answer, err := b.Answer(ctx, offer)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := a.AcceptAnswer(answer); err != nil {
		t.Fatalf("AcceptAnswer: %v", err)
	}
	return a, b
}

func newMesh(t *testing.T, self signaling.PeerID, opts ...Option) *Mesh {
	t.Helper()
	m := New(opts...)
	if err := m.CreateMesh(self); err != nil {
		t.Fatalf("CreateMesh: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func next(t *testing.T, m *Mesh, wantType string) Packet {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case p := <-m.Messages():
			if p.Type == wantType {
				return p
			}
		case <-timeout:
			t.Fatalf("no %q packet received", wantType)
		}
	}
}

type position struct {
	X, Y float32
}

func TestMesh_SendAndBroadcast(t *testing.T) {
	hostLink, guestLink := connectedPair(t)
	host := newMesh(t, 1, WithName("alice"))
	guest := newMesh(t, 2)

	// The guest listens before the host greets it.
	if err := guest.AddPeer(1, guestLink); err != nil {
		t.Fatalf("guest AddPeer: %v", err)
	}
	if err := host.AddPeer(2, hostLink); err != nil {
		t.Fatalf("host AddPeer: %v", err)
	}

	hello := next(t, guest, TypeHello)
	var hp HelloPayload
	if err := hello.Decode(&hp); err != nil || hp.PeerID != 1 || hp.Name != "alice" {
		t.Fatalf("hello=%+v err=%v, want peer 1 named alice", hp, err)
	}
	if name, err := guest.Name(1); err != nil || name != "alice" {
		t.Fatalf("Name(1)=%q err=%v, want alice", name, err)
	}

	if err := host.Send(2, "move", position{X: 1, Y: 2}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	p := next(t, guest, "move")
	var pos position
	if err := p.Decode(&pos); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.From != 1 || pos.X != 1 || pos.Y != 2 {
		t.Fatalf("packet from %d pos=%+v, want from 1 at (1,2)", p.From, pos)
	}

	if err := guest.Broadcast("chat", "gg"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	chat := next(t, host, "chat")
	var text string
	if err := chat.Decode(&text); err != nil || text != "gg" || chat.From != 2 {
		t.Fatalf("chat=%q from %d err=%v", text, chat.From, err)
	}
}

func TestMesh_PingMeasuresRTT(t *testing.T) {
	hostLink, guestLink := connectedPair(t)
	host := newMesh(t, 1)
	guest := newMesh(t, 2)

	if err := guest.AddPeer(1, guestLink); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if err := host.AddPeer(2, hostLink); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	host.Ping()

	// The fake link delivers synchronously, so the pong is already in.
	rtt, err := host.RTT(2)
	if err != nil {
		t.Fatalf("RTT: %v", err)
	}
	if rtt < 0 || rtt > time.Second {
		t.Fatalf("RTT=%v, want a small positive value", rtt)
	}

	r, _ := host.lookup(2)
	r.mu.Lock()
	seq := r.lastPong
	r.mu.Unlock()
	if seq != 1 {
		t.Fatalf("last pong seq=%d, want 1", seq)
	}
}

func TestMesh_PeerLeft(t *testing.T) {
	hostLink, guestLink := connectedPair(t)
	host := newMesh(t, 1)

	if err := host.AddPeer(2, hostLink); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	guestLink.Close()

	left := next(t, host, TypePeerLeft)
	if left.From != 2 {
		t.Fatalf("peer_left from %d, want 2", left.From)
	}
	if _, err := host.RTT(2); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("RTT err=%v, want ErrUnknownPeer", err)
	}
}

func TestMesh_Errors(t *testing.T) {
	a, _ := connectedPair(t)

	m := New()
	if err := m.AddPeer(2, a); !errors.Is(err, ErrNoMesh) {
		t.Fatalf("AddPeer before CreateMesh err=%v, want ErrNoMesh", err)
	}
	if err := m.CreateMesh(1); err != nil {
		t.Fatalf("CreateMesh: %v", err)
	}
	if err := m.CreateMesh(1); !errors.Is(err, ErrMeshExists) {
		t.Fatalf("second CreateMesh err=%v, want ErrMeshExists", err)
	}
	if err := m.AddPeer(2, a); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if err := m.AddPeer(2, a); !errors.Is(err, ErrPeerExists) {
		t.Fatalf("duplicate AddPeer err=%v, want ErrPeerExists", err)
	}
	if err := m.Send(3, "x", nil); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("Send to unknown err=%v, want ErrUnknownPeer", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.Closed() {
		t.Fatalf("link still open after Close")
	}
	if err := m.Send(2, "x", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close err=%v, want ErrClosed", err)
	}
}

func TestMesh_HelloBeforeRemoteAddsPeer(t *testing.T) {
	hostLink, guestLink := connectedPair(t)
	host := newMesh(t, 1)
	guest := newMesh(t, 2)

	// The host greets a link nobody reads from yet.
	if err := host.AddPeer(2, hostLink); err != nil {
		t.Fatalf("host AddPeer: %v", err)
	}
	if err := host.Send(2, "move", position{X: 3}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := guestLink.Pending(); n != 2 {
		t.Fatalf("queued frames=%d, want 2", n)
	}

	if err := guest.AddPeer(1, guestLink); err != nil {
		t.Fatalf("guest AddPeer: %v", err)
	}
	if hello := next(t, guest, TypeHello); hello.From != 1 {
		t.Fatalf("hello from %d, want 1", hello.From)
	}
	if move := next(t, guest, "move"); move.From != 1 {
		t.Fatalf("move from %d, want 1", move.From)
	}
	if hello := next(t, host, TypeHello); hello.From != 2 {
		t.Fatalf("host got hello from %d, want 2", hello.From)
	}
}

func TestMesh_ResetAllowsNewMesh(t *testing.T) {
	a, _ := connectedPair(t)
	m := newMesh(t, 2, WithHeartbeat(time.Hour))

	if err := m.AddPeer(1, a); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	if err := m.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !a.Closed() {
		t.Fatalf("link still open after Reset")
	}
	if got := m.Peers(); len(got) != 0 {
		t.Fatalf("peers after Reset=%v, want none", got)
	}
	if err := m.AddPeer(1, a); !errors.Is(err, ErrNoMesh) {
		t.Fatalf("AddPeer after Reset err=%v, want ErrNoMesh", err)
	}

	if err := m.CreateMesh(3); err != nil {
		t.Fatalf("CreateMesh after Reset: %v", err)
	}
	b, c := connectedPair(t)
	if err := m.AddPeer(1, b); err != nil {
		t.Fatalf("AddPeer after Reset: %v", err)
	}
	if c.Pending() != 1 {
		t.Fatalf("queued frames=%d, want the hello", c.Pending())
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Reset(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Reset after Close err=%v, want ErrClosed", err)
	}
}
