package mesh_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/behide-game/Behide/internal/hub"
	"github.com/behide-game/Behide/internal/hub/hubtest"
	"github.com/behide-game/Behide/internal/mesh"
	"github.com/behide-game/Behide/internal/peer"
	"github.com/behide-game/Behide/internal/peer/peertest"
	"github.com/behide-game/Behide/internal/room"
	"github.com/behide-game/Behide/internal/signaling"
	"github.com/behide-game/Behide/internal/transport"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustParse(t *testing.T, code string) room.ID {
	id, ok := room.Parse(code)
	if !ok {
		t.Fatalf("room.Parse(%q) failed", code)
	}
	return id
}

// node is one game process: a signaling connection, a transport and a manager.
type node struct {
	sig     *signaling.Client
	tr      *transport.Mesh
	manager *mesh.Manager
}

func linkFactory(n *peertest.Network) mesh.LinkFactory {
	return func() (peer.Link, error) { return n.NewLink() }
}

func newNode(t *testing.T, url string, newLink mesh.LinkFactory, opts ...mesh.Option) *node {
	t.Helper()

	sig := signaling.NewClient(url, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sig.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	tr := transport.New()
	m := mesh.NewManager(sig, newLink, tr, opts...)
	t.Cleanup(func() {
		m.Close()
		sig.Close()
	})
	return &node{sig: sig, tr: tr, manager: m}
}

// waitEstablished polls until every registry entry of m is established and
// the registry holds want peers.
func waitEstablished(t *testing.T, m *mesh.Manager, want []signaling.PeerID) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := m.Snapshot()
		done := len(snap) == len(want)
		for i, s := range snap {
			if !done || s.ID != want[i] || !s.Established {
				done = false
				break
			}
		}
		if done {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("registry=%+v, want %v all established", m.Snapshot(), want)
}

func TestHostAndClient(t *testing.T) {
	code := mustParse(t, "ABC123")
	url := hubtest.Start(t, hub.WithCodeGenerator(func() room.ID { return code }))
	net := peertest.NewNetwork()
	ctx := testContext(t)

	host := newNode(t, url, linkFactory(net))
	client := newNode(t, url, linkFactory(net))

	id, err := host.manager.StartHost(ctx)
	if err != nil {
		t.Fatalf("StartHost: %v", err)
	}
	if id != code {
		t.Fatalf("StartHost room=%v, want ABC123", id)
	}
	if host.manager.Self() != signaling.HostPeerID {
		t.Fatalf("host self=%d, want %d", host.manager.Self(), signaling.HostPeerID)
	}

	if err := client.manager.StartClient(ctx, code); err != nil {
		t.Fatalf("StartClient: %v", err)
	}

	want := []signaling.PeerID{1, 2}
	if got := client.manager.Peers(); !slices.Equal(got, want) {
		t.Fatalf("client peers=%v, want %v", got, want)
	}
	waitEstablished(t, host.manager, want)
	waitEstablished(t, client.manager, want)

	if got := net.Links(); len(got) != 2 {
		t.Fatalf("links created=%d, want 2", len(got))
	}
	if got := client.tr.Peers(); !slices.Equal(got, []signaling.PeerID{1}) {
		t.Fatalf("client transport peers=%v, want [1]", got)
	}
	if client.manager.Room() != code {
		t.Fatalf("client room=%v, want ABC123", client.manager.Room())
	}
}

// hellos collects the hello frames tr receives until quiet passes without one.
func hellos(t *testing.T, tr *transport.Mesh, quiet time.Duration) []transport.HelloPayload {
	t.Helper()
	var got []transport.HelloPayload
	for {
		select {
		case p := <-tr.Messages():
			if p.Type != transport.TypeHello {
				continue
			}
			var hello transport.HelloPayload
			if err := p.Decode(&hello); err != nil {
				t.Fatalf("decode hello: %v", err)
			}
			if hello.PeerID != p.From {
				t.Fatalf("hello from %d claims peer %d", p.From, hello.PeerID)
			}
			got = append(got, hello)
		case <-time.After(quiet):
			return got
		}
	}
}

func TestHostAndClient_ExchangeHello(t *testing.T) {
	for i := 0; i < 10; i++ {
		url := hubtest.Start(t)
		net := peertest.NewNetwork()
		ctx := testContext(t)

		host := newNode(t, url, linkFactory(net))
		client := newNode(t, url, linkFactory(net))

		id, err := host.manager.StartHost(ctx)
		if err != nil {
			t.Fatalf("run %d: StartHost: %v", i, err)
		}
		if err := client.manager.StartClient(ctx, id); err != nil {
			t.Fatalf("run %d: StartClient: %v", i, err)
		}
		waitEstablished(t, host.manager, []signaling.PeerID{1, 2})

		if got := hellos(t, host.tr, 100*time.Millisecond); len(got) != 1 || got[0].PeerID != 2 {
			t.Fatalf("run %d: host hellos=%+v, want one from peer 2", i, got)
		}
		if got := hellos(t, client.tr, 100*time.Millisecond); len(got) != 1 || got[0].PeerID != 1 {
			t.Fatalf("run %d: client hellos=%+v, want one from peer 1", i, got)
		}
	}
}

func TestStartClient_UnknownRoom(t *testing.T) {
	url := hubtest.Start(t)
	net := peertest.NewNetwork()

	client := newNode(t, url, linkFactory(net))
	err := client.manager.StartClient(testContext(t), mustParse(t, "ZZZZZZ"))
	if !errors.Is(err, signaling.ErrRoomNotFound) {
		t.Fatalf("StartClient err=%v, want ErrRoomNotFound", err)
	}

	if n := client.manager.Len(); n != 0 {
		t.Fatalf("registry size=%d, want 0", n)
	}
	if n := len(net.Links()); n != 0 {
		t.Fatalf("links created=%d, want 0", n)
	}
	if err := client.tr.AddPeer(1, nil); !errors.Is(err, transport.ErrNoMesh) {
		t.Fatalf("transport mesh was created (AddPeer err=%v)", err)
	}
}

func TestFourPeerMesh(t *testing.T) {
	url := hubtest.Start(t)
	net := peertest.NewNetwork()
	ctx := testContext(t)

	host := newNode(t, url, linkFactory(net))
	id, err := host.manager.StartHost(ctx)
	if err != nil {
		t.Fatalf("StartHost: %v", err)
	}

	nodes := []*node{host}
	for i := 0; i < 3; i++ {
		n := newNode(t, url, linkFactory(net))
		if err := n.manager.StartClient(ctx, id); err != nil {
			t.Fatalf("StartClient #%d: %v", i+2, err)
		}
		nodes = append(nodes, n)
	}

	want := []signaling.PeerID{1, 2, 3, 4}
	for i, n := range nodes {
		waitEstablished(t, n.manager, want)
		if got := len(n.tr.Peers()); got != 3 {
			t.Fatalf("node %d transport peers=%d, want 3", i+1, got)
		}
	}

	// One link per side of each of the six pairs.
	if got := len(net.Links()); got != 12 {
		t.Fatalf("links created=%d, want 12", got)
	}
}

func TestStartClient_FailureTearsDown(t *testing.T) {
	url := hubtest.Start(t)
	net := peertest.NewNetwork()
	ctx := testContext(t)

	host := newNode(t, url, linkFactory(net))
	id, err := host.manager.StartHost(ctx)
	if err != nil {
		t.Fatalf("StartHost: %v", err)
	}

	var clientLinks []*peertest.Link
	stalled := func() (peer.Link, error) {
		l, err := net.NewLink()
		if err == nil {
			l.NeverConnects = true
			clientLinks = append(clientLinks, l)
		}
		return l, err
	}
	client := newNode(t, url, stalled, mesh.WithNegotiationTimeout(100*time.Millisecond))

	if err := client.manager.StartClient(ctx, id); err == nil {
		t.Fatalf("StartClient succeeded over a link that never connects")
	}
	if n := client.manager.Len(); n != 0 {
		t.Fatalf("client registry size=%d after failure, want 0", n)
	}
	for _, l := range clientLinks {
		if !l.Closed() {
			t.Fatalf("link %v left open after failure", l)
		}
	}

	// The host releases the pending slot once its own handshake times out.
	deadline := time.Now().Add(mesh.DefaultNegotiationTimeout)
	for host.manager.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := host.manager.Len(); n != 1 {
		t.Fatalf("host registry size=%d, want only itself", n)
	}
}

func TestStartClient_FailedJoinDoesNotBlockLaterJoins(t *testing.T) {
	url := hubtest.Start(t, hub.WithJoinTimeout(2*time.Second))
	net := peertest.NewNetwork()
	ctx := testContext(t)

	host := newNode(t, url, linkFactory(net))
	id, err := host.manager.StartHost(ctx)
	if err != nil {
		t.Fatalf("StartHost: %v", err)
	}

	stalled := func() (peer.Link, error) {
		l, err := net.NewLink()
		if err == nil {
			l.NeverConnects = true
		}
		return l, err
	}
	second := newNode(t, url, stalled, mesh.WithNegotiationTimeout(100*time.Millisecond))
	if err := second.manager.StartClient(ctx, id); err == nil {
		t.Fatalf("StartClient succeeded over a link that never connects")
	}
	second.manager.Close()

	// The failed peer left the room, so only the host is asked for an offer.
	third := newNode(t, url, linkFactory(net))
	start := time.Now()
	if err := third.manager.StartClient(ctx, id); err != nil {
		t.Fatalf("third StartClient: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("third join took %v, want it to skip the failed peer", elapsed)
	}
	if got := third.manager.Peers(); !slices.Equal(got, []signaling.PeerID{1, 3}) {
		t.Fatalf("third peers=%v, want [1 3]", got)
	}
	waitEstablished(t, host.manager, []signaling.PeerID{1, 3})
}

func TestStartClient_OfferCreationFails(t *testing.T) {
	url := hubtest.Start(t)
	net := peertest.NewNetwork()
	ctx := testContext(t)

	broken := func() (peer.Link, error) { return nil, errors.New("no network interface") }
	host := newNode(t, url, broken)
	id, err := host.manager.StartHost(ctx)
	if err != nil {
		t.Fatalf("StartHost: %v", err)
	}

	client := newNode(t, url, linkFactory(net))
	if err := client.manager.StartClient(ctx, id); !errors.Is(err, signaling.ErrJoinFailed) {
		t.Fatalf("StartClient err=%v, want ErrJoinFailed", err)
	}
	if n := host.manager.Len(); n != 1 {
		t.Fatalf("host registry size=%d, want only itself", n)
	}
	if n := len(net.Links()); n != 0 {
		t.Fatalf("client created %d links, want 0", n)
	}
}

func TestEvents(t *testing.T) {
	url := hubtest.Start(t)
	net := peertest.NewNetwork()
	ctx := testContext(t)

	host := newNode(t, url, linkFactory(net))
	client := newNode(t, url, linkFactory(net))

	id, err := host.manager.StartHost(ctx)
	if err != nil {
		t.Fatalf("StartHost: %v", err)
	}
	if err := client.manager.StartClient(ctx, id); err != nil {
		t.Fatalf("StartClient: %v", err)
	}

	var kinds []mesh.EventKind
	timeout := time.After(5 * time.Second)
	for len(kinds) < 2 {
		select {
		case ev := <-host.manager.Events():
			if ev.Peer != 2 {
				t.Fatalf("event for peer %d, want 2", ev.Peer)
			}
			kinds = append(kinds, ev.Kind)
		case <-timeout:
			t.Fatalf("events=%v, want pending then connected", kinds)
		}
	}
	if kinds[0] != mesh.PeerPending || kinds[1] != mesh.PeerConnected {
		t.Fatalf("events=%v, want [pending connected]", kinds)
	}

	client.manager.Close()
	select {
	case ev := <-host.manager.Events():
		if ev.Kind != mesh.PeerDisconnected || ev.Peer != 2 {
			t.Fatalf("event=%+v, want peer 2 disconnected", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no disconnect event")
	}
}
