// Package peertest provides in-memory links and signaling for tests that
// exercise negotiation without a network.
package peertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/behide-game/Behide/internal/signaling"
)

var (
	ErrClosed       = errors.New("peertest: link closed")
	ErrUnknownOffer = errors.New("peertest: unknown offer")
	ErrNotConnected = errors.New("peertest: link not connected")
)

// Network connects the links it creates. Descriptions are opaque tokens
// that only mean something to the Network that issued them.
type Network struct {
	mu      sync.Mutex
	next    int
	offers  map[string]*Link
	answers map[string]*Link
	links   []*Link
}

func NewNetwork() *Network {
	return &Network{
		offers:  make(map[string]*Link),
		answers: make(map[string]*Link),
	}
}

// NewLink creates an unconnected link. Its signature matches mesh.LinkFactory.
func (n *Network) NewLink() (*Link, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.next++
	l := &Link{
		net:       n,
		name:      fmt.Sprintf("link-%d", n.next),
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
	n.links = append(n.links, l)
	return l, nil
}

// Links returns every link created so far.
func (n *Network) Links() []*Link {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Link(nil), n.links...)
}

// Link is an in-memory peer.Link.
type Link struct {
	net  *Network
	name string

	// Failure injection, set before negotiation starts.
	OfferErr      error
	AnswerErr     error
	NeverConnects bool

	mu        sync.Mutex
	remote    *Link
	onMessage func([]byte)
	pending   [][]byte
	connected chan struct{}
	done      chan struct{}
	closed    bool
}

func (l *Link) String() string { return l.name }

func (l *Link) Offer(ctx context.Context) (string, error) {
	if l.OfferErr != nil {
		return "", l.OfferErr
	}
	if l.isClosed() {
		return "", ErrClosed
	}

	token := "offer:" + l.name
	l.net.mu.Lock()
	l.net.offers[token] = l
	l.net.mu.Unlock()
	return token, nil
}

func (l *Link) Answer(ctx context.Context, offer string) (string, error) {
	if l.AnswerErr != nil {
		return "", l.AnswerErr
	}
	if l.isClosed() {
		return "", ErrClosed
	}

	l.net.mu.Lock()
	offerer, ok := l.net.offers[offer]
	token := "answer:" + l.name
	if ok {
		l.net.answers[token] = l
	}
	l.net.mu.Unlock()
	if !ok {
		return "", ErrUnknownOffer
	}

	l.mu.Lock()
	l.remote = offerer
	l.mu.Unlock()
	return token, nil
}

// AcceptAnswer pairs both ends and marks them connected.
func (l *Link) AcceptAnswer(answer string) error {
	if l.isClosed() {
		return ErrClosed
	}

	l.net.mu.Lock()
	answerer, ok := l.net.answers[answer]
	l.net.mu.Unlock()
	if !ok {
		return ErrUnknownOffer
	}

	l.mu.Lock()
	l.remote = answerer
	l.mu.Unlock()

	if l.NeverConnects || answerer.NeverConnects {
		return nil
	}
	l.markConnected()
	answerer.markConnected()
	return nil
}

func (l *Link) markConnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.connected:
	default:
		close(l.connected)
	}
}

func (l *Link) WaitConnected(ctx context.Context) error {
	select {
	case <-l.connected:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send delivers data to the remote handler synchronously. Frames sent before
// the remote attaches a handler are queued and replayed by OnMessage.
func (l *Link) Send(data []byte) error {
	l.mu.Lock()
	remote, closed := l.remote, l.closed
	l.mu.Unlock()

	if closed {
		return ErrClosed
	}
	select {
	case <-l.connected:
	default:
		return ErrNotConnected
	}
	if remote == nil {
		return ErrNotConnected
	}

	frame := append([]byte(nil), data...)
	remote.mu.Lock()
	fn, remoteClosed := remote.onMessage, remote.closed
	if !remoteClosed && fn == nil {
		remote.pending = append(remote.pending, frame)
	}
	remote.mu.Unlock()
	if remoteClosed {
		return ErrClosed
	}
	if fn != nil {
		fn(frame)
	}
	return nil
}

// OnMessage sets the handler and replays queued frames to it in order.
func (l *Link) OnMessage(fn func([]byte)) {
	for {
		l.mu.Lock()
		queued := l.pending
		l.pending = nil
		if len(queued) == 0 {
			l.onMessage = fn
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()

		for _, frame := range queued {
			fn(frame)
		}
	}
}

// Pending returns the number of frames waiting for a handler.
func (l *Link) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Close closes the link and drops the remote end with it.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	remote := l.remote
	l.mu.Unlock()

	if remote != nil {
		remote.Close()
	}
	return nil
}

// Closed reports whether Close was called or the remote end went away.
func (l *Link) Closed() bool {
	return l.isClosed()
}

func (l *Link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Signaler is an in-memory offer store implementing peer.Signaler.
type Signaler struct {
	mu      sync.Mutex
	next    int
	offers  map[signaling.OfferID]string
	answers map[signaling.OfferID]chan string

	// AddOfferErr and GetOfferErr fail the matching calls when set.
	AddOfferErr error
	GetOfferErr error
}

func NewSignaler() *Signaler {
	return &Signaler{
		offers:  make(map[signaling.OfferID]string),
		answers: make(map[signaling.OfferID]chan string),
	}
}

func (s *Signaler) answerChannel(id signaling.OfferID) chan string {
	ch, ok := s.answers[id]
	if !ok {
		ch = make(chan string, 1)
		s.answers[id] = ch
	}
	return ch
}

func (s *Signaler) AddOffer(ctx context.Context, sdp string) (signaling.OfferID, error) {
	if s.AddOfferErr != nil {
		return "", s.AddOfferErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := signaling.OfferID(fmt.Sprintf("offer-%d", s.next))
	s.offers[id] = sdp
	s.answerChannel(id)
	return id, nil
}

func (s *Signaler) AwaitAnswer(ctx context.Context, id signaling.OfferID) (string, error) {
	s.mu.Lock()
	ch := s.answerChannel(id)
	s.mu.Unlock()

	select {
	case sdp := <-ch:
		return sdp, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Signaler) GetOffer(ctx context.Context, id signaling.OfferID) (string, error) {
	if s.GetOfferErr != nil {
		return "", s.GetOfferErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sdp, ok := s.offers[id]
	if !ok {
		return "", signaling.ErrOfferNotFound
	}
	return sdp, nil
}

func (s *Signaler) AddAnswer(ctx context.Context, id signaling.OfferID, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.offers[id]; !ok {
		return signaling.ErrOfferNotFound
	}
	delete(s.offers, id)
	select {
	case s.answerChannel(id) <- sdp:
	default:
	}
	return nil
}
