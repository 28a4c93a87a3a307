package webrtc

import (
	"context"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"
)

const (
	// ChannelLabel names the single data channel carrying game traffic.
	ChannelLabel = "game"

	// channelID is fixed because both sides create the channel themselves.
	channelID uint16 = 0

	// maxPending bounds frames queued before a handler is attached.
	maxPending = 256
)

// Link is a pion peer connection with one pre-negotiated, ordered data
// channel. Descriptions are exchanged only after ICE gathering completes, so
// no candidate trickling is needed.
type Link struct {
	pc     *pion.PeerConnection
	dc     *pion.DataChannel
	logger *slog.Logger

	open      chan struct{}
	done      chan struct{}
	openOnce  sync.Once
	doneOnce  sync.Once
	closeOnce sync.Once
	closeErr  error

	mu        sync.Mutex
	onMessage func([]byte)
	pending   [][]byte
}

// NewLink creates a peer connection and its game channel.
func NewLink(api *pion.API, opts Options, logger *slog.Logger) (*Link, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pc, err := api.NewPeerConnection(opts.configuration())
	if err != nil {
		return nil, NewError("create peer connection", err)
	}

	ordered := true
	negotiated := true
	id := channelID
	dc, err := pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		pc.Close()
		return nil, NewError("create data channel", err)
	}

	l := &Link{
		pc:     pc,
		dc:     dc,
		logger: logger.With("component", "webrtc"),
		open:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	dc.OnOpen(func() {
		l.openOnce.Do(func() { close(l.open) })
	})
	dc.OnClose(l.markDone)
	dc.OnMessage(func(msg pion.DataChannelMessage) { l.dispatch(msg.Data) })

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		l.logger.Debug("peer connection state", "state", state.String())
		switch state {
		case pion.PeerConnectionStateFailed, pion.PeerConnectionStateClosed:
			l.markDone()
		}
	})

	return l, nil
}

func (l *Link) markDone() {
	l.doneOnce.Do(func() { close(l.done) })
}

// gather sets desc as the local description and waits for ICE gathering so
// the returned SDP carries every candidate.
func (l *Link) gather(ctx context.Context, desc pion.SessionDescription) (string, error) {
	gatherComplete := pion.GatheringCompletePromise(l.pc)
	if err := l.pc.SetLocalDescription(desc); err != nil {
		return "", NewError("set local description", err)
	}

	select {
	case <-gatherComplete:
	case <-l.done:
		return "", NewError("gather candidates", ErrClosed)
	case <-ctx.Done():
		return "", NewError("gather candidates", ctx.Err())
	}

	local := l.pc.LocalDescription()
	if local == nil {
		return "", NewError("gather candidates", ErrConnectionFailed)
	}
	return local.SDP, nil
}

func (l *Link) Offer(ctx context.Context) (string, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", NewError("create offer", err)
	}
	return l.gather(ctx, offer)
}

func (l *Link) Answer(ctx context.Context, offer string) (string, error) {
	remote := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: offer}
	if err := l.pc.SetRemoteDescription(remote); err != nil {
		return "", NewError("set remote description", err)
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", NewError("create answer", err)
	}
	return l.gather(ctx, answer)
}

func (l *Link) AcceptAnswer(answer string) error {
	remote := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: answer}
	if err := l.pc.SetRemoteDescription(remote); err != nil {
		return NewError("set remote description", err)
	}
	return nil
}

// WaitConnected blocks until the game channel is open.
func (l *Link) WaitConnected(ctx context.Context) error {
	select {
	case <-l.open:
		return nil
	case <-l.done:
		return NewError("connect", ErrConnectionFailed)
	case <-ctx.Done():
		return NewError("connect", ctx.Err())
	}
}

func (l *Link) Send(data []byte) error {
	if l.dc.ReadyState() != pion.DataChannelStateOpen {
		return NewError("send", ErrChannelNotOpen)
	}
	if err := l.dc.Send(data); err != nil {
		return NewError("send", err)
	}
	return nil
}

// dispatch hands data to the handler, or queues it until OnMessage is called.
func (l *Link) dispatch(data []byte) {
	l.mu.Lock()
	fn := l.onMessage
	if fn == nil {
		if len(l.pending) >= maxPending {
			l.mu.Unlock()
			l.logger.Warn("no message handler, dropping frame", "queued", maxPending)
			return
		}
		l.pending = append(l.pending, data)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	fn(data)
}

// OnMessage sets the handler. Frames received earlier are replayed first.
func (l *Link) OnMessage(fn func(data []byte)) {
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

		for _, data := range queued {
			fn(data)
		}
	}
}

func (l *Link) Done() <-chan struct{} {
	return l.done
}

func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.pc.Close()
		l.markDone()
	})
	return l.closeErr
}
