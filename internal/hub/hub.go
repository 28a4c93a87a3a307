package hub

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/behide-game/Behide/internal/room"
	"github.com/behide-game/Behide/internal/signaling"
)

// DefaultMaxPeers bounds the number of peers in one room.
const DefaultMaxPeers = 8

// DefaultJoinTimeout bounds how long a join waits for members' offers.
const DefaultJoinTimeout = 20 * time.Second

// storeTimeout bounds every CodeStore call made from the hub loop.
const storeTimeout = 2 * time.Second

// Hub is the central brain of the signaling server.
// Rooms, offers and clients are only touched from the Run goroutine.
type Hub struct {
	logger      *slog.Logger
	codes       CodeStore
	maxPeers    int
	generate    func() room.ID
	joinTimeout time.Duration
	refresh     time.Duration

	rooms map[room.ID]*Room

	// offers maps an offer id to the stored SDP and the client that owns it.
	offers map[signaling.OfferID]*storedOffer

	// offerRequests maps an offer_requested request id to the join waiting on it.
	offerRequests map[string]*pendingJoin

	register   chan *Client
	unregister chan *Client
	inbound    chan envelope
	queries    chan func()
	done       chan struct{}
}

type envelope struct {
	client *Client
	msg    *signaling.Message
}

type storedOffer struct {
	owner *Client
	sdp   string
}

// Option configures a Hub.
type Option func(*Hub)

// WithCodeStore sets where room codes are reserved. Defaults to an in-memory store.
func WithCodeStore(s CodeStore) Option {
	return func(h *Hub) { h.codes = s }
}

// WithMaxPeers sets the room capacity.
func WithMaxPeers(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxPeers = n
		}
	}
}

// WithJoinTimeout fails a join whose members have not all reported an offer
// within d. Non-positive values disable the deadline.
func WithJoinTimeout(d time.Duration) Option {
	return func(h *Hub) { h.joinTimeout = d }
}

// WithCodeRefresh refreshes the code of every live room at interval d.
func WithCodeRefresh(d time.Duration) Option {
	return func(h *Hub) { h.refresh = d }
}

// WithCodeGenerator replaces random room codes, mostly for tests.
func WithCodeGenerator(gen func() room.ID) Option {
	return func(h *Hub) { h.generate = gen }
}

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates a new Hub instance.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		logger:        slog.Default(),
		codes:         NewMemoryCodeStore(),
		maxPeers:      DefaultMaxPeers,
		generate:      room.Generate,
		joinTimeout:   DefaultJoinTimeout,
		rooms:         make(map[room.ID]*Room),
		offers:        make(map[signaling.OfferID]*storedOffer),
		offerRequests: make(map[string]*pendingJoin),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		inbound:       make(chan envelope),
		queries:       make(chan func()),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub's main processing loop and blocks until ctx is done.
// This is the single goroutine that safely manages all state.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var refresh <-chan time.Time
	if h.refresh > 0 {
		ticker := time.NewTicker(h.refresh)
		defer ticker.Stop()
		refresh = ticker.C
	}

	for {
		select {
		case <-refresh:
			h.refreshCodes()

		case <-ctx.Done():
			h.logger.Info("hub stopped")
			return

		case client := <-h.register:
			h.logger.Debug("client registered", "remote", client.conn.RemoteAddr().String())

		case client := <-h.unregister:
			h.removeClient(client)

		case env := <-h.inbound:
			h.handle(env.client, env.msg)

		case q := <-h.queries:
			q()
		}
	}
}

// post runs fn on the hub goroutine. It is dropped once the hub stopped.
func (h *Hub) post(fn func()) {
	select {
	case h.queries <- fn:
	case <-h.done:
	}
}

// RoomInfo describes a room for the HTTP lookup route.
type RoomInfo struct {
	ID       room.ID `json:"id"`
	Peers    int     `json:"peers"`
	MaxPeers int     `json:"max_peers"`
	Joining  int     `json:"joining"`
}

// LookupRoom reports the current state of room id.
func (h *Hub) LookupRoom(ctx context.Context, id room.ID) (RoomInfo, bool, error) {
	type answer struct {
		info RoomInfo
		ok   bool
	}
	reply := make(chan answer, 1)

	query := func() {
		r, ok := h.rooms[id]
		if !ok {
			reply <- answer{}
			return
		}
		reply <- answer{ok: true, info: RoomInfo{
			ID:       r.ID,
			Peers:    len(r.members),
			MaxPeers: h.maxPeers,
			Joining:  len(r.joinQueue),
		}}
	}

	select {
	case h.queries <- query:
	case <-h.done:
		return RoomInfo{}, false, errors.New("hub stopped")
	case <-ctx.Done():
		return RoomInfo{}, false, ctx.Err()
	}

	select {
	case a := <-reply:
		return a.info, a.ok, nil
	case <-ctx.Done():
		return RoomInfo{}, false, ctx.Err()
	}
}

// generateRoomID draws codes until one can be reserved in the code store.
func (h *Hub) generateRoomID() (room.ID, error) {
	for attempt := 0; attempt < 16; attempt++ {
		id := h.generate()
		if _, taken := h.rooms[id]; taken {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		ok, err := h.codes.Reserve(ctx, id)
		cancel()
		if err != nil {
			return room.ID{}, err
		}
		if ok {
			return id, nil
		}
	}
	return room.ID{}, errors.New("no free room code")
}

// refreshCodes keeps the codes of live rooms reserved in the code store.
func (h *Hub) refreshCodes() {
	for id := range h.rooms {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := h.codes.Refresh(ctx, id)
		cancel()
		if err != nil {
			h.logger.Warn("failed to refresh room code", "room", id.String(), "err", err)
		}
	}
}

func (h *Hub) releaseRoom(r *Room) {
	if h.rooms[r.ID] != r {
		return
	}
	delete(h.rooms, r.ID)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.codes.Release(ctx, r.ID); err != nil {
		h.logger.Warn("failed to release room code", "room", r.ID.String(), "err", err)
	}
	h.logger.Info("room deleted", "room", r.ID.String())
}

// removeClient cleans up everything a disconnected client was part of.
func (h *Hub) removeClient(c *Client) {
	if c.gone {
		return
	}
	h.logger.Debug("client unregistered", "remote", c.conn.RemoteAddr().String())

	h.leave(c)

	c.gone = true
	close(c.send)
}

// leave drops c's offers, its pending join and its room membership. It
// reports whether c was in a room or joining one.
func (h *Hub) leave(c *Client) bool {
	for id, offer := range h.offers {
		if offer.owner == c {
			delete(h.offers, id)
		}
	}

	left := false
	if j := c.join; j != nil {
		r := j.room
		h.abandonJoin(j)
		if r.empty() {
			h.releaseRoom(r)
		}
		left = true
	}

	if r := c.room; r != nil {
		delete(r.members, c.peerID)
		h.logger.Info("peer left room", "room", r.ID.String(), "peer", c.peerID)

		// A join still waiting for this member's offer can never complete.
		if len(r.joinQueue) > 0 {
			head := r.joinQueue[0]
			for _, member := range head.waiting {
				if member == c.peerID {
					h.failJoin(head, "member left the room")
					break
				}
			}
		}

		if r.empty() {
			h.releaseRoom(r)
		}
		c.room = nil
		left = true
	}
	return left
}
