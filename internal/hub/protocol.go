package hub

import (
	"time"

	"github.com/google/uuid"

	"github.com/behide-game/Behide/internal/room"
	"github.com/behide-game/Behide/internal/signaling"
)

func (h *Hub) handle(c *Client, msg *signaling.Message) {
	if c.gone {
		return
	}
	h.logger.Debug("message received", "type", msg.Type, "remote", c.conn.RemoteAddr().String())

	switch msg.Type {
	case signaling.MessageTypeCreateRoom:
		h.createRoom(c, msg)
	case signaling.MessageTypeJoinRoom:
		h.joinRoom(c, msg)
	case signaling.MessageTypeOfferCreated:
		h.offerCreated(c, msg)
	case signaling.MessageTypeAddOffer:
		h.addOffer(c, msg)
	case signaling.MessageTypeGetOffer:
		h.getOffer(c, msg)
	case signaling.MessageTypeAddAnswer:
		h.addAnswer(c, msg)
	case signaling.MessageTypeLeaveRoom:
		h.leaveRoom(c, msg)
	default:
		h.logger.Warn("unknown message type", "type", msg.Type)
		h.sendError(c, msg.RequestID, signaling.CodeBadRequest, "unknown message type "+msg.Type)
	}
}

func (h *Hub) reply(c *Client, requestID, msgType string, payload any) {
	out, err := signaling.NewMessage(msgType, requestID, payload)
	if err != nil {
		h.logger.Error("failed to encode message", "type", msgType, "err", err)
		return
	}
	c.deliver(out)
}

func (h *Hub) sendError(c *Client, requestID, code, text string) {
	h.reply(c, requestID, signaling.MessageTypeError, signaling.ErrorPayload{Code: code, Error: text})
}

func (h *Hub) createRoom(c *Client, msg *signaling.Message) {
	if c.room != nil || c.join != nil {
		h.sendError(c, msg.RequestID, signaling.CodeBadRequest, "already in a room")
		return
	}

	id, err := h.generateRoomID()
	if err != nil {
		h.logger.Error("room creation failed", "err", err)
		h.sendError(c, msg.RequestID, signaling.CodeInternal, "could not allocate a room code")
		return
	}

	r := newRoom(id, c)
	h.rooms[id] = r
	h.logger.Info("room created", "room", id.String(), "remote", c.conn.RemoteAddr().String())

	c.deliver(&signaling.Message{
		Type:      signaling.MessageTypeRoomCreated,
		RequestID: msg.RequestID,
		RoomID:    id.String(),
	})
}

func (h *Hub) joinRoom(c *Client, msg *signaling.Message) {
	if c.room != nil || c.join != nil {
		h.sendError(c, msg.RequestID, signaling.CodeBadRequest, "already in a room")
		return
	}

	id, ok := room.Parse(msg.RoomID)
	if !ok {
		h.sendError(c, msg.RequestID, signaling.CodeRoomNotFound, "room not found")
		return
	}
	r, ok := h.rooms[id]
	if !ok {
		h.logger.Info("room join failed: not found", "room", id.String())
		h.sendError(c, msg.RequestID, signaling.CodeRoomNotFound, "room not found")
		return
	}
	if r.occupancy() >= h.maxPeers {
		h.logger.Info("room join failed: full", "room", id.String())
		h.sendError(c, msg.RequestID, signaling.CodeRoomFull, "room is full")
		return
	}

	j := &pendingJoin{
		joiner:    c,
		requestID: msg.RequestID,
		peerID:    r.nextPeerID,
		room:      r,
	}
	r.nextPeerID++
	c.join = j
	r.joinQueue = append(r.joinQueue, j)

	if len(r.joinQueue) == 1 {
		h.startJoin(j)
	}
}

// startJoin asks every current member for an offer on behalf of the joiner.
func (h *Hub) startJoin(j *pendingJoin) {
	r := j.room
	j.waiting = make(map[string]signaling.PeerID, len(r.members))

	for memberID, member := range r.members {
		reqID := uuid.NewString()
		j.waiting[reqID] = memberID
		h.offerRequests[reqID] = j
		h.reply(member, reqID, signaling.MessageTypeOfferRequested,
			signaling.OfferRequestedPayload{AskingPeerID: j.peerID})
	}

	h.logger.Debug("join started", "room", r.ID.String(), "peer", j.peerID, "members", len(r.members))

	if len(j.waiting) == 0 {
		h.completeJoin(j)
		return
	}
	if h.joinTimeout > 0 {
		j.timer = time.AfterFunc(h.joinTimeout, func() {
			h.post(func() { h.expireJoin(j) })
		})
	}
}

// expireJoin fails j if it is still collecting offers.
func (h *Hub) expireJoin(j *pendingJoin) {
	if j.waiting == nil {
		return
	}
	h.failJoin(j, "timed out waiting for offers")
}

// leaveRoom drops c from its room. A join still in progress fails.
func (h *Hub) leaveRoom(c *Client, msg *signaling.Message) {
	joining := c.join != nil
	if joining {
		h.failJoin(c.join, "joiner left")
	}
	if !h.leave(c) && !joining {
		h.sendError(c, msg.RequestID, signaling.CodeNotInRoom, "you are not in a room")
		return
	}
	h.reply(c, msg.RequestID, signaling.MessageTypeRoomLeft, nil)
}

func (h *Hub) offerCreated(c *Client, msg *signaling.Message) {
	j, ok := h.offerRequests[msg.RequestID]
	if !ok {
		h.logger.Debug("offer_created for unknown request", "request", msg.RequestID)
		return
	}
	if member := j.waiting[msg.RequestID]; member != c.peerID || c.room != j.room {
		h.logger.Warn("offer_created from unexpected client", "request", msg.RequestID)
		return
	}

	var payload signaling.OfferCreatedPayload
	if err := msg.DecodePayload(&payload); err != nil {
		h.failJoin(j, "invalid offer_created payload")
		return
	}
	if payload.Error != "" || payload.OfferID == "" {
		h.failJoin(j, "peer could not create an offer: "+payload.Error)
		return
	}
	if _, ok := h.offers[payload.OfferID]; !ok {
		h.failJoin(j, "offer_created references an unknown offer")
		return
	}

	delete(h.offerRequests, msg.RequestID)
	delete(j.waiting, msg.RequestID)
	j.peers = append(j.peers, signaling.PeerConnectionInfo{PeerID: c.peerID, OfferID: payload.OfferID})

	if len(j.waiting) == 0 {
		h.completeJoin(j)
	}
}

// completeJoin turns the joiner into a member and moves on to the next queued join.
func (h *Hub) completeJoin(j *pendingJoin) {
	r := j.room
	h.dequeue(j)

	r.addMember(j.joiner, j.peerID)
	h.logger.Info("peer joined room", "room", r.ID.String(), "peer", j.peerID)

	out, err := signaling.NewMessage(signaling.MessageTypeJoinSuccess, j.requestID, signaling.JoinSuccessPayload{
		PeerID: j.peerID,
		Peers:  j.sortedPeers(),
	})
	if err == nil {
		out.RoomID = r.ID.String()
		j.joiner.deliver(out)
	}

	h.advance(r)
}

// failJoin reports a failed join to the joiner and drops its outstanding offer requests.
func (h *Hub) failJoin(j *pendingJoin, reason string) {
	h.logger.Info("join failed", "room", j.room.ID.String(), "peer", j.peerID, "reason", reason)
	h.sendError(j.joiner, j.requestID, signaling.CodeJoinFailed, reason)

	r := j.room
	h.abandonJoin(j)
	if r.empty() {
		h.releaseRoom(r)
	}
}

// abandonJoin removes j from its room without notifying the joiner.
func (h *Hub) abandonJoin(j *pendingJoin) {
	r := j.room
	wasHead := len(r.joinQueue) > 0 && r.joinQueue[0] == j
	h.dequeue(j)
	if wasHead {
		h.advance(r)
	}
}

func (h *Hub) dequeue(j *pendingJoin) {
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	for reqID := range j.waiting {
		delete(h.offerRequests, reqID)
	}
	j.waiting = nil
	j.joiner.join = nil

	r := j.room
	for i, queued := range r.joinQueue {
		if queued == j {
			r.joinQueue = append(r.joinQueue[:i], r.joinQueue[i+1:]...)
			break
		}
	}
}

func (h *Hub) advance(r *Room) {
	if len(r.joinQueue) > 0 && r.joinQueue[0].waiting == nil {
		h.startJoin(r.joinQueue[0])
	}
}

func (h *Hub) addOffer(c *Client, msg *signaling.Message) {
	if c.room == nil {
		h.sendError(c, msg.RequestID, signaling.CodeNotInRoom, "you must be in a room to add offers")
		return
	}

	var payload signaling.SDPPayload
	if err := msg.DecodePayload(&payload); err != nil || payload.SDP == "" {
		h.sendError(c, msg.RequestID, signaling.CodeBadRequest, "missing sdp")
		return
	}

	id := signaling.OfferID(uuid.NewString())
	h.offers[id] = &storedOffer{owner: c, sdp: payload.SDP}
	h.reply(c, msg.RequestID, signaling.MessageTypeOfferAdded, signaling.SDPPayload{OfferID: id})
}

func (h *Hub) getOffer(c *Client, msg *signaling.Message) {
	var payload signaling.SDPPayload
	if err := msg.DecodePayload(&payload); err != nil || payload.OfferID == "" {
		h.sendError(c, msg.RequestID, signaling.CodeBadRequest, "missing offer id")
		return
	}

	offer, ok := h.offers[payload.OfferID]
	if !ok {
		h.sendError(c, msg.RequestID, signaling.CodeOfferNotFound, "offer not found")
		return
	}
	h.reply(c, msg.RequestID, signaling.MessageTypeOffer, signaling.SDPPayload{OfferID: payload.OfferID, SDP: offer.sdp})
}

// addAnswer relays an answer to the offer's owner. Offers are single use.
func (h *Hub) addAnswer(c *Client, msg *signaling.Message) {
	var payload signaling.SDPPayload
	if err := msg.DecodePayload(&payload); err != nil || payload.OfferID == "" || payload.SDP == "" {
		h.sendError(c, msg.RequestID, signaling.CodeBadRequest, "missing offer id or sdp")
		return
	}

	offer, ok := h.offers[payload.OfferID]
	if !ok {
		h.sendError(c, msg.RequestID, signaling.CodeOfferNotFound, "offer not found")
		return
	}
	delete(h.offers, payload.OfferID)

	h.reply(offer.owner, "", signaling.MessageTypeAnswer, signaling.SDPPayload{OfferID: payload.OfferID, SDP: payload.SDP})
	h.reply(c, msg.RequestID, signaling.MessageTypeAnswerAdded, nil)
}
