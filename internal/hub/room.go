package hub

import (
	"sort"
	"time"

	"github.com/behide-game/Behide/internal/room"
	"github.com/behide-game/Behide/internal/signaling"
)

// Room is a set of peers that will form a mesh.
// Joins are serialized: only the head of the queue is collecting offers, so
// every joiner sees every member that joined before it.
type Room struct {
	ID         room.ID
	members    map[signaling.PeerID]*Client
	nextPeerID signaling.PeerID
	joinQueue  []*pendingJoin
}

func newRoom(id room.ID, host *Client) *Room {
	r := &Room{
		ID:         id,
		members:    make(map[signaling.PeerID]*Client),
		nextPeerID: signaling.HostPeerID + 1,
	}
	r.addMember(host, signaling.HostPeerID)
	return r
}

func (r *Room) addMember(c *Client, id signaling.PeerID) {
	r.members[id] = c
	c.room = r
	c.peerID = id
}

// occupancy counts members plus peers waiting to join.
func (r *Room) occupancy() int {
	return len(r.members) + len(r.joinQueue)
}

func (r *Room) empty() bool {
	return r.occupancy() == 0
}

// pendingJoin tracks a join_room request while the hub collects one offer
// from every member.
type pendingJoin struct {
	joiner    *Client
	requestID string
	peerID    signaling.PeerID
	room      *Room

	// offer_requested request id -> member asked
	waiting map[string]signaling.PeerID
	peers   []signaling.PeerConnectionInfo

	// timer fails the join when members are too slow to report offers.
	timer *time.Timer
}

func (j *pendingJoin) sortedPeers() []signaling.PeerConnectionInfo {
	peers := append([]signaling.PeerConnectionInfo(nil), j.peers...)
	sort.Slice(peers, func(a, b int) bool { return peers[a].PeerID < peers[b].PeerID })
	return peers
}
