package signaling

import (
	"context"

	"github.com/behide-game/Behide/internal/room"
)

// JoinRoomInfo is what a joining peer learns about the room.
type JoinRoomInfo struct {
	RoomID room.ID
	PeerID PeerID
	Peers  []PeerConnectionInfo
}

// CreateRoom registers a new room. The caller becomes HostPeerID.
// No retry is attempted.
func (c *Client) CreateRoom(ctx context.Context) (room.ID, error) {
	resp, err := c.call(ctx, "create room", MessageTypeCreateRoom, "", nil, MessageTypeRoomCreated)
	if err != nil {
		return room.ID{}, err
	}

	id, ok := room.Parse(resp.RoomID)
	if !ok {
		return room.ID{}, WrapError("create room", ErrSignalingError, "server returned invalid room code "+resp.RoomID)
	}
	return id, nil
}

// JoinRoom resolves id to a live room, is assigned a fresh PeerID, and learns
// the offer to answer for every existing member. Unknown codes fail with
// ErrRoomNotFound.
func (c *Client) JoinRoom(ctx context.Context, id room.ID) (*JoinRoomInfo, error) {
	resp, err := c.call(ctx, "join room", MessageTypeJoinRoom, id.String(), nil, MessageTypeJoinSuccess)
	if err != nil {
		return nil, err
	}

	var payload JoinSuccessPayload
	if err := resp.DecodePayload(&payload); err != nil {
		return nil, WrapError("join room", ErrSignalingError, "malformed join_success payload")
	}

	return &JoinRoomInfo{
		RoomID: id,
		PeerID: payload.PeerID,
		Peers:  payload.Peers,
	}, nil
}

// LeaveRoom gives up membership of the current room, or abandons a join in
// progress. The connection stays usable for a later CreateRoom or JoinRoom.
// Peers that are not in a room get ErrNotInRoom.
func (c *Client) LeaveRoom(ctx context.Context) error {
	_, err := c.call(ctx, "leave room", MessageTypeLeaveRoom, "", nil, MessageTypeRoomLeft)
	return err
}
