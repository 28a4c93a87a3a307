package signaling

import "encoding/json"

// PeerID identifies a peer inside a room. It is assigned by the signaling
// service; HostPeerID is reserved for the peer that created the room.
type PeerID int

// HostPeerID is the peer id of a room's creator.
const HostPeerID PeerID = 1

// OfferID references a connection offer stored by the signaling service.
type OfferID string

// PeerConnectionInfo describes an existing room member a joining peer must connect to.
type PeerConnectionInfo struct {
	PeerID  PeerID  `json:"peer_id"`
	OfferID OfferID `json:"offer_id"`
}

// Message represents all WebSocket messages between clients and the service.
//
// RequestID correlates a request with its reply. Server pushes that expect
// a reply (offer_requested) carry their own RequestID.
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	RoomID    string          `json:"room_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	MessageTypeCreateRoom   = "create_room"
	MessageTypeJoinRoom     = "join_room"
	MessageTypeOfferCreated = "offer_created"
	MessageTypeAddOffer     = "add_offer"
	MessageTypeGetOffer     = "get_offer"
	MessageTypeAddAnswer    = "add_answer"
	MessageTypeLeaveRoom    = "leave_room"

	MessageTypeRoomCreated    = "room_created"
	MessageTypeJoinSuccess    = "join_success"
	MessageTypeOfferRequested = "offer_requested"
	MessageTypeOfferAdded     = "offer_added"
	MessageTypeOffer          = "offer"
	MessageTypeAnswerAdded    = "answer_added"
	MessageTypeAnswer         = "answer"
	MessageTypeRoomLeft       = "room_left"
	MessageTypeError          = "error"
)

// JoinSuccessPayload is sent to a peer that joined a room.
type JoinSuccessPayload struct {
	PeerID PeerID               `json:"peer_id"`
	Peers  []PeerConnectionInfo `json:"peers"`
}

// OfferRequestedPayload asks a room member for an offer on behalf of a joining peer.
type OfferRequestedPayload struct {
	AskingPeerID PeerID `json:"asking_peer_id"`
}

// OfferCreatedPayload is the reply to offer_requested.
// Error is set, and OfferID empty, when the member could not produce an offer.
type OfferCreatedPayload struct {
	OfferID OfferID `json:"offer_id,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// SDPPayload carries a session description, or a reference to one.
type SDPPayload struct {
	OfferID OfferID `json:"offer_id,omitempty"`
	SDP     string  `json:"sdp,omitempty"`
}

// ErrorPayload represents error messages from the service.
type ErrorPayload struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Error codes sent by the service.
const (
	CodeRoomNotFound  = "room_not_found"
	CodeRoomFull      = "room_full"
	CodeOfferNotFound = "offer_not_found"
	CodeNotInRoom     = "not_in_room"
	CodeBadRequest    = "bad_request"
	CodeJoinFailed    = "join_failed"
	CodeInternal      = "internal"
)

// NewMessage creates a Message with the given type and JSON-encoded payload.
// A nil payload leaves Payload empty.
func NewMessage(t, requestID string, payload any) (*Message, error) {
	msg := &Message{Type: t, RequestID: requestID}
	if payload == nil {
		return msg, nil
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg.Payload = b
	return msg, nil
}

// DecodePayload decodes the message payload into the provided struct.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(m.Payload, v)
}
