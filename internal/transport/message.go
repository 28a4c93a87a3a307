package transport

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/behide-game/Behide/internal/signaling"
)

// Frame types handled by the transport itself.
const (
	TypeHello = "hello"
	TypePing  = "ping"
	TypePong  = "pong"

	// TypePeerLeft is never sent on the wire; it is emitted on Messages when
	// a peer's link drops.
	TypePeerLeft = "peer_left"
)

// Message is a frame on the game data channel.
type Message struct {
	Type    string             `msgpack:"type"`
	From    signaling.PeerID   `msgpack:"from"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// HelloPayload is sent once to every new peer.
type HelloPayload struct {
	PeerID  signaling.PeerID `msgpack:"peerId"`
	Version string           `msgpack:"version"`
	Name    string           `msgpack:"name,omitempty"`
}

// PingPayload is echoed unchanged in the matching pong.
type PingPayload struct {
	Seq    uint32 `msgpack:"seq"`
	SentAt int64  `msgpack:"sentAt"`
}

// DecodePayload decodes the message payload into the provided struct
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a new Message with the given type and payload.
// A nil payload is left empty.
func NewMessage(t string, from signaling.PeerID, payload any) (Message, error) {
	msg := Message{Type: t, From: from}
	if payload == nil {
		return msg, nil
	}

	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = b
	return msg, nil
}

func encode(msg Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func decode(data []byte) (Message, error) {
	var msg Message
	err := msgpack.Unmarshal(data, &msg)
	return msg, err
}
