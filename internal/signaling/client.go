package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/behide-game/Behide/internal/dns"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client manages the WebSocket connection to the signaling service and
// exposes its room and handshake operations as blocking calls.
//
// Replies are matched to requests by RequestID, so any number of calls may
// be in flight at once. Offer requests pushed by the service are queued on
// OfferRequests from the moment Connect returns.
type Client struct {
	logger    *slog.Logger
	serverURL string

	conn     *websocket.Conn
	outgoing chan *Message
	done     chan struct{}

	closeOnce sync.Once

	mu            sync.Mutex
	pending       map[string]chan *Message
	answers       map[OfferID]chan string
	offerRequests chan *OfferRequest
}

// NewClient creates a new signaling client. If no logger is given, slog.Default() is used.
func NewClient(serverURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		logger:        logger.With("component", "signaling"),
		serverURL:     serverURL,
		outgoing:      make(chan *Message, 16),
		done:          make(chan struct{}),
		pending:       make(map[string]chan *Message),
		answers:       make(map[OfferID]chan string),
		offerRequests: make(chan *OfferRequest, 32),
	}
}

// Connect establishes WebSocket connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return NewError("connect", fmt.Errorf("invalid server URL: %w", err))
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: writeWait,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}

			resolvedIP, err := dns.Lookup(ctx, host)
			if err != nil {
				return nil, fmt.Errorf("dns lookup failed: %w", err)
			}

			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(resolvedIP, port))
		},
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return NewError("connect", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.logger.Debug("connected to signaling server", "url", u.String())

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the WebSocket connection and routes them.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		c.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("signaling read stopped", "err", err)
			}
			return
		}

		switch msg.Type {
		case MessageTypeOfferRequested:
			c.handleOfferRequested(&msg)
		case MessageTypeAnswer:
			c.handleAnswer(&msg)
		default:
			c.resolve(&msg)
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Debug("signaling write failed", "err", err, "type", message.Type)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// resolve hands a reply to the call waiting for it.
func (c *Client) resolve(msg *Message) {
	c.mu.Lock()
	reply, ok := c.pending[msg.RequestID]
	delete(c.pending, msg.RequestID)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("dropping unsolicited message", "type", msg.Type, "request_id", msg.RequestID)
		return
	}
	reply <- msg
}

// handleAnswer stores a relayed answer until AwaitAnswer collects it.
func (c *Client) handleAnswer(msg *Message) {
	var payload SDPPayload
	if err := msg.DecodePayload(&payload); err != nil || payload.OfferID == "" {
		c.logger.Warn("malformed answer from signaling server", "err", err)
		return
	}

	select {
	case c.answerChannel(payload.OfferID) <- payload.SDP:
	default:
		c.logger.Warn("duplicate answer for offer", "offer_id", payload.OfferID)
	}
}

func (c *Client) answerChannel(id OfferID) chan string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.answers[id]
	if !ok {
		ch = make(chan string, 1)
		c.answers[id] = ch
	}
	return ch
}

// send queues msg for the write pump.
func (c *Client) send(ctx context.Context, msg *Message) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call sends a request and waits for the reply carrying the same RequestID.
// An error frame is converted into an *Error wrapping the matching sentinel.
func (c *Client) call(ctx context.Context, op, msgType, roomID string, payload any, wantType string) (*Message, error) {
	requestID := uuid.NewString()
	msg, err := NewMessage(msgType, requestID, payload)
	if err != nil {
		return nil, NewError(op, err)
	}
	msg.RoomID = roomID

	reply := make(chan *Message, 1)
	c.mu.Lock()
	c.pending[requestID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, msg); err != nil {
		return nil, NewError(op, err)
	}

	select {
	case resp := <-reply:
		if resp.Type == MessageTypeError {
			return nil, errorFromMessage(op, resp)
		}
		if resp.Type != wantType {
			return nil, WrapError(op, ErrSignalingError, "unexpected reply "+resp.Type)
		}
		return resp, nil
	case <-c.done:
		return nil, NewError(op, ErrClosed)
	case <-ctx.Done():
		return nil, NewError(op, ctx.Err())
	}
}

func errorFromMessage(op string, msg *Message) *Error {
	var payload ErrorPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return WrapError(op, ErrSignalingError, "unknown error from server")
	}
	return WrapError(op, codeToError(payload.Code), payload.Error)
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the WebSocket connection and fails every pending call.
// It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
