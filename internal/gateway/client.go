// Package gateway implements the client side of the gateway wire protocol:
// one persistent WebSocket carrying many concurrent requests plus an
// unbounded event stream. The Conn is the only component that reads or
// writes the socket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/clawdeck/clawdeck/internal/gateway/protocol"
	"github.com/clawdeck/clawdeck/internal/identity"
)

// ErrConnClosed is returned to every caller still waiting on a response when
// the receive loop terminates.
var ErrConnClosed = errors.New("gateway: connection closed")

// Identity presented during the connect handshake.
const (
	clientID    = "clawdeck"
	clientMode  = "ui"
	displayName = "Terminal"
	clientRole  = "operator"
)

var clientScopes = []string{"operator.read", "operator.write"}

// Socket is the minimal transport surface Conn needs. *websocket.Conn from
// gorilla/websocket satisfies it; tests substitute an in-memory fake.
type Socket interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// eventBuffer bounds how far the receive loop may run ahead of a slow event
// consumer before frames are dropped.
const eventBuffer = 64

// pendingRequest is a single-resolution slot: settled exactly once, by a
// response, a send failure, or connection teardown.
type pendingRequest struct {
	ch chan pendingResult
}

type pendingResult struct {
	res *protocol.ResponseFrame
	err error
}

func newPending() *pendingRequest {
	return &pendingRequest{ch: make(chan pendingResult, 1)}
}

func (p *pendingRequest) resolve(res *protocol.ResponseFrame) {
	select {
	case p.ch <- pendingResult{res: res}:
	default:
	}
}

func (p *pendingRequest) reject(err error) {
	select {
	case p.ch <- pendingResult{err: err}:
	default:
	}
}

// Conn is a client connection to the gateway. All public methods are safe
// for concurrent use; each Request call suspends only on its own response.
type Conn struct {
	url    string
	logger *slog.Logger
	idents *identity.Store
	tokens identity.TokenStore

	mu      sync.Mutex
	sock    Socket
	looping bool
	pending map[string]*pendingRequest
	events  chan protocol.EventFrame

	// writeMu serializes socket writes; the receive loop is the only reader.
	writeMu sync.Mutex
}

// Option configures a Conn.
type Option func(*Conn)

// WithSocket injects a pre-established transport, skipping the dial.
func WithSocket(s Socket) Option {
	return func(c *Conn) { c.sock = s }
}

// New creates a client for the gateway at url. The connection is not opened
// until Connect is called.
func New(url string, idents *identity.Store, tokens identity.TokenStore, logger *slog.Logger, opts ...Option) *Conn {
	c := &Conn{
		url:     url,
		logger:  logger.With("component", "gateway"),
		idents:  idents,
		tokens:  tokens,
		pending: make(map[string]*pendingRequest),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the gateway and performs the connect handshake: consume the
// leading challenge event if the server sends one, then exchange the connect
// request under the reserved id. On success a rotated device token, if
// granted, is persisted keyed by (deviceId, role).
//
// When useDeviceIdentity is false the device block is omitted entirely and
// only presentedToken authenticates the client.
func (c *Conn) Connect(ctx context.Context, presentedToken string, useDeviceIdentity bool) error {
	c.mu.Lock()
	if c.sock == nil {
		dialer := websocket.Dialer{ReadBufferSize: 4096, WriteBufferSize: 4096}
		sock, _, err := dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("dial %s: %w", c.url, err)
		}
		c.sock = sock
	}
	sock := c.sock
	c.mu.Unlock()

	dev, err := c.idents.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("load device identity: %w", err)
	}

	// The challenge is best-effort: the first frame is consumed either way,
	// and anything that is not a challenge is discarded, not queued.
	nonce := receiveChallenge(sock)

	token := presentedToken
	if useDeviceIdentity {
		if stored, ok := c.tokens.Load(dev.DeviceID, clientRole); ok && stored.Token != "" {
			token = stored.Token
		}
	}

	params := protocol.ConnectParams{
		ClientID:    clientID,
		Mode:        clientMode,
		DisplayName: displayName,
		Role:        clientRole,
		Scopes:      clientScopes,
		Token:       token,
		Nonce:       nonce,
	}
	if useDeviceIdentity {
		params.Device = &protocol.DeviceInfo{ID: dev.DeviceID}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal connect params: %w", err)
	}

	res, err := c.roundTrip(protocol.ConnectRequestID, "connect", paramsJSON)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if !res.OK {
		msg := "connect failed"
		if res.Error != nil && res.Error.Message != "" {
			msg = res.Error.Message
		}
		return fmt.Errorf("connect: %s", msg)
	}

	var hello protocol.HelloOk
	if len(res.Payload) > 0 {
		if err := json.Unmarshal(res.Payload, &hello); err != nil {
			return fmt.Errorf("decode connect payload: %w", err)
		}
	}
	if auth := hello.Auth; auth != nil && auth.DeviceToken != "" {
		role := auth.Role
		if role == "" {
			role = clientRole
		}
		if err := c.tokens.Store(dev.DeviceID, role, auth.DeviceToken, auth.Scopes); err != nil {
			c.logger.Warn("persist device token failed", "error", err)
		}
	}

	c.logger.Info("connected", "url", c.url, "device", dev.DeviceID)
	return nil
}

// Request sends method with a raw JSON payload and blocks until the matching
// response arrives. It fails immediately if the send fails, and with
// ErrConnClosed if the receive loop terminates first. There is no internal
// timeout; callers needing one layer it externally.
func (c *Conn) Request(method string, payload []byte) ([]byte, error) {
	res, err := c.roundTrip(uuid.NewString(), method, payload)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		msg := "request failed"
		if res.Error != nil && res.Error.Message != "" {
			msg = res.Error.Message
		}
		return nil, fmt.Errorf("%s: %s", method, msg)
	}
	return res.Payload, nil
}

// roundTrip registers a pending slot under id, sends the request frame, and
// waits for resolution. Request ids are never reused while outstanding.
func (c *Conn) roundTrip(id, method string, params []byte) (*protocol.ResponseFrame, error) {
	c.mu.Lock()
	sock := c.sock
	if sock == nil {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}
	p := newPending()
	c.pending[id] = p
	c.startReceiveLoopLocked(sock)
	c.mu.Unlock()

	frame := protocol.NewRequest(id, method, params)
	data, err := protocol.Encode(protocol.Frame{Req: &frame})
	if err != nil {
		c.retract(id)
		return nil, fmt.Errorf("encode request: %w", err)
	}

	c.writeMu.Lock()
	err = sock.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		// The pending slot is retracted immediately; the caller must not
		// wait on a request the server never saw.
		c.retract(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	result := <-p.ch
	if result.err != nil {
		return nil, result.err
	}
	return result.res, nil
}

func (c *Conn) retract(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Events returns the event subscription, starting the receive loop if
// needed. There is at most one live subscriber channel: a second call
// replaces (and closes) the previous one. With no subscriber, events are
// dropped.
func (c *Conn) Events() <-chan protocol.EventFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events != nil {
		close(c.events)
	}
	c.events = make(chan protocol.EventFrame, eventBuffer)
	if c.sock != nil {
		c.startReceiveLoopLocked(c.sock)
	}
	return c.events
}

// Close tears down the transport. The receive loop observes the read error
// and fails all outstanding requests.
func (c *Conn) Close() error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return nil
	}
	return sock.Close()
}

// startReceiveLoopLocked starts the single receive loop if it is not
// running. Callers must hold c.mu. The loop is never restarted automatically
// after it terminates; a later Request or Events call may start a fresh one,
// which on a dead socket fails straight away.
func (c *Conn) startReceiveLoopLocked(sock Socket) {
	if c.looping {
		return
	}
	c.looping = true
	go c.receiveLoop(sock)
}

// receiveLoop is the sole reader of the socket. Every inbound frame is
// routed by discriminant: responses resolve their pending request and are
// consumed, events go to the current subscriber, anything else is dropped.
func (c *Conn) receiveLoop(sock Socket) {
	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			c.teardown(err)
			return
		}
		frame, err := protocol.Decode(data)
		if err != nil {
			c.logger.Debug("dropping malformed frame", "error", err)
			continue
		}
		switch {
		case frame.Res != nil:
			c.mu.Lock()
			p, ok := c.pending[frame.Res.ID]
			if ok {
				delete(c.pending, frame.Res.ID)
			}
			c.mu.Unlock()
			if ok {
				p.resolve(frame.Res)
			}
		case frame.Event != nil:
			// The send stays under the lock: Events closes the subscriber
			// channel under the same lock when replacing it, and a send on a
			// channel closed between snapshot and send would panic. The send
			// never blocks, so the lock is held only briefly.
			c.mu.Lock()
			if c.events != nil {
				select {
				case c.events <- *frame.Event:
				default:
					c.logger.Debug("event buffer full, dropping", "event", frame.Event.Event)
				}
			}
			c.mu.Unlock()
		default:
			// Requests from the server are not part of this protocol.
		}
	}
}

// teardown ends the connection: every outstanding request fails with a
// connection-closed error and the event subscription closes.
func (c *Conn) teardown(cause error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	events := c.events
	c.events = nil
	c.looping = false
	c.mu.Unlock()

	for _, p := range pending {
		p.reject(ErrConnClosed)
	}
	if events != nil {
		close(events)
	}
	c.logger.Debug("receive loop ended", "cause", cause)
}

// receiveChallenge consumes at most one leading frame before the connect
// request is registered. Absence of a challenge is tolerated; an unexpected
// frame is discarded.
func receiveChallenge(sock Socket) string {
	_, data, err := sock.ReadMessage()
	if err != nil {
		return ""
	}
	frame, err := protocol.Decode(data)
	if err != nil || frame.Event == nil || frame.Event.Event != protocol.EventConnectChallenge {
		return ""
	}
	var challenge protocol.ChallengePayload
	if err := json.Unmarshal(frame.Event.Payload, &challenge); err != nil {
		return ""
	}
	return challenge.Nonce
}
