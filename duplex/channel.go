// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wirechat/relay/fault"
)

// State identifies the connection state of a Channel.
type State int

const (
	// Disconnected means no connection exists and none is being
	// attempted.
	Disconnected State = iota
	// Connecting means a dial is in flight.
	Connecting
	// Open means the connection is established and usable.
	Open
	// Closing means the caller has initiated shutdown.
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// A Receiver consumes the frames of one chat turn. Exactly one of
// OnDone or OnError is invoked per turn, after which the receiver is
// released.
type Receiver interface {
	// OnDelta delivers an incremental text fragment.
	OnDelta(text string)
	// OnDone marks successful completion of the turn.
	OnDone()
	// OnError terminates the turn with a failure.
	OnError(err error)
}

// ErrNotOpen is returned by Send when the channel has no open
// connection.
var ErrNotOpen = errors.New("duplex: channel not open")

// ErrBusy is returned by Send when a previous turn has not yet
// received its terminal frame.
var ErrBusy = errors.New("duplex: turn already in flight")

// Config configures a Channel.
type Config struct {
	// URL is the WebSocket endpoint, e.g. "ws://host/api/chat/ws".
	URL string

	// Header is sent with the handshake request. May be nil.
	Header http.Header

	// DialTimeout bounds the handshake. Default: 10 seconds.
	DialTimeout time.Duration

	// HeartbeatInterval is the keepalive ping period. Default: 25
	// seconds.
	HeartbeatInterval time.Duration

	// ReconnectBase is the first reconnect delay, doubled per
	// consecutive attempt. Default: 1 second.
	ReconnectBase time.Duration

	// ReconnectMax caps the reconnect delay. Default: 30 seconds.
	ReconnectMax time.Duration

	// ReconnectJitter is the maximum random addition to each
	// reconnect delay. Default: 250 milliseconds.
	ReconnectJitter time.Duration

	// MaxReconnectAttempts bounds consecutive reconnects. The budget
	// refills whenever a connection opens successfully. Default: 5.
	MaxReconnectAttempts int

	// Logger receives connection lifecycle logs. The zero value is
	// silent.
	Logger zerolog.Logger

	// OnClosed is invoked once when the channel terminates normally,
	// with the close code. May be nil.
	OnClosed func(code int)

	// OnFatal is invoked once when the channel terminates on a fatal
	// close code or an exhausted reconnect budget. May be nil.
	OnFatal func(err error)
}

func (cfg Config) withDefaults() Config {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 25 * time.Second
	}
	if cfg.ReconnectBase == 0 {
		cfg.ReconnectBase = time.Second
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.ReconnectJitter == 0 {
		cfg.ReconnectJitter = 250 * time.Millisecond
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = 5
	}
	return cfg
}

// inbound is the wire shape of server frames.
type inbound struct {
	Type    string `json:"type"`
	Data    string `json:"data"`
	Message string `json:"message"`
}

var pingFrame = []byte(`{"type":"ping"}`)

// A Channel is a persistent duplex connection multiplexing chat turns
// over one WebSocket. It owns the socket, the heartbeat timer and the
// reconnect timer; at most one connection attempt is ever in flight.
//
// A Channel is safe for concurrent use, though it carries at most one
// turn at a time.
type Channel struct {
	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	writeMu   sync.Mutex
	state     State
	conn      *websocket.Conn
	stop      chan struct{}
	receiver  Receiver
	closed    bool
	retries   int
	reconnect *time.Timer
	rand      *rand.Rand
}

// NewChannel returns a disconnected Channel. Call Connect to open it.
func NewChannel(cfg Config) *Channel {
	cfg = cfg.withDefaults()
	return &Channel{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "duplex").Logger(),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Connect dials the endpoint and starts the read and heartbeat loops.
// It is a no-op when the channel is already open, and returns an error
// when a dial is in flight or the channel has been closed.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return fault.Closed("duplex", websocket.CloseNormalClosure, "channel closed")
	case c.state == Open:
		c.mu.Unlock()
		return nil
	case c.state == Connecting:
		c.mu.Unlock()
		return errors.New("duplex: connect already in flight")
	}
	c.state = Connecting
	c.mu.Unlock()

	return c.dial(ctx)
}

// dial performs one connection attempt. The caller must have moved the
// channel to Connecting.
func (c *Channel) dial(ctx context.Context) error {
	c.logger.Debug().Str("url", c.cfg.URL).Msg("dialing")

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		return fault.Classify("duplex", err)
	}

	stop := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.state = Disconnected
		c.mu.Unlock()
		conn.Close()
		return fault.Closed("duplex", websocket.CloseNormalClosure, "channel closed")
	}
	c.conn = conn
	c.stop = stop
	c.state = Open
	c.retries = 0
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.heartbeat(conn, stop)

	c.logger.Info().Str("url", c.cfg.URL).Msg("channel open")
	return nil
}

// State returns the channel's current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send writes one pre-encoded outbound frame and registers r to
// receive the turn's inbound frames. It returns ErrNotOpen when no
// connection is open and ErrBusy when a previous turn is still in
// flight; in either case r is not registered.
func (c *Channel) Send(payload []byte, r Receiver) error {
	c.mu.Lock()
	if c.state != Open || c.conn == nil {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if c.receiver != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	c.receiver = r
	conn := c.conn
	c.mu.Unlock()

	if err := c.write(conn, payload); err != nil {
		c.mu.Lock()
		if c.receiver == r {
			c.receiver = nil
		}
		c.mu.Unlock()
		return fault.Classify("duplex", err)
	}
	return nil
}

// Cancel abandons the in-flight turn, if any. The turn's receiver gets
// a Cancelled error as its terminal frame; the connection itself stays
// open for later turns.
func (c *Channel) Cancel() {
	c.mu.Lock()
	r := c.receiver
	c.receiver = nil
	c.mu.Unlock()

	if r != nil {
		r.OnError(fault.Canceled("duplex"))
	}
}

// Close shuts the channel down. No reconnect is ever scheduled after
// Close returns, even if the peer's close frame reports an abnormal
// code.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	conn := c.conn
	if conn != nil {
		c.state = Closing
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Channel) write(conn *websocket.Conn, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// readLoop routes inbound frames until the connection dies, then hands
// off to teardown for close classification.
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.teardown(conn, err)
			return
		}

		var in inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			c.logger.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}

		switch in.Type {
		case "delta":
			if r := c.currentReceiver(); r != nil {
				r.OnDelta(in.Data)
			}
		case "done":
			if r := c.takeReceiver(); r != nil {
				r.OnDone()
			}
		case "error":
			if r := c.takeReceiver(); r != nil {
				r.OnError(fault.Remote("duplex", in.Message))
			}
		case "pong":
			// Heartbeat acknowledged.
		default:
			c.logger.Debug().Str("type", in.Type).Msg("dropping unknown frame")
		}
	}
}

func (c *Channel) currentReceiver() Receiver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receiver
}

func (c *Channel) takeReceiver() Receiver {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.receiver
	c.receiver = nil
	return r
}

// heartbeat sends a keepalive ping at a fixed interval until the
// connection's stop channel closes. A failed write kills the
// connection so the read loop can classify the loss.
func (c *Channel) heartbeat(conn *websocket.Conn, stop chan struct{}) {
	t := time.NewTicker(c.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := c.write(conn, pingFrame); err != nil {
				c.logger.Warn().Err(err).Msg("heartbeat write failed")
				conn.Close()
				return
			}
		}
	}
}

// teardown runs once per connection, when its read loop exits. It
// fails the in-flight turn, classifies the close code and decides
// between terminal close, fatal close and a scheduled reconnect.
func (c *Channel) teardown(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A stale loop from a connection already replaced.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Disconnected
	close(c.stop)
	c.stop = nil
	r := c.receiver
	c.receiver = nil
	closed := c.closed
	c.mu.Unlock()

	conn.Close()

	code, msg := closeCode(err)
	if r != nil {
		r.OnError(fault.Closed("duplex", code, msg))
	}

	if closed {
		c.logger.Info().Int("code", code).Msg("channel closed")
		c.notifyClosed(code)
		return
	}

	switch code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway:
		c.logger.Info().Int("code", code).Msg("channel closed by peer")
		c.notifyClosed(code)
	case websocket.ClosePolicyViolation:
		c.logger.Error().Int("code", code).Str("reason", msg).Msg("channel rejected")
		c.notifyFatal(&fault.Error{
			Kind:    fault.ChannelClosed,
			Label:   "duplex",
			Code:    code,
			Message: "policy violation: " + msg,
		})
	case websocket.CloseAbnormalClosure, websocket.CloseInternalServerErr:
		c.scheduleReconnect(code)
	default:
		c.logger.Error().Int("code", code).Str("reason", msg).Msg("channel failed")
		c.notifyFatal(fault.Closed("duplex", code, msg))
	}
}

// scheduleReconnect arms the reconnect timer with exponential backoff,
// or reports a fatal failure once the budget is spent.
func (c *Channel) scheduleReconnect(code int) {
	c.mu.Lock()
	if c.closed || c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	if c.retries >= c.cfg.MaxReconnectAttempts {
		c.mu.Unlock()
		c.logger.Error().Int("code", code).Int("attempts", c.cfg.MaxReconnectAttempts).
			Msg("reconnect budget exhausted")
		c.notifyFatal(fault.Closed("duplex", code, "reconnect budget exhausted"))
		return
	}
	c.retries++
	attempt := c.retries
	delay := c.backoff(attempt)
	c.reconnect = time.AfterFunc(delay, c.redial)
	c.mu.Unlock()

	c.logger.Warn().Int("code", code).Dur("delay", delay).Int("attempt", attempt).
		Msg("scheduling reconnect")
}

// redial fires from the reconnect timer.
func (c *Channel) redial() {
	c.mu.Lock()
	if c.closed || c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	c.state = Connecting
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	defer cancel()
	if err := c.dial(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("reconnect failed")
		c.scheduleReconnect(websocket.CloseAbnormalClosure)
	}
}

// backoff computes the reconnect delay for the given attempt. The
// caller must hold c.mu, which also guards c.rand.
func (c *Channel) backoff(attempt int) time.Duration {
	d := c.cfg.ReconnectBase << (attempt - 1)
	if d > c.cfg.ReconnectMax || d < c.cfg.ReconnectBase {
		d = c.cfg.ReconnectMax
	}
	return d + time.Duration(c.rand.Int63n(int64(c.cfg.ReconnectJitter)+1))
}

func (c *Channel) notifyClosed(code int) {
	if c.cfg.OnClosed != nil {
		c.cfg.OnClosed(code)
	}
}

func (c *Channel) notifyFatal(err error) {
	if c.cfg.OnFatal != nil {
		c.cfg.OnFatal(err)
	}
}

// closeCode extracts the close code from a read error. Anything that
// is not a close frame counts as an abnormal closure.
func closeCode(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
