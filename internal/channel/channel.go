// Package channel owns the bidirectional sync connection: one websocket,
// a typed emit/listen surface, automatic bounded reconnect, and ack
// correlation for request-style emits.
package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// AckFunc is a single-shot callback for an acknowledged emit. Exactly
// one of result/err is meaningful.
type AckFunc func(result json.RawMessage, err error)

// Emitter is the outbound surface subsystems hold. A disconnected
// channel no-ops plain emits and fails acked emits with
// ErrDisconnected; neither ever panics into the caller.
type Emitter interface {
	Emit(ev EventType, payload any) error
	EmitAck(ev EventType, payload any, ack AckFunc) error
}

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateFailed is terminal until a user-initiated Reconnect.
	StateFailed
)

type Options struct {
	URL         string
	MaxAttempts int
	Backoff     time.Duration
	AckTimeout  time.Duration
	SendBuffer  int
}

type pendingAck struct {
	event EventType
	fn    AckFunc
	timer *time.Timer
}

type Channel struct {
	opts       Options
	dispatcher *Dispatcher

	mu      sync.Mutex
	state   State
	epoch   uint64
	token   string
	send    chan []byte
	cancel  context.CancelFunc
	pending map[string]*pendingAck

	// onConnect hooks run on every successful (re)connect with the new
	// epoch; all epoch-scoped dedupe state is invalidated there.
	onConnect []func(epoch uint64)
}

func New(opts Options, d *Dispatcher) *Channel {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &Channel{
		opts:       opts,
		dispatcher: d,
		pending:    make(map[string]*pendingAck),
	}
}

func (c *Channel) Dispatcher() *Dispatcher { return c.dispatcher }

// OnConnect must be called before Connect; hooks run on the connection
// goroutine in registration order.
func (c *Channel) OnConnect(fn func(epoch uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Connect starts the connection loop. No token means no socket: the
// channel refuses anonymous connections outright.
func (c *Channel) Connect(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoToken
	}
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.token = token
	c.state = StateConnecting
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Reconnect retries from the terminal failed state, with a fresh
// attempt budget. User-initiated; replaces the old page-reload story.
func (c *Channel) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateFailed {
		c.mu.Unlock()
		return nil
	}
	token := c.token
	c.state = StateDisconnected
	c.mu.Unlock()
	return c.Connect(ctx, token)
}

func (c *Channel) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.state = StateDisconnected
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Channel) run(ctx context.Context) {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := c.dial(ctx)
		if err != nil {
			attempts++
			log.Error().Err(err).Str("module", "channel").Int("attempt", attempts).Msg("dial failed")
			if attempts >= c.opts.MaxAttempts {
				c.setState(StateFailed)
				log.Warn().Str("module", "channel").Msg("giving up, reconnect required")
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.Backoff):
			}
			continue
		}
		attempts = 0

		connCtx, connCancel := context.WithCancel(ctx)
		c.mu.Lock()
		c.send = make(chan []byte, c.opts.SendBuffer)
		c.state = StateConnected
		c.epoch++
		epoch := c.epoch
		hooks := append([]func(uint64){}, c.onConnect...)
		c.mu.Unlock()

		log.Info().Str("module", "channel").Uint64("epoch", epoch).Msg("connected")
		for _, h := range hooks {
			h(epoch)
		}

		go c.writePump(connCtx, conn)
		c.readPump(connCtx, conn)

		connCancel()
		_ = conn.Close()
		c.failPending(ErrDisconnected)
		c.setState(StateConnecting)
		log.Warn().Str("module", "channel").Msg("connection lost, retrying")
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, hdr)
	return conn, err
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) writePump(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-send:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "channel").Msg("writePump set deadline")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "channel").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Channel) readPump(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "channel").Msg("readPump read error")
				return
			}
			c.handleFrame(data)
		}
	}
}

func (c *Channel) handleFrame(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "channel").Msg("bad json")
		return
	}
	if env.Type == EventAck {
		c.resolveAck(env)
		return
	}
	c.dispatcher.dispatch(env)
}

// Emit sends a fire-and-forget event. While disconnected it is a
// logged no-op, not an error: callers treat "no socket" as a valid
// state.
func (c *Channel) Emit(ev EventType, payload any) error {
	b, err := c.encode(ev, "", payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		log.Debug().Str("module", "channel").Str("type", string(ev)).Msg("emit dropped, disconnected")
		return nil
	}
	send := c.send
	c.mu.Unlock()

	select {
	case send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

// EmitAck sends an event the server must acknowledge. The ack callback
// fires exactly once: with the server result, a server-reported
// AckError, ErrAckTimeout, or ErrDisconnected if the link drops first.
func (c *Channel) EmitAck(ev EventType, payload any, ack AckFunc) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrDisconnected
	}
	ackID := uuid.NewString()
	pa := &pendingAck{event: ev, fn: ack}
	pa.timer = time.AfterFunc(c.opts.AckTimeout, func() {
		c.finishAck(ackID, nil, ErrAckTimeout)
	})
	c.pending[ackID] = pa
	send := c.send
	c.mu.Unlock()

	b, err := c.encode(ev, ackID, payload)
	if err != nil {
		c.dropAck(ackID)
		return err
	}
	select {
	case send <- b:
		return nil
	default:
		c.dropAck(ackID)
		return ErrBackpressure
	}
}

func (c *Channel) encode(ev EventType, ackID string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Type: ev, AckID: ackID, Payload: raw})
}

func (c *Channel) resolveAck(env Envelope) {
	var err error
	if env.Error != "" {
		c.mu.Lock()
		pa := c.pending[env.AckID]
		c.mu.Unlock()
		if pa != nil {
			err = &AckError{Event: pa.event, Reason: env.Error}
		}
	}
	c.finishAck(env.AckID, env.Payload, err)
}

func (c *Channel) finishAck(ackID string, result json.RawMessage, err error) {
	c.mu.Lock()
	pa, ok := c.pending[ackID]
	if ok {
		delete(c.pending, ackID)
		pa.timer.Stop()
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	pa.fn(result, err)
}

func (c *Channel) dropAck(ackID string) {
	c.mu.Lock()
	if pa, ok := c.pending[ackID]; ok {
		delete(c.pending, ackID)
		pa.timer.Stop()
	}
	c.mu.Unlock()
}

func (c *Channel) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingAck)
	c.mu.Unlock()
	for _, pa := range pending {
		pa.timer.Stop()
		pa.fn(nil, err)
	}
}
