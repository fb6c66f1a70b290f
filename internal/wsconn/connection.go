package wsconn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solpulse/ingest/internal/model"
)

// Connection is the single open WebSocket session for one program-id. The
// Manager exclusively owns its lifecycle; the dispatcher only reads frames
// off Frames() and writes via Send.
type Connection struct {
	ProgramID string
	Endpoint  model.Endpoint

	conn *websocket.Conn

	stateVal int32 // model.SocketState encoded as int32, see socketStateCodes
	lastPong atomic.Value // time.Time

	frames    chan []byte
	writeMu   sync.Mutex
	closeOnce sync.Once
	stopCh    chan struct{}

	pingInterval time.Duration
	pingTimeout  time.Duration
}

var socketStateCodes = map[model.SocketState]int32{
	model.SocketConnecting: 0,
	model.SocketOpen:       1,
	model.SocketClosing:    2,
	model.SocketClosed:     3,
}

var socketStateNames = map[int32]model.SocketState{
	0: model.SocketConnecting,
	1: model.SocketOpen,
	2: model.SocketClosing,
	3: model.SocketClosed,
}

func newConnection(programID string, endpoint model.Endpoint, conn *websocket.Conn, pingInterval, pingTimeout time.Duration) *Connection {
	c := &Connection{
		ProgramID:    programID,
		Endpoint:     endpoint,
		conn:         conn,
		frames:       make(chan []byte, 256),
		stopCh:       make(chan struct{}),
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
	}
	atomic.StoreInt32(&c.stateVal, socketStateCodes[model.SocketOpen])
	c.lastPong.Store(time.Now())

	conn.SetPongHandler(func(string) error {
		c.lastPong.Store(time.Now())
		if pingTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(pingTimeout))
		}
		return nil
	})
	if pingTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(pingTimeout))
	}

	go c.readLoop()
	if pingInterval > 0 {
		go c.pingLoop()
	}

	return c
}

// ProgramIdentifier satisfies dispatch.FrameSource, decoupling the
// dispatcher from this package's concrete Connection type.
func (c *Connection) ProgramIdentifier() string { return c.ProgramID }

// State returns the connection's current socket_state.
func (c *Connection) State() model.SocketState {
	return socketStateNames[atomic.LoadInt32(&c.stateVal)]
}

func (c *Connection) setState(s model.SocketState) {
	atomic.StoreInt32(&c.stateVal, socketStateCodes[s])
}

// LastPong returns the last time a pong (or an initial open) was observed.
func (c *Connection) LastPong() time.Time {
	return c.lastPong.Load().(time.Time)
}

// Frames returns the channel of raw inbound frames for the dispatcher's
// single per-connection consumer goroutine. The channel is closed when the
// read loop exits (on error or explicit Close).
func (c *Connection) Frames() <-chan []byte {
	return c.frames
}

// Send writes an outbound frame (a subscribe request) to the socket.
func (c *Connection) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.State() != model.SocketOpen {
		return &Error{Outcome: OutcomeHandshake}
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) readLoop() {
	defer func() {
		c.setState(model.SocketClosed)
		close(c.frames)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case c.frames <- data:
		case <-c.stopCh:
			return
		}
	}
}

func (c *Connection) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.pingTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.Close()
				return
			}
			if c.pingTimeout > 0 && time.Since(c.LastPong()) > c.pingInterval+c.pingTimeout {
				// No pong within ping_timeout: treat the connection as failed.
				c.Close()
				return
			}
		}
	}
}

// Close idempotently closes the connection.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.setState(model.SocketClosing)
		close(c.stopCh)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
		c.setState(model.SocketClosed)
	})
}
