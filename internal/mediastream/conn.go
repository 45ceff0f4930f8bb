package mediastream

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/callbridge/internal/protocol"
)

const writeTimeout = 10 * time.Second

var ErrConnClosed = errors.New("media stream connection is closed")

// Conn is the telephony leg of one call. Writes are serialized; gorilla
// allows a single concurrent writer.
type Conn struct {
	ws *websocket.Conn

	streamID atomic.Value

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{ws: ws}
	c.streamID.Store("")
	return c
}

func (c *Conn) StreamID() string {
	return c.streamID.Load().(string)
}

func (c *Conn) setStreamID(id string) {
	c.streamID.Store(id)
}

// SendAudio writes one outbound media frame.
func (c *Conn) SendAudio(payload string) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.ws.WriteJSON(protocol.NewOutboundMedia(c.StreamID(), payload))
	_ = c.ws.SetWriteDeadline(time.Time{})
	if err != nil && c.closed.Load() {
		return ErrConnClosed
	}
	return err
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Close is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = c.ws.Close()
	})
	return nil
}
