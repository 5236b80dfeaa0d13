package gateway

import (
	"sync"
	"time"

	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/sellerchat/internal/config"
)

// hertzConn implements ClientConn on hertz-contrib/websocket. All writes go
// through writeLoop, the connection's only writer.
type hertzConn struct {
	conn      *websocket.Conn
	cfg       config.WebSocketConfig
	writeChan chan []byte
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
	closeChan chan struct{}
}

// newHertzConn wraps conn and starts its write loop
func newHertzConn(conn *websocket.Conn, cfg config.WebSocketConfig) *hertzConn {
	c := &hertzConn{
		conn:      conn,
		cfg:       cfg,
		writeChan: make(chan []byte, cfg.WriteChannelSize),
		closeChan: make(chan struct{}),
	}

	conn.SetReadLimit(cfg.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	go c.writeLoop()
	return c
}

func (c *hertzConn) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		if r := recover(); r != nil {
			log.Debug("write loop recovered from panic: %v", r)
		}
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.writeChan:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, message); err != nil {
				log.Debug("write message error: %v", err)
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Debug("ping error: %v", err)
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

func (c *hertzConn) write(messageType int, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrConnClosed
		}
	}()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return c.conn.WriteMessage(messageType, data)
}

// ReadMessage reads a message from the connection
func (c *hertzConn) ReadMessage() ([]byte, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	_, message, err := c.conn.ReadMessage()
	return message, err
}

// WriteMessage queues a message for the write loop. A full queue means the
// peer is not keeping up.
func (c *hertzConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	select {
	case c.writeChan <- data:
		return nil
	default:
		return ErrWriteChannelFull
	}
}

// Close stops the write loop, which closes the socket
func (c *hertzConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		close(c.writeChan)
		c.writeMu.Unlock()

		close(c.closeChan)
	})
	return nil
}

// SetReadDeadline sets the read deadline
func (c *hertzConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline
func (c *hertzConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
