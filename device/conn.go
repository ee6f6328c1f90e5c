package device

import (
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a live device session. The actor only needs to push frames and
// pings; reading and close/error detection stay with the transport owner,
// which reports them via Manager.Disconnect.
type Conn interface {
	// WriteFrame pushes one JSON frame to the device.
	WriteFrame(v any) error

	// Ping sends a ping frame. A failed ping is advisory only; the close
	// handler, not the heartbeat, drives the offline transition.
	Ping() error

	// Close tears the session down.
	Close() error
}

// writeWait bounds how long a single frame write may block on a dead peer.
const writeWait = 10 * time.Second

// WSConn adapts a gorilla websocket connection to Conn. onActivity is
// invoked from the pong handler so the owning actor can refresh its
// liveness deadline.
type WSConn struct {
	ws *websocket.Conn
}

// NewWSConn wraps ws and installs a pong handler that calls onActivity.
func NewWSConn(ws *websocket.Conn, onActivity func()) *WSConn {
	ws.SetPongHandler(func(string) error {
		if onActivity != nil {
			onActivity()
		}
		return nil
	})
	return &WSConn{ws: ws}
}

func (c *WSConn) WriteFrame(v any) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *WSConn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *WSConn) Close() error {
	return c.ws.Close()
}
