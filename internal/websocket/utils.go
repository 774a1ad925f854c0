package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// ErrInvalidPayload wraps decode failures. The connection stays usable.
var ErrInvalidPayload = errors.New("invalid payload")

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Client serializes writes to one connection. Narration scheduled on a timer
// and replies from the read loop write concurrently, and gorilla connections
// allow a single writer at a time.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient wraps conn.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

// Send writes v as JSON.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteTyped(c.conn, v)
}

// SendError writes a typed ErrorResponse.
func (c *Client) SendError(code, errMsg string) error {
	return c.Send(ErrorResponse{
		Event: EventError,
		Code:  code,
		Error: errMsg,
	})
}
