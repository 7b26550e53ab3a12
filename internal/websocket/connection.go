package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection wraps one live duplex connection with its outbound queue.
// ARCHITECTURAL DISCOVERY: All socket writes go through a single writer
// goroutine consuming the queue; closing the queue is the sole cancellation
// primitive. The write pump closes the underlying socket on exit, which in
// turn unblocks the read pump, so either side ending tears down the session.
type Connection struct {
	ws           *websocket.Conn
	handle       string
	sendCh       chan []byte
	done         chan struct{} // closed when the write pump exits
	writeTimeout time.Duration

	mu       sync.Mutex // guards closed and identity
	closed   bool
	identity uuid.UUID
	bound    bool

	closeOnce sync.Once
}

// NewConnection creates a connection wrapper and starts its write pump.
// FUNCTIONAL DISCOVERY: The queue is bounded; a full queue drops the frame at
// enqueue time rather than blocking a sender's read pump on a slow recipient.
func NewConnection(ws *websocket.Conn, handle string, queueSize int, writeTimeout time.Duration) *Connection {
	c := &Connection{
		ws:           ws,
		handle:       handle,
		sendCh:       make(chan []byte, queueSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}

	go c.writePump()

	return c
}

// Handle returns the stable identifier for this connection.
func (c *Connection) Handle() string {
	return c.handle
}

// Enqueue places frame bytes on the outbound queue without blocking.
// Callers treat both error cases as "drop the frame": a closed queue means the
// recipient was displaced or disconnected while the frame was in flight.
func (c *Connection) Enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrQueueClosed
	}

	select {
	case c.sendCh <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// CloseQueue closes the outbound queue. Idempotent; safe to call from the
// registry's displacement path while producers are concurrently enqueueing.
func (c *Connection) CloseQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.sendCh)
	}
}

// Close tears the connection down: queue first, then the socket.
func (c *Connection) Close() error {
	c.CloseQueue()

	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}

// Done is closed once the write pump has exited.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// writePump drains the outbound queue onto the wire.
// TECHNICAL DISCOVERY: Forwarded envelopes are written as binary frames with
// their original bytes untouched. The deferred socket close propagates write-
// side termination to the read pump without touching the read side directly.
func (c *Connection) writePump() {
	defer func() {
		close(c.done)
		c.closeOnce.Do(func() {
			_ = c.ws.Close()
		})
	}()

	for data := range c.sendCh {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return
		}
		if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
	}
}

// setIdentity records the identity this connection is currently bound to.
// Called by the registry inside its critical section.
func (c *Connection) setIdentity(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.identity = id
	c.bound = true
}

// Identity returns the identity this connection last bound, if any.
func (c *Connection) Identity() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.identity, c.bound
}
