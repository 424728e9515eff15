package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
)

// Handler answers incoming requests and notifications. For notifications the
// result is discarded. Returning an *Error sends that code back to the peer.
type Handler func(ctx context.Context, method string, params json.RawMessage) (interface{}, error)

// Conn is a bidirectional JSON-RPC connection. Both sides may issue calls:
// the client asks the server to execute commands, the server asks the client
// to apply edits.
type Conn struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer

	handler Handler
	logger  *log.Logger

	wmu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *Message
	nextID  atomic.Int64

	done    chan struct{}
	closeMu sync.Once
	err     error
}

// NewConn wraps r and w. closer, when not nil, is closed by Close.
func NewConn(r io.Reader, w io.Writer, closer io.Closer, handler Handler, logger *log.Logger) *Conn {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Conn{
		reader:  bufio.NewReaderSize(r, 64*1024),
		writer:  w,
		closer:  closer,
		handler: handler,
		logger:  logger,
		pending: make(map[string]chan *Message),
		done:    make(chan struct{}),
	}
}

// Run reads messages until the stream ends, ctx is cancelled or Close is
// called. Pending calls fail with ErrClosed once it returns.
func (c *Conn) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
			c.shutdown(ctx.Err())
		case <-c.done:
		}
	}()

	for {
		msg, err := ReadMessage(c.reader)
		if err != nil {
			var rpcErr *Error
			if errors.As(err, &rpcErr) {
				c.logger.Printf("dropping malformed message: %v", err)
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				err = nil
			}
			c.shutdown(err)
			return err
		}

		switch {
		case msg.IsResponse():
			c.deliver(msg)
		case msg.IsRequest():
			go c.serveRequest(ctx, msg)
		case msg.IsNotification():
			c.serveNotification(ctx, msg)
		default:
			c.logger.Printf("dropping message without method or id")
		}
	}
}

// Done is closed when the connection stops.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection stopped, nil for a clean end of stream.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close stops the connection and releases the underlying stream.
func (c *Conn) Close() error {
	c.shutdown(nil)
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Call sends a request and decodes the response into result (which may be nil).
func (c *Conn) Call(ctx context.Context, method string, params, result interface{}) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	raw, err := marshalParams(params)
	if err != nil {
		return err
	}

	id := c.nextID.Add(1)
	key := idKey(id)
	respCh := make(chan *Message, 1)

	c.mu.Lock()
	c.pending[key] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	if err := c.write(&Message{JSONRPC: Version, ID: id, Method: method, Params: raw}); err != nil {
		return fmt.Errorf("failed to send request %s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// Notify sends a notification.
func (c *Conn) Notify(ctx context.Context, method string, params interface{}) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	if err := c.write(&Message{JSONRPC: Version, Method: method, Params: raw}); err != nil {
		return fmt.Errorf("failed to send notification %s: %w", method, err)
	}
	return nil
}

func (c *Conn) write(msg *Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return WriteMessage(c.writer, msg)
}

func (c *Conn) deliver(msg *Message) {
	key := idKey(msg.ID)

	c.mu.Lock()
	ch, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Printf("received response for unknown request id %v", msg.ID)
		return
	}
	ch <- msg
}

func (c *Conn) serveRequest(ctx context.Context, msg *Message) {
	resp := &Message{JSONRPC: Version, ID: msg.ID}

	if c.handler == nil {
		resp.Error = NewError(CodeMethodNotFound, "method not found: %s", msg.Method)
	} else {
		result, err := c.handler(ctx, msg.Method, msg.Params)
		if err != nil {
			resp.Error = toError(err)
		} else {
			data, err := json.Marshal(result)
			if err != nil {
				resp.Error = NewError(CodeInternalError, "failed to marshal result: %v", err)
			} else {
				resp.Result = data
			}
		}
	}

	if err := c.write(resp); err != nil {
		c.logger.Printf("failed to answer %s: %v", msg.Method, err)
	}
}

func (c *Conn) serveNotification(ctx context.Context, msg *Message) {
	if c.handler == nil {
		return
	}
	if _, err := c.handler(ctx, msg.Method, msg.Params); err != nil {
		c.logger.Printf("notification %s failed: %v", msg.Method, err)
	}
}

func (c *Conn) shutdown(err error) {
	c.closeMu.Do(func() {
		c.err = err
		close(c.done)
	})
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return data, nil
}

func toError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
