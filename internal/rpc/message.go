// Package rpc implements the JSON-RPC 2.0 base protocol spoken between the
// extension host and the journal language server: Content-Length framed
// messages over a pair of byte streams.
package rpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	Version = "2.0"

	contentLengthHeader = "content-length:"
	headerFormat        = "Content-Length: %d\r\n\r\n"
)

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var (
	// ErrClosed is returned for calls on a connection whose read loop ended.
	ErrClosed = errors.New("rpc connection closed")

	errMissingContentLength = errors.New("missing Content-Length header")
)

// Message is the union of requests, notifications and responses.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsRequest reports whether the message expects a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.ID != nil
}

// IsNotification reports whether the message is a notification.
func (m *Message) IsNotification() bool {
	return m.Method != "" && m.ID == nil
}

// IsResponse reports whether the message answers an earlier request.
func (m *Message) IsResponse() bool {
	return m.Method == "" && m.ID != nil
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewError builds an error with the given code.
func NewError(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// idKey normalizes ids so numbers decoded as float64 match the int64 we sent.
func idKey(id interface{}) string {
	switch v := id.(type) {
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// WriteMessage frames msg with a Content-Length header and writes it to w.
func WriteMessage(w io.Writer, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if _, err := fmt.Fprintf(w, headerFormat, len(data)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message. Headers other than Content-Length
// are ignored.
func ReadMessage(r *bufio.Reader) (*Message, error) {
	contentLength := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), contentLengthHeader) {
			value := strings.TrimSpace(line[len(contentLengthHeader):])
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid Content-Length: %s", value)
			}
			contentLength = n
		}
	}

	if contentLength <= 0 {
		return nil, errMissingContentLength
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &Error{Code: CodeParseError, Message: err.Error()}
	}
	return &msg, nil
}
