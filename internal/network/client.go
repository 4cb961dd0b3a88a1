package network

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"TokenRegistry/internal/registry"
)

const (
	// defaultRequestTimeout is the default timeout for Request calls.
	defaultRequestTimeout = 30 * time.Second
)

// Client errors.
var (
	ErrRejected = errors.New("request rejected")
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("client is closed")
)

// Client is a QUIC connection to a registry node.
type Client struct {
	conn   *quic.Conn  // conn is the underlying QUIC connection
	closed atomic.Bool // closed indicates if the client is closed
}

// newQUICConfig returns the QUIC settings used by both ends.
func newQUICConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}
}

// Dial connects to a node. A nil key generates an ephemeral identity.
func Dial(ctx context.Context, addr string, key ed25519.PrivateKey) (*Client, error) {
	if key == nil {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate key:\n%w", err)
		}
		key = priv
	}

	tlsConfig, err := newTLSConfig(key)
	if err != nil {
		return nil, err
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConfig, newQUICConfig())
	if err != nil {
		return nil, fmt.Errorf("dial:\n%w", err)
	}

	return &Client{conn: conn}, nil
}

// Submit sends a signed envelope and waits for its response.
func (c *Client) Submit(ctx context.Context, data []byte) (*registry.Response, error) {
	return c.call(ctx, opSubmit, data)
}

// Response fetches the stored response of a unit.
func (c *Client) Response(ctx context.Context, unit string) (*registry.Response, error) {
	return c.call(ctx, opResponse, []byte(unit))
}

// Push sends a signed envelope without waiting for the outcome.
func (c *Client) Push(data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	stream, err := c.conn.OpenUniStreamSync(context.Background())
	if err != nil {
		return fmt.Errorf("open stream:\n%w", err)
	}

	if err := writeMessage(stream, data); err != nil {
		stream.Close()
		return fmt.Errorf("write message:\n%w", err)
	}

	return stream.Close()
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	return c.conn.CloseWithError(0, "closed")
}

func (c *Client) call(ctx context.Context, op byte, body []byte) (*registry.Response, error) {
	reply, err := c.request(ctx, frame(op, body))
	if err != nil {
		return nil, err
	}

	status, payload, err := unframe(reply)
	if err != nil {
		return nil, err
	}

	switch status {
	case statusOK:
	case statusRejected:
		return nil, fmt.Errorf("%w: %s", ErrRejected, payload)
	case statusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("server error: %s", payload)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var resp registry.Response
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response:\n%w", err)
	}

	return &resp, nil
}

// request sends data and waits for the reply on a bidirectional stream.
func (c *Client) request(ctx context.Context, data []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream:\n%w", err)
	}
	defer stream.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	stream.SetDeadline(deadline)

	if err := writeMessage(stream, data); err != nil {
		return nil, fmt.Errorf("write request:\n%w", err)
	}

	response, err := readMessage(stream)
	if err != nil {
		return nil, fmt.Errorf("read response:\n%w", err)
	}

	return response, nil
}
