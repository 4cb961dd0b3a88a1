package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNotFound is returned when the node does not know the requested unit.
var ErrNotFound = errors.New("not found")

// StatusError is a non-success reply from the node.
type StatusError struct {
	Code    int    // Code is the HTTP status code
	Message string // Message is the node's error message, if any
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// postBytes sends body to url and decodes the JSON reply into result.
func (c *Client) postBytes(url string, body []byte, result any) error {
	resp, err := c.http.Post(url, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("POST %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	return decodeReply(resp, result)
}

// httpGet performs a GET request and decodes the JSON reply into result.
func (c *Client) httpGet(url string, result any) error {
	resp, err := c.http.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	return decodeReply(resp, result)
}

// httpGetRaw performs a GET request and returns the body.
func (c *Client) httpGetRaw(url string) ([]byte, error) {
	resp, err := c.http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, replyError(resp)
	}

	return io.ReadAll(resp.Body)
}

// decodeReply decodes a JSON reply, keeping numbers exact.
func decodeReply(resp *http.Response, result any) error {
	if resp.StatusCode != http.StatusOK {
		return replyError(resp)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	if err := dec.Decode(result); err != nil {
		return fmt.Errorf("decode reply:\n%w", err)
	}

	return nil
}

func replyError(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	var body struct {
		Error string `json:"error"`
	}
	json.NewDecoder(resp.Body).Decode(&body)

	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}
