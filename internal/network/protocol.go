package network

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// maxMessageSize is the maximum allowed message size (1 MB).
	maxMessageSize = 1 << 20

	// lengthPrefixSize is the size of the length prefix in bytes.
	lengthPrefixSize = 4

	// alpnProtocol is the ALPN protocol identifier.
	alpnProtocol = "tokenregistry/1"
)

// Request operations, first byte of a request frame.
const (
	opSubmit   byte = 1 // opSubmit carries a signed envelope
	opResponse byte = 2 // opResponse carries a unit id
)

// Reply statuses, first byte of a reply frame.
const (
	statusOK       byte = 0
	statusRejected byte = 1 // statusRejected: the request itself was invalid
	statusNotFound byte = 2
	statusFailed   byte = 3 // statusFailed: the server could not process the request
)

// writeMessage writes a length-prefixed message to the writer.
// Format: [4 bytes big-endian length] [payload]
func writeMessage(w io.Writer, data []byte) error {
	if len(data) > maxMessageSize {
		return fmt.Errorf("message too large: %d > %d", len(data), maxMessageSize)
	}

	var lengthBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(data)))

	if _, err := w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("write length:\n%w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload:\n%w", err)
	}

	return nil
}

// readMessage reads a length-prefixed message from the reader.
func readMessage(r io.Reader) ([]byte, error) {
	var lengthBuf [lengthPrefixSize]byte

	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, fmt.Errorf("read length:\n%w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])

	if length > maxMessageSize {
		return nil, fmt.Errorf("message too large: %d > %d", length, maxMessageSize)
	}

	data := make([]byte, length)

	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read payload:\n%w", err)
	}

	return data, nil
}

// frame prefixes body with a one-byte tag.
func frame(tag byte, body []byte) []byte {
	out := make([]byte, 1+len(body))
	out[0] = tag
	copy(out[1:], body)
	return out
}

// unframe splits a tagged frame.
func unframe(data []byte) (byte, []byte, error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("empty frame")
	}
	return data[0], data[1:], nil
}
