package registry

import (
	"encoding/base64"

	"github.com/zeebo/blake3"
)

// Trigger is one authenticated, timestamped request to the engine.
type Trigger struct {
	Unit    string         // Unit is the trigger identifier
	Sender  string         // Sender is the authenticated address of the author
	Amount  uint64         // Amount is the attached base-currency value
	Payload map[string]any // Payload is the decoded request document
}

// Response is the outcome of one trigger.
type Response struct {
	Unit     string         `json:"unit"`
	Bounced  bool           `json:"bounced"`
	Error    string         `json:"error,omitempty"`
	Refund   uint64         `json:"refund,omitempty"`
	Vars     map[string]any `json:"vars,omitempty"`
	Messages []Message      `json:"messages,omitempty"`
}

// HasResponseUnit reports whether the trigger emitted outgoing messages.
func (r *Response) HasResponseUnit() bool {
	return len(r.Messages) > 0
}

// Message kinds.
const (
	AppPayment = "payment"
	AppData    = "data"
)

// Message is an outgoing message of a response unit.
type Message struct {
	App     string      `json:"app"`
	Payment *Payment    `json:"payment,omitempty"`
	Data    *DataRecord `json:"data,omitempty"`
}

// Payment sends base-currency value to an address.
type Payment struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// DataRecord publishes the registry entry of a canonical asset.
type DataRecord struct {
	Asset       string `json:"asset"`
	Name        string `json:"name"`
	Decimals    uint64 `json:"decimals"`
	Description string `json:"description,omitempty"`
}

// AssetID derives an asset identifier from arbitrary issuance bytes.
func AssetID(seed []byte) string {
	h := blake3.Sum256(seed)
	return base64.StdEncoding.EncodeToString(h[:])
}
