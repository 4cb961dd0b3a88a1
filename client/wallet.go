package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"TokenRegistry/internal/envelope"
	"TokenRegistry/internal/registry"
	"TokenRegistry/internal/signing"
)

// Wallet signs triggers with a BLS key.
type Wallet struct {
	key   *signing.KeyPair // key signs envelopes
	mu    sync.Mutex
	nonce uint64 // nonce distinguishes otherwise identical envelopes
}

// Signed is a serialized envelope ready to submit.
type Signed struct {
	Data []byte // Data is the FlatBuffers envelope
	Unit string // Unit is the id the node will report
}

// NewWallet creates a wallet with a random key.
func NewWallet() (*Wallet, error) {
	key, err := signing.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return &Wallet{key: key}, nil
}

// WalletFromKey wraps an existing key.
func WalletFromKey(key *signing.KeyPair) *Wallet {
	return &Wallet{key: key}
}

// Address returns the sender address of the wallet's triggers.
func (w *Wallet) Address() string {
	return w.key.Address()
}

// Sign wraps payload into an envelope attaching amount.
func (w *Wallet) Sign(amount uint64, payload map[string]any) (*Signed, error) {
	doc, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload:\n%w", err)
	}

	w.mu.Lock()
	w.nonce++
	nonce := w.nonce
	w.mu.Unlock()

	data, hash := envelope.Build(w.key, amount, nonce, doc)

	return &Signed{Data: data, Unit: envelope.UnitID(hash)}, nil
}

// Support stakes amount behind symbol and asset in drawer. meta may be nil.
func (w *Wallet) Support(symbol, asset string, drawer uint32, amount uint64, meta *registry.Metadata) (*Signed, error) {
	p := map[string]any{"symbol": symbol, "asset": asset}
	if drawer != 0 {
		p["drawer"] = drawer
	}
	addMetadata(p, meta)

	return w.Sign(amount, p)
}

// Metadata updates the decimals or description of an asset. Either
// symbol or asset may be empty.
func (w *Wallet) Metadata(symbol, asset string, meta registry.Metadata, fee uint64) (*Signed, error) {
	p := map[string]any{}
	if symbol != "" {
		p["symbol"] = symbol
	}
	if asset != "" {
		p["asset"] = asset
	}
	addMetadata(p, &meta)

	return w.Sign(fee, p)
}

// Withdraw withdraws amount from drawer. The first call on a locked drawer
// starts its warm-up; a second call after the warm-up pays out.
func (w *Wallet) Withdraw(symbol, asset string, drawer uint32, amount, fee uint64) (*Signed, error) {
	p := map[string]any{
		"withdraw": 1,
		"symbol":   symbol,
		"asset":    asset,
		"amount":   amount,
	}
	if drawer != 0 {
		p["drawer"] = drawer
	}

	return w.Sign(fee, p)
}

// Move transfers the stake of owner's locked drawer to drawer 0. An empty
// owner moves the wallet's own stake.
func (w *Wallet) Move(owner, symbol, asset string, drawer uint32, fee uint64) (*Signed, error) {
	p := map[string]any{
		"move":   1,
		"symbol": symbol,
		"asset":  asset,
		"drawer": drawer,
	}
	if owner != "" {
		p["address"] = owner
	}

	return w.Sign(fee, p)
}

func addMetadata(p map[string]any, meta *registry.Metadata) {
	if meta == nil {
		return
	}
	if meta.Decimals != nil {
		p["decimals"] = *meta.Decimals
	}
	if meta.Description != nil {
		p["description"] = *meta.Description
	}
}
