// Package envelope builds and verifies the signed wire form of a trigger.
package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/zeebo/blake3"

	"TokenRegistry/internal/registry"
	"TokenRegistry/internal/signing"
	"TokenRegistry/internal/types"
)

const (
	// hashSize is the size of a unit hash.
	hashSize = 32

	// MaxPayloadSize bounds the JSON request document.
	MaxPayloadSize = 16 << 10
)

// ErrMalformed is returned for envelopes that cannot be decoded.
var ErrMalformed = errors.New("malformed envelope")

// Envelope is a decoded and verified SignedTrigger.
type Envelope struct {
	PublicKey []byte         // PublicKey is the sender's BLS public key
	Amount    uint64         // Amount is the attached value
	Nonce     uint64         // Nonce distinguishes identical requests
	Payload   []byte         // Payload is the JSON request document
	Hash      [hashSize]byte // Hash is the unit id
}

// Unit returns the printable unit id.
func (e *Envelope) Unit() string {
	return UnitID(e.Hash)
}

// Sender returns the address of the signer.
func (e *Envelope) Sender() string {
	return signing.Address(e.PublicKey)
}

// Trigger converts the envelope into an engine trigger. When the payload
// does not decode the trigger is still returned, without a payload, so
// that it can be bounced.
func (e *Envelope) Trigger() (registry.Trigger, error) {
	t := registry.Trigger{
		Unit:   e.Unit(),
		Sender: e.Sender(),
		Amount: e.Amount,
	}

	payload, err := DecodePayload(e.Payload)
	if err != nil {
		return t, err
	}
	t.Payload = payload

	return t, nil
}

// UnitID renders a unit hash.
func UnitID(hash [hashSize]byte) string {
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// DecodePayload parses a request document, keeping numbers exact.
func DecodePayload(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrMalformed)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrMalformed)
	}

	return payload, nil
}

// Build signs a request and returns the serialized envelope and its hash.
func Build(key *signing.KeyPair, amount, nonce uint64, payload []byte) ([]byte, [hashSize]byte) {
	pubkey := key.PublicKey()

	hash := blake3.Sum256(unsignedBytes(pubkey, amount, nonce, payload))
	sig := key.Sign(hash[:])

	builder := flatbuffers.NewBuilder(256 + len(payload))

	pubVec := builder.CreateByteVector(pubkey)
	payloadVec := builder.CreateByteVector(payload)
	hashVec := builder.CreateByteVector(hash[:])
	sigVec := builder.CreateByteVector(sig)

	types.SignedTriggerStart(builder)
	types.SignedTriggerAddPubkey(builder, pubVec)
	types.SignedTriggerAddAmount(builder, amount)
	types.SignedTriggerAddNonce(builder, nonce)
	types.SignedTriggerAddPayload(builder, payloadVec)
	types.SignedTriggerAddHash(builder, hashVec)
	types.SignedTriggerAddSignature(builder, sigVec)
	types.FinishSignedTriggerBuffer(builder, types.SignedTriggerEnd(builder))

	return builder.FinishedBytes(), hash
}

// Decode parses data and checks its structure, hash and signature.
func Decode(data []byte) (env *Envelope, retErr error) {
	// FlatBuffers panics on malformed data, recover gracefully
	defer func() {
		if r := recover(); r != nil {
			env, retErr = nil, ErrMalformed
		}
	}()

	if len(data) < 8 {
		return nil, fmt.Errorf("%w: too short", ErrMalformed)
	}

	st := types.GetRootAsSignedTrigger(data, 0)

	if err := validateFieldSizes(st); err != nil {
		return nil, err
	}

	env = &Envelope{
		PublicKey: bytes.Clone(st.PubkeyBytes()),
		Amount:    st.Amount(),
		Nonce:     st.Nonce(),
		Payload:   bytes.Clone(st.PayloadBytes()),
	}
	copy(env.Hash[:], st.HashBytes())

	expected := blake3.Sum256(unsignedBytes(env.PublicKey, env.Amount, env.Nonce, env.Payload))
	if expected != env.Hash {
		return nil, fmt.Errorf("%w: hash mismatch", ErrMalformed)
	}

	if !signing.Verify(st.SignatureBytes(), env.Hash[:], env.PublicKey) {
		return nil, fmt.Errorf("%w: invalid signature", ErrMalformed)
	}

	return env, nil
}

// validateFieldSizes checks that all fixed-size fields have the correct length.
func validateFieldSizes(st *types.SignedTrigger) error {
	if n := len(st.HashBytes()); n != hashSize {
		return fmt.Errorf("%w: invalid hash size: got %d, want %d", ErrMalformed, n, hashSize)
	}

	if n := len(st.PubkeyBytes()); n != signing.PublicKeySize {
		return fmt.Errorf("%w: invalid public key size: got %d, want %d", ErrMalformed, n, signing.PublicKeySize)
	}

	if n := len(st.SignatureBytes()); n != signing.SignatureSize {
		return fmt.Errorf("%w: invalid signature size: got %d, want %d", ErrMalformed, n, signing.SignatureSize)
	}

	if n := len(st.PayloadBytes()); n == 0 || n > MaxPayloadSize {
		return fmt.Errorf("%w: invalid payload size %d", ErrMalformed, n)
	}

	return nil
}

// unsignedBytes serializes the envelope without hash and signature.
// Build and Decode must construct it identically.
func unsignedBytes(pubkey []byte, amount, nonce uint64, payload []byte) []byte {
	builder := flatbuffers.NewBuilder(128 + len(payload))

	pubVec := builder.CreateByteVector(pubkey)
	payloadVec := builder.CreateByteVector(payload)

	types.SignedTriggerStart(builder)
	types.SignedTriggerAddPubkey(builder, pubVec)
	types.SignedTriggerAddAmount(builder, amount)
	types.SignedTriggerAddNonce(builder, nonce)
	types.SignedTriggerAddPayload(builder, payloadVec)
	types.FinishSignedTriggerBuffer(builder, types.SignedTriggerEnd(builder))

	return builder.FinishedBytes()
}
