package registry

import (
	"encoding/base32"
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// AddressLen is the length of an address string.
const AddressLen = 32

// Request is a parsed trigger payload. It is one of SupportRequest,
// MetadataRequest, WithdrawRequest or MoveRequest.
type Request interface {
	Kind() string
}

// Metadata carries optional asset attributes.
type Metadata struct {
	Decimals    *uint64 // Decimals is nil when not provided
	Description *string // Description is nil when not provided
}

// Empty reports whether no attribute was provided.
func (m Metadata) Empty() bool {
	return m.Decimals == nil && m.Description == nil
}

// SupportRequest stakes the attached amount behind a symbol/asset pair.
type SupportRequest struct {
	Drawer   uint32
	Symbol   string
	Asset    string
	Amount   uint64
	Metadata Metadata
}

// MetadataRequest updates the attributes of an asset. Either identifier may
// be empty and is then looked up from the current binding.
type MetadataRequest struct {
	Symbol   string
	Asset    string
	Metadata Metadata
}

// WithdrawRequest withdraws stake from one drawer.
type WithdrawRequest struct {
	Drawer uint32
	Symbol string
	Asset  string
	Amount uint64
}

// MoveRequest moves the whole stake of a locked drawer to drawer 0.
type MoveRequest struct {
	Owner  string
	Drawer uint32
	Symbol string
	Asset  string
}

func (SupportRequest) Kind() string  { return "support" }
func (MetadataRequest) Kind() string { return "metadata" }
func (WithdrawRequest) Kind() string { return "withdraw" }
func (MoveRequest) Kind() string     { return "move" }

// ParseRequest classifies and validates the payload of t.
func ParseRequest(t Trigger, p Params) (Request, error) {
	fields := t.Payload

	withdraw, err := flagField(fields, "withdraw")
	if err != nil {
		return nil, err
	}
	move, err := flagField(fields, "move")
	if err != nil {
		return nil, err
	}

	drawer, err := drawerField(fields)
	if err != nil {
		return nil, err
	}

	symbol, hasSymbol, err := stringField(fields, "symbol")
	if err != nil {
		return nil, err
	}
	if hasSymbol && !ValidSymbol(symbol) {
		return nil, malformed("bad symbol: %q", symbol)
	}

	asset, hasAsset, err := stringField(fields, "asset")
	if err != nil {
		return nil, err
	}
	if hasAsset && !ValidAsset(asset) {
		return nil, malformed("bad asset: %q", asset)
	}

	meta, err := metadataFields(fields)
	if err != nil {
		return nil, err
	}

	if withdraw || move {
		return parseDrawerOp(t, p, withdraw, move, drawer, symbol, asset, hasSymbol && hasAsset, meta)
	}

	if hasSymbol && hasAsset && t.Amount > p.MinSupport {
		return SupportRequest{Drawer: drawer, Symbol: symbol, Asset: asset, Amount: t.Amount, Metadata: meta}, nil
	}

	if !meta.Empty() {
		if !hasSymbol && !hasAsset {
			return nil, malformed("metadata needs a symbol or an asset")
		}
		return MetadataRequest{Symbol: symbol, Asset: asset, Metadata: meta}, nil
	}

	if hasSymbol && hasAsset {
		return nil, malformed("support amount must be greater than %d", p.MinSupport)
	}

	return nil, malformed("nothing to do")
}

func parseDrawerOp(t Trigger, p Params, withdraw, move bool, drawer uint32, symbol, asset string, hasPair bool, meta Metadata) (Request, error) {
	switch {
	case withdraw && move:
		return nil, malformed("cannot withdraw and move at the same time")
	case t.Amount > p.BounceFee:
		return nil, malformed("cannot support and withdraw or move at the same time")
	case !meta.Empty():
		return nil, malformed("metadata cannot be set together with a withdrawal or move")
	case !hasPair:
		return nil, malformed("symbol and asset are required")
	}

	if withdraw {
		amount, ok, err := amountField(t.Payload, "amount")
		if err != nil {
			return nil, err
		}
		if !ok || amount == 0 {
			return nil, malformed("withdrawal amount must be positive")
		}
		return WithdrawRequest{Drawer: drawer, Symbol: symbol, Asset: asset, Amount: amount}, nil
	}

	if drawer == 0 {
		return nil, malformed("drawer 0 is unlocked, nothing to move")
	}

	owner, hasOwner, err := stringField(t.Payload, "address")
	if err != nil {
		return nil, err
	}
	if !hasOwner {
		owner = t.Sender
	}
	if !ValidAddress(owner) {
		return nil, malformed("bad address: %q", owner)
	}

	return MoveRequest{Owner: owner, Drawer: drawer, Symbol: symbol, Asset: asset}, nil
}

func metadataFields(fields map[string]any) (Metadata, error) {
	var m Metadata

	if d, ok, err := amountField(fields, "decimals"); err != nil {
		return m, err
	} else if ok {
		if d > MaxDecimals {
			return m, malformed("decimals must be at most %d", MaxDecimals)
		}
		m.Decimals = &d
	}

	desc, ok, err := stringField(fields, "description")
	if err != nil {
		return m, err
	}
	if ok {
		if len(desc) > MaxDescriptionLen {
			return m, malformed("description longer than %d bytes", MaxDescriptionLen)
		}
		m.Description = &desc
	}

	return m, nil
}

// ValidSymbol reports whether s can name an asset. Symbols are echoed as
// response variables, so names the engine writes itself are refused.
func ValidSymbol(s string) bool {
	if s == "" || len(s) > MaxSymbolLen || s == messageVar {
		return false
	}
	for _, r := range s {
		if r == '_' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// ValidAsset reports whether s is a well-formed asset identifier.
func ValidAsset(s string) bool {
	if len(s) != 44 {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	return err == nil && len(raw) == 32
}

// ValidAddress reports whether s is a well-formed address.
func ValidAddress(s string) bool {
	if len(s) != AddressLen {
		return false
	}
	raw, err := base32.StdEncoding.DecodeString(s)
	return err == nil && len(raw) == 20
}

func stringField(fields map[string]any, name string) (string, bool, error) {
	v, ok := fields[name]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, malformed("%s must be a string", name)
	}
	return s, true, nil
}

func flagField(fields map[string]any, name string) (bool, error) {
	v, ok := fields[name]
	if !ok || v == nil {
		return false, nil
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	n, ok := toUint(v)
	if !ok || n > 1 {
		return false, malformed("%s must be a flag", name)
	}
	return n == 1, nil
}

func drawerField(fields map[string]any) (uint32, error) {
	n, ok, err := amountField(fields, "drawer")
	if err != nil || !ok {
		return 0, err
	}
	if n > math.MaxUint32 {
		return 0, malformed("drawer out of range")
	}
	return uint32(n), nil
}

func amountField(fields map[string]any, name string) (uint64, bool, error) {
	v, ok := fields[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	n, ok := toUint(v)
	if !ok {
		return 0, false, malformed("%s must be a non-negative integer", name)
	}
	return n, true, nil
}

// maxExactFloat is the largest integer a float64 represents exactly.
const maxExactFloat = 1 << 53

// toUint accepts the numeric shapes a decoded JSON document or a Go
// caller may produce.
func toUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case json.Number:
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToUint(f)
	case string:
		if strings.TrimSpace(n) != n {
			return 0, false
		}
		return toUint(json.Number(n))
	case float64:
		return floatToUint(n)
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	}
	return 0, false
}

func floatToUint(f float64) (uint64, bool) {
	if f < 0 || f > maxExactFloat || f != math.Trunc(f) {
		return 0, false
	}
	return uint64(f), true
}
