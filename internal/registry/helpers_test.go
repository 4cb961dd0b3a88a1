package registry

import (
	"bytes"
	"encoding/base32"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/zeebo/blake3"
)

// memStore is an in-memory Reader and PrefixReader.
type memStore struct {
	m map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{m: make(map[string][]byte)}
}

func (s *memStore) Get(key []byte) ([]byte, error) {
	return s.m[string(key)], nil
}

func (s *memStore) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := fn([]byte(k), s.m[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) apply(changes []Change) {
	for _, c := range changes {
		if c.Deleted {
			delete(s.m, string(c.Key))
			continue
		}
		s.m[string(c.Key)] = c.Value
	}
}

// harness drives an engine over a memStore with a controllable clock.
type harness struct {
	t       *testing.T
	e       *Engine
	st      *memStore
	now     uint64
	seq     int
	lastErr error // lastErr is the rejection of the last trigger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{t: t, e: New(DefaultParams()), st: newMemStore(), now: 1_700_000_000}
}

// send executes a trigger and commits its changes unless it bounced.
func (h *harness) send(sender string, amount uint64, payload map[string]any) *Response {
	h.t.Helper()
	h.seq++

	res, err := h.e.Execute(h.st, Trigger{
		Unit:    fmt.Sprintf("unit-%d", h.seq),
		Sender:  sender,
		Amount:  amount,
		Payload: payload,
	}, h.now)
	if err != nil {
		h.t.Fatalf("Execute: %v", err)
	}
	h.lastErr = res.Err

	if res.Response.Bounced {
		if len(res.Changes) != 0 {
			h.t.Fatalf("bounced trigger produced %d changes", len(res.Changes))
		}
		return res.Response
	}

	h.st.apply(res.Changes)
	return res.Response
}

// mustSend is send that fails the test on a bounce.
func (h *harness) mustSend(sender string, amount uint64, payload map[string]any) *Response {
	h.t.Helper()
	resp := h.send(sender, amount, payload)
	if resp.Bounced {
		h.t.Fatalf("unexpected bounce: %s", resp.Error)
	}
	return resp
}

// rejected reports whether the last trigger bounced with a rejection of kind.
func (h *harness) rejected(resp *Response, kind error) bool {
	return resp.Bounced && errors.Is(h.lastErr, kind)
}

func (h *harness) advance(seconds uint64) {
	h.now += seconds
}

func (h *harness) vars() map[string]any {
	h.t.Helper()
	vars, err := Vars(h.st, "")
	if err != nil {
		h.t.Fatalf("Vars: %v", err)
	}
	return vars
}

// state returns a copy of the raw store.
func (h *harness) state() map[string]string {
	out := make(map[string]string, len(h.st.m))
	for k, v := range h.st.m {
		out[k] = string(v)
	}
	return out
}

func testAddress(name string) string {
	sum := blake3.Sum256([]byte(name))
	return base32.StdEncoding.EncodeToString(sum[:20])
}

const hour = 60 * 60

var (
	alice   = testAddress("alice")
	bob     = testAddress("bob")
	charlie = testAddress("charlie")

	assetX  = AssetID([]byte("asset-x"))
	assetA1 = AssetID([]byte("asset-a1"))
	assetA2 = AssetID([]byte("asset-a2"))
)

func support(symbol, asset string, extra ...any) map[string]any {
	p := map[string]any{"symbol": symbol, "asset": asset}
	for i := 0; i+1 < len(extra); i += 2 {
		p[extra[i].(string)] = extra[i+1]
	}
	return p
}

func withdrawal(symbol, asset string, drawer int, amount uint64) map[string]any {
	return map[string]any{"withdraw": 1, "symbol": symbol, "asset": asset, "drawer": drawer, "amount": amount}
}

func payments(resp *Response) []Payment {
	var out []Payment
	for _, m := range resp.Messages {
		if m.Payment != nil {
			out = append(out, *m.Payment)
		}
	}
	return out
}

func dataRecords(resp *Response) []DataRecord {
	var out []DataRecord
	for _, m := range resp.Messages {
		if m.Data != nil {
			out = append(out, *m.Data)
		}
	}
	return out
}
