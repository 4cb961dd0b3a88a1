package registry

import (
	"fmt"
	"sort"
)

// Reader is the read side of the state store.
// Get returns nil for a missing key.
type Reader interface {
	Get(key []byte) ([]byte, error)
}

// Change is one entry of a changeset.
type Change struct {
	Key     []byte // Key is the store key
	Value   []byte // Value is nil when Deleted
	Deleted bool   // Deleted marks a removal
}

// view is a write overlay over a Reader. Reads see earlier writes of the
// same trigger; nothing reaches the store until the caller applies the
// changeset.
type view struct {
	r     Reader
	dirty map[string][]byte // dirty maps variable name to value, nil when deleted
	err   error             // err is the first read failure
}

func newView(r Reader) *view {
	return &view{r: r, dirty: make(map[string][]byte)}
}

func (v *view) get(name string) []byte {
	if val, ok := v.dirty[name]; ok {
		return val
	}
	if v.err != nil {
		return nil
	}

	val, err := v.r.Get(storeKey(name))
	if err != nil {
		v.err = fmt.Errorf("get %s:\n%w", name, err)
		return nil
	}

	return val
}

func (v *view) str(name string) string {
	return string(v.get(name))
}

func (v *view) uint(name string) uint64 {
	raw := v.get(name)
	if raw == nil {
		return 0
	}

	n, ok := decodeUint(raw)
	if !ok && v.err == nil {
		v.err = fmt.Errorf("corrupt value for %s: %d bytes", name, len(raw))
	}

	return n
}

func (v *view) has(name string) bool {
	return v.get(name) != nil
}

func (v *view) setStr(name, s string) {
	v.dirty[name] = []byte(s)
}

func (v *view) setUint(name string, n uint64) {
	v.dirty[name] = encodeUint(n)
}

func (v *view) del(name string) {
	v.dirty[name] = nil
}

// changes returns the overlay as a changeset sorted by key.
func (v *view) changes() []Change {
	names := make([]string, 0, len(v.dirty))
	for name := range v.dirty {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Change, 0, len(names))
	for _, name := range names {
		val := v.dirty[name]
		out = append(out, Change{Key: storeKey(name), Value: val, Deleted: val == nil})
	}

	return out
}
