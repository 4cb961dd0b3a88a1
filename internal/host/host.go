// Package host runs the registry engine against durable storage: it
// authenticates envelopes, serializes execution, stamps triggers with a
// monotonic clock and commits each outcome in one atomic batch.
package host

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"TokenRegistry/internal/envelope"
	"TokenRegistry/internal/logger"
	"TokenRegistry/internal/registry"
	"TokenRegistry/internal/snapshot"
	"TokenRegistry/internal/storage"
)

// Key prefixes for host records. Registry state lives under registry.StatePrefix.
var (
	prefixResponse = []byte("u:")      // u:<unit> -> response JSON
	keyClock       = []byte("m:clock") // m:clock -> uint64
)

// ErrUnknownUnit is returned when no response is stored for a unit.
var ErrUnknownUnit = errors.New("unknown unit")

// Stats counts triggers processed since start.
type Stats struct {
	Committed uint64 `json:"committed"` // Committed triggers changed state
	Bounced   uint64 `json:"bounced"`   // Bounced triggers were rejected
	Replayed  uint64 `json:"replayed"`  // Replayed triggers were already known
	Clock     uint64 `json:"clock"`     // Clock is the last trigger timestamp
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(x *Executor) {
		x.now = now
	}
}

// Executor is the single writer of registry state.
type Executor struct {
	mu     sync.RWMutex
	db     *storage.Storage
	engine *registry.Engine
	now    func() time.Time
	clock  uint64 // clock is the highest timestamp handed to the engine
	rev    uint64 // rev counts state changes since start
	stats  Stats
}

// New creates an executor over db, resuming the persisted clock.
func New(db *storage.Storage, engine *registry.Engine, opts ...Option) (*Executor, error) {
	x := &Executor{db: db, engine: engine, now: time.Now}
	for _, opt := range opts {
		opt(x)
	}

	raw, err := db.Get(keyClock)
	if err != nil {
		return nil, fmt.Errorf("load clock:\n%w", err)
	}
	if len(raw) == 8 {
		x.clock = binary.BigEndian.Uint64(raw)
	}

	return x, nil
}

// Submit authenticates a serialized envelope and executes it.
func (x *Executor) Submit(ctx context.Context, data []byte) (*registry.Response, error) {
	env, err := envelope.Decode(data)
	if err != nil {
		return nil, err
	}

	trig, err := env.Trigger()
	if err != nil {
		return x.record(ctx, trig, func(uint64) (*registry.Result, error) {
			return &registry.Result{Response: x.engine.Reject(trig, "payload is not a JSON object")}, nil
		})
	}

	return x.Execute(ctx, trig)
}

// Execute runs an already authenticated trigger. A unit that was already
// processed returns its stored response without executing again.
func (x *Executor) Execute(ctx context.Context, trig registry.Trigger) (*registry.Response, error) {
	return x.record(ctx, trig, func(now uint64) (*registry.Result, error) {
		return x.engine.Execute(x.db, trig, now)
	})
}

func (x *Executor) record(ctx context.Context, trig registry.Trigger, run func(now uint64) (*registry.Result, error)) (*registry.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	x.mu.Lock()
	defer x.mu.Unlock()

	if prev, err := x.loadResponse(trig.Unit); err == nil {
		x.stats.Replayed++
		logger.Debug("trigger replayed", "unit", trig.Unit)
		return prev, nil
	} else if !errors.Is(err, ErrUnknownUnit) {
		return nil, err
	}

	now := x.tick()

	res, err := run(now)
	if err != nil {
		return nil, fmt.Errorf("execute %s:\n%w", trig.Unit, err)
	}

	encoded, err := json.Marshal(res.Response)
	if err != nil {
		return nil, fmt.Errorf("encode response:\n%w", err)
	}

	batch := &storage.Batch{}
	for _, c := range res.Changes {
		if c.Deleted {
			batch.Delete(c.Key)
		} else {
			batch.Set(c.Key, c.Value)
		}
	}
	batch.Set(responseKey(trig.Unit), encoded)
	batch.Set(keyClock, encodeClock(now))

	if err := x.db.Apply(batch); err != nil {
		return nil, fmt.Errorf("commit %s:\n%w", trig.Unit, err)
	}

	x.clock = now
	x.stats.Clock = now

	kind := "invalid"
	if res.Request != nil {
		kind = res.Request.Kind()
	}

	if res.Response.Bounced {
		x.stats.Bounced++
		logger.Info("trigger bounced", "unit", trig.Unit, "sender", trig.Sender, "kind", kind, "error", res.Response.Error, "refund", res.Response.Refund)
	} else {
		x.stats.Committed++
		x.rev++
		logger.Info("trigger committed", "unit", trig.Unit, "sender", trig.Sender, "kind", kind, "changes", len(res.Changes), "messages", len(res.Response.Messages), logger.Timed(start))
	}

	return res.Response, nil
}

// tick returns the timestamp for the next trigger. It never moves backwards.
func (x *Executor) tick() uint64 {
	now := uint64(x.now().Unix())
	if now < x.clock {
		return x.clock
	}
	return now
}

// Response returns the stored response of a processed unit.
func (x *Executor) Response(unit string) (*registry.Response, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return x.loadResponse(unit)
}

func (x *Executor) loadResponse(unit string) (*registry.Response, error) {
	raw, err := x.db.Get(responseKey(unit))
	if err != nil {
		return nil, fmt.Errorf("load response:\n%w", err)
	}
	if raw == nil {
		return nil, ErrUnknownUnit
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var resp registry.Response
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response:\n%w", err)
	}

	return &resp, nil
}

// Vars returns registry variables whose name starts with prefix.
func (x *Executor) Vars(prefix string) (map[string]any, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return registry.Vars(x.db, prefix)
}

// Lookup is the registry view of one symbol or asset.
type Lookup struct {
	Binding *registry.Binding `json:"binding,omitempty"` // Binding is nil when unbound
	Contest registry.Contest  `json:"contest"`
}

// Symbol returns the binding and contest of a symbol.
func (x *Executor) Symbol(symbol string) (*Lookup, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	b, err := registry.BindingBySymbol(x.db, symbol)
	if err != nil {
		return nil, err
	}

	c, err := registry.SymbolContest(x.db, symbol)
	if err != nil {
		return nil, err
	}

	return &Lookup{Binding: b, Contest: c}, nil
}

// Asset returns the binding and contest of an asset.
func (x *Executor) Asset(asset string) (*Lookup, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	b, err := registry.BindingByAsset(x.db, asset)
	if err != nil {
		return nil, err
	}

	c, err := registry.AssetContest(x.db, asset)
	if err != nil {
		return nil, err
	}

	return &Lookup{Binding: b, Contest: c}, nil
}

// Stats returns the counters since start.
func (x *Executor) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	s := x.stats
	s.Clock = x.clock
	return s
}

// Revision changes whenever registry state changes.
func (x *Executor) Revision() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return x.rev
}

// Snapshot exports the registry state.
func (x *Executor) Snapshot() ([]byte, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	return snapshot.Create(x.db, []byte(registry.StatePrefix), x.clock)
}

// Restore replaces the registry state with a snapshot. The clock only
// moves forward.
func (x *Executor) Restore(data []byte) error {
	st, err := snapshot.Open(data)
	if err != nil {
		return fmt.Errorf("open snapshot:\n%w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	batch := &storage.Batch{}

	keep := make(map[string]bool, len(st.Entries))
	for _, e := range st.Entries {
		if !bytes.HasPrefix(e.Key, []byte(registry.StatePrefix)) {
			return fmt.Errorf("snapshot entry %q outside registry state", e.Key)
		}
		keep[string(e.Key)] = true
		batch.Set(e.Key, e.Value)
	}

	err = x.db.IteratePrefix([]byte(registry.StatePrefix), func(key, _ []byte) error {
		if !keep[string(key)] {
			batch.Delete(bytes.Clone(key))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan state:\n%w", err)
	}

	clock := max(x.clock, st.Clock)
	batch.Set(keyClock, encodeClock(clock))

	if err := x.db.Apply(batch); err != nil {
		return fmt.Errorf("apply snapshot:\n%w", err)
	}

	x.clock = clock
	x.rev++
	logger.Info("snapshot restored", "entries", len(st.Entries), "clock", clock)

	return nil
}

func responseKey(unit string) []byte {
	return append(bytes.Clone(prefixResponse), unit...)
}

func encodeClock(t uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, t)
	return buf
}
