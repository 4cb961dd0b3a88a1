// Package snapshot exports and imports registry state as checksummed,
// zstd-compressed FlatBuffers.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"TokenRegistry/internal/types"
)

const (
	// snapshotVersion is the current snapshot format version.
	snapshotVersion = 1

	// checksumSize is the size of the blake3 checksum.
	checksumSize = 32
)

// ErrChecksum is returned when a snapshot fails verification.
var ErrChecksum = errors.New("checksum mismatch")

// Source iterates stored state in key order.
type Source interface {
	IteratePrefix(prefix []byte, fn func(key, value []byte) error) error
}

// Entry is one stored key-value pair.
type Entry struct {
	Key   []byte
	Value []byte
}

// State is the decoded content of a snapshot.
type State struct {
	Clock   uint64  // Clock is the host clock at export
	Entries []Entry // Entries are sorted by key
}

// Create collects every entry under prefix and returns the compressed
// snapshot.
func Create(src Source, prefix []byte, clock uint64) ([]byte, error) {
	entries, err := collect(src, prefix)
	if err != nil {
		return nil, fmt.Errorf("collect entries:\n%w", err)
	}

	return Compress(Build(&State{Clock: clock, Entries: entries}))
}

// Open decompresses and verifies a snapshot.
func Open(data []byte) (*State, error) {
	raw, err := Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompress:\n%w", err)
	}

	return Parse(raw)
}

// collect copies every entry under prefix.
func collect(src Source, prefix []byte) ([]Entry, error) {
	var entries []Entry

	err := src.IteratePrefix(prefix, func(key, value []byte) error {
		entries = append(entries, Entry{Key: bytes.Clone(key), Value: bytes.Clone(value)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Build serializes a state with its checksum.
func Build(st *State) []byte {
	sortEntries(st.Entries)
	checksum := computeChecksum(snapshotVersion, st.Clock, st.Entries)

	builder := flatbuffers.NewBuilder(1024)

	offsets := make([]flatbuffers.UOffsetT, len(st.Entries))
	for i, e := range st.Entries {
		keyOffset := builder.CreateByteVector(e.Key)
		valueOffset := builder.CreateByteVector(e.Value)

		types.StateEntryStart(builder)
		types.StateEntryAddKey(builder, keyOffset)
		types.StateEntryAddValue(builder, valueOffset)
		offsets[i] = types.StateEntryEnd(builder)
	}

	types.SnapshotStartEntriesVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	entriesVector := builder.EndVector(len(offsets))

	checksumOffset := builder.CreateByteVector(checksum[:])

	types.SnapshotStart(builder)
	types.SnapshotAddVersion(builder, snapshotVersion)
	types.SnapshotAddClock(builder, st.Clock)
	types.SnapshotAddEntries(builder, entriesVector)
	types.SnapshotAddChecksum(builder, checksumOffset)
	types.FinishSnapshotBuffer(builder, types.SnapshotEnd(builder))

	return builder.FinishedBytes()
}

// Parse decodes an uncompressed snapshot and verifies its checksum.
func Parse(data []byte) (st *State, retErr error) {
	// FlatBuffers panics on malformed data, recover gracefully
	defer func() {
		if r := recover(); r != nil {
			st, retErr = nil, fmt.Errorf("malformed snapshot")
		}
	}()

	if len(data) < 8 {
		return nil, fmt.Errorf("snapshot too short")
	}

	snap := types.GetRootAsSnapshot(data, 0)

	if v := snap.Version(); v != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", v)
	}

	stored := snap.ChecksumBytes()
	if len(stored) != checksumSize {
		return nil, fmt.Errorf("invalid checksum length: %d", len(stored))
	}

	st = &State{Clock: snap.Clock(), Entries: make([]Entry, snap.EntriesLength())}

	// Copy bytes, they alias the snapshot buffer
	var e types.StateEntry
	for i := range st.Entries {
		if !snap.Entries(&e, i) {
			return nil, fmt.Errorf("read entry %d", i)
		}
		st.Entries[i] = Entry{Key: bytes.Clone(e.KeyBytes()), Value: bytes.Clone(e.ValueBytes())}
	}

	sortEntries(st.Entries)
	computed := computeChecksum(snap.Version(), st.Clock, st.Entries)

	if !bytes.Equal(computed[:], stored) {
		return nil, ErrChecksum
	}

	return st, nil
}

// sortEntries sorts entries by key for deterministic ordering.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Key, entries[j].Key) < 0
	})
}

// computeChecksum computes a blake3 checksum over canonical snapshot data.
// Format: version (4 bytes) + clock (8 bytes) + per entry: key len, key, value len, value
func computeChecksum(version uint32, clock uint64, entries []Entry) [checksumSize]byte {
	hasher := blake3.New()

	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], version)
	hasher.Write(buf[:4])

	binary.BigEndian.PutUint64(buf[:], clock)
	hasher.Write(buf[:])

	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[:4], uint32(len(e.Key)))
		hasher.Write(buf[:4])
		hasher.Write(e.Key)

		binary.BigEndian.PutUint32(buf[:4], uint32(len(e.Value)))
		hasher.Write(buf[:4])
		hasher.Write(e.Value)
	}

	var checksum [checksumSize]byte
	hasher.Sum(checksum[:0])

	return checksum
}

// Compress compresses snapshot data using zstd.
func Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// Decompress decompresses zstd-compressed snapshot data.
func Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
