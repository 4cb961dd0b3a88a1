package registry

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// StatePrefix namespaces registry variables in the store.
const StatePrefix = "s:"

const (
	prefixA2S         = "a2s_"
	prefixS2A         = "s2a_"
	prefixLargestA2S  = "by_largest_a2s_"
	prefixLargestS2A  = "by_largest_s2a_"
	prefixSupport     = "support_"
	prefixExpiry      = "expiry_ts_"
	prefixBalance     = "balance_"
	prefixBacking     = "backing_"
	prefixDecimals    = "decimals_"
	prefixDescription = "description_"

	suffixExpiry = "_expiry_ts"

	feesVar = "fees"
)

// storeKey maps a variable name to its store key.
func storeKey(name string) []byte {
	return []byte(StatePrefix + name)
}

// varName maps a store key back to its variable name.
func varName(key []byte) string {
	return strings.TrimPrefix(string(key), StatePrefix)
}

func a2sVar(asset string) string      { return prefixA2S + asset }
func s2aVar(symbol string) string     { return prefixS2A + symbol }
func largestA2SVar(a string) string   { return prefixLargestA2S + a }
func largestS2AVar(s string) string   { return prefixLargestS2A + s }
func axisExpiryVar(id string) string  { return prefixExpiry + id }
func decimalsVar(asset string) string { return prefixDecimals + asset }

func descriptionVar(asset string) string {
	return prefixDescription + asset
}

func supportVar(symbol, asset string) string {
	return prefixSupport + symbol + "_" + asset
}

func balanceVar(address, asset string) string {
	return prefixBalance + address + "_" + asset
}

func backingVar(address, symbol, asset string) string {
	return prefixBacking + address + "_" + symbol + "_" + asset
}

// StakeVar returns the variable holding a depositor's stake in one drawer.
func StakeVar(address string, drawer uint32, symbol, asset string) string {
	return address + "_" + strconv.FormatUint(uint64(drawer), 10) + "_" + symbol + "_" + asset
}

// stakeExpiryVar returns the warm-up timer variable of a drawer.
func stakeExpiryVar(address string, drawer uint32, symbol, asset string) string {
	return StakeVar(address, drawer, symbol, asset) + suffixExpiry
}

// isStringVar reports whether a variable holds a raw string rather than
// an encoded number.
func isStringVar(name string) bool {
	for _, p := range []string{prefixA2S, prefixS2A, prefixLargestA2S, prefixLargestS2A, prefixDescription} {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func encodeUint(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func decodeUint(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}
