package registry

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"
)

// TestProperties_RandomTraffic drives random supports, withdrawals and
// moves and checks the ledger and binding invariants after every trigger.
func TestProperties_RandomTraffic(t *testing.T) {
	h := newHarness(t)
	rng := rand.New(rand.NewSource(7))

	senders := []string{alice, bob, charlie}
	symbols := []string{"USDC", "EURC", "GOLD"}
	assets := []string{assetX, assetA1, assetA2}
	drawers := []int{0, 0, 3}

	attached := make(map[string]uint64) // asset -> committed support
	paid := make(map[string]uint64)     // asset -> withdrawn

	for i := 0; i < 600; i++ {
		sender := senders[rng.Intn(len(senders))]
		symbol := symbols[rng.Intn(len(symbols))]
		asset := assets[rng.Intn(len(assets))]
		drawer := drawers[rng.Intn(len(drawers))]

		switch rng.Intn(4) {
		case 0, 1:
			amount := uint64(10_001 + rng.Intn(500_000))
			if resp := h.send(sender, amount, support(symbol, asset, "drawer", drawer)); !resp.Bounced {
				attached[asset] += amount
			}
		case 2:
			held := h.vars()[StakeVar(sender, uint32(drawer), symbol, asset)]
			n, _ := held.(uint64)
			if n == 0 {
				continue
			}
			resp := h.send(sender, 0, withdrawal(symbol, asset, drawer, 1+uint64(rng.Int63n(int64(n)))))
			if !resp.Bounced {
				for _, p := range payments(resp) {
					paid[asset] += p.Amount
				}
			}
		case 3:
			h.send(sender, 0, map[string]any{"move": 1, "symbol": symbol, "asset": asset, "drawer": 3})
		}

		h.advance(uint64(rng.Intn(5 * day)))

		vars := h.vars()
		checkConservation(t, vars)
		checkPaidOut(t, vars, attached, paid)
		checkBijection(t, vars)

		if t.Failed() {
			t.Fatalf("invariant broken after trigger %d", i)
		}
	}
}

// TestProperties_NoEarlyPromotion verifies that a challenger cannot take a
// bound symbol before the challenge period, however large its support.
func TestProperties_NoEarlyPromotion(t *testing.T) {
	h := newHarness(t)
	h.mustSend(alice, 20_000, support("USDC", assetA1))

	start := h.now
	for h.now < start+DefaultChallengePeriod-hour {
		h.mustSend(bob, 1_000_000_000, support("USDC", assetA2))
		if h.vars()[s2aVar("USDC")] != assetA1 {
			t.Fatalf("promoted after %d seconds", h.now-start)
		}
		h.advance(3 * day)
	}

	h.advance(DefaultChallengePeriod)
	h.mustSend(bob, 20_000, support("USDC", assetA2))
	if h.vars()[s2aVar("USDC")] != assetA2 {
		t.Error("challenger should win after the period")
	}
}

// TestProperties_LeaderEventuallyPromoted verifies that a challenger who
// leads on both axes is promoted by its first support after the later of
// the two windows, wherever the windows fall relative to each other.
func TestProperties_LeaderEventuallyPromoted(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	assetY := AssetID([]byte("asset-y"))

	for trial := 0; trial < 25; trial++ {
		offset := uint64(rng.Intn(60 * day))
		interval := uint64(hour + rng.Intn(10*day))

		h := newHarness(t)
		h.mustSend(alice, 100_000, support("USDC", assetX))
		h.mustSend(charlie, 1_000_000, support("YY", assetY))
		h.mustSend(bob, 300_000, support("USDC", assetY))

		h.advance(offset)
		h.mustSend(charlie, 0, withdrawal("YY", assetY, 0, 900_000))
		h.mustSend(bob, 20_000, support("USDC", assetY))

		windowsEnd := h.now + DefaultChallengePeriod
		for h.vars()[s2aVar("USDC")] != assetY {
			if h.now >= windowsEnd {
				t.Fatalf("trial %d (offset %d, interval %d): not promoted %d seconds after both windows",
					trial, offset, interval, h.now-windowsEnd)
			}
			h.advance(interval)
			h.mustSend(bob, 20_000, support("USDC", assetY))
		}

		if h.now < windowsEnd {
			t.Fatalf("trial %d: promoted %d seconds early", trial, windowsEnd-h.now)
		}
		checkBijection(t, h.vars())
	}
}

// checkPaidOut asserts that the balances held in each asset equal what
// committed supports attached minus what withdrawals paid out.
func checkPaidOut(t *testing.T, vars map[string]any, attached, paid map[string]uint64) {
	t.Helper()

	held := make(map[string]uint64)
	for name, val := range vars {
		if !strings.HasPrefix(name, prefixBalance) {
			continue
		}
		_, asset, ok := strings.Cut(strings.TrimPrefix(name, prefixBalance), "_")
		if !ok {
			t.Fatalf("bad balance variable %s", name)
		}
		held[asset] += val.(uint64)
	}

	for asset, in := range attached {
		if held[asset] != in-paid[asset] {
			t.Errorf("balances of %s = %d, attached %d - paid %d", asset, held[asset], in, paid[asset])
		}
	}
	for asset, n := range held {
		if _, ok := attached[asset]; !ok {
			t.Errorf("balances of %s = %d with nothing attached", asset, n)
		}
	}
}

// checkConservation asserts that every pair's support equals the sum of
// its stakes, and that balances and backings match the stakes they sum.
func checkConservation(t *testing.T, vars map[string]any) {
	t.Helper()

	stakes := make(map[string]uint64)   // symbol_asset
	balances := make(map[string]uint64) // address_asset
	backings := make(map[string]uint64) // address_symbol_asset

	for name, val := range vars {
		parts := strings.Split(name, "_")
		if len(parts) != 4 || !ValidAddress(parts[0]) {
			continue
		}
		if _, err := strconv.ParseUint(parts[1], 10, 32); err != nil {
			continue
		}
		n := val.(uint64)
		stakes[parts[2]+"_"+parts[3]] += n
		balances[parts[0]+"_"+parts[3]] += n
		backings[parts[0]+"_"+parts[2]+"_"+parts[3]] += n
	}

	for name, val := range vars {
		n, _ := val.(uint64)
		switch {
		case strings.HasPrefix(name, prefixSupport):
			if key := strings.TrimPrefix(name, prefixSupport); stakes[key] != n {
				t.Errorf("%s = %d, stakes sum to %d", name, n, stakes[key])
			}
		case strings.HasPrefix(name, prefixBalance):
			if key := strings.TrimPrefix(name, prefixBalance); balances[key] != n {
				t.Errorf("%s = %d, stakes sum to %d", name, n, balances[key])
			}
		case strings.HasPrefix(name, prefixBacking):
			if key := strings.TrimPrefix(name, prefixBacking); backings[key] != n {
				t.Errorf("%s = %d, stakes sum to %d", name, n, backings[key])
			}
		}
	}
}

// checkBijection asserts that s2a and a2s are inverse partial functions.
func checkBijection(t *testing.T, vars map[string]any) {
	t.Helper()

	for name, val := range vars {
		switch {
		case strings.HasPrefix(name, prefixS2A):
			symbol, asset := strings.TrimPrefix(name, prefixS2A), val.(string)
			if vars[a2sVar(asset)] != symbol {
				t.Errorf("s2a[%s] = %s but a2s[%s] = %v", symbol, asset, asset, vars[a2sVar(asset)])
			}
		case strings.HasPrefix(name, prefixA2S):
			asset, symbol := strings.TrimPrefix(name, prefixA2S), val.(string)
			if vars[s2aVar(symbol)] != asset {
				t.Errorf("a2s[%s] = %s but s2a[%s] = %v", asset, symbol, symbol, vars[s2aVar(symbol)])
			}
		}
	}
}
