package registry

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestExecute_FirstSupportBinds verifies that the first supporter of an
// unclaimed pair binds it immediately and publishes a data record.
func TestExecute_FirstSupportBinds(t *testing.T) {
	h := newHarness(t)

	resp := h.mustSend(alice, 100_000_000, support("USDC", assetX, "decimals", 6))

	wantVars := map[string]any{
		"USDC":                             assetX,
		assetX:                             "USDC",
		StakeVar(alice, 0, "USDC", assetX): uint64(100_000_000),
		"message":                          MessageMetadataCurrent,
	}
	if diff := cmp.Diff(wantVars, resp.Vars); diff != "" {
		t.Errorf("vars mismatch (-want +got):\n%s", diff)
	}

	wantData := []DataRecord{{Asset: assetX, Name: "USDC", Decimals: 6}}
	if diff := cmp.Diff(wantData, dataRecords(resp)); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	vars := h.vars()
	if vars[s2aVar("USDC")] != assetX || vars[a2sVar(assetX)] != "USDC" {
		t.Errorf("binding not stored: %v", vars)
	}
	if vars[largestS2AVar("USDC")] != assetX || vars[largestA2SVar(assetX)] != "USDC" {
		t.Errorf("frontrunners not stored: %v", vars)
	}
	if vars[balanceVar(alice, assetX)] != uint64(100_000_000) {
		t.Errorf("balance = %v", vars[balanceVar(alice, assetX)])
	}
}

// TestExecute_SymbolChangeForAsset verifies that a larger supporter of
// another symbol takes over the asset only after the challenge period.
func TestExecute_SymbolChangeForAsset(t *testing.T) {
	h := newHarness(t)

	h.mustSend(alice, 100_000_000, support("USDC", assetX))

	resp := h.mustSend(bob, 200_000_000, support("BOBS", assetX))
	if resp.HasResponseUnit() {
		t.Fatalf("challenge must not emit messages: %+v", resp.Messages)
	}
	if _, ok := resp.Vars["BOBS"]; ok {
		t.Fatal("challenger must not be bound yet")
	}

	vars := h.vars()
	if vars[a2sVar(assetX)] != "USDC" {
		t.Errorf("a2s = %v, want USDC", vars[a2sVar(assetX)])
	}
	if vars[largestA2SVar(assetX)] != "BOBS" {
		t.Errorf("asset frontrunner = %v, want BOBS", vars[largestA2SVar(assetX)])
	}
	if vars[largestS2AVar("BOBS")] != assetX {
		t.Errorf("symbol frontrunner = %v", vars[largestS2AVar("BOBS")])
	}
	if _, ok := vars[s2aVar("BOBS")]; ok {
		t.Error("BOBS must not be bound")
	}
	if vars[axisExpiryVar(assetX)] != h.now+DefaultChallengePeriod {
		t.Errorf("expiry = %v, want %d", vars[axisExpiryVar(assetX)], h.now+DefaultChallengePeriod)
	}

	// before expiry nothing changes
	h.advance(29 * day)
	h.mustSend(bob, 20_000, support("BOBS", assetX))
	if h.vars()[a2sVar(assetX)] != "USDC" {
		t.Fatal("promoted before the challenge period")
	}

	h.advance(2 * day)
	resp = h.mustSend(bob, 100_000_000, support("BOBS", assetX))

	if resp.Vars["BOBS"] != assetX || resp.Vars[assetX] != "BOBS" {
		t.Errorf("promotion vars = %v", resp.Vars)
	}
	if len(dataRecords(resp)) != 1 {
		t.Errorf("want one data record, got %+v", resp.Messages)
	}

	vars = h.vars()
	if vars[a2sVar(assetX)] != "BOBS" || vars[s2aVar("BOBS")] != assetX {
		t.Errorf("new binding missing: %v", vars)
	}
	if _, ok := vars[s2aVar("USDC")]; ok {
		t.Error("USDC must be unbound")
	}
	if _, ok := vars[axisExpiryVar(assetX)]; ok {
		t.Error("timer must be cleared")
	}
	if vars[largestS2AVar("USDC")] != assetX {
		t.Error("frontrunner cache of the loser is kept")
	}

	// the loser withdraws everything
	resp = h.mustSend(alice, DefaultBounceFee, withdrawal("USDC", assetX, 0, 100_000_000))

	if diff := cmp.Diff([]Payment{{Address: alice, Amount: 100_000_000}}, payments(resp)); diff != "" {
		t.Errorf("payments mismatch (-want +got):\n%s", diff)
	}

	vars = h.vars()
	if vars[StakeVar(alice, 0, "USDC", assetX)] != uint64(0) {
		t.Errorf("stake = %v, want 0", vars[StakeVar(alice, 0, "USDC", assetX)])
	}
	if vars[supportVar("USDC", assetX)] != uint64(0) {
		t.Errorf("support = %v, want 0", vars[supportVar("USDC", assetX)])
	}
	if vars[a2sVar(assetX)] != "BOBS" {
		t.Error("withdrawal of the loser must not touch the binding")
	}
	if vars[feesVar] != uint64(DefaultBounceFee) {
		t.Errorf("fees = %v", vars[feesVar])
	}
}

// TestExecute_AssetChangeForSymbol verifies the three-party scenario in
// which a symbol moves to a new asset and the old asset is unbound.
func TestExecute_AssetChangeForSymbol(t *testing.T) {
	h := newHarness(t)

	h.mustSend(alice, 200_000_000, support("USDC", assetA1))

	resp := h.mustSend(bob, 100_000_000, support("USDC", assetA2))
	if _, ok := resp.Vars["USDC"]; ok {
		t.Fatal("weaker challenger must not bind")
	}

	vars := h.vars()
	if vars[largestA2SVar(assetA2)] != "USDC" {
		t.Errorf("asset frontrunner = %v", vars[largestA2SVar(assetA2)])
	}
	if vars[largestS2AVar("USDC")] != assetA1 {
		t.Errorf("symbol frontrunner = %v", vars[largestS2AVar("USDC")])
	}
	if _, ok := vars[axisExpiryVar("USDC")]; ok {
		t.Error("no timer while the incumbent leads")
	}

	// metadata of a non-canonical asset, named by asset only
	resp = h.mustSend(bob, DefaultBounceFee, map[string]any{"asset": assetA2, "decimals": 5})
	if resp.Vars["message"] != MessageMetadataCurrent {
		t.Errorf("message = %v", resp.Vars["message"])
	}
	if resp.HasResponseUnit() {
		t.Error("non-canonical metadata must not publish")
	}

	h.mustSend(charlie, 200_000_000, support("USDC", assetA2))

	vars = h.vars()
	if vars[largestS2AVar("USDC")] != assetA2 {
		t.Errorf("symbol frontrunner = %v, want A2", vars[largestS2AVar("USDC")])
	}
	if vars[axisExpiryVar("USDC")] != h.now+DefaultChallengePeriod {
		t.Errorf("timer = %v", vars[axisExpiryVar("USDC")])
	}
	if _, ok := vars[a2sVar(assetA2)]; ok {
		t.Error("A2 must not be bound yet")
	}

	h.advance(31 * day)
	resp = h.mustSend(bob, 100_000_000, support("USDC", assetA2))

	wantData := []DataRecord{{Asset: assetA2, Name: "USDC", Decimals: 5}}
	if diff := cmp.Diff(wantData, dataRecords(resp)); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	vars = h.vars()
	if vars[s2aVar("USDC")] != assetA2 || vars[a2sVar(assetA2)] != "USDC" {
		t.Errorf("binding = %v / %v", vars[s2aVar("USDC")], vars[a2sVar(assetA2)])
	}
	if _, ok := vars[a2sVar(assetA1)]; ok {
		t.Error("A1 must be unbound")
	}

	resp = h.mustSend(alice, DefaultBounceFee, withdrawal("USDC", assetA1, 0, 200_000_000))
	if diff := cmp.Diff([]Payment{{Address: alice, Amount: 200_000_000}}, payments(resp)); diff != "" {
		t.Errorf("payments mismatch (-want +got):\n%s", diff)
	}
	if h.vars()[balanceVar(alice, assetA1)] != uint64(0) {
		t.Error("balance must be zero")
	}
}

// TestExecute_LockedDrawerWithdrawal verifies the two-phase withdrawal
// from a locked drawer.
func TestExecute_LockedDrawerWithdrawal(t *testing.T) {
	h := newHarness(t)
	stake := StakeVar(alice, 7, "USDC", assetX)
	timer := stakeExpiryVar(alice, 7, "USDC", assetX)

	resp := h.mustSend(alice, 100_000_000, support("USDC", assetX, "drawer", 7))
	if resp.Vars[stake] != uint64(100_000_000) {
		t.Fatalf("stake var = %v", resp.Vars[stake])
	}

	resp = h.mustSend(alice, DefaultBounceFee, withdrawal("USDC", assetX, 7, 100_000_000))
	if resp.HasResponseUnit() {
		t.Fatal("first withdrawal must only arm the timer")
	}

	vars := h.vars()
	if vars[timer] != h.now+DefaultWarmupPeriod {
		t.Errorf("timer = %v", vars[timer])
	}
	if vars[stake] != uint64(100_000_000) {
		t.Errorf("stake changed to %v", vars[stake])
	}

	h.advance(hour)
	before := h.state()
	resp = h.send(alice, DefaultBounceFee, withdrawal("USDC", assetX, 7, 100_000_000))
	if !resp.Bounced || resp.Error != ErrWarmupNotExpired.Error() {
		t.Fatalf("want warm-up bounce, got %+v", resp)
	}
	if resp.Refund != 0 {
		t.Errorf("refund = %d, want 0", resp.Refund)
	}
	if diff := cmp.Diff(before, h.state()); diff != "" {
		t.Errorf("bounce changed state (-want +got):\n%s", diff)
	}

	h.advance(DefaultWarmupPeriod)
	resp = h.mustSend(alice, DefaultBounceFee, withdrawal("USDC", assetX, 7, 100_000_000))
	if diff := cmp.Diff([]Payment{{Address: alice, Amount: 100_000_000}}, payments(resp)); diff != "" {
		t.Errorf("payments mismatch (-want +got):\n%s", diff)
	}

	vars = h.vars()
	if vars[stake] != uint64(0) {
		t.Errorf("stake = %v, want 0", vars[stake])
	}
	if _, ok := vars[timer]; ok {
		t.Error("timer must be cleared")
	}
	if vars[balanceVar(alice, assetX)] != uint64(0) {
		t.Error("balance must be zero")
	}
}

// TestExecute_LockedDrawerMove verifies that a move lands the whole stake
// in drawer 0 after the warm-up.
func TestExecute_LockedDrawerMove(t *testing.T) {
	h := newHarness(t)
	from := StakeVar(alice, 7, "USDC", assetX)
	to := StakeVar(alice, 0, "USDC", assetX)
	move := map[string]any{"move": true, "symbol": "USDC", "asset": assetX, "drawer": 7}

	h.mustSend(alice, 100_000_000, support("USDC", assetX, "drawer", 7))
	h.mustSend(alice, DefaultBounceFee, withdrawal("USDC", assetX, 7, 100_000_000))

	h.advance(hour)
	if resp := h.send(alice, DefaultBounceFee, move); !h.rejected(resp, ErrWarmupNotExpired) {
		t.Fatalf("want warm-up bounce, got %+v", resp)
	}

	h.advance(DefaultWarmupPeriod)
	resp := h.mustSend(alice, DefaultBounceFee, move)
	if resp.Vars[to] != uint64(100_000_000) {
		t.Errorf("destination = %v", resp.Vars[to])
	}

	vars := h.vars()
	if _, ok := vars[from]; ok {
		t.Error("source stake must be deleted")
	}
	if _, ok := vars[stakeExpiryVar(alice, 7, "USDC", assetX)]; ok {
		t.Error("source timer must be deleted")
	}
	if vars[balanceVar(alice, assetX)] != uint64(100_000_000) {
		t.Error("move must not change the balance")
	}

	resp = h.mustSend(alice, DefaultBounceFee, withdrawal("USDC", assetX, 0, 100_000_000))
	if diff := cmp.Diff([]Payment{{Address: alice, Amount: 100_000_000}}, payments(resp)); diff != "" {
		t.Errorf("payments mismatch (-want +got):\n%s", diff)
	}
}

// TestExecute_MoveAuthorization verifies that only the owner starts a move
// while anyone may complete it.
func TestExecute_MoveAuthorization(t *testing.T) {
	h := newHarness(t)
	move := map[string]any{"move": 1, "symbol": "USDC", "asset": assetX, "drawer": 3, "address": alice}

	h.mustSend(alice, 50_000, support("USDC", assetX, "drawer", 3))

	if resp := h.send(bob, 0, move); !h.rejected(resp, ErrUnauthorized) {
		t.Fatalf("want unauthorized, got %+v", resp)
	}

	h.mustSend(alice, 0, move)
	h.advance(DefaultWarmupPeriod)
	h.mustSend(bob, 0, move)

	if h.vars()[StakeVar(alice, 0, "USDC", assetX)] != uint64(50_000) {
		t.Error("stake must land in the owner's drawer 0")
	}
}

// TestExecute_SupportCancelsPendingWithdrawal verifies that new stake in a
// drawer clears its warm-up timer.
func TestExecute_SupportCancelsPendingWithdrawal(t *testing.T) {
	h := newHarness(t)
	timer := stakeExpiryVar(alice, 2, "USDC", assetX)

	h.mustSend(alice, 50_000, support("USDC", assetX, "drawer", 2))
	h.mustSend(alice, 0, withdrawal("USDC", assetX, 2, 50_000))
	if _, ok := h.vars()[timer]; !ok {
		t.Fatal("timer not armed")
	}

	h.mustSend(alice, 50_000, support("USDC", assetX, "drawer", 2))
	if _, ok := h.vars()[timer]; ok {
		t.Error("support must clear the timer")
	}
}

// TestExecute_WithdrawalRevertsChallenger verifies that a challenger who
// falls back to the incumbent's level loses the lead and the timer.
func TestExecute_WithdrawalRevertsChallenger(t *testing.T) {
	h := newHarness(t)

	h.mustSend(alice, 100_000, support("USDC", assetA1))
	h.mustSend(bob, 300_000, support("USDC", assetA2))
	if h.vars()[largestS2AVar("USDC")] != assetA2 {
		t.Fatal("challenger should lead")
	}

	h.mustSend(bob, 0, withdrawal("USDC", assetA2, 0, 200_000))

	vars := h.vars()
	if vars[largestS2AVar("USDC")] != assetA1 {
		t.Errorf("frontrunner = %v, want incumbent", vars[largestS2AVar("USDC")])
	}
	if _, ok := vars[axisExpiryVar("USDC")]; ok {
		t.Error("timer must be cleared")
	}
}

// TestExecute_TieFavoursIncumbent verifies that equal support does not
// take the lead from the incumbent.
func TestExecute_TieFavoursIncumbent(t *testing.T) {
	h := newHarness(t)

	h.mustSend(alice, 100_000, support("USDC", assetA1))
	h.mustSend(bob, 100_000, support("USDC", assetA2))

	if h.vars()[largestS2AVar("USDC")] != assetA1 {
		t.Error("tie must keep the incumbent in front")
	}
}

// TestExecute_Bounces verifies that rejected triggers refund and leave the
// state untouched.
func TestExecute_Bounces(t *testing.T) {
	tests := []struct {
		name    string
		sender  string
		amount  uint64
		payload map[string]any
		kind    error
		refund  uint64
	}{
		{"dust support", alice, 10_000, support("USDC", assetX), ErrMalformedInput, 0},
		{"bad symbol", alice, 50_000, support("US_DC", assetX), ErrMalformedInput, 40_000},
		{"reserved symbol", alice, 50_000, support("message", assetA1, "decimals", 6), ErrMalformedInput, 40_000},
		{"bad asset", alice, 50_000, support("USDC", "nope"), ErrMalformedInput, 40_000},
		{"empty payload", alice, 0, map[string]any{}, ErrMalformedInput, 0},
		{"overdraw", alice, 0, withdrawal("USDC", assetX, 0, 200_000), ErrInsufficientStake, 0},
		{"withdraw and move", alice, 0, map[string]any{"withdraw": 1, "move": 1, "symbol": "USDC", "asset": assetX, "amount": 1}, ErrMalformedInput, 0},
		{"support and withdraw", alice, 50_000, withdrawal("USDC", assetX, 0, 1), ErrMalformedInput, 40_000},
		{"move drawer 0", alice, 0, map[string]any{"move": 1, "symbol": "USDC", "asset": assetX}, ErrMalformedInput, 0},
		{"move empty drawer", alice, 0, map[string]any{"move": 1, "symbol": "USDC", "asset": assetX, "drawer": 9}, ErrInsufficientStake, 0},
		{"metadata by stranger", bob, 0, map[string]any{"symbol": "USDC", "decimals": 2}, ErrUnauthorized, 0},
		{"metadata unknown symbol", alice, 0, map[string]any{"symbol": "NOPE", "decimals": 2}, ErrMalformedInput, 0},
		{"decimals too large", alice, 0, map[string]any{"symbol": "USDC", "decimals": 19}, ErrMalformedInput, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.mustSend(alice, 100_000, support("USDC", assetX))
			before := h.state()

			resp := h.send(tt.sender, tt.amount, tt.payload)
			if !h.rejected(resp, tt.kind) {
				t.Fatalf("want %v bounce, got %+v", tt.kind, resp)
			}
			if resp.Refund != tt.refund {
				t.Errorf("refund = %d, want %d", resp.Refund, tt.refund)
			}
			if diff := cmp.Diff(before, h.state()); diff != "" {
				t.Errorf("state changed (-want +got):\n%s", diff)
			}
		})
	}
}

// TestExecute_ReadError verifies that storage failures are reported
// instead of bouncing.
func TestExecute_ReadError(t *testing.T) {
	e := New(DefaultParams())

	_, err := e.Execute(failingReader{}, Trigger{Unit: "u", Sender: alice, Amount: 50_000, Payload: support("USDC", assetX)}, 1)
	if err == nil {
		t.Fatal("expected error")
	}
}

type failingReader struct{}

func (failingReader) Get([]byte) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func TestReject(t *testing.T) {
	e := New(DefaultParams())

	resp := e.Reject(Trigger{Unit: "u", Amount: 25_000}, "payload is not a JSON object")
	if !resp.Bounced || resp.Refund != 15_000 || resp.Error != "payload is not a JSON object" {
		t.Errorf("response = %+v", resp)
	}
}

// TestExecute_StaggeredChallengeWindows verifies that a challenger leading
// on both axes is promoted once both windows have run out, even when they
// end at different times.
func TestExecute_StaggeredChallengeWindows(t *testing.T) {
	h := newHarness(t)
	assetY := AssetID([]byte("asset-y"))

	h.mustSend(alice, 100_000, support("USDC", assetX))
	h.mustSend(charlie, 1_000_000, support("YY", assetY))

	start := h.now
	h.mustSend(bob, 300_000, support("USDC", assetY))
	if got := h.vars()[axisExpiryVar("USDC")]; got != start+DefaultChallengePeriod {
		t.Fatalf("symbol window = %v", got)
	}

	h.advance(20 * day)
	h.mustSend(charlie, 0, withdrawal("YY", assetY, 0, 900_000))
	h.mustSend(bob, 20_000, support("USDC", assetY))
	assetEnds := h.now + DefaultChallengePeriod
	if got := h.vars()[axisExpiryVar(assetY)]; got != assetEnds {
		t.Fatalf("asset window = %v, want %d", got, assetEnds)
	}

	// Symbol window over, asset window still open.
	h.advance(15 * day)
	resp := h.mustSend(bob, 20_000, support("USDC", assetY))
	if _, ok := resp.Vars["USDC"]; ok {
		t.Fatal("pair promoted before the asset window ended")
	}
	vars := h.vars()
	if vars[axisExpiryVar("USDC")] != start+DefaultChallengePeriod {
		t.Errorf("won symbol window lost: %v", vars[axisExpiryVar("USDC")])
	}
	if vars[axisExpiryVar(assetY)] != assetEnds {
		t.Errorf("asset window moved: %v", vars[axisExpiryVar(assetY)])
	}

	h.now = assetEnds
	resp = h.mustSend(bob, 20_000, support("USDC", assetY))
	if resp.Vars["USDC"] != assetY || resp.Vars[assetY] != "USDC" {
		t.Fatalf("pair not promoted: %v", resp.Vars)
	}

	vars = h.vars()
	if vars[s2aVar("USDC")] != assetY || vars[a2sVar(assetY)] != "USDC" {
		t.Errorf("binding = %v / %v", vars[s2aVar("USDC")], vars[a2sVar(assetY)])
	}
	if _, ok := vars[a2sVar(assetX)]; ok {
		t.Error("old asset binding must be evicted")
	}
	if _, ok := vars[s2aVar("YY")]; ok {
		t.Error("old symbol binding must be evicted")
	}
	for _, name := range []string{axisExpiryVar("USDC"), axisExpiryVar(assetY)} {
		if _, ok := vars[name]; ok {
			t.Errorf("%s must be cleared", name)
		}
	}
}

// TestExecute_PromotionRefreshesFrontrunners verifies that the contest
// caches of a freshly bound pair name the pair itself, so the next
// support of the pair does not open a challenge against it.
func TestExecute_PromotionRefreshesFrontrunners(t *testing.T) {
	h := newHarness(t)

	h.mustSend(alice, 100_000, support("USDC", assetA1))
	h.mustSend(bob, 300_000, support("EURC", assetA1))
	h.advance(DefaultChallengePeriod)
	h.mustSend(bob, 20_000, support("EURC", assetA1))
	if h.vars()[a2sVar(assetA1)] != "EURC" {
		t.Fatal("EURC should own assetA1")
	}

	// USDC lost its asset; a small supporter of another asset takes it at
	// once while assetA1 still has the larger USDC backing.
	h.mustSend(charlie, 20_000, support("USDC", assetA2))

	sc, err := SymbolContest(h.st, "USDC")
	if err != nil {
		t.Fatalf("SymbolContest: %v", err)
	}
	if diff := cmp.Diff(Contest{Incumbent: assetA2, Frontrunner: assetA2}, sc); diff != "" {
		t.Errorf("symbol contest mismatch (-want +got):\n%s", diff)
	}

	ac, err := AssetContest(h.st, assetA2)
	if err != nil {
		t.Fatalf("AssetContest: %v", err)
	}
	if diff := cmp.Diff(Contest{Incumbent: "USDC", Frontrunner: "USDC"}, ac); diff != "" {
		t.Errorf("asset contest mismatch (-want +got):\n%s", diff)
	}

	h.mustSend(charlie, 20_000, support("USDC", assetA2))
	if _, ok := h.vars()[axisExpiryVar("USDC")]; ok {
		t.Error("re-support of the bound pair must not start a challenge")
	}
}
