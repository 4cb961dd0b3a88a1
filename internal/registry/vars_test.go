package registry

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVars_PrefixAndDecoding(t *testing.T) {
	h := newHarness(t)
	h.mustSend(alice, 100_000, support("USDC", assetX, "description", "usd"))

	got, err := Vars(h.st, prefixS2A)
	if err != nil {
		t.Fatalf("Vars: %v", err)
	}
	if diff := cmp.Diff(map[string]any{s2aVar("USDC"): assetX}, got); diff != "" {
		t.Errorf("vars mismatch (-want +got):\n%s", diff)
	}

	all := h.vars()
	if all[descriptionVar(assetX)] != "usd" {
		t.Errorf("description = %v", all[descriptionVar(assetX)])
	}
	if all[supportVar("USDC", assetX)] != uint64(100_000) {
		t.Errorf("support = %v", all[supportVar("USDC", assetX)])
	}
}

func TestDecodeVar_Corrupt(t *testing.T) {
	if _, err := DecodeVar(feesVar, []byte{1, 2}); err == nil {
		t.Error("expected error for short numeric value")
	}
}

func TestContestQueries(t *testing.T) {
	h := newHarness(t)
	h.mustSend(alice, 100_000, support("USDC", assetA1))
	h.mustSend(bob, 300_000, support("USDC", assetA2))

	c, err := SymbolContest(h.st, "USDC")
	if err != nil {
		t.Fatalf("SymbolContest: %v", err)
	}
	want := Contest{Incumbent: assetA1, Frontrunner: assetA2, Phase: Challenged, ExpiresAt: h.now + DefaultChallengePeriod}
	if c != want {
		t.Errorf("contest = %+v, want %+v", c, want)
	}

	c, err = AssetContest(h.st, assetA2)
	if err != nil {
		t.Fatalf("AssetContest: %v", err)
	}
	if c.Incumbent != "" || c.Frontrunner != "USDC" || c.Phase != Unchallenged {
		t.Errorf("asset contest = %+v", c)
	}
}
