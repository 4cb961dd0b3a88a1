package registry

import "math"

const (
	day = 24 * 60 * 60

	// DefaultChallengePeriod is how long a challenger must lead before promotion.
	DefaultChallengePeriod = 30 * day

	// DefaultWarmupPeriod delays withdrawals and moves out of locked drawers.
	DefaultWarmupPeriod = 7 * day

	// DefaultBounceFee is kept from the attachment of a rejected trigger.
	DefaultBounceFee = 10_000

	// MaxDecimals bounds the decimals an asset may declare.
	MaxDecimals = 18

	// MaxDescriptionLen bounds an asset description in bytes.
	MaxDescriptionLen = 1024

	// MaxSymbolLen bounds a symbol in bytes.
	MaxSymbolLen = 40
)

// Params holds the tunable constants of the engine.
type Params struct {
	ChallengePeriod uint64 // ChallengePeriod is the challenge window in seconds
	WarmupPeriod    uint64 // WarmupPeriod is the drawer warm-up in seconds
	BounceFee       uint64 // BounceFee is retained when a trigger bounces
	MinSupport      uint64 // MinSupport is the amount a support must exceed
}

// DefaultParams returns the production parameters.
func DefaultParams() Params {
	return Params{
		ChallengePeriod: DefaultChallengePeriod,
		WarmupPeriod:    DefaultWarmupPeriod,
		BounceFee:       DefaultBounceFee,
		MinSupport:      DefaultBounceFee,
	}
}

// Refund returns what a bounced trigger gives back from attached.
func (p Params) Refund(attached uint64) uint64 {
	return safeSub(attached, p.BounceFee)
}

// safeAdd returns a+b and false on overflow.
func safeAdd(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// safeSub returns a-b floored at zero.
func safeSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// deadline returns now+period saturating at the maximum timestamp.
func deadline(now, period uint64) uint64 {
	t, ok := safeAdd(now, period)
	if !ok {
		return math.MaxUint64
	}
	return t
}
