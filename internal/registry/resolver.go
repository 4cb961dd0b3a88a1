package registry

import "fmt"

// Phase is the state of one contest axis.
type Phase uint8

const (
	// Unchallenged: no incumbent, or the incumbent leads and no timer runs.
	Unchallenged Phase = iota
	// Challenged: a challenger leads and its timer is running.
	Challenged
	// Promoted: the candidate won the axis on this trigger. A won axis
	// keeps its ExpiresAt until the pair is promoted.
	Promoted
)

func (p Phase) String() string {
	switch p {
	case Unchallenged:
		return "unchallenged"
	case Challenged:
		return "challenged"
	case Promoted:
		return "promoted"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for _, c := range []Phase{Unchallenged, Challenged, Promoted} {
		if c.String() == string(text) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Contest is the persisted state of one axis. On the symbol axis the
// candidates are assets; on the asset axis they are symbols.
type Contest struct {
	Incumbent   string `json:"incumbent,omitempty"`
	Frontrunner string `json:"frontrunner,omitempty"`
	Phase       Phase  `json:"phase"`
	ExpiresAt   uint64 `json:"expires_at,omitempty"`
}

// axis names the variables of one contest.
type axis struct {
	incumbent string // incumbent is the binding variable
	leader    string // leader is the frontrunner cache variable
	timer     string // timer is the challenge expiry variable
	support   func(candidate string) string
}

func symbolAxis(symbol string) axis {
	return axis{
		incumbent: s2aVar(symbol),
		leader:    largestS2AVar(symbol),
		timer:     axisExpiryVar(symbol),
		support:   func(asset string) string { return supportVar(symbol, asset) },
	}
}

func assetAxis(asset string) axis {
	return axis{
		incumbent: a2sVar(asset),
		leader:    largestA2SVar(asset),
		timer:     axisExpiryVar(asset),
		support:   func(symbol string) string { return supportVar(symbol, asset) },
	}
}

func (a axis) load(v *view) Contest {
	c := Contest{
		Incumbent:   v.str(a.incumbent),
		Frontrunner: v.str(a.leader),
	}
	if v.has(a.timer) {
		c.Phase = Challenged
		c.ExpiresAt = v.uint(a.timer)
	}
	return c
}

func (a axis) store(v *view, c Contest) {
	if c.Frontrunner != "" {
		v.setStr(a.leader, c.Frontrunner)
	}
	if c.ExpiresAt != 0 {
		v.setUint(a.timer, c.ExpiresAt)
	} else {
		v.del(a.timer)
	}
}

// step advances a contest for a candidate that just received support.
// supportOf returns the total support of any candidate on this axis.
// The returned phase is Promoted when the candidate has won the axis.
func step(c Contest, candidate string, supportOf func(string) uint64, now, period uint64) Contest {
	next := c
	took := false

	switch {
	case next.Frontrunner == candidate:
	case next.Frontrunner == "":
		next.Frontrunner, took = candidate, true
	default:
		s, lead := supportOf(candidate), supportOf(next.Frontrunner)
		if s > lead || (s == lead && candidate == next.Incumbent) {
			next.Frontrunner, took = candidate, true
		}
	}

	switch {
	case next.Incumbent == "":
		next.Phase, next.ExpiresAt = Promoted, 0
	case next.Frontrunner == next.Incumbent:
		next.Phase, next.ExpiresAt = Unchallenged, 0
		if candidate == next.Incumbent {
			next.Phase = Promoted
		}
	case took || next.Phase != Challenged:
		next.Phase, next.ExpiresAt = Challenged, deadline(now, period)
	case now >= next.ExpiresAt && candidate == next.Frontrunner:
		next.Phase = Promoted
	}

	return next
}

// resolve runs both contests for a supported pair and promotes it when
// both are won.
func (e *Engine) resolve(v *view, symbol, asset string, now uint64, out *outcome) {
	supportOf := func(name func(string) string) func(string) uint64 {
		return func(c string) uint64 { return v.uint(name(c)) }
	}

	sa, aa := symbolAxis(symbol), assetAxis(asset)

	sc := step(sa.load(v), asset, supportOf(sa.support), now, e.params.ChallengePeriod)
	ac := step(aa.load(v), symbol, supportOf(aa.support), now, e.params.ChallengePeriod)

	sa.store(v, sc)
	aa.store(v, ac)

	if sc.Phase != Promoted || ac.Phase != Promoted {
		return
	}
	if sc.Incumbent == asset && ac.Incumbent == symbol {
		return
	}

	promote(v, symbol, asset)

	out.set(symbol, asset)
	out.set(asset, symbol)
	out.publish(asset)
}

// promote makes symbol/asset the canonical pair, evicting whatever either
// side was bound to before. Both frontrunners become the new pair and both
// timers are cleared.
func promote(v *view, symbol, asset string) {
	if old := v.str(s2aVar(symbol)); old != "" && old != asset && v.str(a2sVar(old)) == symbol {
		v.del(a2sVar(old))
	}
	if old := v.str(a2sVar(asset)); old != "" && old != symbol && v.str(s2aVar(old)) == asset {
		v.del(s2aVar(old))
	}

	v.setStr(s2aVar(symbol), asset)
	v.setStr(a2sVar(asset), symbol)
	v.setStr(largestS2AVar(symbol), asset)
	v.setStr(largestA2SVar(asset), symbol)

	v.del(axisExpiryVar(symbol))
	v.del(axisExpiryVar(asset))
}

// retreat re-evaluates both contests after support was withdrawn from the
// pair. A challenger that no longer leads the incumbent loses its lead
// and its timer.
func retreat(v *view, symbol, asset string) {
	for _, a := range []axis{symbolAxis(symbol), assetAxis(asset)} {
		c := a.load(v)
		if c.Incumbent == "" || c.Frontrunner == "" || c.Frontrunner == c.Incumbent {
			continue
		}
		if v.uint(a.support(c.Frontrunner)) > v.uint(a.support(c.Incumbent)) {
			continue
		}

		c.Frontrunner, c.Phase, c.ExpiresAt = c.Incumbent, Unchallenged, 0
		a.store(v, c)
	}
}

// SymbolContest returns the contest for a symbol.
func SymbolContest(r Reader, symbol string) (Contest, error) {
	v := newView(r)
	c := symbolAxis(symbol).load(v)
	return c, v.err
}

// AssetContest returns the contest for an asset.
func AssetContest(r Reader, asset string) (Contest, error) {
	v := newView(r)
	c := assetAxis(asset).load(v)
	return c, v.err
}
