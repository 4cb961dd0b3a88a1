package registry

// withdraw pays out stake from a drawer. Drawer 0 pays immediately; a
// locked drawer first arms its warm-up timer and pays once it expires.
func (e *Engine) withdraw(v *view, sender string, r WithdrawRequest, now uint64, out *outcome) error {
	stakeName := StakeVar(sender, r.Drawer, r.Symbol, r.Asset)

	stake := v.uint(stakeName)
	if r.Amount > stake {
		return insufficient("trying to withdraw more than you have: %d > %d", r.Amount, stake)
	}

	if r.Drawer != 0 {
		ready, err := e.warmUp(v, stakeExpiryVar(sender, r.Drawer, r.Symbol, r.Asset), now)
		if err != nil || !ready {
			return err
		}
	}

	debit(v, sender, r.Drawer, r.Symbol, r.Asset, r.Amount)
	retreat(v, r.Symbol, r.Asset)

	out.set(stakeName, stake-r.Amount)
	out.pay(sender, r.Amount)

	return nil
}

// move transfers the whole stake of a locked drawer to drawer 0 of the
// same owner once the warm-up has expired. Only the owner may start the
// warm-up; anyone may complete it.
func (e *Engine) move(v *view, sender string, r MoveRequest, now uint64, out *outcome) error {
	from := StakeVar(r.Owner, r.Drawer, r.Symbol, r.Asset)
	timer := stakeExpiryVar(r.Owner, r.Drawer, r.Symbol, r.Asset)

	stake := v.uint(from)
	if stake == 0 {
		return insufficient("nothing to move from drawer %d", r.Drawer)
	}

	if !v.has(timer) && sender != r.Owner {
		return unauthorized("only the owner can start a move")
	}

	ready, err := e.warmUp(v, timer, now)
	if err != nil || !ready {
		return err
	}

	to := StakeVar(r.Owner, 0, r.Symbol, r.Asset)
	total, err := credit(v, to, stake)
	if err != nil {
		return err
	}

	v.del(from)
	v.del(timer)

	out.set(from, uint64(0))
	out.set(to, total)

	return nil
}

// warmUp arms the timer on first use and reports whether it has expired.
func (e *Engine) warmUp(v *view, timer string, now uint64) (bool, error) {
	if !v.has(timer) {
		v.setUint(timer, deadline(now, e.params.WarmupPeriod))
		return false, nil
	}
	if now < v.uint(timer) {
		return false, warmupNotExpired()
	}

	v.del(timer)
	return true, nil
}
