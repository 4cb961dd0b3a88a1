package registry

// recordSupport stakes r.Amount for sender and then resolves the pair.
func (e *Engine) recordSupport(v *view, sender string, r SupportRequest, now uint64, out *outcome) error {
	stakeName := StakeVar(sender, r.Drawer, r.Symbol, r.Asset)

	stake, err := credit(v, stakeName, r.Amount)
	if err != nil {
		return err
	}
	if _, err := credit(v, supportVar(r.Symbol, r.Asset), r.Amount); err != nil {
		return err
	}
	if _, err := credit(v, balanceVar(sender, r.Asset), r.Amount); err != nil {
		return err
	}
	if _, err := credit(v, backingVar(sender, r.Symbol, r.Asset), r.Amount); err != nil {
		return err
	}

	// fresh stake cancels a pending withdrawal or move
	v.del(stakeExpiryVar(sender, r.Drawer, r.Symbol, r.Asset))

	out.set(stakeName, stake)

	e.resolve(v, r.Symbol, r.Asset, now, out)

	if !r.Metadata.Empty() {
		writeMetadata(v, r.Asset, r.Metadata, out)
	}

	return nil
}

// debit removes amount of stake from one drawer and every total derived
// from it. The caller has checked amount against the stake.
func debit(v *view, owner string, drawer uint32, symbol, asset string, amount uint64) {
	stakeName := StakeVar(owner, drawer, symbol, asset)
	v.setUint(stakeName, safeSub(v.uint(stakeName), amount))

	sup := supportVar(symbol, asset)
	v.setUint(sup, safeSub(v.uint(sup), amount))

	bal := balanceVar(owner, asset)
	v.setUint(bal, safeSub(v.uint(bal), amount))

	back := backingVar(owner, symbol, asset)
	v.setUint(back, safeSub(v.uint(back), amount))
}

func credit(v *view, name string, amount uint64) (uint64, error) {
	total, ok := safeAdd(v.uint(name), amount)
	if !ok {
		return 0, malformed("amount overflow")
	}
	v.setUint(name, total)
	return total, nil
}
