package registry

const (
	// MessageMetadataCurrent is returned when a metadata write succeeds.
	MessageMetadataCurrent = "Your description is now the current"

	// messageVar is the response variable carrying MessageMetadataCurrent.
	messageVar = "message"
)

// setMetadata resolves the pair named by r, checks that sender backs it
// and writes the provided attributes.
func (e *Engine) setMetadata(v *view, sender string, r MetadataRequest, out *outcome) error {
	symbol, asset := r.Symbol, r.Asset

	if asset == "" {
		asset = v.str(s2aVar(symbol))
		if asset == "" {
			return malformed("no such symbol: %s", symbol)
		}
	}
	if symbol == "" {
		symbol = v.str(a2sVar(asset))
	}

	if symbol != "" {
		if v.uint(backingVar(sender, symbol, asset)) == 0 {
			return unauthorized("you don't support %s as %s", asset, symbol)
		}
	} else if v.uint(balanceVar(sender, asset)) == 0 {
		return unauthorized("you don't support asset %s", asset)
	}

	writeMetadata(v, asset, r.Metadata, out)

	return nil
}

// writeMetadata stores the attributes of asset. A data record is
// published when the asset is canonical.
func writeMetadata(v *view, asset string, m Metadata, out *outcome) {
	if m.Decimals != nil {
		v.setUint(decimalsVar(asset), *m.Decimals)
	}
	if m.Description != nil {
		if *m.Description == "" {
			v.del(descriptionVar(asset))
		} else {
			v.setStr(descriptionVar(asset), *m.Description)
		}
	}

	out.set(messageVar, MessageMetadataCurrent)

	if v.has(a2sVar(asset)) {
		out.publish(asset)
	}
}
