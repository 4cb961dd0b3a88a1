package registry

// outcome accumulates the visible effects of a trigger while it executes.
type outcome struct {
	vars      map[string]any
	payments  []Payment
	published string // published is the asset whose data record is emitted
}

func newOutcome() *outcome {
	return &outcome{vars: make(map[string]any)}
}

func (o *outcome) set(name string, value any) {
	o.vars[name] = value
}

func (o *outcome) pay(address string, amount uint64) {
	o.payments = append(o.payments, Payment{Address: address, Amount: amount})
}

// publish schedules a data record for asset, read from the final state.
func (o *outcome) publish(asset string) {
	o.published = asset
}

func (o *outcome) response(unit string, v *view) *Response {
	resp := &Response{Unit: unit}
	if len(o.vars) > 0 {
		resp.Vars = o.vars
	}

	for i := range o.payments {
		resp.Messages = append(resp.Messages, Message{App: AppPayment, Payment: &o.payments[i]})
	}

	if o.published != "" {
		resp.Messages = append(resp.Messages, Message{App: AppData, Data: dataRecord(v, o.published)})
	}

	return resp
}

func dataRecord(v *view, asset string) *DataRecord {
	return &DataRecord{
		Asset:       asset,
		Name:        v.str(a2sVar(asset)),
		Decimals:    v.uint(decimalsVar(asset)),
		Description: v.str(descriptionVar(asset)),
	}
}
