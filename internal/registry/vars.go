package registry

import "fmt"

// PrefixReader iterates the store in key order.
type PrefixReader interface {
	IteratePrefix(prefix []byte, fn func(key, value []byte) error) error
}

// DecodeVar renders a stored variable as a string or a uint64.
func DecodeVar(name string, raw []byte) (any, error) {
	if isStringVar(name) {
		return string(raw), nil
	}

	n, ok := decodeUint(raw)
	if !ok {
		return nil, fmt.Errorf("corrupt value for %s: %d bytes", name, len(raw))
	}

	return n, nil
}

// Vars returns every registry variable whose name starts with prefix.
func Vars(r PrefixReader, prefix string) (map[string]any, error) {
	vars := make(map[string]any)

	err := r.IteratePrefix(storeKey(prefix), func(key, value []byte) error {
		name := varName(key)

		decoded, err := DecodeVar(name, value)
		if err != nil {
			return err
		}

		vars[name] = decoded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate vars:\n%w", err)
	}

	return vars, nil
}

// Binding describes a canonical symbol/asset pair.
type Binding struct {
	Symbol      string `json:"symbol"`
	Asset       string `json:"asset"`
	Support     uint64 `json:"support"`
	Decimals    uint64 `json:"decimals"`
	Description string `json:"description,omitempty"`
}

// BindingBySymbol returns the canonical binding of symbol, if any.
func BindingBySymbol(r Reader, symbol string) (*Binding, error) {
	v := newView(r)

	asset := v.str(s2aVar(symbol))
	if asset == "" {
		return nil, v.err
	}

	return binding(v, symbol, asset)
}

// BindingByAsset returns the canonical binding of asset, if any.
func BindingByAsset(r Reader, asset string) (*Binding, error) {
	v := newView(r)

	symbol := v.str(a2sVar(asset))
	if symbol == "" {
		return nil, v.err
	}

	return binding(v, symbol, asset)
}

func binding(v *view, symbol, asset string) (*Binding, error) {
	b := &Binding{
		Symbol:      symbol,
		Asset:       asset,
		Support:     v.uint(supportVar(symbol, asset)),
		Decimals:    v.uint(decimalsVar(asset)),
		Description: v.str(descriptionVar(asset)),
	}
	if v.err != nil {
		return nil, v.err
	}
	return b, nil
}
