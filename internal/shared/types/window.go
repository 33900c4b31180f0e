package types

// Bounds is window geometry in screen pixels
type Bounds struct {
	X         int  `json:"x" yaml:"x" toml:"x"`
	Y         int  `json:"y" yaml:"y" toml:"y"`
	Width     int  `json:"width" yaml:"width" toml:"width"`
	Height    int  `json:"height" yaml:"height" toml:"height"`
	Maximized bool `json:"maximized" yaml:"maximized" toml:"maximized"`
}

// IsZero reports whether no geometry has been recorded
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// Payload renders bounds as a message body
func (b Bounds) Payload() Payload {
	return Payload{
		"x":         b.X,
		"y":         b.Y,
		"width":     b.Width,
		"height":    b.Height,
		"maximized": b.Maximized,
	}
}

// BoundsFromPayload reads bounds out of a message body. Numbers may arrive
// as int, int64 or float64 depending on the transport codec.
func BoundsFromPayload(p Payload) (Bounds, bool) {
	var b Bounds
	var ok bool
	if b.X, ok = asInt(p["x"]); !ok {
		return Bounds{}, false
	}
	if b.Y, ok = asInt(p["y"]); !ok {
		return Bounds{}, false
	}
	if b.Width, ok = asInt(p["width"]); !ok {
		return Bounds{}, false
	}
	if b.Height, ok = asInt(p["height"]); !ok {
		return Bounds{}, false
	}
	b.Maximized, _ = p["maximized"].(bool)
	return b, true
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
