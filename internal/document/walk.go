package document

// Step is one hop of a selection walk.
type Step func(Value) Value

// Key selects an object field.
func Key(name string) Step {
	return func(v Value) Value { return v.Get(name) }
}

// At selects an array element.
func At(i int) Step {
	return func(v Value) Value { return v.At(i) }
}

// Walk applies steps in order. The walk stops being meaningful as soon as a
// step yields an absent value; later steps keep it absent.
func (v Value) Walk(steps ...Step) Value {
	cur := v
	for _, s := range steps {
		cur = s(cur)
	}
	return cur
}

// Pluck projects a key path across every element of an array. Elements that
// lack the path yield a null placeholder so positions line up with the input.
// A non-array input yields nil.
func Pluck(arr Value, keys ...string) []Value {
	elems := arr.Elems()
	if elems == nil {
		return nil
	}
	out := make([]Value, len(elems))
	for i, e := range elems {
		p := e.Path(keys...)
		if !p.Present() {
			p = Value{v: nil, set: true}
		}
		out[i] = p
	}
	return out
}

// Compact drops null and absent values, keeping order.
func Compact(vals []Value) []Value {
	out := make([]Value, 0, len(vals))
	for _, v := range vals {
		if v.Present() {
			out = append(out, v)
		}
	}
	return out
}
