package document

// CastInts converts every whole-valued float in a plain value to int, in
// place for containers, and returns the value. The substrate represents
// all numbers as floating point; the interchange format distinguishes
// integers, so values crossing back out are cast when the cast loses
// nothing (verified by equality after the cast).
func CastInts(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = CastInts(val)
		}
		return x
	case []any:
		for i, val := range x {
			x[i] = CastInts(val)
		}
		return x
	case float64:
		if n := int(x); float64(n) == x {
			return n
		}
		return x
	}
	return v
}
