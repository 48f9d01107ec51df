package state

// Merge combines incoming into existing and returns the result. Neither argument is modified.
//
// A non-empty mapping merged onto a mapping is combined key by key, recursively.
// Anything else replaces existing wholesale: scalars, sequences (never concatenated),
// and empty mappings, which clear a previously populated mapping.
func Merge(existing, incoming Value) Value {
	if incoming.kind != KindMapping || len(incoming.m) == 0 || existing.kind != KindMapping {
		return incoming
	}

	merged := make(map[string]Value, len(existing.m)+len(incoming.m))
	for k, v := range existing.m {
		merged[k] = v
	}
	for k, v := range incoming.m {
		if current, ok := merged[k]; ok {
			merged[k] = Merge(current, v)
		} else {
			merged[k] = v
		}
	}
	return Value{kind: KindMapping, m: merged}
}

// MergeField applies one named field update to a document mapping
func MergeField(doc Value, name string, value Value) Value {
	return Merge(doc, Mapping(map[string]Value{name: value}))
}
