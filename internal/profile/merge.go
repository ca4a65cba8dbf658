package profile

// Merge deep-merges overlay into base and returns a new map. Neither input
// is mutated. The precedence rule is fixed: when both sides hold a map for
// the same key, the maps merge recursively; any other pair is resolved by
// the overlay replacing the base value wholesale, lists included. Keys only
// present in base are preserved.
func Merge(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		bm, baseIsMap := out[k].(map[string]any)
		om, overlayIsMap := v.(map[string]any)
		if baseIsMap && overlayIsMap {
			out[k] = Merge(bm, om)
			continue
		}
		out[k] = v
	}
	return out
}
