package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ParamsHash returns a stable hash of a unit's declared parameters.
// Maps are normalized first; encoding/json then emits keys in sorted
// order, so identical declarations always hash identically.
func ParamsHash(params map[string]any) string {
	normalized := normalizeValue(params)
	data, err := json.Marshal(normalized)
	if err != nil {
		// Params come from config evaluation and are always plain data;
		// a marshal failure would mean a corrupted declaration.
		data = []byte(fmt.Sprintf("%v", normalized))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalizeValue converts evaluator-produced values (which may contain
// map[any]any) into plain JSON-compatible structures.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		newMap := make(map[string]any)
		for k, v := range val {
			newMap[fmt.Sprintf("%v", k)] = normalizeValue(v)
		}
		return newMap
	case map[string]any:
		newMap := make(map[string]any)
		for k, v := range val {
			newMap[k] = normalizeValue(v)
		}
		return newMap
	case []any:
		newSlice := make([]any, len(val))
		for i, v := range val {
			newSlice[i] = normalizeValue(v)
		}
		return newSlice
	default:
		return val
	}
}
