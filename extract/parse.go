package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Result is the outcome of parsing one candidate block.
type Result struct {
	Block
	Value any
	Err   error
}

// OK reports whether the candidate parsed.
func (r Result) OK() bool {
	return r.Err == nil
}

// Parse decodes a payload into generic JSON values (map[string]any or []any).
func Parse(payload string, opts ...Option) (any, error) {
	return ParseAs[any](payload, opts...)
}

// ParseAs decodes a payload into T. The payload must be a JSON object or array.
// With WithRepair, a payload that fails strict decoding is passed through
// jsonrepair and decoded once more.
func ParseAs[T any](payload string, opts ...Option) (T, error) {
	var result T
	o := newOptions(opts)

	content := strings.TrimSpace(payload)
	err := ErrNotStructured
	if structured(content) {
		if err = json.Unmarshal([]byte(content), &result); err == nil {
			return result, nil
		}
		err = fmt.Errorf("failed to parse payload: %w", err)
	}
	if !o.repair {
		return result, err
	}

	repaired, repairErr := jsonrepair.JSONRepair(content)
	if repairErr != nil {
		return result, fmt.Errorf("failed to parse payload and failed to repair it: %w, repair error: %v", err, repairErr)
	}
	if !structured(repaired) {
		return result, ErrNotStructured
	}

	var retry T
	if err := json.Unmarshal([]byte(repaired), &retry); err != nil {
		return result, fmt.Errorf("failed to parse repaired payload: %w", err)
	}
	return retry, nil
}

// ParseAll extracts every accepted block and parses each one independently.
// A candidate that fails to parse is reported in its Result and scanning continues.
func ParseAll(text string, opts ...Option) []Result {
	var results []Result
	for b := range Blocks(text, opts...) {
		value, err := Parse(b.Payload, opts...)
		results = append(results, Result{Block: b, Value: value, Err: err})
	}
	return results
}

func structured(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}
