package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

var (
	requiredKeys      = []string{"timestamp", "RPC", "url", "title", "marketing_tags", "brand", "section", "price_data", "stock", "assets", "metadata", "variants"}
	requiredPriceKeys = []string{"current", "original", "sale_tag"}
	requiredStockKeys = []string{"in_stock", "count"}
	requiredAssetKeys = []string{"main_image", "set_images", "view360", "video"}
)

// Report summarises a schema check over a decoded result file.
type Report struct {
	Total    int
	Problems map[int][]string
}

func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

// CheckResults decodes a serialized result file and checks each record's
// shape and invariants. A document that is not a JSON array is an error.
func CheckResults(data []byte) (*Report, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("result is not a JSON array of objects: %w", err)
	}

	report := &Report{Total: len(raw), Problems: make(map[int][]string)}
	for i, item := range raw {
		if problems := checkRecord(item); len(problems) > 0 {
			report.Problems[i] = problems
		}
	}
	return report, nil
}

func checkRecord(item map[string]json.RawMessage) []string {
	var problems []string
	for _, key := range missing(item, requiredKeys) {
		problems = append(problems, "missing key "+key)
	}
	problems = append(problems, checkNested(item, "price_data", requiredPriceKeys)...)
	problems = append(problems, checkNested(item, "stock", requiredStockKeys)...)
	problems = append(problems, checkNested(item, "assets", requiredAssetKeys)...)

	if len(problems) > 0 {
		return problems
	}

	var product Product
	if err := json.Unmarshal(mustMarshal(item), &product); err != nil {
		return []string{fmt.Sprintf("wrong field types: %v", err)}
	}
	return product.Validate()
}

func checkNested(item map[string]json.RawMessage, key string, keys []string) []string {
	raw, ok := item[key]
	if !ok {
		return nil
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err != nil {
		return []string{key + " is not an object"}
	}
	var problems []string
	for _, k := range missing(nested, keys) {
		problems = append(problems, "missing key "+key+"."+k)
	}
	return problems
}

func missing(obj map[string]json.RawMessage, keys []string) []string {
	var out []string
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func mustMarshal(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
