package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StructuredItem is one JSON-LD node with its @type values and properties
type StructuredItem struct {
	Types      []string
	Properties map[string]any
}

// Has reports whether prop is present and not empty
func (s StructuredItem) Has(prop string) bool {
	v, ok := s.Properties[prop]
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	}
	return true
}

// ParseJSONLD decodes one <script type="application/ld+json"> block.
// Top-level arrays and @graph containers are flattened.
func ParseJSONLD(block string) ([]StructuredItem, error) {
	var raw any
	if err := json.Unmarshal([]byte(strings.TrimSpace(block)), &raw); err != nil {
		return nil, fmt.Errorf("invalid json-ld: %w", err)
	}

	var items []StructuredItem
	collectItems(raw, &items)
	return items, nil
}

func collectItems(v any, items *[]StructuredItem) {
	switch node := v.(type) {
	case []any:
		for _, child := range node {
			collectItems(child, items)
		}
	case map[string]any:
		if graph, ok := node["@graph"]; ok {
			collectItems(graph, items)
		}
		types := typeNames(node["@type"])
		if len(types) > 0 {
			*items = append(*items, StructuredItem{Types: types, Properties: node})
		}
	}
}

func typeNames(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		var names []string
		for _, item := range t {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	return nil
}
