package scraper

import (
	"encoding/json"
	"strings"

	"livewatcher.com/models"
)

// ExtractStrategy looks for a product list at one place in a decoded body.
type ExtractStrategy struct {
	Name string
	Find func(body any) ([]any, bool)
}

// ProductStrategies are tried in order; the first one that finds a list wins.
var ProductStrategies = []ExtractStrategy{
	{Name: "data", Find: func(body any) ([]any, bool) { return listAt(body, "data") }},
	{Name: "data.products", Find: func(body any) ([]any, bool) { return listAt(body, "data", "products") }},
	{Name: "products", Find: func(body any) ([]any, bool) { return listAt(body, "products") }},
	{Name: "items", Find: func(body any) ([]any, bool) { return listAt(body, "items") }},
	{Name: "root", Find: func(body any) ([]any, bool) { return listAt(body) }},
}

// ExtractProducts returns the product objects of a decoded API body and the
// length of the list they were found in, non-object entries included. It
// returns nil, 0 when no strategy matches.
func ExtractProducts(body any) ([]models.RawProduct, int) {
	for _, s := range ProductStrategies {
		if list, ok := s.Find(body); ok {
			return toRawProducts(list), len(list)
		}
	}
	return nil, 0
}

// IsProductResponse reports whether a response should be parsed for products.
func IsProductResponse(url, contentType string, patterns []string) bool {
	if !strings.Contains(contentType, "application/json") {
		return false
	}
	for _, p := range patterns {
		if strings.Contains(url, p) {
			return true
		}
	}
	return false
}

// DecodeProducts parses a JSON body and extracts its product list.
func DecodeProducts(data []byte) ([]models.RawProduct, int, error) {
	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, 0, err
	}
	products, found := ExtractProducts(body)
	return products, found, nil
}

func listAt(body any, path ...string) ([]any, bool) {
	cur := body
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	list, ok := cur.([]any)
	return list, ok
}
