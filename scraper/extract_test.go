package scraper

import (
	"testing"

	"livewatcher.com/config"
)

func TestDecodeProducts(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCount int
		wantFound int
		wantFirst string
	}{
		{"data list", `{"data": [{"title":"X"}]}`, 1, 1, "X"},
		{"data products", `{"data": {"products": [{"title":"A"},{"title":"B"}]}}`, 2, 2, "A"},
		{"products", `{"products": [{"title":"P"}]}`, 1, 1, "P"},
		{"items", `{"items": [{"title":"I"}]}`, 1, 1, "I"},
		{"root list", `[{"title":"R"}]`, 1, 1, "R"},
		{"data wins over products", `{"data": [{"title":"D"}], "products": [{"title":"P"}]}`, 1, 1, "D"},
		{"data object without products falls through", `{"data": {"total": 3}, "items": [{"title":"I"}]}`, 1, 1, "I"},
		{"no list", `{"data": {"total": 3}}`, 0, 0, ""},
		{"scalar", `"hello"`, 0, 0, ""},
		{"non-object entries dropped but counted", `{"data": [1, {"title":"Y"}]}`, 1, 2, "Y"},
		{"only non-object entries", `{"items": [null, "x"]}`, 0, 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found, err := DecodeProducts([]byte(tt.body))
			if err != nil {
				t.Fatalf("DecodeProducts() error = %v", err)
			}
			if len(got) != tt.wantCount {
				t.Fatalf("len = %d, want %d", len(got), tt.wantCount)
			}
			if found != tt.wantFound {
				t.Fatalf("found = %d, want %d", found, tt.wantFound)
			}
			if tt.wantCount > 0 && got[0]["title"] != tt.wantFirst {
				t.Fatalf("first title = %v, want %q", got[0]["title"], tt.wantFirst)
			}
		})
	}
}

func TestDecodeProductsInvalidJSON(t *testing.T) {
	if _, _, err := DecodeProducts([]byte(`{not json`)); err == nil {
		t.Fatal("DecodeProducts() error = nil, want error")
	}
}

func TestIsProductResponse(t *testing.T) {
	tests := []struct {
		url, contentType string
		want             bool
	}{
		{"https://live.example.com/api/product/list?room=1", "application/json; charset=utf-8", true},
		{"https://live.example.com/webcast/product/detail", "application/json", true},
		{"https://live.example.com/aweme/v1/web/product/x", "application/json", true},
		{"https://live.example.com/api/product/list", "text/html", false},
		{"https://live.example.com/api/user/info", "application/json", false},
	}
	for _, tt := range tests {
		if got := IsProductResponse(tt.url, tt.contentType, config.ProductAPIPatterns); got != tt.want {
			t.Errorf("IsProductResponse(%q, %q) = %v, want %v", tt.url, tt.contentType, got, tt.want)
		}
	}
}

func TestToRawProducts(t *testing.T) {
	got := toRawProducts([]any{map[string]any{"title": "A", "price": "1"}, "junk"})
	if len(got) != 1 || got[0]["price"] != "1" {
		t.Fatalf("toRawProducts() = %v", got)
	}
	if toRawProducts(nil) != nil {
		t.Fatal("toRawProducts(nil) should be nil")
	}
}
