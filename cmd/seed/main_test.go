package main

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseSeeds_DefaultCatalog(t *testing.T) {
	seeds, err := parseSeeds(defaultProducts)
	if err != nil {
		t.Fatalf("expected bundled catalog to parse, got %v", err)
	}
	if len(seeds) == 0 {
		t.Fatalf("expected products")
	}
	if !seeds[0].Price.Equal(decimal.RequireFromString("3.00")) {
		t.Fatalf("expected first price 3.00, got %s", seeds[0].Price)
	}
}

func TestParseSeeds_Rejects(t *testing.T) {
	for _, in := range []string{`[]`, `{"name":"x"}`, `not json`} {
		if _, err := parseSeeds([]byte(in)); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
