package app

import (
	"context"
	"testing"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/clock"
	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/shopspring/decimal"
)

type fakeCatalog struct {
	products []domain.Product
	err      error
}

func (f *fakeCatalog) CreateProduct(_ context.Context, p domain.Product) error {
	if f.err != nil {
		return f.err
	}
	f.products = append(f.products, p)
	return nil
}

func (f *fakeCatalog) ListProducts(context.Context) ([]domain.Product, error) {
	return f.products, nil
}

func TestCatalogService_CreateProduct(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := &fakeCatalog{}
	svc := NewCatalogService(repo, &seqIDs{}, clock.NewFixed(now))

	product, err := svc.CreateProduct(context.Background(), CreateProductInput{
		Name:  "  Oat milk ",
		Price: decimal.RequireFromString("2.499"),
		Stock: 12,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if product.ID != 1 || product.Name != "Oat milk" {
		t.Fatalf("unexpected product %+v", product)
	}
	if !product.Price.Equal(decimal.RequireFromString("2.50")) {
		t.Fatalf("expected price rounded to 2.50, got %s", product.Price)
	}
	if !product.CreatedAt.Equal(now) {
		t.Fatalf("expected created at %s, got %s", now, product.CreatedAt)
	}
	if len(repo.products) != 1 {
		t.Fatalf("expected product stored")
	}

	tests := []struct {
		name string
		in   CreateProductInput
	}{
		{name: "blank name", in: CreateProductInput{Name: " ", Price: decimal.NewFromInt(1)}},
		{name: "negative price", in: CreateProductInput{Name: "x", Price: decimal.NewFromInt(-1)}},
		{name: "negative stock", in: CreateProductInput{Name: "x", Price: decimal.NewFromInt(1), Stock: -1}},
	}
	for _, tt := range tests {
		if _, err := svc.CreateProduct(context.Background(), tt.in); err != domain.ErrInvalidProduct {
			t.Fatalf("%s: expected ErrInvalidProduct, got %v", tt.name, err)
		}
	}
	if len(repo.products) != 1 {
		t.Fatalf("expected invalid products not stored")
	}
}
