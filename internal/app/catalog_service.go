package app

import (
	"context"
	"strings"

	"github.com/Agbobli5373/grocery-shop/internal/clock"
	"github.com/Agbobli5373/grocery-shop/internal/domain"
	"github.com/shopspring/decimal"
)

type CatalogRepository interface {
	CreateProduct(ctx context.Context, p domain.Product) error
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

// CatalogService seeds products with their opening stock. Stock changes
// after creation go through the ledger.
type CatalogService struct {
	repo  CatalogRepository
	ids   IDGenerator
	clock clock.Clock
}

func NewCatalogService(repo CatalogRepository, ids IDGenerator, clk clock.Clock) *CatalogService {
	return &CatalogService{
		repo:  repo,
		ids:   ids,
		clock: clk,
	}
}

type CreateProductInput struct {
	Name  string
	Price decimal.Decimal
	Stock int
}

func (s *CatalogService) CreateProduct(ctx context.Context, in CreateProductInput) (domain.Product, error) {
	product := domain.Product{
		ID:        s.ids.NextID(),
		Name:      strings.TrimSpace(in.Name),
		Price:     in.Price.Round(2),
		Stock:     in.Stock,
		CreatedAt: s.clock.Now(),
	}
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}
