// Command seed loads a product list with opening stock into the database.
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Agbobli5373/grocery-shop/internal/app"
	"github.com/Agbobli5373/grocery-shop/internal/clock"
	"github.com/Agbobli5373/grocery-shop/internal/config"
	"github.com/Agbobli5373/grocery-shop/internal/storage/postgres"
	"github.com/Agbobli5373/grocery-shop/migrations"
	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:embed products.json
var defaultProducts []byte

type productSeed struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

func main() {
	file := flag.String("file", "", "JSON product list (defaults to the bundled demo catalog)")
	nodeID := flag.Int64("node", 900, "snowflake node id for product ids")
	flag.Parse()

	log, _ := zap.NewDevelopment()
	defer func() { _ = log.Sync() }()

	if err := run(log, *file, *nodeID); err != nil {
		log.Error("seed failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(log *zap.Logger, file string, nodeID int64) error {
	data := defaultProducts
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		data = raw
	}
	seeds, err := parseSeeds(data)
	if err != nil {
		return err
	}

	cfg := config.Load(log)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer pool.Close()
	if err := migrations.Apply(ctx, pool); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("snowflake node: %w", err)
	}
	svc := app.NewCatalogService(postgres.NewCatalogRepository(pool), app.NewSnowflakeIDs(node), clock.NewSystem())

	for _, s := range seeds {
		p, err := svc.CreateProduct(ctx, app.CreateProductInput{Name: s.Name, Price: s.Price, Stock: s.Stock})
		if err != nil {
			return fmt.Errorf("create %q: %w", s.Name, err)
		}
		log.Info("product created", zap.Int64("id", p.ID), zap.String("name", p.Name), zap.Int("stock", p.Stock))
	}

	products, err := svc.ListProducts(ctx)
	if err != nil {
		return err
	}
	log.Info("catalog seeded", zap.Int("added", len(seeds)), zap.Int("total", len(products)))
	return nil
}

func parseSeeds(data []byte) ([]productSeed, error) {
	var seeds []productSeed
	if err := json.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no products to seed")
	}
	return seeds, nil
}
