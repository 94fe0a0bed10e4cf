// Command seed-db loads a small shoe catalog, shipping providers, and sample
// coupons for local development.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solekart/checkout/internal/repository"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, pool); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedShipping(ctx, pool); err != nil {
		return errors.Wrap(err, "seed shipping providers")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

type seedVariant struct {
	sku   string
	size  string
	color string
	price int64
	stock int
}

type seedProduct struct {
	name     string
	brand    string
	category string
	variants []seedVariant
}

var products = []seedProduct{
	{
		name: "Street Runner", brand: "Kite", category: "sneakers",
		variants: []seedVariant{
			{sku: "KT-SR-40-BLK", size: "40", color: "black", price: 1_200_000, stock: 25},
			{sku: "KT-SR-42-BLK", size: "42", color: "black", price: 1_200_000, stock: 30},
			{sku: "KT-SR-42-WHT", size: "42", color: "white", price: 1_250_000, stock: 12},
		},
	},
	{
		name: "Trail Grip", brand: "Summit", category: "hiking",
		variants: []seedVariant{
			{sku: "SM-TG-41-GRN", size: "41", color: "green", price: 1_800_000, stock: 8},
			{sku: "SM-TG-43-GRN", size: "43", color: "green", price: 1_800_000, stock: 10},
		},
	},
	{
		name: "Court Classic", brand: "Kite", category: "sneakers",
		variants: []seedVariant{
			{sku: "KT-CC-39-WHT", size: "39", color: "white", price: 950_000, stock: 40},
			{sku: "KT-CC-44-NVY", size: "44", color: "navy", price: 990_000, stock: 18},
		},
	},
	{
		name: "Office Oxford", brand: "Harwood", category: "formal",
		variants: []seedVariant{
			{sku: "HW-OO-42-BRN", size: "42", color: "brown", price: 2_400_000, stock: 6},
		},
	},
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	for _, p := range products {
		var categoryID int64
		err := pool.QueryRow(ctx,
			`INSERT INTO categories (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			p.category,
		).Scan(&categoryID)
		if err != nil {
			return errors.Wrapf(err, "upsert category %q", p.category)
		}

		var productID int64
		err = pool.QueryRow(ctx,
			`INSERT INTO products (category_id, name, brand) VALUES ($1, $2, $3) RETURNING id`,
			categoryID, p.name, p.brand,
		).Scan(&productID)
		if err != nil {
			return errors.Wrapf(err, "insert product %q", p.name)
		}

		for _, v := range p.variants {
			_, err := pool.Exec(ctx,
				`INSERT INTO product_variants (product_id, sku, size, color, price, stock_quantity)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (sku) DO NOTHING`,
				productID, v.sku, v.size, v.color, v.price, v.stock,
			)
			if err != nil {
				return errors.Wrapf(err, "insert variant %q", v.sku)
			}
		}
		slog.Info("seeded product", slog.String("name", p.name), slog.Int("variants", len(p.variants)))
	}
	return nil
}

func seedShipping(ctx context.Context, pool *pgxpool.Pool) error {
	providers := []struct {
		name string
		fee  int64
	}{
		{name: "standard", fee: 30_000},
		{name: "express", fee: 60_000},
	}
	for _, p := range providers {
		_, err := pool.Exec(ctx,
			`INSERT INTO shipping_providers (name, fee) VALUES ($1, $2)
			 ON CONFLICT (name) DO NOTHING`,
			p.name, p.fee,
		)
		if err != nil {
			return errors.Wrapf(err, "insert provider %q", p.name)
		}
	}
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	expires := time.Now().AddDate(1, 0, 0)
	coupons := []struct {
		code         string
		discountType string
		value        int64
		minPurchase  int64
		maxUses      int
		usesPerUser  int
		isPublic     bool
	}{
		{code: "WELCOME10", discountType: "percent", value: 10, usesPerUser: 1, isPublic: true},
		{code: "SNEAKER20", discountType: "percent", value: 20, minPurchase: 500_000, usesPerUser: 1, isPublic: true},
		{code: "FLAT50K", discountType: "fixed", value: 50_000, minPurchase: 300_000, maxUses: 100, usesPerUser: 2, isPublic: true},
		{code: "VIPONLY", discountType: "percent", value: 30, usesPerUser: 1, isPublic: false},
	}
	for _, c := range coupons {
		_, err := pool.Exec(ctx,
			`INSERT INTO coupons
				(code, discount_type, discount_value, min_purchase, expires_at, max_uses, uses_per_user, is_public)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (code) DO NOTHING`,
			c.code, c.discountType, c.value, c.minPurchase, expires, c.maxUses, c.usesPerUser, c.isPublic,
		)
		if err != nil {
			return errors.Wrapf(err, "insert coupon %q", c.code)
		}
	}
	return nil
}
