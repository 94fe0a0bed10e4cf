//go:build integration

package integration

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/solekart/checkout/internal/domain/checkout"
	"github.com/solekart/checkout/internal/repository"
)

var (
	pool    *pgxpool.Pool
	service *checkout.Service
	dsn     string
)

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "sole",
			"POSTGRES_PASSWORD": "sole",
			"POSTGRES_DB":       "sole",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("start postgres container: %v", err)
	}
	defer func() {
		if err := postgres.Terminate(context.Background()); err != nil {
			log.Printf("terminate container: %v", err)
		}
	}()

	host, err := postgres.Host(ctx)
	if err != nil {
		log.Fatalf("container host: %v", err)
	}
	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("container port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://sole:sole@%s:%s/sole?sslmode=disable", host, port.Port())

	pool, err = repository.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	service = checkout.NewService(repository.NewStore(pool))

	return m.Run()
}

// resetDB truncates all mutable tables so each test starts from a clean slate.
func resetDB(t *testing.T) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		TRUNCATE coupon_redemptions, order_items, orders, coupon_grants, coupons,
			product_variants, products, categories, shipping_providers
			RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("reset database: %v", err)
	}
}

// Seeding helpers. All return the generated ID where one exists.

func seedVariant(t *testing.T, price int64, stock int) int64 {
	t.Helper()
	ctx := context.Background()

	var categoryID int64
	err := pool.QueryRow(ctx, `
		INSERT INTO categories (name) VALUES ('sneakers')
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`).Scan(&categoryID)
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}

	var productID int64
	err = pool.QueryRow(ctx, `
		INSERT INTO products (category_id, name, brand)
		VALUES ($1, 'Street Runner', 'Solekart')
		RETURNING id`, categoryID).Scan(&productID)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}

	var variantID int64
	err = pool.QueryRow(ctx, `
		INSERT INTO product_variants (product_id, sku, size, color, price, stock_quantity)
		VALUES ($1, 'SKU-' || $1::text || '-' || clock_timestamp()::text, '42', 'black', $2, $3)
		RETURNING id`, productID, price, stock).Scan(&variantID)
	if err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variantID
}

func seedProvider(t *testing.T, fee int64) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO shipping_providers (name, fee)
		VALUES ('standard-' || clock_timestamp()::text, $1)
		RETURNING id`, fee).Scan(&id)
	if err != nil {
		t.Fatalf("seed provider: %v", err)
	}
	return id
}

type couponSeed struct {
	code        string
	percent     int64
	minPurchase int64
	maxUses     int
	usesPerUser int
	isPublic    bool
}

func seedCoupon(t *testing.T, s couponSeed) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO coupons
			(code, discount_type, discount_value, min_purchase, expires_at,
			 max_uses, uses_per_user, is_public, applicable_type)
		VALUES ($1, 'percent', $2, $3, NOW() + INTERVAL '1 day', $4, $5, $6, 'all')
		RETURNING id`,
		s.code, s.percent, s.minPurchase, s.maxUses, s.usesPerUser, s.isPublic).Scan(&id)
	if err != nil {
		t.Fatalf("seed coupon: %v", err)
	}
	return id
}

func stockOf(t *testing.T, variantID int64) int {
	t.Helper()

	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT stock_quantity FROM product_variants WHERE id = $1`, variantID).Scan(&n)
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return n
}

func usedCountOf(t *testing.T, couponID int64) int {
	t.Helper()

	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT used_count FROM coupons WHERE id = $1`, couponID).Scan(&n)
	if err != nil {
		t.Fatalf("read used_count: %v", err)
	}
	return n
}

func orderCount(t *testing.T) int {
	t.Helper()

	var n int
	if err := pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	return n
}

func placeRequest(userID, variantID, providerID int64, qty int, couponCode string) checkout.PlaceOrderRequest {
	return checkout.PlaceOrderRequest{
		Identity: checkout.Identity{UserID: userID},
		ShippingAddress: checkout.Address{
			FullName:   "Test Buyer",
			Phone:      "0800000000",
			Line1:      "1 Test St",
			City:       "Testville",
			Province:   "TS",
			PostalCode: "00000",
		},
		Items:              []checkout.ItemRequest{{VariantID: variantID, Quantity: qty}},
		ShippingProviderID: providerID,
		CouponCode:         couponCode,
		PaymentMethod:      checkout.PaymentMethodCOD,
	}
}

func money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
