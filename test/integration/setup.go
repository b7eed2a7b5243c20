package integration

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container and connection pool.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := database.NewPool(ctx, databaseConfig(t, connStr), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	createSchema(t, pool)

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

// databaseConfig translates a container connection string into the pool
// configuration the application loads from the environment.
func databaseConfig(t *testing.T, connStr string) config.DatabaseConfig {
	t.Helper()

	u, err := url.Parse(connStr)
	if err != nil {
		t.Fatalf("failed to parse connection string: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("failed to parse database port: %v", err)
	}
	password, _ := u.User.Password()

	return config.DatabaseConfig{
		Host:            u.Hostname(),
		Port:            port,
		User:            u.User.Username(),
		Password:        password,
		Database:        strings.TrimPrefix(u.Path, "/"),
		MaxConnections:  10,
		MinConnections:  1,
		MaxConnLifetime: 300,
	}
}

// createSchema creates the database schema for testing.
func createSchema(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	schema := `
		CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(50) PRIMARY KEY,
			sku VARCHAR(100) NOT NULL,
			name VARCHAR(255) NOT NULL,
			price DECIMAL(10, 2) NOT NULL,
			currency CHAR(3) NOT NULL,
			stock_quantity INTEGER NOT NULL CHECK (stock_quantity >= 0),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			image_url TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			order_number VARCHAR(50) NOT NULL UNIQUE,
			user_id VARCHAR(100),
			guest_email VARCHAR(255),
			status VARCHAR(20) NOT NULL,
			payment_status VARCHAR(20) NOT NULL,
			payment_method VARCHAR(30) NOT NULL,
			payment_intent_id VARCHAR(100),
			transaction_id VARCHAR(100),
			currency CHAR(3) NOT NULL,
			shipping_cost DECIMAL(10, 2) NOT NULL,
			tax DECIMAL(10, 2) NOT NULL,
			shipping_address JSONB NOT NULL,
			billing_address JSONB NOT NULL,
			customer_notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS order_items (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id VARCHAR(50) NOT NULL REFERENCES products(id),
			product_snapshot JSONB NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			unit_price DECIMAL(10, 2) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS inventory_logs (
			id UUID PRIMARY KEY,
			product_id VARCHAR(50) NOT NULL REFERENCES products(id),
			quantity_change INTEGER NOT NULL,
			quantity_after INTEGER NOT NULL,
			reason VARCHAR(30) NOT NULL,
			reference_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS refund_events (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id),
			event_id VARCHAR(100) NOT NULL UNIQUE,
			charge_id VARCHAR(100),
			amount_refunded DECIMAL(10, 2) NOT NULL,
			currency CHAR(3) NOT NULL,
			full_refund BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_orders_payment_intent_id ON orders(payment_intent_id);
		CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);
		CREATE INDEX IF NOT EXISTS idx_inventory_logs_product_id ON inventory_logs(product_id);
	`

	_, err := pool.Exec(ctx, schema)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
}

// SeedProducts inserts test product data into the database.
func SeedProducts(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	products := []struct {
		id    string
		sku   string
		name  string
		price string
		stock int
	}{
		{"P001", "SKU-P001", "Espresso Beans 500g", "12.50", 10},
		{"P002", "SKU-P002", "Pour-Over Kettle", "39.90", 5},
		{"P003", "SKU-P003", "Ceramic Mug", "8.00", 25},
		{"P004", "SKU-P004", "Hand Grinder", "54.00", 1},
	}

	for _, p := range products {
		_, err := pool.Exec(ctx,
			`INSERT INTO products (id, sku, name, price, currency, stock_quantity, is_active)
			 VALUES ($1, $2, $3, $4, 'EUR', $5, TRUE)`,
			p.id, p.sku, p.name, p.price, p.stock,
		)
		if err != nil {
			t.Fatalf("failed to seed product %s: %v", p.id, err)
		}
	}
}

// DeactivateProduct flips a seeded product to inactive.
func DeactivateProduct(t *testing.T, pool *pgxpool.Pool, id string) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `UPDATE products SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		t.Fatalf("failed to deactivate product %s: %v", id, err)
	}
}

// StockQuantity reads the current stock level for a product.
func StockQuantity(t *testing.T, pool *pgxpool.Pool, id string) int {
	t.Helper()

	var stock int
	err := pool.QueryRow(context.Background(), `SELECT stock_quantity FROM products WHERE id = $1`, id).Scan(&stock)
	if err != nil {
		t.Fatalf("failed to read stock for product %s: %v", id, err)
	}
	return stock
}

// CleanupDB cleans all data from test tables.
func CleanupDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	tables := []string{"refund_events", "inventory_logs", "order_items", "orders", "products"}
	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}
}

// TestAddress returns a complete address for order fixtures.
func TestAddress() model.Address {
	return model.NewAddress(model.Address{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Street:     "12 Analytical Way",
		City:       "London",
		PostalCode: "N1 9GU",
		Country:    "GB",
	})
}
