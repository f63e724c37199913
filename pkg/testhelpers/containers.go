package testhelpers

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/database"
)

// PostgresImage is the image used for integration tests.
const PostgresImage = "postgres:16-alpine"

// TravelDB holds a shared PostgreSQL container with migrations applied.
type TravelDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
	Host      string
	Port      int
}

var (
	sharedTravelDB     *TravelDB
	sharedTravelDBOnce sync.Once
	sharedTravelDBErr  error
)

// GetTravelDB returns a shared PostgreSQL container for integration tests.
// The container is created once, migrated, and reused across all tests in the
// run. Tests that write must clean up after themselves.
func GetTravelDB(t *testing.T) *TravelDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTravelDBOnce.Do(func() {
		sharedTravelDB, sharedTravelDBErr = setupTravelDB()
	})

	if sharedTravelDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTravelDBErr)
	}

	return sharedTravelDB
}

// MigrationsPath returns the absolute path of the repository's migrations.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func setupTravelDB() (*TravelDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "travelgo_test",
			"POSTGRES_USER":     "travelgo",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://travelgo:test_password@%s:%s/travelgo_test?sslmode=disable",
		host, port.Port())

	db, err := database.NewConnection(ctx, &database.Config{
		URL:             connStr,
		MaxConnections:  5,
		ConnectAttempts: 10,
	}, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	if err := database.RunMigrations(db, MigrationsPath(), zap.NewNop()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TravelDB{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
		Host:      host,
		Port:      port.Int(),
	}, nil
}

// SeedFixtures inserts one customer, one trip, one promo and one booking
// (TG-ABC123 for rina@example.com) and removes them when the test ends.
func SeedFixtures(t *testing.T, db *TravelDB) {
	t.Helper()
	ctx := context.Background()

	statements := []string{
		`INSERT INTO users (id, name, email, password) VALUES (9001, 'Rina', 'rina@example.com', 'x')`,
		`INSERT INTO trips (id, name, slug, location, duration, price, status, is_active)
		 VALUES (9001, 'Bali Escape', 'bali-escape-4d3n', 'Bali', '4D3N', 1500000, 'published', 1)`,
		`INSERT INTO promos (id, name, promo_code, discount_type, discount_value, start_date, end_date, is_active)
		 VALUES (9001, 'Welcome Deal', 'WELCOME200', 'fixed', 200000, '2026-01-01', '2026-12-31', 1)`,
		`INSERT INTO bookings (id, booking_code, trip_id, customer_name, customer_email, customer_phone,
		                       trip_type, departure_date, participants, total_amount, status, payment_status)
		 VALUES (9001, 'TG-ABC123', 9001, 'Rina', 'rina@example.com', '0800', 'public', '2026-11-02', 2,
		         3000000, 'confirmed', 'paid')`,
	}
	for _, stmt := range statements {
		if _, err := db.DB.Exec(ctx, stmt); err != nil {
			t.Fatalf("failed to seed fixtures: %v", err)
		}
	}

	t.Cleanup(func() {
		for _, stmt := range []string{
			`DELETE FROM bookings WHERE id = 9001`,
			`DELETE FROM promos WHERE id = 9001`,
			`DELETE FROM trips WHERE id = 9001`,
			`DELETE FROM users WHERE id = 9001`,
		} {
			if _, err := db.DB.Exec(ctx, stmt); err != nil {
				t.Errorf("failed to clean fixtures: %v", err)
			}
		}
	})
}
