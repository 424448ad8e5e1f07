//go:build integration

package repository

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/go-ecommerce-core/internal/testenv"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	dsn, stop, err := testenv.Postgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer stop()

	testPool, err = Connect(ctx, dsn, 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to test database: %v\n", err)
		return 1
	}
	defer testPool.Close()

	if err := Migrate(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate test database: %v\n", err)
		return 1
	}
	return m.Run()
}

func cleanupTables(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `TRUNCATE `+testenv.Tables)
	if err != nil {
		t.Fatalf("failed to cleanup tables: %v", err)
	}
}
