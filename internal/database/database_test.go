package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/sentryfleet/sentryfleet/internal/config"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

// testDBSemaphore serializes DuckDB connection creation across parallel
// tests, grounded on the teacher's database_test.go concurrency guard for
// the same embedded-DuckDB-under-CI hazard.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
	}

	type result struct {
		db  *DB
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		db, err := New(cfg)
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("failed to create test database: %v", res.err)
		}
		t.Cleanup(func() { _ = res.db.Close() })
		return res.db
	case <-time.After(30 * time.Second):
		t.Fatal("timeout creating test database")
		return nil
	}
}

func TestNew_CreatesSchema(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	var tableCount int
	row := db.conn.QueryRow(`SELECT count(*) FROM information_schema.tables WHERE table_name = 'tenants'`)
	if err := row.Scan(&tableCount); err != nil {
		t.Fatalf("query information_schema: %v", err)
	}
	if tableCount != 1 {
		t.Errorf("expected tenants table to exist, count=%d", tableCount)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tenant := &models.Tenant{Slug: "acme", Name: "Acme Corp", IsActive: true}
	if err := db.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	probe := errors.New("probe failure")
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, execErr := tx.ExecContext(ctx, `UPDATE tenants SET name = 'renamed' WHERE id = ?`, tenant.ID); execErr != nil {
			return execErr
		}
		return probe
	})
	if !errors.Is(err, probe) {
		t.Fatalf("expected probe error, got %v", err)
	}

	got, err := db.GetTenant(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if got.Name != "Acme Corp" {
		t.Errorf("expected rollback to preserve original name, got %q", got.Name)
	}
}
