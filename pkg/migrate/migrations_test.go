package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/farmlane-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestProductsMigrationGuardsQuantity(t *testing.T) {
	assertContains(t, readMigration(t, "create_products"), []string{
		"CREATE TABLE IF NOT EXISTS products",
		"CHECK (quantity_available >= 0)",
		"DROP TABLE IF EXISTS products",
	})
}

func TestInventoryHistoryMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "create_inventory_history"), []string{
		"CREATE TABLE IF NOT EXISTS inventory_history",
		"FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE",
		"CHECK (new_quantity = previous_quantity + quantity_change)",
		"ux_inventory_history_product_seq ON inventory_history (product_id, sequence)",
		"DROP TABLE IF EXISTS inventory_history",
	})
}

func TestOrdersMigrationEnforcesTotalIdentity(t *testing.T) {
	assertContains(t, readMigration(t, "create_orders"), []string{
		"CHECK (total_cents = subtotal_cents + platform_fee_cents + shipping_fee_cents + tax_cents)",
		"CHECK (line_total_cents = unit_price_cents * quantity)",
		"ux_orders_payment_intent_id",
		"DROP TABLE IF EXISTS order_items",
	})
}

func TestHistoryAndEventMigrationsAreUnique(t *testing.T) {
	assertContains(t, readMigration(t, "create_order_status_history"), []string{
		"ux_order_status_history_order_seq ON order_status_history (order_id, sequence)",
	})
	assertContains(t, readMigration(t, "create_payment_events"), []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_events_event_id ON payment_events (event_id)",
	})
	assertContains(t, readMigration(t, "create_outbox_events"), []string{
		"WHERE published_at IS NULL",
	})
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Farmer Payouts!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_farmer_payouts.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"20260101000000_first.sql":   "-- +goose Up\n-- +goose Down\n",
		"20260101000000_second.sql":  "-- +goose Up\n-- +goose Down\n",
		"20260101000100_no_down.sql": "-- +goose Up\n",
		"badname.sql":                "",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	err := migrate.ValidateDir(dir)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"already used", "missing \"-- +goose Down\"", "badname.sql"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestCreateSQLMigrationRejectsEmptyName(t *testing.T) {
	if _, err := migrate.CreateSQLMigration(t.TempDir(), " !! "); err == nil {
		t.Fatal("expected error for a name without usable characters")
	}
}
