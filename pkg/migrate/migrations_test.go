package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
)

func readAll(t *testing.T) string {
	t.Helper()
	files, err := fs.Glob(Migrations, Dir+"/*.sql")
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no migrations embedded")
	}
	var b strings.Builder
	for _, f := range files {
		data, err := fs.ReadFile(Migrations, f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		content := string(data)
		if !strings.Contains(content, "-- +goose Up") || !strings.Contains(content, "-- +goose Down") {
			t.Errorf("%s missing goose annotations", f)
		}
		b.WriteString(content)
	}
	return b.String()
}

func TestMigrationsCarryIntegrityConstraints(t *testing.T) {
	content := readAll(t)

	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_principal_identities_email ON principal_identities (email)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_principal_identities_username ON principal_identities (username)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_policy_id ON claims (policy_id)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_insurer_requests_pending ON insurer_requests (insurer_id) WHERE status = 'pending'",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_regulator_requests_pending ON regulator_requests (regulator_id) WHERE status = 'pending'",
		"ux_access_requests_pending ON policy_access_requests (customer_id, policy_id) WHERE status = 'pending'",
		"ux_cancellation_requests_pending ON policy_cancellation_requests (customer_id, policy_id) WHERE status = 'pending'",
		"ux_renewal_requests_pending ON policy_renewal_requests (policy_id) WHERE status = 'pending'",
		"CHECK (status <> 'Approved' OR fraud_check_performed)",
		"CHECK (status IN ('Active', 'Cancelled'))",
		"prefix     varchar(10) PRIMARY KEY",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsParseInOrder(t *testing.T) {
	goose.SetBaseFS(Migrations)
	ms, err := goose.CollectMigrations(Dir, 0, goose.MaxVersion)
	if err != nil {
		t.Fatalf("collect migrations: %v", err)
	}
	if len(ms) != 5 {
		t.Fatalf("expected 5 migrations, got %d", len(ms))
	}
	for i := 1; i < len(ms); i++ {
		if ms[i].Version <= ms[i-1].Version {
			t.Fatalf("migrations out of order at %d", ms[i].Version)
		}
	}
}
