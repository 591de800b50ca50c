package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/teamlumen/lumen-backend/pkg/migrate"
)

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("invalid migrations dir: %v", err)
	}
}

func TestOrganizationsMigrationCarriesBillingColumns(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_organizations.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no organizations migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"plan_id TEXT NOT NULL DEFAULT 'free'",
		"billing_status billing_status NOT NULL DEFAULT 'active'",
		"trial_ended_at TIMESTAMPTZ",
		"cancellation_effective_at TIMESTAMPTZ",
		"billing_version BIGINT NOT NULL DEFAULT 0",
		"idx_organizations_subscription_id",
		"DROP TABLE IF EXISTS organizations",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPagePermissionsMigrationEnforcesUniqueness(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_memberships_and_page_permissions.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no memberships migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	for _, sub := range []string{
		"UNIQUE (organization_id, user_id)",
		"UNIQUE (organization_id, user_id, page)",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected constraint %q", sub)
		}
	}
}
