package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Migration filenames follow goose's timestamped form:
// 20250901120000_create_organizations.sql.
const versionFormat = "20060102150405"

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// CreateSQLMigration writes an empty up/down goose migration into dir and
// returns its path. Fails when a file for the same second already exists.
func CreateSQLMigration(dir, name string) (string, error) {
	slug := slugify(name)
	if dir == "" || slug == "" {
		return "", fmt.Errorf("migration dir and name are required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}

	filename := time.Now().UTC().Format(versionFormat) + "_" + slug + ".sql"
	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("migration %s already exists", path)
	}

	stub := strings.Join([]string{
		"-- +goose Up",
		"-- +goose StatementBegin",
		"-- " + slug,
		"-- +goose StatementEnd",
		"",
		"-- +goose Down",
		"-- +goose StatementBegin",
		"-- rollback " + slug,
		"-- +goose StatementEnd",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(stub), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func slugify(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}
