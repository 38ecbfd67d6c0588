package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

const migrationsDir = "../../db/migrations"

func TestMigrationsComeInUpDownPairs(t *testing.T) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d{4})_[a-z_]+\.(up|down)\.sql$`)
	seen := map[string]map[string]bool{}
	for _, entry := range entries {
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Fatalf("unexpected file in migrations dir: %s", entry.Name())
		}
		if seen[match[1]] == nil {
			seen[match[1]] = map[string]bool{}
		}
		seen[match[1]][match[2]] = true
	}

	if len(seen) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range seen {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestPendingCandidatesSortedUpOnly(t *testing.T) {
	names, err := pendingCandidates(migrationsDir)
	if err != nil {
		t.Fatalf("pendingCandidates: %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected at least two up migrations, got %v", names)
	}
	for i, name := range names {
		if !strings.HasSuffix(name, ".up.sql") {
			t.Fatalf("non-up migration returned: %s", name)
		}
		if i > 0 && names[i-1] >= name {
			t.Fatalf("migrations out of order: %v", names)
		}
	}
}

func TestMigrationsDeclareMappedConstraints(t *testing.T) {
	var all strings.Builder
	names, err := pendingCandidates(migrationsDir)
	if err != nil {
		t.Fatalf("pendingCandidates: %v", err)
	}
	for _, name := range names {
		contents, err := os.ReadFile(filepath.Join(migrationsDir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		all.Write(contents)
	}
	for constraint := range constraintFields {
		if !strings.Contains(all.String(), constraint) {
			t.Fatalf("constraint %s is mapped but not declared in any migration", constraint)
		}
	}
}
