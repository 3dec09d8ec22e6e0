// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"strings"
	"testing"

	embeddedmigrations "github.com/Sohailahussien/AI-Chat-APP-sub000/migrations"
)

func TestEmbeddedMigrationsCreateRequiredSchema(t *testing.T) {
	files, err := embeddedmigrations.Ordered()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for i := 1; i < len(files); i++ {
		if files[i-1].Name >= files[i].Name {
			t.Fatalf("expected sorted migrations, got %s before %s", files[i-1].Name, files[i].Name)
		}
	}

	var all strings.Builder
	for _, f := range files {
		all.WriteString(f.SQL)
	}
	schema := all.String()

	for _, table := range requiredTables {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Fatalf("no migration creates table %s", table)
		}
	}
	for _, col := range requiredColumns {
		_, column, ok := strings.Cut(col, ".")
		if !ok {
			t.Fatalf("required column %q is not table.column", col)
		}
		if !strings.Contains(schema, column+" ") {
			t.Fatalf("no migration declares column %s", col)
		}
	}
}

func TestEnsureSchemaRejectsNilPool(t *testing.T) {
	if err := EnsureSchema(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
	if err := SchemaReady(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestMissing(t *testing.T) {
	got := missing([]string{"chains", "audit_entries", "extra"}, []string{"audit_entries"})
	if strings.Join(got, ",") != "chains,extra" {
		t.Fatalf("expected chains,extra got %v", got)
	}
	if got := missing(requiredTables, requiredTables); len(got) != 0 {
		t.Fatalf("expected nothing missing, got %v", got)
	}
}
