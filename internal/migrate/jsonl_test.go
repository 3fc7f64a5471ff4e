package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aqademiq/aqsync/internal/db"
)

const sampleJSONL = `{"kind":"schedule_block","user_id":"u-1","title":"Linear Algebra","start_time":"2026-03-02T09:00:00Z","end_time":"2026-03-02T10:00:00Z"}
{"kind":"assignment","user_id":"u-1","title":"Essay draft","due_date":"2026-03-05T12:00:00Z"}
{"kind":"exam","user_id":"u-1","title":"Midterm","exam_date":"2026-03-10T09:00:00Z","duration_minutes":90}
`

func setupMigration(t *testing.T, jsonl string) (*db.DB, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := db.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}

	path := filepath.Join(dir, "dump.jsonl")
	if err := os.WriteFile(path, []byte(jsonl), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return store, path
}

func TestMigrate_AllKinds(t *testing.T) {
	store, path := setupMigration(t, sampleJSONL)
	ctx := context.Background()

	res, err := Migrate(ctx, store, MigrateOptions{FromJSONL: path})
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if res.Blocks != 1 || res.Assignments != 1 || res.Exams != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", res.Blocks, res.Assignments, res.Exams)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none", res.Errors)
	}

	blocks, err := store.ListScheduleBlocks(ctx, "u-1")
	if err != nil {
		t.Fatalf("ListScheduleBlocks() error = %v", err)
	}
	if len(blocks) != 1 || blocks[0].Title != "Linear Algebra" {
		t.Errorf("blocks = %+v, want the imported block", blocks)
	}
	if blocks[0].ID == "" {
		t.Error("imported block missing generated id")
	}
}

func TestMigrate_DryRunWritesNothing(t *testing.T) {
	store, path := setupMigration(t, sampleJSONL)
	ctx := context.Background()

	res, err := Migrate(ctx, store, MigrateOptions{FromJSONL: path, DryRun: true})
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if res.Total() != 3 {
		t.Errorf("Total() = %d, want 3 validated records", res.Total())
	}

	blocks, err := store.ListScheduleBlocks(ctx, "u-1")
	if err != nil {
		t.Fatalf("ListScheduleBlocks() error = %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("dry run wrote %d blocks", len(blocks))
	}
}

func TestMigrate_BadLinesCollectedImportContinues(t *testing.T) {
	jsonl := `{"kind":"schedule_block","user_id":"u-1","title":"No times"}
{"kind":"mystery","user_id":"u-1","title":"Unknown"}
{"kind":"assignment","user_id":"u-1","title":"Kept","due_date":"2026-03-05T12:00:00Z"}
`
	store, path := setupMigration(t, jsonl)

	res, err := Migrate(context.Background(), store, MigrateOptions{FromJSONL: path})
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("Errors = %v, want 2 entries", res.Errors)
	}
	if !strings.Contains(res.Errors[1], "unknown kind") {
		t.Errorf("Errors[1] = %q, want unknown-kind message", res.Errors[1])
	}
	if res.Assignments != 1 {
		t.Errorf("Assignments = %d, want 1 (import continues past bad lines)", res.Assignments)
	}
}

func TestMigrate_MalformedJSONAborts(t *testing.T) {
	store, path := setupMigration(t, "{not json}\n")

	if _, err := Migrate(context.Background(), store, MigrateOptions{FromJSONL: path}); err == nil {
		t.Error("Migrate() error = nil, want parse failure")
	}
}

func TestMigrate_BackupCreated(t *testing.T) {
	store, path := setupMigration(t, sampleJSONL)

	res, err := Migrate(context.Background(), store, MigrateOptions{FromJSONL: path, Backup: true})
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if res.BackupCreated == "" {
		t.Fatal("BackupCreated empty, want a backup path")
	}
	data, err := os.ReadFile(res.BackupCreated)
	if err != nil {
		t.Fatalf("ReadFile(backup) error = %v", err)
	}
	if string(data) != sampleJSONL {
		t.Error("backup content differs from the input")
	}
}

func TestMigrate_MissingInput(t *testing.T) {
	store, _ := setupMigration(t, sampleJSONL)

	if _, err := Migrate(context.Background(), store, MigrateOptions{FromJSONL: "/nope/missing.jsonl"}); err == nil {
		t.Error("Migrate() error = nil, want missing-file error")
	}
}
