package backup

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/engramhq/engram/internal/storage/sqlite"
	"github.com/engramhq/engram/pkg/types"
)

var quietLogger = log.New(io.Discard, "", 0)

// createSourceDB writes a real database file with one memory in it and
// returns its path.
func createSourceDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engram.db")

	store, err := sqlite.NewStore(path)
	if err != nil {
		t.Fatalf("failed to create source database: %v", err)
	}
	m := &types.Memory{
		ID:        "mem-backup",
		Content:   "survives the backup",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := store.CreateMemory(context.Background(), m); err != nil {
		t.Fatalf("failed to seed source database: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close source database: %v", err)
	}
	return path
}

func TestBackupAndList(t *testing.T) {
	source := createSourceDB(t)
	backupDir := t.TempDir()

	svc := NewService(source, backupDir, 0, quietLogger)

	path, err := svc.Backup()
	if err != nil {
		t.Fatalf("Backup() failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}

	backups, err := svc.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("got %d backups, want 1", len(backups))
	}
	if backups[0].Path != path {
		t.Errorf("List path: got %s, want %s", backups[0].Path, path)
	}
	if backups[0].Size == 0 {
		t.Error("backup file has zero size")
	}
}

func TestListMissingDirectory(t *testing.T) {
	svc := NewService("irrelevant.db", filepath.Join(t.TempDir(), "never-created"), 0, quietLogger)

	backups, err := svc.List()
	if err != nil {
		t.Fatalf("List() on missing directory errored: %v", err)
	}
	if backups != nil {
		t.Errorf("got %v, want nil for a missing directory", backups)
	}
}

func TestRestore(t *testing.T) {
	source := createSourceDB(t)
	backupDir := t.TempDir()

	svc := NewService(source, backupDir, 0, quietLogger)
	backupPath, err := svc.Backup()
	if err != nil {
		t.Fatalf("Backup() failed: %v", err)
	}

	// Mutate the source after the backup so the restore is observable.
	store, err := sqlite.NewStore(source)
	if err != nil {
		t.Fatalf("failed to reopen source: %v", err)
	}
	if _, err := store.DeleteMemory(context.Background(), "mem-backup"); err != nil {
		t.Fatalf("DeleteMemory() failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close source: %v", err)
	}

	if err := svc.Restore(backupPath); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}

	store, err = sqlite.NewStore(source)
	if err != nil {
		t.Fatalf("failed to open restored database: %v", err)
	}
	defer func() { _ = store.Close() }()

	m, err := store.GetMemory(context.Background(), "mem-backup")
	if err != nil {
		t.Fatalf("restored database missing memory: %v", err)
	}
	if m.Content != "survives the backup" {
		t.Errorf("Content: got %q, want the original", m.Content)
	}
}

func TestRetentionPrunesOldest(t *testing.T) {
	source := createSourceDB(t)
	backupDir := t.TempDir()

	// Seed older backups directly so the timestamped filenames don't
	// collide within one second.
	data, err := os.ReadFile(source)
	if err != nil {
		t.Fatalf("failed to read source: %v", err)
	}
	old := filepath.Join(backupDir, "engram-20240101-000000.db")
	older := filepath.Join(backupDir, "engram-20230101-000000.db")
	for i, path := range []string{old, older} {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("failed to seed backup %s: %v", path, err)
		}
		mtime := time.Now().Add(-time.Duration(i+1) * time.Hour)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("failed to set mtime: %v", err)
		}
	}

	svc := NewService(source, backupDir, 2, quietLogger)
	newest, err := svc.Backup()
	if err != nil {
		t.Fatalf("Backup() failed: %v", err)
	}

	backups, err := svc.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("got %d backups after pruning, want 2", len(backups))
	}
	if backups[0].Path != newest {
		t.Errorf("newest backup: got %s, want %s", backups[0].Path, newest)
	}
	if _, err := os.Stat(older); !os.IsNotExist(err) {
		t.Errorf("oldest backup %s should have been pruned", older)
	}
}
