// Package backup creates and prunes point-in-time backups of the SQLite
// database. Backups use VACUUM INTO, which produces a consistent snapshot
// even while the source database is in WAL mode with active readers.
package backup

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Info describes one backup file on disk.
type Info struct {
	Path      string    // Full path to the backup file
	Timestamp time.Time // File modification time
	Size      int64     // File size in bytes
}

// Service creates, verifies, restores, and prunes backups of a single SQLite
// database file.
type Service struct {
	sourcePath string
	backupDir  string
	retention  int // number of backups to keep; 0 disables pruning
	logger     *log.Logger
}

// NewService constructs a backup service for the database at sourcePath,
// writing timestamped backups under backupDir and keeping at most retention
// of them.
func NewService(sourcePath, backupDir string, retention int, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		sourcePath: sourcePath,
		backupDir:  backupDir,
		retention:  retention,
		logger:     logger,
	}
}

// Backup creates a new timestamped backup, verifies it, and applies the
// retention policy. Returns the path of the new backup file.
func (s *Service) Backup() (string, error) {
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("engram-%s.db", time.Now().UTC().Format("20060102-150405"))
	destPath := filepath.Join(s.backupDir, name)

	if err := backupSQLite(s.sourcePath, destPath); err != nil {
		return "", err
	}

	if err := verifyBackup(destPath); err != nil {
		// A backup that fails verification is worse than no backup.
		_ = os.Remove(destPath)
		return "", err
	}

	if err := s.applyRetention(); err != nil {
		s.logger.Printf("backup retention pruning failed: %v", err)
	}

	return destPath, nil
}

// Restore replaces the source database with the given backup file.
// The source database must not be in use.
func (s *Service) Restore(backupPath string) error {
	return restoreSQLite(backupPath, s.sourcePath)
}

// List returns all backups in the backup directory, newest first.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue // Skip files we can't stat
		}

		backups = append(backups, Info{
			Path:      filepath.Join(s.backupDir, entry.Name()),
			Timestamp: info.ModTime(),
			Size:      info.Size(),
		})
	}

	// Sort by timestamp, newest first
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// applyRetention deletes the oldest backups beyond the retention count.
func (s *Service) applyRetention() error {
	if s.retention <= 0 {
		return nil
	}

	backups, err := s.List()
	if err != nil {
		return err
	}
	if len(backups) <= s.retention {
		return nil
	}

	var lastErr error
	for _, b := range backups[s.retention:] {
		if err := os.Remove(b.Path); err != nil {
			lastErr = err
			// Continue deleting other backups even if one fails
		} else {
			s.logger.Printf("pruned old backup %s", b.Path)
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to delete some backups: %w", lastErr)
	}
	return nil
}

// backupSQLite creates a consistent backup of a SQLite database.
// VACUUM INTO handles WAL mode correctly and produces a compacted
// point-in-time copy.
func backupSQLite(sourcePath, destPath string) error {
	sourceDB, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", sourcePath))
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer func() { _ = sourceDB.Close() }()

	if err := sourceDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping source database: %w", err)
	}

	if _, err := sourceDB.Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("failed to backup database: %w", err)
	}

	return nil
}

// verifyBackup opens the backup and runs SQLite's integrity_check pragma.
func verifyBackup(backupPath string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", backupPath))
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// restoreSQLite restores a database from a backup by copying the verified
// backup file over the target location. The target database should not be
// in use when calling this function.
func restoreSQLite(backupPath, targetPath string) error {
	if err := verifyBackup(backupPath); err != nil {
		return fmt.Errorf("backup verification failed: %w", err)
	}

	src, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("failed to create target file: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy backup: %w", err)
	}

	if err := dst.Sync(); err != nil {
		return fmt.Errorf("failed to sync target file: %w", err)
	}

	if err := verifyBackup(targetPath); err != nil {
		return fmt.Errorf("restored database verification failed: %w", err)
	}

	return nil
}
