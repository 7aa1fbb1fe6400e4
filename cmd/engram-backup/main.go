// cmd/engram-backup creates a point-in-time backup of the Engram SQLite
// database and prunes old backups per the retention setting.  It can also
// restore from a backup file and list what exists.
//
// Usage:
//
//	engram-backup                # create a backup, prune old ones
//	engram-backup -list          # list existing backups
//	engram-backup -restore FILE  # restore the database from FILE
//
// The database and backup locations come from the same ENGRAM_ environment
// variables (or config file) as the server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/engramhq/engram/internal/backup"
	"github.com/engramhq/engram/internal/config"
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("engram-backup: ")
	log.SetFlags(log.LstdFlags)

	listFlag := flag.Bool("list", false, "list existing backups and exit")
	restoreFlag := flag.String("restore", "", "restore the database from the given backup file")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if cfg.Storage.StorageEngine != "sqlite" {
		log.Fatalf("backup supports the sqlite storage engine only (configured: %s)", cfg.Storage.StorageEngine)
	}

	dbPath := filepath.Join(cfg.Storage.DataPath, "engram.db")
	svc := backup.NewService(dbPath, cfg.Backup.BackupPath, cfg.Backup.BackupRetention, log.Default())

	switch {
	case *listFlag:
		backups, err := svc.List()
		if err != nil {
			log.Fatalf("failed to list backups: %v", err)
		}
		if len(backups) == 0 {
			fmt.Println("no backups found")
			return
		}
		for _, b := range backups {
			fmt.Printf("%s\t%d bytes\t%s\n", b.Path, b.Size, b.Timestamp.Format("2006-01-02 15:04:05"))
		}

	case *restoreFlag != "":
		if err := svc.Restore(*restoreFlag); err != nil {
			log.Fatalf("restore failed: %v", err)
		}
		log.Printf("restored %s from %s", dbPath, *restoreFlag)

	default:
		path, err := svc.Backup()
		if err != nil {
			log.Fatalf("backup failed: %v", err)
		}
		log.Printf("backup written to %s", path)
	}
}
