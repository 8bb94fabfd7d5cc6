package db

import (
	"database/sql"
	"errors"
	"io/fs"
	"os"
)

// DBTotalSize returns the combined on-disk size of the database file and its
// WAL and SHM side files. Missing files contribute zero.
func DBTotalSize(dbPath string) (int64, error) {
	var total int64

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}

	return total, nil
}

// Vacuum rebuilds the database file, reclaiming free pages.
func Vacuum(db *sql.DB) error {
	_, err := db.Exec("VACUUM")
	return err
}
