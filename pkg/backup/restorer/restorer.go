package restorer

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"

	"github.com/fairraffle/go-rafflebridge/pkg/backup"
)

// BackupRestorer restores the mirror database from a backup file.
type BackupRestorer struct {
	url, dbPath string
}

// NewBackupRestorer creates a new BackupRestorer that downloads the backup
// from url and installs it at dbPath.
func NewBackupRestorer(url string, dbPath string) *BackupRestorer {
	return &BackupRestorer{
		url:    url,
		dbPath: dbPath,
	}
}

// Restore restores the database from a backup file URL.
func (br *BackupRestorer) Restore() error {
	dir := path.Dir(br.dbPath)
	compressedPath := path.Join(dir, "backup.db.zst")

	if err := br.downloadBackupFile(br.url, compressedPath); err != nil {
		return fmt.Errorf("download backup file: %s", err)
	}

	decompressedPath, err := backup.Decompress(compressedPath)
	if err != nil {
		return fmt.Errorf("decompress: %s", err)
	}

	if err := br.load(decompressedPath); err != nil {
		return fmt.Errorf("loading the database: %s", err)
	}

	if err := br.cleanUp(compressedPath, decompressedPath); err != nil {
		return fmt.Errorf("cleaning up: %s", err)
	}

	return nil
}

func (br *BackupRestorer) downloadBackupFile(url, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating backup file: %s", err)
	}
	defer func() {
		_ = out.Close()
	}()

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("downloading: %s", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("io copy: %s", err)
	}

	return nil
}

func (br *BackupRestorer) load(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening file: %s", err)
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(br.dbPath)
	if err != nil {
		return fmt.Errorf("creating file: %s", err)
	}
	defer func() {
		_ = out.Close()
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying file: %s", err)
	}
	return nil
}

func (br *BackupRestorer) cleanUp(compressedPath, decompressedPath string) error {
	db, err := sql.Open("sqlite3", br.dbPath)
	if err != nil {
		return fmt.Errorf("opening restored db: %s", err)
	}
	defer func() {
		_ = db.Close()
	}()

	// Pending txs belong to the backed-up signer state, not ours.
	if _, err := db.Exec("DELETE FROM pending_txs;"); err != nil {
		return fmt.Errorf("deleting rows from pending_txs: %s", err)
	}

	if err := os.Remove(compressedPath); err != nil {
		return fmt.Errorf("removing file: %s", err)
	}

	if err := os.Remove(decompressedPath); err != nil {
		return fmt.Errorf("removing file: %s", err)
	}

	return nil
}
