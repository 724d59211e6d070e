package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Prune removes old backup files from dir, keeping only the keep most
// recent ones. Files not produced by the backuper are left alone.
func Prune(dir string, keep int) error {
	if keep < 1 {
		return errors.New("keep must be at least one")
	}

	backups, err := listBackups(dir)
	if err != nil {
		return fmt.Errorf("listing backup files: %s", err)
	}
	if len(backups) <= keep {
		return nil
	}

	for _, stale := range backups[keep:] {
		if err := os.Remove(filepath.Join(dir, stale)); err != nil {
			return errors.Errorf("removing stale backup: %s", err)
		}
	}

	return nil
}

// listBackups returns the backup filenames in dir sorted newest first.
func listBackups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %s", err)
	}

	type backupFile struct {
		name    string
		modTime time.Time
	}
	var backups []backupFile
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, BackupFilenamePrefix) {
			continue
		}
		if !strings.HasSuffix(name, ".db") && !strings.HasSuffix(name, ".db."+extension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("file info: %s", err)
		}
		backups = append(backups, backupFile{name: name, modTime: info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].modTime.After(backups[j].modTime) })

	names := make([]string, len(backups))
	for i, b := range backups {
		names[i] = b.name
	}
	return names, nil
}
