package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// BackupFilenamePrefix is the prefix used in every backup file.
const BackupFilenamePrefix = "mirror_backup"

// Backuper makes backups of the mirror SQLite database.
type Backuper struct {
	sourcePath, dir string
	config          *Config

	fileCreator func(string, time.Time) (string, error)
}

// NewBackuper creates a new backuper for the database at sourcePath, writing
// backup files into backupDir.
func NewBackuper(sourcePath string, backupDir string, opts ...Option) (*Backuper, error) {
	config := DefaultConfig()
	for _, o := range opts {
		if err := o(config); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, errors.Errorf("os mkdir all: %s", err)
	}

	return &Backuper{
		sourcePath:  sourcePath,
		dir:         backupDir,
		config:      config,
		fileCreator: createBackupFile,
	}, nil
}

// Backup creates a backup file in disk. Each call is self-contained, so it can
// be retried on error.
func (b *Backuper) Backup(ctx context.Context) (BackupResult, error) {
	timestamp := time.Now().UTC()
	filename, err := b.fileCreator(b.dir, timestamp)
	if err != nil {
		return BackupResult{}, errors.Errorf("creating backup file: %s", err)
	}

	source, err := open(b.sourcePath)
	if err != nil {
		return BackupResult{}, errors.Errorf("opening source db: %s", err)
	}
	defer func() { _ = source.Close() }()

	dest, err := open(filename)
	if err != nil {
		_ = os.Remove(filename)
		return BackupResult{}, errors.Errorf("opening backup db: %s", err)
	}

	result, err := b.doBackup(ctx, source, dest, filename)
	if closeErr := dest.Close(); closeErr != nil && err == nil {
		err = errors.Errorf("closing backup db: %s", closeErr)
	}
	if err != nil {
		_ = os.Remove(filename)
		return BackupResult{}, err
	}

	if b.config.Compression {
		result.Path, result.SizeAfterCompression, result.CompressionElapsedTime, err = b.doCompress(filename)
		if err != nil {
			return BackupResult{}, errors.Errorf("do compress: %s", err)
		}
		if err := os.Remove(filename); err != nil {
			return BackupResult{}, errors.Errorf("os remove: %s", err)
		}
	}

	if b.config.Pruning {
		if err := Prune(b.dir, b.config.KeepFiles); err != nil {
			return BackupResult{}, errors.Errorf("prune: %s", err)
		}
	}

	result.Timestamp = timestamp
	return result, nil
}

func (b *Backuper) doBackup(ctx context.Context, source, dest *sql.DB, filename string) (BackupResult, error) {
	startTime := time.Now()

	connIn, err := source.Conn(ctx)
	if err != nil {
		return BackupResult{}, errors.Errorf("getting db conn: %s", err)
	}
	defer func() { _ = connIn.Close() }()

	connOut, err := dest.Conn(ctx)
	if err != nil {
		return BackupResult{}, errors.Errorf("getting backup db conn: %s", err)
	}
	defer func() { _ = connOut.Close() }()

	if err := connIn.Raw(func(driverInConn interface{}) error {
		return connOut.Raw(func(driverOutConn interface{}) error {
			return copyPages(driverInConn.(*sqlite3.SQLiteConn), driverOutConn.(*sqlite3.SQLiteConn))
		})
	}); err != nil {
		return BackupResult{}, errors.Errorf("backup raw: %s", err)
	}

	result := BackupResult{
		Path:        filename,
		ElapsedTime: time.Since(startTime),
	}

	result.Size, err = fileSize(filename)
	if err != nil {
		return BackupResult{}, errors.Errorf("get file size: %s", err)
	}

	if b.config.Vacuum {
		vacuumStart := time.Now()
		if _, err := connOut.ExecContext(ctx, "VACUUM"); err != nil {
			return BackupResult{}, errors.Errorf("exec vacuum: %s", err)
		}
		result.VacuumElapsedTime = time.Since(vacuumStart)
		result.SizeAfterVacuum, err = fileSize(filename)
		if err != nil {
			return BackupResult{}, errors.Errorf("get file size: %s", err)
		}
	}

	return result, nil
}

// copyPages runs the SQLite online backup API copying all pages in one step.
func copyPages(in, out *sqlite3.SQLiteConn) error {
	bk, err := out.Backup("main", in, "main")
	if err != nil {
		return errors.Errorf("failed to initialize the backup: %s", err)
	}

	isDone, err := bk.Step(-1)
	if err != nil {
		return errors.Errorf("failed to perform the backup step: %s", err)
	}
	if !isDone {
		return errors.New("backup is unexpectedly not done")
	}
	if remaining := bk.Remaining(); remaining != 0 {
		return errors.Errorf("unexpected remaining value: %d", remaining)
	}

	if err := bk.Finish(); err != nil {
		return errors.Errorf("failed to finish backup: %s", err)
	}

	return nil
}

func (b *Backuper) doCompress(filepath string) (string, int64, time.Duration, error) {
	startTime := time.Now()
	newFilepath, err := Compress(filepath)
	if err != nil {
		return "", 0, 0, errors.Errorf("compress: %s", err)
	}

	size, err := fileSize(newFilepath)
	if err != nil {
		return "", 0, 0, errors.Errorf("get file size: %s", err)
	}

	return newFilepath, size, time.Since(startTime), nil
}

func fileSize(filename string) (int64, error) {
	fi, err := os.Stat(filename)
	if err != nil {
		return 0, errors.Errorf("os stat: %s", err)
	}
	return fi.Size(), nil
}

func open(uri string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, errors.Errorf("opening db: %s", err)
	}
	db.SetMaxIdleConns(0)
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, errors.Errorf("pinging db: %s", err)
	}

	return db, nil
}

func createBackupFile(dir string, timestamp time.Time) (string, error) {
	filename := path.Join(dir, fmt.Sprintf("%s_%s.db", BackupFilenamePrefix, timestamp.Format("2006-01-02T15-04-05Z")))
	backupFile, err := os.Create(filename)
	if err != nil {
		return "", errors.Errorf("os create: %s", err)
	}
	if err := backupFile.Close(); err != nil {
		return "", errors.Errorf("closing backup file: %s", err)
	}
	return filename, nil
}

// BackupResult represents the result of a backup process.
type BackupResult struct {
	Timestamp time.Time
	Path      string

	// Stats
	ElapsedTime            time.Duration
	VacuumElapsedTime      time.Duration
	CompressionElapsedTime time.Duration
	Size                   int64
	SizeAfterVacuum        int64
	SizeAfterCompression   int64
}

// Config contains configuration parameters for backuper.
type Config struct {
	Compression bool
	Pruning     bool
	Vacuum      bool
	KeepFiles   int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Compression: false,
		Pruning:     false,
		Vacuum:      false,
		KeepFiles:   5,
	}
}

// Option modifies a configuration attribute.
type Option func(*Config) error

// WithCompression enables compression.
func WithCompression(v bool) Option {
	return func(c *Config) error {
		c.Compression = v
		return nil
	}
}

// WithPruning enables pruning of old backup files.
func WithPruning(v bool, keep int) Option {
	return func(c *Config) error {
		c.Pruning = v
		c.KeepFiles = keep
		return nil
	}
}

// WithVacuum enables the VACUUM operation on the backup copy.
func WithVacuum(v bool) Option {
	return func(c *Config) error {
		c.Vacuum = v
		return nil
	}
}
