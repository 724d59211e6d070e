package backup

import (
	"fmt"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPrune(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		filename := path.Join(dir, fmt.Sprintf("%s_%04d.db", BackupFilenamePrefix, i))
		require.NoError(t, os.WriteFile(filename, []byte{}, 0o644))
		ts := time.Now().Add(time.Duration(i-5) * time.Minute)
		require.NoError(t, os.Chtimes(filename, ts, ts))
	}
	// files without the backup prefix are never pruned
	require.NoError(t, os.WriteFile(path.Join(dir, "unrelated.db"), []byte{}, 0o644))

	require.NoError(t, Prune(dir, 2))

	// only the two most recent backups survive
	files, err := listBackups(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		fmt.Sprintf("%s_0004.db", BackupFilenamePrefix),
		fmt.Sprintf("%s_0003.db", BackupFilenamePrefix),
	}, files)

	_, err = os.Stat(path.Join(dir, "unrelated.db"))
	require.NoError(t, err)
}

func TestPruneKeepLessThanOne(t *testing.T) {
	t.Parallel()

	require.Error(t, Prune(t.TempDir(), 0))
}
