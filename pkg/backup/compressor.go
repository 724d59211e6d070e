package backup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const extension = "zst"

// Compress compresses a file using zstd.
func Compress(filepath string) (string, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return "", fmt.Errorf("open file: %s", err)
	}
	defer func() { _ = file.Close() }()

	pr, pw := io.Pipe()
	zw, err := zstd.NewWriter(pw)
	if err != nil {
		return "", fmt.Errorf("new writer: %s", err)
	}

	errs := errgroup.Group{}
	errs.Go(func() error {
		if _, err := io.Copy(zw, file); err != nil {
			return errors.Errorf("copy to writer: %s", err)
		}

		if err := zw.Close(); err != nil {
			return errors.Errorf("closing writer: %s", err)
		}

		if err := pw.Close(); err != nil {
			return errors.Errorf("closing pipe writer: %s", err)
		}

		return nil
	})

	newFilepath := fmt.Sprintf("%s.%s", filepath, extension)
	df, err := os.OpenFile(newFilepath, os.O_CREATE|os.O_WRONLY, 0o755)
	if err != nil {
		return "", errors.Errorf("open new file: %s", err)
	}
	defer func() { _ = df.Close() }()

	rr := bufio.NewReader(pr)
	if _, err := io.Copy(df, rr); err != nil {
		return "", errors.Errorf("copy dest file: %s", err)
	}

	if err := errs.Wait(); err != nil {
		return "", errors.Errorf("errgroup wait: %s", err)
	}
	return newFilepath, nil
}

// Decompress decompresses a zstd file, writing the output next to it without
// the .zst extension.
func Decompress(filepath string) (string, error) {
	if !strings.HasSuffix(filepath, "."+extension) {
		return "", errors.Errorf("unexpected file extension: %s", filepath)
	}

	file, err := os.Open(filepath)
	if err != nil {
		return "", errors.Errorf("open file: %s", err)
	}
	defer func() { _ = file.Close() }()

	zr, err := zstd.NewReader(file)
	if err != nil {
		return "", errors.Errorf("new reader: %s", err)
	}
	defer zr.Close()

	newFilepath := strings.TrimSuffix(filepath, "."+extension)
	df, err := os.OpenFile(newFilepath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", errors.Errorf("open new file: %s", err)
	}
	defer func() { _ = df.Close() }()

	if _, err := io.Copy(df, zr); err != nil { // nolint
		return "", errors.Errorf("copy dest file: %s", err)
	}

	return newFilepath, nil
}
