package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// moveProcessed moves path to <folder>/<processedDir>/<path relative to
// folder>, creating parent directories and adding a numeric suffix when the
// name is taken.
func moveProcessed(folder, path, processedDir string) (string, error) {
	rel, err := filepath.Rel(folder, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	dest := filepath.Join(folder, processedDir, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", eris.Wrap(err, "batch: create processed directory")
	}
	dest = freeName(dest)

	if err := os.Rename(path, dest); err != nil {
		// Rename fails across devices; fall back to copy and remove.
		if cerr := copyFile(path, dest); cerr != nil {
			return "", eris.Wrapf(err, "batch: move %s", path)
		}
		if rerr := os.Remove(path); rerr != nil {
			return "", eris.Wrapf(rerr, "batch: remove %s after copy", path)
		}
	}
	return dest, nil
}

// freeName returns dest, or dest with -1, -2, ... before the extension.
func freeName(dest string) string {
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return dest
	}
	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()    //nolint:errcheck
		os.Remove(dst) //nolint:errcheck
		return err
	}
	return out.Close()
}
