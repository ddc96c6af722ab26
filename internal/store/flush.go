package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// beforeRename, when set, runs after the temp file is complete and before it
// replaces the target. Tests use it to simulate a crash mid-flush.
var beforeRename func(tmpPath string) error

// writeFileAtomic replaces path with data. The data goes to a temp file in
// the same directory which is renamed over path; on any failure the temp
// file is removed and path is untouched.
func writeFileAtomic(path string, data []byte, sync bool) error {
	return replaceFile(path, sync, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// copyFileAtomic replaces dst with the contents of src, with the same
// guarantees as writeFileAtomic.
func copyFileAtomic(src, dst string, sync bool) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}

	return replaceFile(dst, sync, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

func replaceFile(path string, sync bool, fill func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err = fill(tmp); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if sync {
		if err = tmp.Sync(); err != nil {
			return fmt.Errorf("sync %s: %w", tmpPath, err)
		}
	}
	if err = tmp.Chmod(0644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}

	if beforeRename != nil {
		if err = beforeRename(tmpPath); err != nil {
			return err
		}
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpPath, err)
	}

	if sync {
		// Best effort; the rename has already happened.
		_ = syncDir(dir)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
