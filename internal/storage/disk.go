package storage

import (
	"os"
	"path/filepath"
)

// sidecars are files SQLite keeps next to a database in WAL mode.
var sidecars = []string{"-wal", "-shm"}

// DiskUsageBytes returns the total size in bytes of the given cache paths,
// including SQLite WAL sidecars and directories (recursively summed).
// Missing paths are skipped (contribute 0); errors during walk are returned.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		candidates := []string{p}
		for _, suffix := range sidecars {
			candidates = append(candidates, p+suffix)
		}
		for _, c := range candidates {
			n, err := pathSize(c)
			if err != nil {
				return 0, err
			}
			total += n
		}
	}
	return total, nil
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
