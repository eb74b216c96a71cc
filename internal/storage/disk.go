package storage

import "os"

// DiskUsageBytes returns the on-disk size of the database at path, including
// SQLite's -wal and -shm sidecar files when present. Missing files
// contribute zero, so an uncreated database reports 0 without error.
func DiskUsageBytes(path string) (int64, error) {
	if path == "" {
		return 0, nil
	}
	var total int64
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
