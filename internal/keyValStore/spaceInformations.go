package keyValStore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// DiskUsage describes the volume holding the store. All sizes are bytes.
type DiskUsage struct {
	Path  string
	Total uint64
	Used  uint64
	Free  uint64
	Store uint64 // bytes below Path
}

func directorySize(path string) (uint64, error) {
	var size uint64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += uint64(info.Size())
		}
		return nil
	})
	return size, err
}

// DiskUsage reports the usage of the first data path. In-memory stores return
// the zero value.
func (k *KeyValStore) DiskUsage() (DiskUsage, error) {
	if k.config.InMemory {
		return DiskUsage{}, nil
	}

	path := k.config.Paths[0]
	usage, err := disk.Usage(path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("error retrieving disk usage of %s: %w", path, err)
	}
	size, err := directorySize(path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("error calculating size of %s: %w", path, err)
	}

	return DiskUsage{
		Path:  path,
		Total: usage.Total,
		Used:  usage.Used,
		Free:  usage.Free,
		Store: size,
	}, nil
}

func gb(bytes uint64) string {
	return fmt.Sprintf("%.2f", float64(bytes)/1e9)
}

func (k *KeyValStore) logDiskUsage() error {
	u, err := k.DiskUsage()
	if err != nil {
		return err
	}
	k.log.WithFields(logrus.Fields{
		"path":      u.Path,
		"totalGB":   gb(u.Total),
		"usedGB":    gb(u.Used),
		"freeGB":    gb(u.Free),
		"storeSize": gb(u.Store),
	}).Info("disk usage")
	return nil
}
