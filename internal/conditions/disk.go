package conditions

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskFreeFunc returns the bytes available to unprivileged users on the
// volume holding path.
type DiskFreeFunc func(path string) (uint64, error)

// FreeBytes is the statfs-backed DiskFreeFunc.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %q: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// DiskFull reports whether free is below margin.
func DiskFull(free, margin uint64) bool {
	return free < margin
}

// FreePictureSlots estimates how many pictures of avgPicture bytes still fit
// above margin. Never negative.
func FreePictureSlots(free, margin, avgPicture uint64) int {
	if avgPicture == 0 || free <= margin {
		return 0
	}
	return int((free - margin) / avgPicture)
}

// IsDiskFull checks the volume holding path against margin.
func IsDiskFull(free DiskFreeFunc, path string, margin uint64) (bool, error) {
	n, err := free(path)
	if err != nil {
		return false, err
	}
	return DiskFull(n, margin), nil
}

// PictureSlots estimates the free picture slots on the volume holding path.
func PictureSlots(free DiskFreeFunc, path string, margin, avgPicture uint64) (int, error) {
	n, err := free(path)
	if err != nil {
		return 0, err
	}
	return FreePictureSlots(n, margin, avgPicture), nil
}
