//go:build linux

package sectorsize

import "golang.org/x/sys/unix"

// probe uses statfs(2) to read the filesystem's optimal I/O block size
// (f_bsize), which tracks the underlying device's sector/block size closely
// enough for alignment purposes. A dedicated block-device ioctl
// (BLKSSZGET) would be more precise but requires the path to be a block
// device node rather than a regular file inside a mounted filesystem, which
// is the common case for an archive file.
func probe(path string) (uint64, bool) {
	var stat unix.Statfs_t

	if err := unix.Statfs(path, &stat); err != nil {
		return 0, false
	}

	if stat.Bsize <= 0 {
		return 0, false
	}

	return uint64(stat.Bsize), true
}
