package archive

import (
	"fmt"
	"io"

	"github.com/robohen/robohen/internal/vfs"
)

// blockIO is the sector-aligned buffered Block I/O layer (spec.md §4.1).
//
// It owns the single underlying file handle. bufferSize is the target
// buffer size rounded up to a multiple of sectorSize. readAt serves a
// request of len bytes with ceil(len/bufferSize) transfers of at most
// bufferSize bytes each; writeAt hands the whole buffer to one WriteAt
// call per attempt. Transfers start at whatever offset the caller passes
// and are not padded out to sector boundaries. Every failure surfaces as
// an [IOError] carrying the offset at which it occurred.
//
// blockIO itself does not lock; callers (the archive [Manager]) serialize
// access to it under a single mutex, per the concurrency discipline in
// spec.md §5. Because the underlying [vfs.File] exposes ReadAt/WriteAt
// (pread/pwrite semantics), every transfer is independently positioned and
// never depends on - or disturbs - a shared file cursor, which is what
// spec.md §4.1's "re-seek if the cached position differs" requirement is
// protecting against in a seek-based I/O model.
type blockIO struct {
	file       vfs.File
	sectorSize uint64
	bufferSize uint64
}

func newBlockIO(file vfs.File, sectorSize, targetBufferSize uint64) *blockIO {
	if sectorSize == 0 {
		sectorSize = DefaultSectorSize
	}

	bufferSize := roundUpToMultiple(targetBufferSize, sectorSize)
	if bufferSize == 0 {
		bufferSize = sectorSize
	}

	return &blockIO{file: file, sectorSize: sectorSize, bufferSize: bufferSize}
}

func roundUpToMultiple(n, multiple uint64) uint64 {
	if multiple == 0 {
		return n
	}

	rem := n % multiple
	if rem == 0 {
		return n
	}

	return n + (multiple - rem)
}

// readAt reads exactly length bytes starting at offset, issuing one or more
// bufferSize-aligned transfers.
func (b *blockIO) readAt(offset uint64, length uint64) ([]byte, error) {
	out := make([]byte, length)

	var done uint64

	for done < length {
		chunk := b.bufferSize
		if remaining := length - done; chunk > remaining {
			chunk = remaining
		}

		n, err := b.file.ReadAt(out[done:done+chunk], int64(offset+done))
		if n > 0 {
			done += uint64(n)
		}

		if err != nil {
			if err == io.EOF && done == length {
				break
			}

			return nil, &IOError{Offset: int64(offset + done), Err: err}
		}

		if n == 0 {
			return nil, &IOError{Offset: int64(offset + done), Err: io.ErrNoProgress}
		}
	}

	return out, nil
}

// writeAt writes data at offset, retrying a short write that reported no
// error until complete. Any error, or a write that makes no progress, is
// returned as an [IOError].
func (b *blockIO) writeAt(offset uint64, data []byte) error {
	var done int

	for done < len(data) {
		n, err := b.file.WriteAt(data[done:], int64(offset)+int64(done))
		if n > 0 {
			done += n
		}

		if err != nil {
			return &IOError{Offset: int64(offset) + int64(done), Err: err}
		}

		if n == 0 {
			return &IOError{Offset: int64(offset) + int64(done), Err: io.ErrNoProgress}
		}
	}

	return nil
}

// truncate resizes the underlying file to exactly length bytes.
func (b *blockIO) truncate(length uint64) error {
	if err := b.file.Truncate(int64(length)); err != nil {
		return &IOError{Offset: int64(length), Err: err}
	}

	return nil
}

// flush commits pending writes to the file's backing store.
func (b *blockIO) flush() error {
	if err := b.file.Sync(); err != nil {
		return &IOError{Offset: -1, Err: err}
	}

	return nil
}

// size returns the current file size in bytes.
func (b *blockIO) size() (uint64, error) {
	info, err := b.file.Stat()
	if err != nil {
		return 0, &IOError{Offset: -1, Err: err}
	}

	if info.Size() < 0 {
		return 0, &IOError{Offset: -1, Err: fmt.Errorf("negative file size")}
	}

	return uint64(info.Size()), nil
}
