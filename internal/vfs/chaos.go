package vfs

import (
	"math/rand"
	"os"
	"sync"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always). The zero value
// disables all fault injection.
type ChaosConfig struct {
	// ReadAtFailRate controls how often File.ReadAt fails entirely, returning
	// zero bytes and EIO.
	ReadAtFailRate float64

	// PartialReadAtRate controls how often File.ReadAt returns fewer bytes
	// than requested along with EIO, simulating a read that fails partway
	// through a sector-aligned transfer.
	PartialReadAtRate float64

	// WriteAtFailRate controls how often File.WriteAt fails entirely,
	// writing zero bytes and returning ENOSPC.
	WriteAtFailRate float64

	// PartialWriteAtRate controls how often File.WriteAt writes only a
	// prefix of p before failing with ENOSPC.
	PartialWriteAtRate float64

	// SyncFailRate controls how often File.Sync fails with EIO.
	SyncFailRate float64
}

// Chaos wraps an [FS] and injects random faults for testing.
//
// Chaos is safe for concurrent use; its internal RNG is guarded by a mutex.
type Chaos struct {
	fs     FS
	mu     sync.Mutex
	rng    *rand.Rand
	config ChaosConfig
}

// NewChaos creates a [Chaos] filesystem wrapping fs, seeded for
// reproducibility.
func NewChaos(fs FS, seed int64, config ChaosConfig) *Chaos {
	return &Chaos{fs: fs, rng: rand.New(rand.NewSource(seed)), config: config}
}

func (c *Chaos) roll() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rng.Float64()
}

func (c *Chaos) Open(path string) (File, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, c: c}, nil
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, c: c}, nil
}

func (c *Chaos) ReadFile(path string) ([]byte, error)  { return c.fs.ReadFile(path) }
func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	return c.fs.MkdirAll(path, perm)
}
func (c *Chaos) Stat(path string) (os.FileInfo, error) { return c.fs.Stat(path) }
func (c *Chaos) Exists(path string) (bool, error)      { return c.fs.Exists(path) }
func (c *Chaos) Remove(path string) error              { return c.fs.Remove(path) }
func (c *Chaos) Rename(oldpath, newpath string) error  { return c.fs.Rename(oldpath, newpath) }

func (c *Chaos) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return c.fs.WriteFileAtomic(path, data, perm)
}

// chaosFile wraps a [File] and injects faults per the owning [Chaos]'s
// [ChaosConfig].
type chaosFile struct {
	File
	c *Chaos
}

func (f *chaosFile) ReadAt(p []byte, off int64) (int, error) {
	if f.c.roll() < f.c.config.ReadAtFailRate {
		return 0, &os.PathError{Op: "readat", Err: syscall.EIO}
	}

	if f.c.roll() < f.c.config.PartialReadAtRate && len(p) > 1 {
		short := len(p) / 2
		n, _ := f.File.ReadAt(p[:short], off)

		return n, &os.PathError{Op: "readat", Err: syscall.EIO}
	}

	return f.File.ReadAt(p, off)
}

func (f *chaosFile) WriteAt(p []byte, off int64) (int, error) {
	if f.c.roll() < f.c.config.WriteAtFailRate {
		return 0, &os.PathError{Op: "writeat", Err: syscall.ENOSPC}
	}

	if f.c.roll() < f.c.config.PartialWriteAtRate && len(p) > 1 {
		short := len(p) / 2
		n, _ := f.File.WriteAt(p[:short], off)

		return n, &os.PathError{Op: "writeat", Err: syscall.ENOSPC}
	}

	return f.File.WriteAt(p, off)
}

func (f *chaosFile) Sync() error {
	if f.c.roll() < f.c.config.SyncFailRate {
		return &os.PathError{Op: "sync", Err: syscall.EIO}
	}

	return f.File.Sync()
}

// Compile-time interface checks.
var (
	_ FS   = (*Chaos)(nil)
	_ File = (*chaosFile)(nil)
)
