package archive

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/robohen/robohen/internal/vfs"
)

// Manager owns a single open archive handle and is the only supported entry
// point for reading or mutating it (spec.md §4.7). Every exported method
// takes a context.Context and acquires an internal mutex before touching
// the file; a single Manager must not be used from two goroutines that
// expect overlapping operations to run concurrently against the same
// handle (spec.md §5) - callers that want concurrent reads (e.g. the
// `robohen verify` CLI subcommand) must still serialize through this one
// lock per operation, exactly as a single-threaded event loop would.
type Manager struct {
	mu sync.Mutex

	file vfs.File
	b    *blockIO
	opts Options

	cache *entryCache

	contentEnd  uint64
	pointer     *entry
	indexOffset uint64

	closed bool
}

// Open opens or creates the archive at opts.Path on filesystem, validating
// or rebuilding its persistent index as needed (spec.md §4.6).
func Open(ctx context.Context, filesystem vfs.FS, opts Options) (*Manager, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	opts = applyDefaults(opts)
	if opts.MaxPartitionSize > MaxPartitionSize {
		return nil, fmt.Errorf("max partition size %d exceeds hard limit %d: %w", opts.MaxPartitionSize, MaxPartitionSize, ErrTooLarge)
	}

	flag := os.O_RDWR | os.O_CREATE
	if opts.ReadOnly {
		flag = os.O_RDONLY
	}

	f, err := filesystem.OpenFile(opts.Path, flag, 0o644)
	if err != nil {
		return nil, &IOError{Offset: -1, Err: err}
	}

	b := newBlockIO(f, opts.SectorSize, opts.TargetBufferSize)

	m := &Manager{
		file:  f,
		b:     b,
		opts:  opts,
		cache: newEntryCache(),
	}

	if err := m.load(); err != nil {
		_ = f.Close()

		return nil, err
	}

	return m, nil
}

// applyDefaults fills in zero-valued Options fields. The core engine never
// probes the backing device itself (internal/sectorsize is a CLI-side
// collaborator, keeping Options a plain configuration value as spec.md §1
// requires); SectorSize left unset here just falls back to the historical
// 512-byte TAR block size.
func applyDefaults(opts Options) Options {
	if opts.MaxPartitionSize == 0 {
		opts.MaxPartitionSize = DefaultMaxPartitionSize
	}

	if opts.SectorSize == 0 {
		opts.SectorSize = DefaultSectorSize
	}

	if opts.TargetBufferSize == 0 {
		opts.TargetBufferSize = DefaultTargetBufferSize
	}

	return opts
}

// load validates the persistent index against the current file size and
// either adopts it or performs a full rebuild scan (spec.md §4.6).
func (m *Manager) load() error {
	size, err := m.b.size()
	if err != nil {
		return err
	}

	if size == 0 {
		if m.opts.ReadOnly {
			return nil
		}

		return m.initEmpty()
	}

	ptr, indexOffset, ok, err := readPointer(m.b)
	if err != nil {
		return m.rebuild()
	}

	m.pointer = ptr

	if !ok {
		return m.rebuild()
	}

	_, totalSize, offsets, err := readIndex(m.b, indexOffset)
	if err != nil || totalSize != size {
		return m.rebuild()
	}

	m.indexOffset = indexOffset

	m.cache.reset()

	for _, off := range offsets {
		e, err := decodeEntryAt(m.b, off)
		if err != nil {
			return m.rebuild()
		}

		if e.name == pointerEntryName {
			continue
		}

		m.cache.add(e)
	}

	// The index entry is always written immediately after the last live
	// file entry (finalize always appends it at the then-current
	// contentEnd), so its own offset is where the next write should begin,
	// overwriting this now-stale index.
	m.contentEnd = indexOffset

	return nil
}

// initEmpty sets up a brand-new zero-byte archive: a pointer entry
// reserving its index offset as 0, and nothing else, until the first write
// forces an index to be created.
func (m *Manager) initEmpty() error {
	ptr, err := appendEntryAt(m.b, 0, newPointerEntry(0))
	if err != nil {
		return err
	}

	m.pointer = ptr
	m.contentEnd = entrySpan(ptr)

	return m.finalize()
}

// rebuild performs the from-scratch byte-0 scan described in spec.md §4.6,
// discarding whatever the stale or missing index claimed. On a read-only
// handle it only populates the in-memory cache: the read-only gate (§4.7)
// forbids writing so much as a fresh index entry, so a pristine or
// externally-appended archive opened read-only must come back byte-identical
// at close (§8 scenario 6).
func (m *Manager) rebuild() error {
	entries, err := scanArchive(m.b)
	if err != nil {
		return err
	}

	m.cache.reset()

	var maxOffset uint64

	var pointer *entry

	for _, e := range entries {
		switch e.name {
		case pointerEntryName:
			pointer = e
		case indexEntryName:
			// Dropped; a fresh index is written by finalize, and its
			// stale span must not count toward contentEnd below, or the
			// next write would leak space by appending after it instead
			// of overwriting it.
			continue
		default:
			m.cache.add(e)
		}

		if end := e.headerOffset + entrySpan(e); end > maxOffset {
			maxOffset = end
		}
	}

	if pointer == nil && m.opts.ReadOnly {
		// No pointer entry found at all (a foreign or never-finalized
		// archive); nothing to patch and nothing may be written.
		m.contentEnd = maxOffset

		return nil
	}

	if pointer == nil {
		pointer, err = appendEntryAt(m.b, maxOffset, newPointerEntry(0))
		if err != nil {
			return err
		}

		maxOffset = pointer.headerOffset + entrySpan(pointer)
	}

	m.pointer = pointer
	m.contentEnd = maxOffset

	if m.opts.ReadOnly {
		return nil
	}

	return m.finalize()
}

// finalize writes a fresh persistent index entry at the end of the archive,
// patches the pointer to reference it, and truncates the file to end in
// exactly two zero blocks (spec.md §3 invariant 3, §4.6). It must be called
// after every mutating operation.
func (m *Manager) finalize() error {
	offsets := make([]uint64, 0, len(m.cache.all()))
	for _, e := range m.cache.all() {
		offsets = append(offsets, e.headerOffset)
	}

	// Slot 0 must equal the file's final length, which includes this index
	// entry's own span. The payload's length does not depend on the value
	// in slot 0, so the entry is measured first and slot 0 filled in after.
	pe := pendingEntry{name: indexEntryName, attrs: map[string]string{}, data: encodeIndexPayload(0, offsets)}
	encoded, _, _ := encodePending(pe)
	finalSize := m.contentEnd + uint64(len(encoded)) + 2*blockSize
	pe.data = encodeIndexPayload(finalSize, offsets)

	idx, err := appendEntryAt(m.b, m.contentEnd, pe)
	if err != nil {
		return err
	}

	m.indexOffset = idx.headerOffset

	if err := patchOffsetAttr(m.b, m.pointer, AttrIndexOffset, m.indexOffset); err != nil {
		return err
	}

	end := idx.headerOffset + entrySpan(idx)

	if err := m.b.writeAt(end, make([]byte, 2*blockSize)); err != nil {
		return err
	}

	if err := m.b.truncate(end + 2*blockSize); err != nil {
		return err
	}

	if err := m.b.flush(); err != nil {
		return err
	}

	return nil
}

// withLock runs fn under the Manager's mutex, after checking ctx and the
// closed/read-only state appropriate to a mutating operation.
func (m *Manager) withLock(ctx context.Context, mutating bool, fn func() error) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if mutating && m.opts.ReadOnly {
		return ErrReadOnly
	}

	return fn()
}

func (m *Manager) chainWriter() *chainWriter {
	return newChainWriter(m.b, m.cache, m.opts, func(name string) ([]byte, bool, error) {
		return readLogicalFile(context.Background(), m.b, m.cache, name)
	})
}

// WriteFile replaces name's entire content with data, creating it if
// absent.
func (m *Manager) WriteFile(ctx context.Context, name string, data []byte) error {
	return m.withLock(ctx, true, func() error {
		name, err := validateName(name, m.opts.NamePolicy)
		if err != nil {
			return err
		}

		end, err := m.chainWriter().rewriteChain(m.contentEnd, name, data)
		if err != nil {
			return err
		}

		m.contentEnd = end

		return m.finalize()
	})
}

// ReadFile returns the complete current content of name.
func (m *Manager) ReadFile(ctx context.Context, name string) ([]byte, error) {
	var out []byte

	err := m.withLock(ctx, false, func() error {
		name, err := validateName(name, m.opts.NamePolicy)
		if err != nil {
			return err
		}

		data, ok, err := readLogicalFile(ctx, m.b, m.cache, name)
		if err != nil {
			return err
		}

		if !ok {
			return ErrNotFound
		}

		out = data

		return nil
	})

	return out, err
}

// ReadFileChunk returns length bytes of name's content starting at offset.
func (m *Manager) ReadFileChunk(ctx context.Context, name string, offset, length uint64) ([]byte, error) {
	var out []byte

	err := m.withLock(ctx, false, func() error {
		name, err := validateName(name, m.opts.NamePolicy)
		if err != nil {
			return err
		}

		data, ok, err := readLogicalChunk(ctx, m.b, m.cache, name, offset, length)
		if err != nil {
			return err
		}

		if !ok {
			return ErrNotFound
		}

		out = data

		return nil
	})

	return out, err
}

// DeleteFile soft-deletes every partition of name.
func (m *Manager) DeleteFile(ctx context.Context, name string) error {
	return m.withLock(ctx, true, func() error {
		name, err := validateName(name, m.opts.NamePolicy)
		if err != nil {
			return err
		}

		existed, err := m.chainWriter().deleteChain(name)
		if err != nil {
			return err
		}

		if !existed {
			return ErrNotFound
		}

		return m.finalize()
	})
}

// RenameFile renames logical file name to newName, preserving content.
func (m *Manager) RenameFile(ctx context.Context, name, newName string) error {
	return m.withLock(ctx, true, func() error {
		name, err := validateName(name, m.opts.NamePolicy)
		if err != nil {
			return err
		}

		newName, err := validateName(newName, m.opts.NamePolicy)
		if err != nil {
			return err
		}

		end, err := m.chainWriter().renameChain(m.contentEnd, name, newName)
		if err != nil {
			return err
		}

		m.contentEnd = end

		return m.finalize()
	})
}

// AppendFile appends data to the end of name's current content, creating it
// if absent. Per spec.md §4.4.1 this is a random write at the current
// logical end: it never re-reads existing content, only the bytes being
// appended and - if the write walks past the current tail partition - that
// one partition's payload.
func (m *Manager) AppendFile(ctx context.Context, name string, data []byte) error {
	return m.withLock(ctx, true, func() error {
		name, err := validateName(name, m.opts.NamePolicy)
		if err != nil {
			return err
		}

		cw := m.chainWriter()

		size, _ := cw.logicalSize(name)

		end, err := cw.writeRange(m.contentEnd, name, size, data)
		if err != nil {
			return err
		}

		m.contentEnd = end

		return m.finalize()
	})
}

// WriteFileChunk writes data at offset within name, extending it with
// zero bytes first if offset is beyond the current end. Per spec.md
// §4.4.1, only the partition(s) the write overlaps are touched; earlier
// partitions in a large file are never read or rewritten.
func (m *Manager) WriteFileChunk(ctx context.Context, name string, offset uint64, data []byte) error {
	return m.withLock(ctx, true, func() error {
		name, err := validateName(name, m.opts.NamePolicy)
		if err != nil {
			return err
		}

		end, err := m.chainWriter().writeRange(m.contentEnd, name, offset, data)
		if err != nil {
			return err
		}

		m.contentEnd = end

		return m.finalize()
	})
}

// TruncateFile resizes name's content to exactly length bytes, padding
// with zeros if it currently holds fewer. Per spec.md §4.4.3, shrinking
// keeps every partition up to the cut point untouched, shrinking in place
// whichever one straddles it and zeroing the rest.
func (m *Manager) TruncateFile(ctx context.Context, name string, length uint64) error {
	return m.withLock(ctx, true, func() error {
		name, err := validateName(name, m.opts.NamePolicy)
		if err != nil {
			return err
		}

		end, err := m.chainWriter().truncateChain(m.contentEnd, name, length)
		if err != nil {
			return err
		}

		m.contentEnd = end

		return m.finalize()
	})
}

// ListRawEntries returns every live physical entry, in write order.
func (m *Manager) ListRawEntries(ctx context.Context) ([]RawEntry, error) {
	var out []RawEntry

	err := m.withLock(ctx, false, func() error {
		out = listRawEntries(m.cache)

		return nil
	})

	return out, err
}

// ListFiles returns every logical file, in the order their current head
// entries were written; a file whose head is rewritten moves to the end.
func (m *Manager) ListFiles(ctx context.Context) ([]LogicalFile, error) {
	var out []LogicalFile

	err := m.withLock(ctx, false, func() error {
		out = listLogicalFiles(m.cache)

		return nil
	})

	return out, err
}

// StreamFile returns a lazy, restartable reader over name's content. The
// returned stream is only valid for the lifetime of m and must not be used
// concurrently with other Manager calls without external synchronization,
// per spec.md §5.
func (m *Manager) StreamFile(ctx context.Context, name string) (*fileStream, error) {
	var out *fileStream

	err := m.withLock(ctx, false, func() error {
		name, err := validateName(name, m.opts.NamePolicy)
		if err != nil {
			return err
		}

		s, ok := newFileStream(m.cache, m.b, name)
		if !ok {
			return ErrNotFound
		}

		out = s

		return nil
	})

	return out, err
}

// Close flushes and releases the underlying file handle. It is safe to
// call more than once.
func (m *Manager) Close(ctx context.Context) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true

	if err := m.file.Close(); err != nil {
		return &IOError{Offset: -1, Err: err}
	}

	return nil
}
