package archive

// chainWriter implements the logical-file write algorithms of spec.md §4.4
// on top of [blockIO], [entryCache] and the physical entry primitives in
// partition.go.
//
// A first-time write (writeChain), a full replace (rewriteChain, used by
// WriteFile) and a rename (renameChain, which copies the content into a
// fresh chain under the new name) build a fresh chain at end-of-archive.
// But a random write, an append, or a truncate against a chain that
// already exists never re-reads or re-splits a partition it doesn't have to
// touch: writeRange patches bytes directly inside whichever partitions the
// write actually overlaps (§4.4.1's "locate the partition covering X...
// advance to the next partition"), only falling back to rebuilding the tail
// of the chain - never the whole thing - when the write walks past the
// current end. truncateChain is the mirror image for §4.4.3: it keeps every
// partition up to the cut point untouched, shrinks the one the cut falls
// inside with a single in-place header patch, and zeroes the rest.
type chainWriter struct {
	b        *blockIO
	cache    *entryCache
	opts     Options
	readFull func(name string) ([]byte, bool, error)
}

func newChainWriter(b *blockIO, cache *entryCache, opts Options, readFull func(string) ([]byte, bool, error)) *chainWriter {
	return &chainWriter{b: b, cache: cache, opts: opts, readFull: readFull}
}

func (w *chainWriter) maxPartitionSize() uint64 {
	if w.opts.MaxPartitionSize == 0 {
		return DefaultMaxPartitionSize
	}

	return w.opts.MaxPartitionSize
}

// collisionSuffix returns the collision suffix (spec.md §4.4.2) needed to
// give base's partition names a physical name not already used by some
// other entry, or "" if the unsuffixed names are free.
func (w *chainWriter) collisionSuffix(base string) string {
	taken := func(suffix string) bool {
		_, ok := w.cache.byNameLookup(partitionName(base, suffix, 1))

		return ok
	}

	if !taken("") {
		return ""
	}

	for n := 0; ; n++ {
		s := suffixSequence(n)
		if !taken(s) {
			return s
		}
	}
}

// deleteChain soft-deletes every physical entry in name's chain, if it
// exists, removing each from the cache. It reports whether a chain existed.
func (w *chainWriter) deleteChain(name string) (bool, error) {
	head, ok := w.cache.byLogicalLookup(name)
	if !ok {
		return false, nil
	}

	for _, e := range w.cache.chain(head) {
		if err := softDeleteEntry(w.b, e); err != nil {
			return false, err
		}

		w.cache.removeByOffset(e.headerOffset)
	}

	return true, nil
}

// writeChain appends a fresh chain for name holding data at contentEnd,
// splitting it into partitions of at most maxPartitionSize bytes each
// (spec.md §4.4). It returns the offset immediately past the last byte
// written.
func (w *chainWriter) writeChain(contentEnd uint64, name string, data []byte) (uint64, error) {
	maxPart := w.maxPartitionSize()

	if uint64(len(data)) <= maxPart {
		pe := newFileEntry(name, name, "", 0, 0, data)

		e, err := appendEntryAt(w.b, contentEnd, pe)
		if err != nil {
			return 0, err
		}

		w.cache.add(e)

		return contentEnd + entrySpan(e), nil
	}

	suffix := w.collisionSuffix(name)

	return w.appendChainFrom(contentEnd, name, suffix, 1, nil, data)
}

// appendChainFrom appends data as one or more fresh partitions starting at
// physical index startK, splitting it into maxPartitionSize chunks. If prev
// is non-nil, the first new partition is linked after it by patching prev's
// ROBOHEN_NEXT_PART_OFFSET in place; every partition before prev is left
// completely untouched. This is writeChain's splitting loop generalized so
// it can also be used to grow only the tail of an existing chain (see
// replaceTail).
func (w *chainWriter) appendChainFrom(contentEnd uint64, name, suffix string, startK int, prev *entry, data []byte) (uint64, error) {
	maxPart := w.maxPartitionSize()

	numParts := 1
	if len(data) > 0 {
		numParts = (len(data) + int(maxPart) - 1) / int(maxPart)
	}

	offset := contentEnd

	for i := 0; i < numParts; i++ {
		k := startK + i

		start := i * int(maxPart)
		end := start + int(maxPart)

		if end > len(data) {
			end = len(data)
		}

		physName := partitionName(name, suffix, k)

		logicalName, partSuffix := "", ""
		if k == 1 {
			logicalName, partSuffix = name, suffix
		}

		prevOffset := uint64(0)
		if prev != nil {
			prevOffset = prev.headerOffset
		}

		pe := newFileEntry(physName, logicalName, partSuffix, 0, prevOffset, data[start:end])

		e, err := appendEntryAt(w.b, offset, pe)
		if err != nil {
			return 0, err
		}

		w.cache.add(e)

		if prev != nil {
			if err := patchOffsetAttr(w.b, prev, AttrNextPart, e.headerOffset); err != nil {
				return 0, err
			}
		}

		offset += entrySpan(e)
		prev = e
	}

	return offset, nil
}

// rewriteChain replaces name's entire chain (if any) with a fresh one
// holding data, appended at contentEnd. This is the correct, full-cost
// algorithm for a whole-file replace (spec.md §4.4's top-level write case)
// and for every rename - it is not used for partial updates (see
// writeRange, truncateChain).
func (w *chainWriter) rewriteChain(contentEnd uint64, name string, data []byte) (uint64, error) {
	if _, err := w.deleteChain(name); err != nil {
		return 0, err
	}

	return w.writeChain(contentEnd, name, data)
}

// logicalSize returns the current total size of name's chain without
// reading any payload bytes, or ok=false if it does not exist.
func (w *chainWriter) logicalSize(name string) (uint64, bool) {
	head, ok := w.cache.byLogicalLookup(name)
	if !ok {
		return 0, false
	}

	var size uint64

	for _, e := range w.cache.chain(head) {
		size += e.size
	}

	return size, true
}

// writeRange writes data at logical offset within name, creating name if it
// does not exist and zero-extending it if offset falls beyond its current
// end. It implements spec.md §4.4.1's random-write algorithm: bytes that
// land inside an existing partition are patched there directly; only the
// last partition, plus whatever new ones the write's tail needs, is ever
// rebuilt, regardless of how much earlier content the file holds.
func (w *chainWriter) writeRange(contentEnd uint64, name string, offset uint64, data []byte) (uint64, error) {
	head, ok := w.cache.byLogicalLookup(name)
	if !ok {
		buf := make([]byte, offset+uint64(len(data)))
		copy(buf[offset:], data)

		return w.writeChain(contentEnd, name, buf)
	}

	chain := w.cache.chain(head)

	var currentSize uint64
	for _, e := range chain {
		currentSize += e.size
	}

	if len(chain) == 1 {
		// Not yet partitioned, so its content is already bounded by
		// maxPartitionSize; merging it in memory costs no more than a
		// single partition's worth of data, never the whole logical file.
		existing, err := w.b.readAt(head.dataOffset, head.size)
		if err != nil {
			return 0, err
		}

		need := offset + uint64(len(data))
		if need < uint64(len(existing)) {
			need = uint64(len(existing))
		}

		buf := make([]byte, need)
		copy(buf, existing)
		copy(buf[offset:], data)

		return w.rewriteChain(contentEnd, name, buf)
	}

	return w.writeRangePartitioned(contentEnd, chain, name, currentSize, offset, data)
}

// writeRangePartitioned applies writeRange against an already-partitioned
// chain, per spec.md §4.4.1.
func (w *chainWriter) writeRangePartitioned(contentEnd uint64, chain []*entry, name string, currentSize, offset uint64, data []byte) (uint64, error) {
	overlapLen := uint64(0)
	if offset < currentSize {
		overlapLen = currentSize - offset
		if overlapLen > uint64(len(data)) {
			overlapLen = uint64(len(data))
		}

		if err := overwriteInPlace(w.b, chain, offset, data[:overlapLen]); err != nil {
			return 0, err
		}
	}

	growth := data[overlapLen:]
	if len(growth) == 0 {
		return contentEnd, nil
	}

	// Everything left over extends past the current tail. Merge the
	// existing tail partition's payload with the gap (if offset started
	// past currentSize) and the growth bytes, then replace only that one
	// partition - every earlier partition in the chain is untouched.
	tail := chain[len(chain)-1]

	tailPayload, err := w.b.readAt(tail.dataOffset, tail.size)
	if err != nil {
		return 0, err
	}

	gap := uint64(0)
	if offset > currentSize {
		gap = offset - currentSize
	}

	merged := make([]byte, 0, uint64(len(tailPayload))+gap+uint64(len(growth)))
	merged = append(merged, tailPayload...)
	merged = append(merged, make([]byte, gap)...)
	merged = append(merged, growth...)

	return w.replaceTail(contentEnd, chain, len(chain)-1, name, merged)
}

// overwriteInPlace writes data at logical offset, which must fall entirely
// within chain's current total size, patching only the payload bytes of
// the partitions it overlaps. No header is touched.
func overwriteInPlace(b *blockIO, chain []*entry, offset uint64, data []byte) error {
	writeEnd := offset + uint64(len(data))

	var pos uint64

	for _, e := range chain {
		partStart := pos
		partEnd := pos + e.size
		pos = partEnd

		if partStart >= writeEnd {
			break
		}

		rangeStart := offset
		if rangeStart < partStart {
			rangeStart = partStart
		}

		rangeEnd := writeEnd
		if rangeEnd > partEnd {
			rangeEnd = partEnd
		}

		if rangeStart >= rangeEnd {
			continue
		}

		chunk := data[rangeStart-offset : rangeEnd-offset]

		if err := b.writeAt(e.dataOffset+(rangeStart-partStart), chunk); err != nil {
			return err
		}
	}

	return nil
}

// replaceTail soft-deletes chain[keepCount:] and appends a fresh sub-chain
// holding tailData at contentEnd, continuing the partition numbering and
// linking it after chain[keepCount-1] (whose ROBOHEN_NEXT_PART_OFFSET is
// patched in place). Every partition before keepCount is left byte-for-byte
// untouched, so growing even a multi-gigabyte chain only costs the size of
// the discarded tail partition plus the new data (spec.md §4.4.1's
// "allocate new partitions at end-of-archive, extending the chain").
func (w *chainWriter) replaceTail(contentEnd uint64, chain []*entry, keepCount int, name string, tailData []byte) (uint64, error) {
	for _, e := range chain[keepCount:] {
		if err := softDeleteEntry(w.b, e); err != nil {
			return 0, err
		}

		w.cache.removeByOffset(e.headerOffset)
	}

	head := chain[0]
	suffix, _ := head.partSuffix()

	return w.appendChainFrom(contentEnd, name, suffix, keepCount+1, chain[keepCount-1], tailData)
}

// truncateChain resizes name's chain to exactly length bytes, per spec.md
// §4.4.3: walking the chain from the head, keeping partitions until length
// bytes are accounted for, shrinking in place whichever partition the cut
// point falls inside, and zeroing every later partition. Growing past the
// current size instead extends the chain via writeRange, same as any other
// write past the end.
func (w *chainWriter) truncateChain(contentEnd uint64, name string, length uint64) (uint64, error) {
	head, ok := w.cache.byLogicalLookup(name)
	if !ok {
		return 0, ErrNotFound
	}

	full := w.cache.chain(head)

	var currentSize uint64
	for _, e := range full {
		currentSize += e.size
	}

	switch {
	case length > currentSize:
		return w.writeRange(contentEnd, name, currentSize, make([]byte, length-currentSize))
	case length == currentSize:
		return contentEnd, nil
	}

	var pos uint64

	keepCount := len(full)

	for i, e := range full {
		start := pos
		end := pos + e.size
		pos = end

		if length <= start {
			keepCount = i

			break
		}

		if length <= end {
			keepCount = i + 1

			if length < end {
				if err := truncatePartitionSize(w.b, e, length-start); err != nil {
					return 0, err
				}
			}

			break
		}
	}

	deleteFrom := keepCount
	if keepCount == 0 {
		// The sole/first partition itself is being truncated down to
		// empty; it keeps existing (as a zero-byte entry) rather than
		// disappearing, so it just shrinks in place like any other
		// straddling partition, and only the entries after it are dropped.
		if err := truncatePartitionSize(w.b, head, 0); err != nil {
			return 0, err
		}

		deleteFrom = 1
	}

	for _, e := range full[deleteFrom:] {
		if err := softDeleteEntry(w.b, e); err != nil {
			return 0, err
		}

		w.cache.removeByOffset(e.headerOffset)
	}

	if deleteFrom < len(full) {
		if err := clearNextPartOffset(w.b, full[deleteFrom-1]); err != nil {
			return 0, err
		}
	}

	return contentEnd, nil
}

// renameChain moves name's logical identity to newName, preserving its
// current content. It reads the whole content, writes it as a fresh chain
// under newName and then soft-deletes name's chain; the existing
// partitions' path records are not edited in place, so every payload byte
// is copied.
func (w *chainWriter) renameChain(contentEnd uint64, name, newName string) (uint64, error) {
	data, ok, err := w.readFull(name)
	if err != nil {
		return 0, err
	}

	if !ok {
		return 0, ErrNotFound
	}

	if _, ok := w.cache.byLogicalLookup(newName); ok {
		return 0, ErrExists
	}

	end, err := w.rewriteChain(contentEnd, newName, data)
	if err != nil {
		return 0, err
	}

	if _, err := w.deleteChain(name); err != nil {
		return 0, err
	}

	return end, nil
}

// listLogicalFiles folds every cached entry that is a chain head (i.e.
// carries a non-empty ROBOHEN_FILE_NAME, as every unsplit file written by
// this package also does) into a [LogicalFile], in cache insertion order:
// a file whose head is rewritten moves to the end. Entries without that
// attribute and the reserved archive-internal entries (the index and its
// pointer) are excluded.
func listLogicalFiles(cache *entryCache) []LogicalFile {
	var out []LogicalFile

	for _, e := range cache.all() {
		if e.name == indexEntryName || e.name == pointerEntryName {
			continue
		}

		if e.attrs == nil {
			continue
		}

		logicalName, hasName := e.attrs[AttrFileName]
		if !hasName || logicalName == "" {
			continue
		}

		chain := cache.chain(e)

		var size uint64

		var parts []string

		if len(chain) > 1 {
			parts = make([]string, 0, len(chain))
			for _, p := range chain {
				parts = append(parts, p.name)
				size += p.size
			}
		} else {
			size = e.size
		}

		out = append(out, LogicalFile{Name: logicalName, Size: size, Parts: parts})
	}

	return out
}

// listRawEntries returns every live physical entry in insertion order.
func listRawEntries(cache *entryCache) []RawEntry {
	out := make([]RawEntry, 0, len(cache.all()))

	for _, e := range cache.all() {
		raw := RawEntry{
			Name:         e.name,
			Size:         e.size,
			HeaderOffset: e.headerOffset,
			DataOffset:   e.dataOffset,
		}

		if next, ok := e.nextPartOffset(); ok {
			if n, ok := cache.byOffsetLookup(next); ok {
				raw.NextPartName = n.name
			}
		}

		if prev, ok := e.prevPartOffset(); ok {
			if p, ok := cache.byOffsetLookup(prev); ok {
				raw.PrevPartName = p.name
			}
		}

		out = append(out, raw)
	}

	return out
}
