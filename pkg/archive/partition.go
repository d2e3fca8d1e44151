package archive

// This file implements the physical entry layer that sits directly on top
// of [blockIO]: encoding and decoding one physical TAR entry (PAX path
// block, PAX attrs block, ustar header, payload), appending new entries at
// the end of the archive, patching a chain link in place, and soft-deleting
// an entry. [chainWriter] in chain.go builds the write/append/truncate
// algorithms of spec.md §4.4 out of these primitives.

// entrySpan returns the total number of bytes e occupies on disk, from its
// header offset through its padded payload.
func entrySpan(e *entry) uint64 {
	return (e.dataOffset - e.headerOffset) + roundUpToMultiple(e.size, blockSize)
}

// decodeEntryAt decodes one physical entry starting at offset: a PAX path
// block, a PAX attrs block, and a ustar header, followed by its payload.
// Every entry this package writes has this shape (spec.md §3 invariant 8);
// callers that only want to know whether offset holds a well-formed entry
// (the lenient rebuild scan) should treat any returned error as "not an
// entry here".
func decodeEntryAt(b *blockIO, offset uint64) (*entry, error) {
	pos := offset

	pathBlk, err := b.readAt(pos, blockSize)
	if err != nil {
		return nil, err
	}

	pathHdr, err := decodeUstar(pathBlk, pos)
	if err != nil {
		return nil, err
	}

	if pathHdr.Typeflag != typeflagPax {
		return nil, &CorruptError{Reason: "expected PAX path header", Offset: int64(pos)}
	}

	pathPayloadBlocks := roundUpToMultiple(pathHdr.Size, blockSize)

	pathPayload, err := b.readAt(pos+blockSize, pathPayloadBlocks)
	if err != nil {
		return nil, err
	}

	pathRecords, err := decodePaxRecords(pathPayload[:pathHdr.Size], pos)
	if err != nil {
		return nil, err
	}

	name := ""

	for _, kv := range pathRecords {
		if kv[0] == "path" {
			name = kv[1]
		}
	}

	attrsOffset := pos + blockSize + pathPayloadBlocks

	attrsHdrBlk, err := b.readAt(attrsOffset, blockSize)
	if err != nil {
		return nil, err
	}

	attrsHdr, err := decodeUstar(attrsHdrBlk, attrsOffset)
	if err != nil {
		return nil, err
	}

	if attrsHdr.Typeflag != typeflagPax {
		return nil, &CorruptError{Reason: "expected PAX attrs header", Offset: int64(attrsOffset)}
	}

	attrsPayloadBlocks := roundUpToMultiple(attrsHdr.Size, blockSize)

	attrsPayload, err := b.readAt(attrsOffset+blockSize, attrsPayloadBlocks)
	if err != nil {
		return nil, err
	}

	attrsRecords, err := decodePaxRecords(attrsPayload[:attrsHdr.Size], attrsOffset)
	if err != nil {
		return nil, err
	}

	attrs := make(map[string]string, len(attrsRecords))
	attrOrder := make([]string, 0, len(attrsRecords))

	for _, kv := range attrsRecords {
		attrs[kv[0]] = kv[1]
		attrOrder = append(attrOrder, kv[0])
	}

	attrsBlockLen := blockSize + attrsPayloadBlocks

	mainOffset := attrsOffset + attrsBlockLen

	mainBlk, err := b.readAt(mainOffset, blockSize)
	if err != nil {
		return nil, err
	}

	mainHdr, err := decodeUstar(mainBlk, mainOffset)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = mainHdr.Name
	}

	headName := attrs[AttrFileName]
	if headName == "" {
		headName = name
	}

	return &entry{
		name:             name,
		size:             mainHdr.Size,
		headerOffset:     offset,
		dataOffset:       mainOffset + blockSize,
		mode:             mainHdr.Mode,
		uid:              mainHdr.UID,
		gid:              mainHdr.GID,
		mtime:            mainHdr.Mtime,
		typeflag:         mainHdr.Typeflag,
		attrs:            attrs,
		attrOrder:        attrOrder,
		attrsBlockOffset: attrsOffset,
		attrsBlockLen:    attrsBlockLen,
		headName:         headName,
	}, nil
}

// appendEntryAt writes pe at offset and returns the resulting in-memory
// entry.
func appendEntryAt(b *blockIO, offset uint64, pe pendingEntry) (*entry, error) {
	buf, attrsOffInBuf, attrsLen := encodePending(pe)
	if err := b.writeAt(offset, buf); err != nil {
		return nil, err
	}

	mainOffset := offset + attrsOffInBuf + attrsLen

	return &entry{
		name:             pe.name,
		size:             uint64(len(pe.data)),
		headerOffset:     offset,
		dataOffset:       mainOffset + blockSize,
		mode:             0o644,
		typeflag:         typeflagRegular,
		attrs:            pe.attrs,
		attrOrder:        pe.attrOrder,
		attrsBlockOffset: offset + attrsOffInBuf,
		attrsBlockLen:    attrsLen,
		headName:         pe.attrs[AttrFileName],
	}, nil
}

// patchOffsetAttr rewrites e's attrs block in place with key set to a new
// fixed-width offset value. Because ROBOHEN_NEXT_PART_OFFSET and
// ROBOHEN_PREV_PART_OFFSET are always encoded at a constant width
// (offsetFieldWidth digits), the re-encoded block is guaranteed to be
// exactly e.attrsBlockLen bytes, so no other byte in the archive moves
// (spec.md §4.4 step 3).
func patchOffsetAttr(b *blockIO, e *entry, key string, value uint64) error {
	if e.attrs == nil {
		e.attrs = make(map[string]string)
	}

	e.attrs[key] = encodeOffsetAttr(value)

	hasKey := false

	for _, k := range e.attrOrder {
		if k == key {
			hasKey = true

			break
		}
	}

	if !hasKey {
		e.attrOrder = append(e.attrOrder, key)
	}

	block := encodePaxRecords(paxHeaderName(e.name), e.attrOrder, e.attrs)
	if uint64(len(block)) != e.attrsBlockLen {
		return &CorruptError{
			Reason: "in-place attribute patch changed block length",
			Offset: int64(e.attrsBlockOffset),
		}
	}

	return b.writeAt(e.attrsBlockOffset, block)
}

// truncatePartitionSize rewrites e's ustar header in place with a smaller
// Size field, shrinking its declared payload length without reading,
// moving, or zeroing a single payload byte: the bytes beyond newSize stay
// on disk but are simply no longer addressed by any future read or chain
// walk (spec.md §4.4.3's "zero the headers of later partitions" shrinks a
// straddling partition's own content the same way, by re-declaring how
// much of it is live). newSize must not exceed e's current size.
func truncatePartitionSize(b *blockIO, e *entry, newSize uint64) error {
	mainOffset := e.dataOffset - blockSize

	h := encodeUstar(ustarHeader{
		Name:     ustarNameField(e.name),
		Mode:     e.mode,
		UID:      e.uid,
		GID:      e.gid,
		Size:     newSize,
		Mtime:    e.mtime,
		Typeflag: e.typeflag,
	})

	if err := b.writeAt(mainOffset, h); err != nil {
		return err
	}

	e.size = newSize

	return nil
}

// clearNextPartOffset removes e's ROBOHEN_NEXT_PART_OFFSET attribute in
// place, making e the new chain tail (spec.md §4.4.3).
func clearNextPartOffset(b *blockIO, e *entry) error {
	return patchOffsetAttr(b, e, AttrNextPart, 0)
}

// softDeleteEntry zeroes e's entire physical span - header blocks and
// payload alike - so that a from-scratch rebuild scan (which has no way to
// learn a zeroed entry's original payload length) can skip over it
// one 512-byte stride at a time without ever mistaking live data for a
// header (spec.md §3 invariant 6, §4.6).
func softDeleteEntry(b *blockIO, e *entry) error {
	span := entrySpan(e)

	zero := make([]byte, blockSize)
	for off := uint64(0); off < span; off += blockSize {
		chunk := blockSize
		if remaining := span - off; remaining < blockSize {
			chunk = int(remaining)
		}

		if err := b.writeAt(e.headerOffset+off, zero[:chunk]); err != nil {
			return err
		}
	}

	return nil
}

// scanArchive performs the byte-0 rebuild scan described in spec.md §4.6:
// it walks the archive in 512-byte strides, skipping zero blocks, decoding
// an entry wherever a stride fails to look like filler. A stride that looks
// non-zero but does not decode as a valid entry is orphaned payload left
// behind by a soft delete that predates this package's whole-span zeroing
// (or foreign content); it is treated as filler rather than as corruption,
// since a best-effort scan has no independent way to tell the two apart.
func scanArchive(b *blockIO) ([]*entry, error) {
	size, err := b.size()
	if err != nil {
		return nil, err
	}

	var entries []*entry

	pos := uint64(0)
	for pos < size {
		remaining := size - pos
		blk, err := b.readAt(pos, blockSize)
		if err != nil {
			return nil, err
		}

		if isZeroBlock(blk) {
			if remaining >= 2*blockSize {
				next, err := b.readAt(pos+blockSize, blockSize)
				if err != nil {
					return nil, err
				}

				if isZeroBlock(next) && pos+2*blockSize == size {
					break
				}
			}

			pos += blockSize

			continue
		}

		e, err := decodeEntryAt(b, pos)
		if err != nil {
			pos += blockSize

			continue
		}

		entries = append(entries, e)
		pos += entrySpan(e)
	}

	return entries, nil
}
