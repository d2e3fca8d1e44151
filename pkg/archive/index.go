package archive

import "encoding/binary"

// The persistent index (spec.md §4.6) is a flat array of 8-byte
// little-endian slots living in the payload of a dedicated physical entry
// (name [indexEntryName]):
//
//	slot 0        total archive size in bytes at the moment the index was
//	              last written - the staleness check at Open
//	slot 1..K     header offset of one live physical entry
//	slot K+1      terminal marker (indexEndMarker == 1)
//	slot K+2..N   padding, ignored
//
// A value of indexDeletedMarker (0) in the 1..K range means a removed
// entry whose slot was never reclaimed; it is skipped rather than
// dereferenced. The payload is padded to at least minIndexSlots slots. The
// index is always written as one physical entry, whatever its size; it is
// never split into partitions.
//
// The index's own location is found via a separate physical entry (name
// [pointerEntryName]), written at header offset 0 of every archive this
// package creates (a rebuild of an archive that lacks one appends it at the
// end instead, where readPointer does not look), whose single ROBOHEN_INDEX_OFFSET
// attribute holds the index entry's header offset, encoded at a fixed
// width so it can be patched in place whenever the index entry moves.

func encodeIndexPayload(totalSize uint64, offsets []uint64) []byte {
	numSlots := 1 + len(offsets) + 1
	if numSlots < minIndexSlots {
		numSlots = minIndexSlots
	}

	buf := make([]byte, numSlots*indexSlotSize)
	binary.LittleEndian.PutUint64(buf[0:indexSlotSize], totalSize)

	i := 1
	for _, off := range offsets {
		binary.LittleEndian.PutUint64(buf[i*indexSlotSize:(i+1)*indexSlotSize], off)
		i++
	}

	binary.LittleEndian.PutUint64(buf[i*indexSlotSize:(i+1)*indexSlotSize], indexEndMarker)

	return buf
}

// decodeIndexPayload parses buf into the total size it was written against
// and the live offsets it records, stopping at the terminal marker. It
// returns ok=false if buf is too short to hold even the size slot and a
// terminal marker.
func decodeIndexPayload(buf []byte) (totalSize uint64, offsets []uint64, ok bool) {
	if len(buf) < 2*indexSlotSize {
		return 0, nil, false
	}

	totalSize = binary.LittleEndian.Uint64(buf[0:indexSlotSize])

	i := 1
	for {
		end := (i + 1) * indexSlotSize
		if end > len(buf) {
			return 0, nil, false
		}

		v := binary.LittleEndian.Uint64(buf[i*indexSlotSize : end])
		if v == indexEndMarker {
			break
		}

		if v != indexDeletedMarker {
			offsets = append(offsets, v)
		}

		i++
	}

	return totalSize, offsets, true
}

// readPointer reads the index pointer entry at header offset 0. It returns
// ok=false if the archive has no entries yet, and a [CorruptError] if the
// entry at offset 0 is not the pointer.
func readPointer(b *blockIO) (e *entry, indexOffset uint64, ok bool, err error) {
	size, err := b.size()
	if err != nil {
		return nil, 0, false, err
	}

	if size == 0 {
		return nil, 0, false, nil
	}

	ptr, err := decodeEntryAt(b, 0)
	if err != nil {
		return nil, 0, false, err
	}

	if ptr.name != pointerEntryName {
		return nil, 0, false, &CorruptError{Reason: "first entry is not the index pointer", Offset: 0}
	}

	off, present := attrOffset(ptr.attrs, AttrIndexOffset)
	if !present || off == 0 {
		return ptr, 0, false, nil
	}

	return ptr, off, true, nil
}

// readIndex loads the index payload from the entry at indexOffset.
func readIndex(b *blockIO, indexOffset uint64) (*entry, uint64, []uint64, error) {
	idx, err := decodeEntryAt(b, indexOffset)
	if err != nil {
		return nil, 0, nil, err
	}

	payload, err := b.readAt(idx.dataOffset, idx.size)
	if err != nil {
		return nil, 0, nil, err
	}

	totalSize, offsets, ok := decodeIndexPayload(payload)
	if !ok {
		return nil, 0, nil, &CorruptError{Reason: "malformed index payload", Offset: int64(indexOffset)}
	}

	return idx, totalSize, offsets, nil
}
