package archive

import (
	"encoding/binary"
	"reflect"
	"testing"
)

// FuzzIndexPayloadRoundTrip exercises encodeIndexPayload/decodeIndexPayload
// (spec.md §4.6): for any total size and any list of live header offsets
// (multiples of 512, never 0 - offset 0 is always the index pointer entry,
// never a live file entry), the decoded payload must recover exactly what
// was encoded regardless of how many offsets get padded in past the
// terminal marker.
func FuzzIndexPayloadRoundTrip(f *testing.F) {
	f.Add(uint64(1024), []byte{})
	f.Add(uint64(1<<20), []byte{1, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0})

	f.Fuzz(func(t *testing.T, totalSize uint64, raw []byte) {
		var offsets []uint64

		for i := 0; i+8 <= len(raw) && len(offsets) < 200; i += 8 {
			v := binary.LittleEndian.Uint64(raw[i : i+8])
			offsets = append(offsets, (v%1_000_000+1)*blockSize)
		}

		payload := encodeIndexPayload(totalSize, offsets)

		gotSize, gotOffsets, ok := decodeIndexPayload(payload)
		if !ok {
			t.Fatalf("decodeIndexPayload reported ok=false for a payload this package just encoded")
		}

		if gotSize != totalSize {
			t.Fatalf("size mismatch: got %d, want %d", gotSize, totalSize)
		}

		if len(offsets) == 0 {
			offsets = nil
		}

		if !reflect.DeepEqual(gotOffsets, offsets) {
			t.Fatalf("offsets mismatch: got %v, want %v", gotOffsets, offsets)
		}
	})
}

// TestDecodeIndexPayload_TooShort confirms a payload too short to hold even
// the size slot and a terminal marker is reported as not-ok rather than
// panicking or silently truncating.
func TestDecodeIndexPayload_TooShort(t *testing.T) {
	_, _, ok := decodeIndexPayload(make([]byte, indexSlotSize))
	if ok {
		t.Fatal("expected ok=false for a too-short payload")
	}
}

// TestDecodeIndexPayload_SkipsDeletedSlots confirms a slot holding the
// soft-deleted marker (0) is skipped rather than treated as a live offset.
func TestDecodeIndexPayload_SkipsDeletedSlots(t *testing.T) {
	// encodeIndexPayload never emits a literal deleted marker itself (it
	// only ever writes offsets passed in plus the terminal marker), so
	// this test drives the skip path directly by hand-building a payload
	// with an embedded zero slot.
	buf := make([]byte, 4*indexSlotSize)
	binary.LittleEndian.PutUint64(buf[0:8], 4096)
	binary.LittleEndian.PutUint64(buf[8:16], 512)
	binary.LittleEndian.PutUint64(buf[16:24], indexDeletedMarker)
	binary.LittleEndian.PutUint64(buf[24:32], indexEndMarker)

	_, offsets, ok := decodeIndexPayload(buf)
	if !ok {
		t.Fatal("decodeIndexPayload reported ok=false")
	}

	if !reflect.DeepEqual(offsets, []uint64{512}) {
		t.Fatalf("got %v, want [512]", offsets)
	}
}
