package archive

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// FuzzPaxRecordRoundTrip exercises writePaxRecord/decodePaxRecords' shared
// fixed-point length prefix (spec.md §4.2): for any key/value pair that does
// not itself contain '=' (which would make the record ambiguous to split on
// decode, not a decoder bug), encoding then decoding must recover exactly
// the original pair regardless of how the digit count of the length prefix
// interacts with the record's own length.
func FuzzPaxRecordRoundTrip(f *testing.F) {
	f.Add("ROBOHEN_FILE_NAME", "big.bin")
	f.Add("path", "")
	f.Add("ROBOHEN_NEXT_PART_OFFSET", "00000000000000000000")
	f.Add("x", strings.Repeat("y", 5000))
	f.Add("k", "v\nwith\nembedded\nnewlines")

	f.Fuzz(func(t *testing.T, key, value string) {
		if key == "" || strings.Contains(key, "=") {
			t.Skip("key containing '=' is not round-trippable through the first-'=' split")
		}

		var buf bytes.Buffer

		writePaxRecord(&buf, key, value)

		records, err := decodePaxRecords(buf.Bytes(), 0)
		if err != nil {
			t.Fatalf("decodePaxRecords: %v", err)
		}

		if len(records) != 1 {
			t.Fatalf("got %d records, want 1", len(records))
		}

		if records[0][0] != key || records[0][1] != value {
			t.Fatalf("round trip mismatch: got (%q,%q), want (%q,%q)", records[0][0], records[0][1], key, value)
		}
	})
}

// FuzzUstarHeaderRoundTrip exercises encodeUstar/decodeUstar's checksum and
// octal field encoding over arbitrary field values.
func FuzzUstarHeaderRoundTrip(f *testing.F) {
	f.Add("a.txt", int64(0o644), uint64(0), int64(0))
	f.Add(strings.Repeat("n", 99), int64(0o777), uint64(1<<32), int64(-1))
	f.Add("", int64(0), uint64(0), int64(0))

	f.Fuzz(func(t *testing.T, name string, mode int64, size uint64, mtime int64) {
		if strings.ContainsRune(name, 0) {
			t.Skip("a NUL byte truncates a ustar name field on decode, same as a C string - not a round-trip bug")
		}

		if mode < 0 {
			mode = -mode
		}

		if mtime < 0 {
			mtime = -mtime
		}

		// The 12-byte ustar size field holds 11 octal digits (max
		// 8^11-1), comfortably above MaxPartitionSize (7 GiB) but below
		// the full uint64 range the fuzzer can generate; keep fuzzed
		// sizes within the field's actual capacity.
		size %= 1 << 32

		h := ustarHeader{
			Name:     name,
			Mode:     mode,
			Size:     size,
			Mtime:    mtime,
			Typeflag: typeflagRegular,
		}

		buf := encodeUstar(h)
		if len(buf) != blockSize {
			t.Fatalf("encoded header is %d bytes, want %d", len(buf), blockSize)
		}

		got, err := decodeUstar(buf, 0)
		if err != nil {
			t.Fatalf("decodeUstar: %v", err)
		}

		wantName := name
		if len(wantName) > ustarLenName {
			wantName = wantName[:ustarLenName]
		}

		if got.Name != wantName {
			t.Fatalf("name mismatch: got %q, want %q", got.Name, wantName)
		}

		if got.Size != size {
			t.Fatalf("size mismatch: got %d, want %d", got.Size, size)
		}

		if got.Typeflag != typeflagRegular {
			t.Fatalf("typeflag mismatch: got %q", got.Typeflag)
		}
	})
}

// TestDecodePaxRecords_RejectsLengthMismatch confirms a declared length that
// doesn't match the record's actual on-disk length is corruption, not a
// silently tolerated encoding quirk (spec.md §4.2's "decoder rejects records
// whose declared length does not match their on-disk length").
func TestDecodePaxRecords_RejectsLengthMismatch(t *testing.T) {
	_, err := decodePaxRecords([]byte("999 path=x\n"), 0)
	if err == nil {
		t.Fatal("expected error for an over-long declared length")
	}

	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected *CorruptError, got %T: %v", err, err)
	}
}
