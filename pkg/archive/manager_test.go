package archive_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/robohen/robohen/internal/vfs"
	"github.com/robohen/robohen/pkg/archive"
)

func openTestArchive(t *testing.T, opts archive.Options) *archive.Manager {
	t.Helper()

	opts.Path = filepath.Join(t.TempDir(), "test.robohen")

	m, err := archive.Open(context.Background(), vfs.NewReal(), opts)
	require.NoError(t, err)

	t.Cleanup(func() { _ = m.Close(context.Background()) })

	return m
}

func TestWriteReadRoundTrip_SmallFile(t *testing.T) {
	ctx := context.Background()
	m := openTestArchive(t, archive.Options{})

	require.NoError(t, m.WriteFile(ctx, "a.txt", []byte("hello")))

	got, err := m.ReadFile(ctx, "a.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	files, err := m.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "a.txt", files[0].Name)
	require.Empty(t, files[0].Parts)
}

func TestWriteFile_SplitsAcrossPartitions(t *testing.T) {
	ctx := context.Background()
	m := openTestArchive(t, archive.Options{MaxPartitionSize: 4096})

	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i % 251)
	}

	require.NoError(t, m.WriteFile(ctx, "big.bin", data))

	files, err := m.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "big.bin", files[0].Name)
	require.Len(t, files[0].Parts, 3)
	require.Equal(t, uint64(len(data)), files[0].Size)

	got, err := m.ReadFile(ctx, "big.bin")
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestWriteFile_CollisionSuffix(t *testing.T) {
	ctx := context.Background()
	m := openTestArchive(t, archive.Options{MaxPartitionSize: 4096})

	// An unrelated logical file that happens to occupy the physical name
	// "big"'s first partition would otherwise claim.
	require.NoError(t, m.WriteFile(ctx, "big.part1", []byte("unrelated")))

	data := make([]byte, 5000)

	// Splitting "big" now collides with "big.part1" above, so its own
	// partitions get a collision suffix (spec.md §4.4.2).
	require.NoError(t, m.WriteFile(ctx, "big", data))

	raw, err := m.ListRawEntries(ctx)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, r := range raw {
		names[r.Name] = true
	}

	require.True(t, names["big.part1"])
	require.True(t, names["big.a.part1"])
	require.True(t, names["big.a.part2"])

	got, err := m.ReadFile(ctx, "big")
	require.NoError(t, err)
	require.Equal(t, data, got)

	unrelated, err := m.ReadFile(ctx, "big.part1")
	require.NoError(t, err)
	require.Equal(t, []byte("unrelated"), unrelated)
}

// TestListFiles_StructuralDiff diffs the whole returned slice against what's
// expected instead of asserting field by field, so a future regression
// shows exactly which file/field moved.
func TestListFiles_StructuralDiff(t *testing.T) {
	ctx := context.Background()
	m := openTestArchive(t, archive.Options{MaxPartitionSize: 4096})

	require.NoError(t, m.WriteFile(ctx, "a.txt", []byte("hello")))
	require.NoError(t, m.WriteFile(ctx, "b.bin", make([]byte, 9000)))

	got, err := m.ListFiles(ctx)
	require.NoError(t, err)

	want := []archive.LogicalFile{
		{Name: "a.txt", Size: 5},
		{Name: "b.bin", Size: 9000, Parts: []string{"b.bin.part1", "b.bin.part2", "b.bin.part3"}},
	}

	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("ListFiles() mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendFile(t *testing.T) {
	ctx := context.Background()
	m := openTestArchive(t, archive.Options{})

	require.NoError(t, m.WriteFile(ctx, "log.txt", []byte("one\n")))
	require.NoError(t, m.AppendFile(ctx, "log.txt", []byte("two\n")))

	got, err := m.ReadFile(ctx, "log.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("one\ntwo\n"), got)
}

func TestTruncateFile(t *testing.T) {
	ctx := context.Background()
	m := openTestArchive(t, archive.Options{})

	require.NoError(t, m.WriteFile(ctx, "f", []byte("0123456789")))
	require.NoError(t, m.TruncateFile(ctx, "f", 4))

	got, err := m.ReadFile(ctx, "f")
	require.NoError(t, err)
	require.Equal(t, []byte("0123"), got)
}

func TestDeleteFile(t *testing.T) {
	ctx := context.Background()
	m := openTestArchive(t, archive.Options{})

	require.NoError(t, m.WriteFile(ctx, "f", []byte("x")))
	require.NoError(t, m.DeleteFile(ctx, "f"))

	_, err := m.ReadFile(ctx, "f")
	require.ErrorIs(t, err, archive.ErrNotFound)

	files, err := m.ListFiles(ctx)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestRenameFile(t *testing.T) {
	ctx := context.Background()
	m := openTestArchive(t, archive.Options{})

	require.NoError(t, m.WriteFile(ctx, "old.txt", []byte("payload")))
	require.NoError(t, m.RenameFile(ctx, "old.txt", "new.txt"))

	_, err := m.ReadFile(ctx, "old.txt")
	require.ErrorIs(t, err, archive.ErrNotFound)

	got, err := m.ReadFile(ctx, "new.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
}

func TestReadFileChunk(t *testing.T) {
	ctx := context.Background()
	m := openTestArchive(t, archive.Options{MaxPartitionSize: 8})

	require.NoError(t, m.WriteFile(ctx, "f", []byte("0123456789abcdef")))

	got, err := m.ReadFileChunk(ctx, "f", 5, 6)
	require.NoError(t, err)
	require.Equal(t, []byte("56789a"), got)
}

func TestStreamFile(t *testing.T) {
	ctx := context.Background()
	m := openTestArchive(t, archive.Options{MaxPartitionSize: 4})

	require.NoError(t, m.WriteFile(ctx, "f", []byte("0123456789")))

	s, err := m.StreamFile(ctx, "f")
	require.NoError(t, err)

	var out []byte

	for {
		chunk, ok, err := s.Next(ctx, 3)
		require.NoError(t, err)

		if !ok {
			break
		}

		out = append(out, chunk...)
	}

	require.Equal(t, []byte("0123456789"), out)
}

func TestReopen_UsesPersistentIndex(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "reopen.robohen")

	m1, err := archive.Open(ctx, vfs.NewReal(), archive.Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, m1.WriteFile(ctx, "a", []byte("1")))
	require.NoError(t, m1.WriteFile(ctx, "b", []byte("2")))
	require.NoError(t, m1.Close(ctx))

	m2, err := archive.Open(ctx, vfs.NewReal(), archive.Options{Path: path})
	require.NoError(t, err)

	t.Cleanup(func() { _ = m2.Close(ctx) })

	files, err := m2.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestReopen_RebuildsWhenExternallyAppended(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "external-append.robohen")

	m1, err := archive.Open(ctx, vfs.NewReal(), archive.Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, m1.WriteFile(ctx, "a", []byte("1")))
	require.NoError(t, m1.Close(ctx))

	fs := vfs.NewReal()
	f, err := fs.OpenFile(path, os.O_RDONLY, 0o644)
	require.NoError(t, err)

	info, err := f.Stat()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Simulate an external tool growing the archive without updating the
	// index: the size recorded in the persistent index's slot 0 no longer
	// matches, which must force a rebuild on next open (spec.md §4.6).
	rw, err := fs.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, rw.Truncate(info.Size()+1024))
	require.NoError(t, rw.Close())

	m2, err := archive.Open(ctx, vfs.NewReal(), archive.Options{Path: path})
	require.NoError(t, err)

	t.Cleanup(func() { _ = m2.Close(ctx) })

	got, err := m2.ReadFile(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
}

func TestReadOnly_RejectsMutation(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "ro.robohen")

	m1, err := archive.Open(ctx, vfs.NewReal(), archive.Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, m1.WriteFile(ctx, "a", []byte("1")))
	require.NoError(t, m1.Close(ctx))

	m2, err := archive.Open(ctx, vfs.NewReal(), archive.Options{Path: path, ReadOnly: true})
	require.NoError(t, err)

	t.Cleanup(func() { _ = m2.Close(ctx) })

	err = m2.WriteFile(ctx, "b", []byte("2"))
	require.ErrorIs(t, err, archive.ErrReadOnly)

	got, err := m2.ReadFile(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)
}

func TestReadOnly_RebuildOnOpenNeverWrites(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "ro-rebuild.robohen")

	m1, err := archive.Open(ctx, vfs.NewReal(), archive.Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, m1.WriteFile(ctx, "a", []byte("hello")))
	require.NoError(t, m1.Close(ctx))

	fs := vfs.NewReal()

	f, err := fs.OpenFile(path, os.O_RDONLY, 0o644)
	require.NoError(t, err)

	info, err := f.Stat()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Invalidate the persistent index, forcing a rebuild on the next open
	// (spec.md §4.6), same as TestReopen_RebuildsWhenExternallyAppended.
	rw, err := fs.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, rw.Truncate(info.Size()+1024))
	require.NoError(t, rw.Close())

	before, err := fs.ReadFile(path)
	require.NoError(t, err)

	m2, err := archive.Open(ctx, vfs.NewReal(), archive.Options{Path: path, ReadOnly: true})
	require.NoError(t, err)

	got, err := m2.ReadFile(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	files, err := m2.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)

	s, err := m2.StreamFile(ctx, "a")
	require.NoError(t, err)

	_, ok, err := s.Next(ctx, 1024)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m2.Close(ctx))

	after, err := fs.ReadFile(path)
	require.NoError(t, err)

	// A read-only open must never write so much as a fresh index entry,
	// even when the rebuild-on-open path runs (spec.md §4.7, §8 scenario 6).
	require.Equal(t, before, after)
}

func TestInvalidName_Rejected(t *testing.T) {
	ctx := context.Background()
	m := openTestArchive(t, archive.Options{})

	err := m.WriteFile(ctx, "bad name!.txt", []byte("x"))
	require.ErrorIs(t, err, archive.ErrInvalidName)
}

func TestInvalidName_Sanitized(t *testing.T) {
	ctx := context.Background()
	m := openTestArchive(t, archive.Options{NamePolicy: archive.NamePolicySanitize})

	require.NoError(t, m.WriteFile(ctx, "bad name!.txt", []byte("x")))

	files, err := m.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.NotContains(t, files[0].Name, " ")
	require.NotContains(t, files[0].Name, "!")
}
