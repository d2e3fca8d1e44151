package archive_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robohen/robohen/internal/vfs"
	"github.com/robohen/robohen/pkg/archive"
)

// TestCheckInvariants_Clean exercises CheckInvariants against a sequence of
// operations that covers every structural shape it inspects: an unsplit
// file, a file split across several partitions, a chain that needed a
// collision suffix (spec.md §4.4.2 - the exact scenario that used to trip
// invariant 5), an append that grows an existing chain, a truncate that
// shrinks one, and a delete. None of it should ever report a violation.
func TestCheckInvariants_Clean(t *testing.T) {
	ctx := context.Background()
	m := openTestArchive(t, archive.Options{MaxPartitionSize: 4096})

	require.NoError(t, m.WriteFile(ctx, "a.txt", []byte("hello")))

	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i % 251)
	}

	require.NoError(t, m.WriteFile(ctx, "big.bin", data))

	// An unrelated unsplit file squatting on the physical name "big"'s
	// first partition would otherwise claim, forcing "big" below onto a
	// collision suffix when it splits (spec.md §4.4.2).
	require.NoError(t, m.WriteFile(ctx, "big.part1", []byte("unrelated")))

	collidingData := make([]byte, 5000)
	require.NoError(t, m.WriteFile(ctx, "big", collidingData))

	require.NoError(t, m.AppendFile(ctx, "big.bin", []byte("tail bytes")))
	require.NoError(t, m.TruncateFile(ctx, "a.txt", 2))
	require.NoError(t, m.DeleteFile(ctx, "big"))

	violations, err := m.CheckInvariants(ctx)
	require.NoError(t, err)
	require.Empty(t, violations)
}

// TestCheckInvariants_AfterReopen confirms the walk still passes after a
// rebuild-from-index reopen, since CheckInvariants reads Manager state that
// load() populates two different ways (trust the persistent index, or
// rescan from scratch).
func TestCheckInvariants_AfterReopen(t *testing.T) {
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "reopen.robohen")
	opts := archive.Options{Path: path, MaxPartitionSize: 4096}

	m1, err := archive.Open(ctx, vfs.NewReal(), opts)
	require.NoError(t, err)

	data := make([]byte, 9000)
	require.NoError(t, m1.WriteFile(ctx, "big.bin", data))
	require.NoError(t, m1.Close(ctx))

	m2, err := archive.Open(ctx, vfs.NewReal(), opts)
	require.NoError(t, err)

	t.Cleanup(func() { _ = m2.Close(ctx) })

	violations, err := m2.CheckInvariants(ctx)
	require.NoError(t, err)
	require.Empty(t, violations)
}
