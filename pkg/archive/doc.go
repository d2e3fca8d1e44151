// Package archive implements ROBOHEN: a POSIX TAR archive engine augmented
// with a custom PAX metadata layer that gives random-access read/write of
// logical files transparently split into fixed-size partitions.
//
// Callers manipulate logical files by name through [Manager]. Internally
// each logical file is stored as one or more physical TAR entries
// ("partitions") linked by a bidirectional chain recorded in PAX extended
// header attributes (see [AttrFileName] and friends). A persistent index
// entry lets [Open] skip a full archive scan when the archive was closed
// cleanly and has not been mutated externally since.
//
// # Basic usage
//
//	mgr, err := archive.Open(ctx, vfs.NewReal(), archive.Options{Path: "data.tar"})
//	if err != nil {
//	    // handle error
//	}
//	defer mgr.Close(ctx)
//
//	err = mgr.WriteFile(ctx, "hello.txt", []byte("hello"))
//	data, err := mgr.ReadFile(ctx, "hello.txt")
//
// # Concurrency
//
// A [Manager] serializes all operations on its single underlying file
// handle behind a mutex; see [Manager] for the full discipline. A [Manager]
// is safe for concurrent use by multiple goroutines within one process; it
// does not coordinate across processes (see Non-goals).
//
// # Error handling
//
// Errors are classified via errors.Is against the sentinels in errors.go
// ([ErrNotFound], [ErrExists], [ErrCorrupt], [ErrReadOnly], and so on).
// [ErrCorrupt] at [Open] triggers an automatic index rebuild; callers never
// see it unless the rebuild itself cannot proceed.
package archive
