package archive

// Reserved PAX attribute names (spec.md §6, exactly these five).
const (
	AttrFileName    = "ROBOHEN_FILE_NAME"
	AttrNextPart    = "ROBOHEN_NEXT_PART_OFFSET"
	AttrPrevPart    = "ROBOHEN_PREV_PART_OFFSET"
	AttrPartSuffix  = "ROBOHEN_PART_SUFFIX"
	AttrIndexOffset = "ROBOHEN_INDEX_OFFSET"
)

// indexEntryName is the reserved physical name of the archive-level
// persistent index entry (spec.md §4.6). It is not itself a logical file
// name a caller can address.
const indexEntryName = ".robohen.index"

// NamePolicy controls how logical/partition names that fail POSIX portable
// filename validation are handled (spec.md §6).
type NamePolicy int

const (
	// NamePolicyReject returns [ErrInvalidName] for non-portable names.
	NamePolicyReject NamePolicy = iota

	// NamePolicySanitize rewrites non-portable characters to '_' instead
	// of rejecting the name.
	NamePolicySanitize
)

// Options configures [Open].
type Options struct {
	// Path is the archive file's path on disk. Required.
	Path string

	// MaxPartitionSize is the largest a single partition's payload may be,
	// in bytes. Must be <= [MaxPartitionSize]. Zero means
	// [DefaultMaxPartitionSize].
	MaxPartitionSize uint64

	// SectorSize is the unit the Block I/O buffer size is rounded up to;
	// must be a power of two. Zero means [DefaultSectorSize] (or a probed
	// value, supplied by callers via internal/sectorsize).
	SectorSize uint64

	// TargetBufferSize is the preferred I/O transfer size; it is rounded
	// up to a multiple of SectorSize. Zero means
	// [DefaultTargetBufferSize].
	TargetBufferSize uint64

	// ReadOnly opens the archive without permitting mutation; all
	// mutating Manager methods return [ErrReadOnly].
	ReadOnly bool

	// NamePolicy controls handling of non-portable names. Zero means
	// [NamePolicyReject].
	NamePolicy NamePolicy
}

// RawEntry describes one physical TAR entry as returned by
// [Manager.ListRawEntries].
type RawEntry struct {
	Name         string
	Size         uint64
	HeaderOffset uint64
	DataOffset   uint64
	// NextPartName/PrevPartName are the physical names of the adjacent
	// partitions in this entry's chain, or "" at the tail/head.
	NextPartName string
	PrevPartName string
}

// LogicalFile describes one logical file as returned by
// [Manager.ListFiles].
type LogicalFile struct {
	Name string
	Size uint64
	// Parts lists the physical partition names in chain order. Empty for
	// a non-partitioned logical file.
	Parts []string
}

// entry is the in-memory representation of one physical TAR entry, as held
// by the entry cache (spec.md §4.3).
type entry struct {
	name         string
	size         uint64
	headerOffset uint64
	dataOffset   uint64

	// ustar fields preserved across rewrites that only touch PAX blocks.
	mode     int64
	uid      int64
	gid      int64
	mtime    int64
	typeflag byte

	// attrs holds the decoded ROBOHEN_* PAX attributes for this entry. Every
	// ordinary file entry and the index pointer carry one; nil only for
	// entries this package never writes itself (e.g. foreign TAR content
	// encountered by the lenient rebuild scan).
	attrs map[string]string

	// attrOrder preserves the record order attrs was decoded in, so a later
	// in-place patch (e.g. updating ROBOHEN_NEXT_PART_OFFSET) re-encodes to
	// the exact same byte length.
	attrOrder []string

	// attrsBlockOffset/attrsBlockLen locate this entry's ROBOHEN_* PAX
	// header block(s) on disk, enabling the fixed-width offset attributes
	// to be patched in place (§4.4 step 3).
	attrsBlockOffset uint64
	attrsBlockLen    uint64

	// headName is this entry's own ROBOHEN_FILE_NAME, which only a chain
	// head carries (for a non-partitioned entry it equals name). For any
	// other partition it is "" when the entry was just written, and the
	// entry's physical name when it was decoded from disk.
	headName string
}

func (e *entry) isPartition() bool {
	return e.attrs != nil
}

// nextPartOffset returns the header offset of the next partition in this
// entry's chain. Offset 0 is reserved to mean "absent" (it is always
// occupied by the archive-level index pointer entry), so a present-but-zero
// attribute reports ok=false.
func (e *entry) nextPartOffset() (uint64, bool) {
	v, ok := attrOffset(e.attrs, AttrNextPart)
	if !ok || v == 0 {
		return 0, false
	}

	return v, true
}

func (e *entry) prevPartOffset() (uint64, bool) {
	v, ok := attrOffset(e.attrs, AttrPrevPart)
	if !ok || v == 0 {
		return 0, false
	}

	return v, true
}

func (e *entry) partSuffix() (string, bool) {
	if e.attrs == nil {
		return "", false
	}

	v, ok := e.attrs[AttrPartSuffix]

	return v, ok
}
