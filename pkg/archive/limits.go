package archive

// Hardcoded format and configuration limits (spec.md §6).
const (
	// MaxPartitionSize is the hard upper bound on Options.MaxPartitionSize.
	MaxPartitionSize = 7 * (1 << 30) // 7 GiB

	// DefaultMaxPartitionSize is used when Options.MaxPartitionSize is zero.
	DefaultMaxPartitionSize = MaxPartitionSize

	// DefaultSectorSize is used when Options.SectorSize is zero.
	DefaultSectorSize = 512

	// DefaultTargetBufferSize is used when Options.TargetBufferSize is zero.
	DefaultTargetBufferSize = 4096

	// blockSize is the fixed POSIX TAR block size; every header and every
	// payload is padded to a multiple of it.
	blockSize = 512

	// minIndexSlots is the minimum number of 8-byte slots the persistent
	// index payload is padded to hold (§4.6).
	minIndexSlots = 50

	// indexSlotSize is the byte width of one persistent-index slot.
	indexSlotSize = 8

	// indexEndMarker is the slot value that terminates the index payload
	// regardless of trailing bytes.
	indexEndMarker = 1

	// indexDeletedMarker is the slot value for a soft-deleted entry; it is
	// skipped during index population.
	indexDeletedMarker = 0
)
