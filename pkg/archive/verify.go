package archive

import (
	"context"
	"strconv"
	"strings"
)

// CheckInvariants walks everything this Manager currently knows about - the
// index pointer, every cached file/partition entry, and the chain links
// between them - and reports every violation of spec.md §3's invariants it
// finds, in no particular order. A nil, nil return means none were found.
//
// ReadFile is no such check: it reads through the cached entries without
// re-decoding any header, and its chain walk stops quietly at a link that
// points to no live entry. Nor does it ever look at header alignment (1),
// the archive's trailing zero-block shape (3), PART_SUFFIX uniqueness (5),
// or a ROBOHEN_* attribute leaking into a ustar reserved field (7).
// CheckInvariants is the walk that does look.
func (m *Manager) CheckInvariants(ctx context.Context) ([]string, error) {
	var out []string

	err := m.withLock(ctx, false, func() error {
		var violations []string

		if m.pointer != nil {
			violations = append(violations, checkHeaderOffset("index pointer", m.pointer.headerOffset)...)
		}

		violations = append(violations, checkHeaderOffset("index", m.indexOffset)...)

		entries := m.cache.all()

		for _, e := range entries {
			violations = append(violations, checkHeaderOffset(e.name, e.headerOffset)...)
			violations = append(violations, checkReservedAttrLeak(e)...)
		}

		violations = append(violations, checkChains(m.cache, entries)...)

		trailer, err := checkTrailer(m)
		if err != nil {
			return err
		}

		violations = append(violations, trailer...)

		out = violations

		return nil
	})

	return out, err
}

// checkHeaderOffset is invariant 1: every physical entry's header offset is
// a multiple of 512.
func checkHeaderOffset(label string, offset uint64) []string {
	if offset%blockSize != 0 {
		return []string{label + ": header offset " + strconv.FormatUint(offset, 10) + " is not a multiple of 512 (invariant 1)"}
	}

	return nil
}

// checkReservedAttrLeak is invariant 7: no ROBOHEN_* attribute appears in a
// ustar reserved field. e.name is decoded from the entry's PAX "path"
// record (falling back to the ustar Name field only when no PAX path
// record was present at all), so a ROBOHEN_ prefix surviving into it means
// an attribute leaked out of the PAX block it belongs in.
func checkReservedAttrLeak(e *entry) []string {
	if strings.HasPrefix(e.name, "ROBOHEN_") {
		return []string{e.name + ": ROBOHEN_ attribute name leaked into a ustar reserved field (invariant 7)"}
	}

	return nil
}

// checkChains is invariants 4 and 5: for every chain reachable from a
// ROBOHEN_FILE_NAME head, NEXT/PREV links must agree in both directions,
// the chain must be finite (acyclic), and PART_SUFFIX must appear nowhere
// but the head.
func checkChains(cache *entryCache, entries []*entry) []string {
	var violations []string

	for _, head := range entries {
		logicalName, hasName := head.attrs[AttrFileName]
		if !hasName || logicalName == "" {
			continue
		}

		visited := make(map[uint64]bool)

		cur := head
		idx := 0

		for cur != nil {
			if visited[cur.headerOffset] {
				violations = append(violations, logicalName+": chain contains a cycle at "+cur.name+" (invariant 4)")

				break
			}

			visited[cur.headerOffset] = true

			if suffix, ok := cur.partSuffix(); ok && suffix != "" && idx != 0 {
				violations = append(violations, logicalName+": "+cur.name+" carries ROBOHEN_PART_SUFFIX but is not the chain head (invariant 5)")
			}

			next, ok := cur.nextPartOffset()
			if !ok {
				break
			}

			nextEntry, found := cache.byOffsetLookup(next)
			if !found {
				violations = append(violations, logicalName+": "+cur.name+"'s ROBOHEN_NEXT_PART_OFFSET points to no live entry (invariant 4)")

				break
			}

			if prev, ok := nextEntry.prevPartOffset(); !ok || prev != cur.headerOffset {
				violations = append(violations, logicalName+": "+nextEntry.name+"'s ROBOHEN_PREV_PART_OFFSET does not point back to "+cur.name+" (invariant 4)")
			}

			cur = nextEntry
			idx++
		}
	}

	return violations
}

// checkTrailer is invariant 3: the archive ends with exactly two 512-byte
// zero blocks, immediately after the index entry finalize last wrote.
func checkTrailer(m *Manager) ([]string, error) {
	idx, err := decodeEntryAt(m.b, m.indexOffset)
	if err != nil {
		return nil, err
	}

	wantEnd := idx.headerOffset + entrySpan(idx) + 2*blockSize

	size, err := m.b.size()
	if err != nil {
		return nil, err
	}

	if size != wantEnd {
		return []string{"archive size " + strconv.FormatUint(size, 10) + " does not end exactly two blocks past the index entry (invariant 3)"}, nil
	}

	trailer, err := m.b.readAt(wantEnd-2*blockSize, 2*blockSize)
	if err != nil {
		return nil, err
	}

	if !isZeroBlock(trailer) {
		return []string{"final two 512-byte blocks are not all-zero (invariant 3)"}, nil
	}

	return nil, nil
}
