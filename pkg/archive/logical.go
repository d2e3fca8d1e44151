package archive

import "context"

// readLogicalFile concatenates the payload of every partition in name's
// chain, in chain order (spec.md §4.5).
func readLogicalFile(ctx context.Context, b *blockIO, cache *entryCache, name string) ([]byte, bool, error) {
	head, ok := cache.byLogicalLookup(name)
	if !ok {
		return nil, false, nil
	}

	chain := cache.chain(head)

	var total uint64
	for _, e := range chain {
		total += e.size
	}

	out := make([]byte, 0, total)

	for _, e := range chain {
		if err := checkContext(ctx); err != nil {
			return nil, false, err
		}

		part, err := b.readAt(e.dataOffset, e.size)
		if err != nil {
			return nil, false, err
		}

		out = append(out, part...)
	}

	return out, true, nil
}

// readLogicalChunk reads length bytes of name's logical content starting at
// offset, resolving which partition(s) the range falls in without reading
// any partition's content outside the requested range (spec.md §4.5).
func readLogicalChunk(ctx context.Context, b *blockIO, cache *entryCache, name string, offset, length uint64) ([]byte, bool, error) {
	head, ok := cache.byLogicalLookup(name)
	if !ok {
		return nil, false, nil
	}

	chain := cache.chain(head)

	out := make([]byte, 0, length)

	var pos uint64

	for _, e := range chain {
		partStart := pos
		partEnd := pos + e.size
		pos = partEnd

		if len(out) >= int(length) {
			break
		}

		rangeStart := offset
		if rangeStart < partStart {
			rangeStart = partStart
		}

		rangeEnd := offset + length
		if rangeEnd > partEnd {
			rangeEnd = partEnd
		}

		if rangeStart >= rangeEnd {
			continue
		}

		if err := checkContext(ctx); err != nil {
			return nil, false, err
		}

		readLen := rangeEnd - rangeStart
		data, err := b.readAt(e.dataOffset+(rangeStart-partStart), readLen)
		if err != nil {
			return nil, false, err
		}

		out = append(out, data...)
	}

	return out, true, nil
}

// fileStream is a lazy, restartable, forward-only sequence over one
// logical file's content, bound to the archive handle's lifetime
// (spec.md §4.5).
type fileStream struct {
	b     *blockIO
	chain []*entry
	index int
	off   uint64 // offset within the current partition
}

func newFileStream(cache *entryCache, b *blockIO, name string) (*fileStream, bool) {
	head, ok := cache.byLogicalLookup(name)
	if !ok {
		return nil, false
	}

	return &fileStream{b: b, chain: cache.chain(head)}, true
}

// Reset rewinds the stream to the start of the file's content.
func (s *fileStream) Reset() {
	s.index = 0
	s.off = 0
}

// Next returns up to maxLen bytes of the stream's remaining content. It
// returns ok=false once the stream is exhausted.
func (s *fileStream) Next(ctx context.Context, maxLen uint64) ([]byte, bool, error) {
	for s.index < len(s.chain) {
		e := s.chain[s.index]
		if s.off >= e.size {
			s.index++
			s.off = 0

			continue
		}

		if err := checkContext(ctx); err != nil {
			return nil, false, err
		}

		remaining := e.size - s.off

		n := maxLen
		if remaining < n {
			n = remaining
		}

		data, err := s.b.readAt(e.dataOffset+s.off, n)
		if err != nil {
			return nil, false, err
		}

		s.off += n

		return data, true, nil
	}

	return nil, false, nil
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ErrCancelled
	default:
		return nil
	}
}
