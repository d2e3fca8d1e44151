package archive

// entryCache is the in-memory index of all physical entries, keyed by name
// and by offset, both views preserving insertion order (spec.md §4.3).
//
// entryCache is not safe for concurrent use; callers (the archive
// [Manager]) serialize access to it under the same mutex that guards the
// file handle.
type entryCache struct {
	order     []*entry
	byName    map[string]*entry
	byLogical map[string]*entry
	byOffset  map[uint64]*entry
}

func newEntryCache() *entryCache {
	return &entryCache{
		byName:    make(map[string]*entry),
		byLogical: make(map[string]*entry),
		byOffset:  make(map[uint64]*entry),
	}
}

// add inserts e, appending it to the insertion-order list. If e carries a
// non-empty ROBOHEN_FILE_NAME (i.e. it is the head of a logical file's
// chain), it is also indexed by that logical name: the physical name of a
// split file's partitions always carries a ".partN" suffix (spec.md
// §4.4.2) and is never equal to the logical name callers address it by.
func (c *entryCache) add(e *entry) {
	c.order = append(c.order, e)
	c.byName[e.name] = e
	c.byOffset[e.headerOffset] = e

	if logicalName, ok := e.attrs[AttrFileName]; ok && logicalName != "" {
		c.byLogical[logicalName] = e
	}
}

// removeByOffset removes the entry at offset, if any, from all views.
func (c *entryCache) removeByOffset(offset uint64) {
	e, ok := c.byOffset[offset]
	if !ok {
		return
	}

	delete(c.byOffset, offset)
	delete(c.byName, e.name)

	if logicalName, ok := e.attrs[AttrFileName]; ok && logicalName != "" {
		delete(c.byLogical, logicalName)
	}

	for i, cur := range c.order {
		if cur == e {
			c.order = append(c.order[:i], c.order[i+1:]...)

			break
		}
	}
}

func (c *entryCache) byNameLookup(name string) (*entry, bool) {
	e, ok := c.byName[name]

	return e, ok
}

// byLogicalLookup resolves a logical file name (what callers pass to
// [Manager.ReadFile] and friends) to its chain-head entry.
func (c *entryCache) byLogicalLookup(name string) (*entry, bool) {
	e, ok := c.byLogical[name]

	return e, ok
}

func (c *entryCache) byOffsetLookup(offset uint64) (*entry, bool) {
	e, ok := c.byOffset[offset]

	return e, ok
}

// all returns every cached entry in insertion order. The returned slice is
// owned by the cache; callers must not mutate it.
func (c *entryCache) all() []*entry {
	return c.order
}

func (c *entryCache) reset() {
	c.order = nil
	c.byName = make(map[string]*entry)
	c.byLogical = make(map[string]*entry)
	c.byOffset = make(map[uint64]*entry)
}

// chain walks the partition chain starting at head, following
// ROBOHEN_NEXT_PART_OFFSET, stopping on a missing link, an already-visited
// offset (cycle guard, spec.md §9), or a non-partition entry.
func (c *entryCache) chain(head *entry) []*entry {
	var out []*entry

	visited := make(map[uint64]bool)
	cur := head

	for cur != nil {
		if visited[cur.headerOffset] {
			break
		}

		visited[cur.headerOffset] = true
		out = append(out, cur)

		next, ok := cur.nextPartOffset()
		if !ok {
			break
		}

		nextEntry, ok := c.byOffsetLookup(next)
		if !ok {
			break
		}

		cur = nextEntry
	}

	return out
}
