package impl

import "sort"

// Compaction describes one round of merging inputs[0] (the level being
// compacted) with inputs[1] (its overlapping files in level+1) into level+1.
type Compaction struct {
	level Level
	vset  *VersionSet

	inputs [2][]*FileMetaData

	edit VersionEdit
}

// Release does nothing. Inputs are plain FileMetaData pointers owned by the
// version set, not ref-counted per-compaction, so there is no reference to
// drop; callers still pair each compaction with defer c.Release().
func (c *Compaction) Release() {}

// IsTrivial reports whether this compaction can be satisfied by simply
// moving the single level-N file into level N+1 without rewriting it: one
// level-N input and no overlapping level-N+1 file. Overlap with level N+2
// (the grandparents) is not considered.
func (c *Compaction) IsTrivial() bool {
	return len(c.inputs[0]) == 1 && len(c.inputs[1]) == 0
}

// getOverlappingFiles returns every file in level whose key range
// intersects [begin, end], expanding the range to cover each match in turn
// so overlapping chains (common in L0, where files aren't disjoint) are
// fully captured.
func (v *Version) getOverlappingFiles(level Level, begin, end []byte) []*FileMetaData {
	icmp := v.vset.icmp
	var result []*FileMetaData

	for i := 0; i < len(v.files[level]); i++ {
		f := v.files[level][i]
		if icmp.Compare(f.largest, begin) < 0 || icmp.Compare(f.smallest, end) > 0 {
			continue
		}
		result = append(result, f)

		if level == 0 {
			// This file extends the range; files earlier in the slice that
			// didn't overlap the original range may overlap the expanded
			// one, so restart the scan.
			if icmp.Compare(f.smallest, begin) < 0 {
				begin = f.smallest
				result = result[:0]
				i = -1
				continue
			} else if icmp.Compare(f.largest, end) > 0 {
				end = f.largest
				result = result[:0]
				i = -1
				continue
			}
		}
	}

	return result
}

// addBoundaryInputs extends compactionFiles to also include any file in
// levelFiles whose smallest key shares a user key with the last included
// file's largest key. Internal keys for the same user key sort by
// decreasing sequence number, so a user key can straddle a file boundary
// with its newer version in one file and an older version in the next;
// leaving the older version behind would let a deletion or overwrite in
// the compacted file become visible again.
func addBoundaryInputs(icmp *InternalKeyComparator, levelFiles []*FileMetaData, compactionFiles *[]*FileMetaData) {
	if len(*compactionFiles) == 0 {
		return
	}

	for {
		last := (*compactionFiles)[len(*compactionFiles)-1]
		lastUserKey := ExtractUserKey(last.largest)

		var next *FileMetaData
		for _, f := range levelFiles {
			if icmp.userCmp.Compare(ExtractUserKey(f.smallest), lastUserKey) == 0 {
				already := false
				for _, c := range *compactionFiles {
					if c.number == f.number {
						already = true
						break
					}
				}
				if !already {
					next = f
					break
				}
			}
		}

		if next == nil {
			return
		}
		*compactionFiles = append(*compactionFiles, next)
	}
}

// NeedsCompaction reports whether the current version's highest compaction
// score crosses the trigger threshold, or a file has exhausted its seek
// budget.
func (vs *VersionSet) NeedsCompaction() bool {
	if vs.current.compactionScore >= 1 {
		return true
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.fileToCompact != nil
}

// PickCompaction selects the next compaction to run, preferring a file
// whose size/count score triggered a size-driven compaction and falling
// back to a seek-exhausted file. Returns nil if nothing needs compacting.
func (vs *VersionSet) PickCompaction() *Compaction {
	v := vs.current
	icmp := vs.icmp

	var level Level
	sizeCompaction := v.compactionScore >= 1
	if sizeCompaction {
		level = v.compactionLevel
	} else if f, lv, ok := vs.PickSeekCompaction(); ok {
		level = lv
		c := &Compaction{level: level, vset: vs}
		c.inputs[0] = []*FileMetaData{f}
		vs.setupOtherInputs(c)
		return c
	} else {
		return nil
	}

	c := &Compaction{level: level, vset: vs}

	files := append([]*FileMetaData{}, v.files[level]...)
	sort.Slice(files, func(i, j int) bool {
		return icmp.Compare(files[i].smallest, files[j].smallest) < 0
	})

	startIdx := 0
	if cp := vs.compactPointer[level]; len(cp) > 0 {
		startIdx = sort.Search(len(files), func(i int) bool {
			return icmp.Compare(files[i].largest, cp) > 0
		})
	}
	if startIdx >= len(files) {
		startIdx = 0
	}

	anchor := files[startIdx]
	if level == 0 {
		// L0 files can overlap each other; absorb the whole overlapping
		// chain starting from the anchor instead of just the one file.
		c.inputs[0] = v.getOverlappingFiles(0, anchor.smallest, anchor.largest)
	} else {
		c.inputs[0] = []*FileMetaData{anchor}
	}

	vs.setupOtherInputs(c)
	return c
}

// setupOtherInputs fills in inputs[1] (the overlapping files in level+1),
// extends both input sets to cover user-key boundaries, and advances the
// level's compaction pointer past what was selected.
func (vs *VersionSet) setupOtherInputs(c *Compaction) {
	v := vs.current
	icmp := vs.icmp

	addBoundaryInputs(icmp, v.files[c.level], &c.inputs[0])

	smallest, largest := compactionRange(icmp, c.inputs[0])

	if c.level+1 < NumLevels {
		c.inputs[1] = v.getOverlappingFiles(c.level+1, smallest, largest)
		addBoundaryInputs(icmp, v.files[c.level+1], &c.inputs[1])
	}

	if len(c.inputs[0]) > 0 {
		last := c.inputs[0][len(c.inputs[0])-1]
		for _, f := range c.inputs[0] {
			if icmp.Compare(f.largest, last.largest) > 0 {
				last = f
			}
		}
		vs.compactPointer[c.level] = append([]byte(nil), last.largest...)
	}
}

const (
	maxMemCompactLevel         = 2
	maxGrandParentOverlapBytes = 20 * 1048576
)

// overlapsLevel reports whether [smallestUserKey, largestUserKey] overlaps
// any file in level.
func (v *Version) overlapsLevel(level Level, smallestUserKey, largestUserKey []byte) bool {
	begin := newInternalKey(smallestUserKey, MaxSequenceNumber, TypeForSeek)
	end := newInternalKey(largestUserKey, 0, 0)
	return len(v.getOverlappingFiles(level, begin, end)) > 0
}

// PickLevelForMemTableOutput chooses the level a freshly flushed memtable's
// sstable should land in: level 0 if it would overlap level 0 or pushing it
// down would overlap too much of the grandparent level, otherwise the
// deepest level (up to maxMemCompactLevel) that avoids both.
func (vs *VersionSet) PickLevelForMemTableOutput(smallestUserKey, largestUserKey []byte) Level {
	v := vs.current
	level := 0
	if v.overlapsLevel(0, smallestUserKey, largestUserKey) {
		return level
	}

	begin := newInternalKey(smallestUserKey, MaxSequenceNumber, TypeForSeek)
	end := newInternalKey(largestUserKey, 0, 0)

	for level < maxMemCompactLevel {
		if v.overlapsLevel(level+1, smallestUserKey, largestUserKey) {
			break
		}
		if level+2 < NumLevels {
			overlaps := v.getOverlappingFiles(level+2, begin, end)
			if totalFileSize(overlaps) > maxGrandParentOverlapBytes {
				break
			}
		}
		level++
	}
	return level
}

func compactionRange(icmp *InternalKeyComparator, files []*FileMetaData) (smallest, largest []byte) {
	for _, f := range files {
		if smallest == nil || icmp.Compare(f.smallest, smallest) < 0 {
			smallest = f.smallest
		}
		if largest == nil || icmp.Compare(f.largest, largest) > 0 {
			largest = f.largest
		}
	}
	return smallest, largest
}
