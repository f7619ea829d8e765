package impl

import (
	"time"

	"github.com/augurdb/augur/db"
	"github.com/augurdb/augur/table"
	"github.com/augurdb/augur/util"
)

// makeInputIterator builds a merging iterator over every input file's
// internal-key iterator; deletions and superseded versions are resolved by
// doCompactionWork as it scans, not here.
func (d *dbImpl) makeInputIterator(c *Compaction) (db.Iterator, error) {
	var children []db.Iterator
	for _, input := range c.inputs {
		for _, f := range input {
			it, err := d.tableCache.NewIterator(f.number, f.size, d.options.ParanoidChecks)
			if err != nil {
				return nil, err
			}
			children = append(children, it)
		}
	}
	return newMergingIterator(d.icmp, children), nil
}

func (d *dbImpl) doTrivialMove(c *Compaction) error {
	util.AssertMutexHeld(&d.mu)

	f := c.inputs[0][0]
	c.edit.RemoveFile(f.number, c.level)
	c.edit.AddFile(c.level+1, f.number, f.size, f.smallest, f.largest)

	err := d.versions.LogAndApply(&c.edit, &d.mu)
	d.logger.Printf("Moved #%d to level-%d %d bytes %v", f.number, c.level+1, f.size, err)
	return err
}

// openCompactionOutputFile starts a new output sstable for the compaction,
// registering its file number as pending so concurrent cleanup doesn't
// delete it before the edit recording it is applied.
func (d *dbImpl) openCompactionOutputFile(c *Compaction) (*table.TableBuilder, db.WritableFile, FileNumber, error) {
	fnum := d.versions.NewFileNumber()
	d.RegisterPendingOutput(fnum)

	fname := TableFileName(d.dbname, fnum)
	f, err := d.env.NewWritableFile(fname)
	if err != nil {
		d.UnregisterPendingOutput(fnum)
		return nil, nil, 0, err
	}

	builder := table.NewTableBuilder(f, d.icmp, d.options.BlockSize, d.options.Compression,
		d.options.BlockRestartInterval, d.options.FilterPolicy)
	return builder, f, fnum, nil
}

func (d *dbImpl) finishCompactionOutputFile(c *Compaction, builder *table.TableBuilder, f db.WritableFile,
	fnum FileNumber, smallest, largest []byte,
) error {
	err := builder.Finish()
	size := builder.FileSize()
	if err == nil {
		err = f.Sync()
	}
	if err == nil {
		err = f.Close()
	}

	d.UnregisterPendingOutput(fnum)

	if err != nil {
		d.env.RemoveFile(TableFileName(d.dbname, fnum))
		return err
	}

	if size > 0 {
		c.edit.AddFile(c.level+1, fnum, size, smallest, largest)
		d.metrics.addCompactionBytesWritten(size)
		d.logger.Printf("Generated table #%d@%d: %d keys, %d bytes", fnum, c.level, builder.NumEntries(), size)
	}
	return nil
}

func (d *dbImpl) doCompactionWork(c *Compaction) error {
	util.AssertMutexHeld(&d.mu)

	startTime := time.Now()
	d.logger.Printf("Compacting %d@%d + %d@%d files", len(c.inputs[0]), c.level, len(c.inputs[1]), c.level+1)

	var inputBytes uint64
	for _, f := range c.inputs[0] {
		c.edit.RemoveFile(f.number, c.level)
		inputBytes += f.size
	}
	for _, f := range c.inputs[1] {
		c.edit.RemoveFile(f.number, c.level+1)
		inputBytes += f.size
	}
	d.metrics.addCompactionBytesRead(inputBytes)

	smallestSnapshot := d.snapshots.OldestSeq(d.versions.GetLastSequence())

	input, err := d.makeInputIterator(c)
	if err != nil {
		return err
	}

	v := d.versions.current
	d.mu.Unlock()

	var hasCurUserKey bool
	var curUserKey []byte
	var lastSequenceForKey SequenceNumber

	var builder *table.TableBuilder
	var outFile db.WritableFile
	var outFnum FileNumber
	var outSmallest, outLargest []byte

	input.SeekToFirst()
	for input.Valid() {
		key := input.Key()
		drop := false

		ikey, perr := ParseInternalKey(key)
		if perr != nil {
			hasCurUserKey = false
			curUserKey = curUserKey[:0]
			lastSequenceForKey = MaxSequenceNumber
		} else {
			if !hasCurUserKey || d.icmp.userCmp.Compare(ikey.UserKey, curUserKey) != 0 {
				hasCurUserKey = true
				curUserKey = append(curUserKey[:0], ikey.UserKey...)
				lastSequenceForKey = MaxSequenceNumber
			}

			if lastSequenceForKey <= smallestSnapshot {
				// An entry for this user key already survived the scan at
				// or below the oldest open snapshot; anything older is
				// invisible to every live reader.
				drop = true
			} else if ikey.Type == TypeDeletion && ikey.Sequence <= smallestSnapshot {
				// The tombstone can go only if no level below the output
				// level may still hold an older value for this user key.
				drop = true
				for lvl := c.level + 2; lvl < NumLevels; lvl++ {
					if v.overlapsLevel(lvl, ikey.UserKey, ikey.UserKey) {
						drop = false
						break
					}
				}
			}

			lastSequenceForKey = ikey.Sequence
		}

		if !drop {
			if builder == nil {
				builder, outFile, outFnum, err = d.openCompactionOutputFile(c)
				if err != nil {
					input.Close()
					d.mu.Lock()
					return err
				}
				outSmallest = append([]byte(nil), key...)
			}
			outLargest = append(outLargest[:0], key...)
			builder.Add(key, input.Value())

			if builder.FileSize() >= d.options.MaxFileSize {
				ferr := d.finishCompactionOutputFile(c, builder, outFile, outFnum, outSmallest, outLargest)
				builder = nil
				if ferr != nil {
					input.Close()
					d.mu.Lock()
					return ferr
				}
			}
		}

		input.Next()
	}

	iterErr := input.Error()
	closeErr := input.Close()

	if builder != nil {
		if ferr := d.finishCompactionOutputFile(c, builder, outFile, outFnum, outSmallest, outLargest); ferr != nil && iterErr == nil {
			iterErr = ferr
		}
	}

	d.mu.Lock()

	if iterErr != nil {
		return iterErr
	}
	if closeErr != nil {
		return closeErr
	}

	elapsed := time.Since(startTime)
	d.metrics.observeCompactionSeconds(elapsed.Seconds())
	d.logger.Printf("Compacted %d@%d + %d@%d files in %s", len(c.inputs[0]), c.level, len(c.inputs[1]), c.level+1, elapsed)

	return d.versions.LogAndApply(&c.edit, &d.mu)
}
