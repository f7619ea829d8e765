package impl

import (
	"path/filepath"

	"github.com/augurdb/augur/util"
)

// CleanupObsoleteFiles scans the database directory and deletes every file
// that isn't part of the live set: an sstable no version references and no
// compaction has pending, a log file older than the current log that is not
// the previous log, or a manifest older than the active one.
func (d *dbImpl) CleanupObsoleteFiles() {
	util.AssertMutexHeld(&d.mu)

	live := d.versions.LiveFiles()
	for num := range d.pendingOutputs {
		live[num] = struct{}{}
	}

	filenames, err := d.env.GetChildren(d.dbname)
	if err != nil {
		return
	}

	var toDelete []string
	for _, fname := range filenames {
		ftype, num, ok := ParseFileName(fname)
		if !ok {
			continue
		}

		keep := true
		switch ftype {
		case FileTypeLog:
			keep = num >= d.versions.logNumber || num == d.versions.prevLogNumber
		case FileTypeDescriptor:
			keep = num >= d.versions.manifestFileNumber
		case FileTypeTable, FileTypeTemp:
			_, keep = live[num]
		case FileTypeCurrent, FileTypeLock, FileTypeInfoLog:
			keep = true
		}

		if !keep {
			toDelete = append(toDelete, fname)
			d.logger.Printf("Delete type=%d #%d", ftype, num)
		}
	}

	d.DeleteObsoleteFiles(toDelete)
}

// DeleteObsoleteFiles removes the named files (relative to dbname) from disk,
// evicting any of them still open in the table cache first.
func (d *dbImpl) DeleteObsoleteFiles(names []string) {
	for _, name := range names {
		if ftype, num, ok := ParseFileName(name); ok && ftype == FileTypeTable && d.tableCache != nil {
			d.tableCache.Evict(num)
		}
		d.env.RemoveFile(filepath.Join(d.dbname, name))
	}
}
