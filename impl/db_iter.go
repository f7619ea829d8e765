package impl

import "github.com/augurdb/augur/db"

type iterDirection int

const (
	directionForward iterDirection = iota
	directionReverse
)

// dbIter wraps an internal-key iterator (memtable, sstable, or a merge of
// several) with the user-visible view: only the newest version of each user
// key at or below seq is exposed, and deletion markers are skipped rather
// than surfaced.
type dbIter struct {
	iter db.Iterator
	ucmp db.Comparator
	seq  SequenceNumber

	dir   iterDirection
	valid bool
	err   error

	savedKey   []byte
	savedValue []byte
}

func newDBIter(iter db.Iterator, ucmp db.Comparator, seq SequenceNumber) *dbIter {
	return &dbIter{
		iter: iter,
		ucmp: ucmp,
		seq:  seq,
		dir:  directionForward,
	}
}

func (d *dbIter) Valid() bool   { return d.valid }
func (d *dbIter) Key() []byte   { return d.savedKey }
func (d *dbIter) Value() []byte { return d.savedValue }

func (d *dbIter) Error() error {
	if d.err != nil {
		return d.err
	}
	return d.iter.Error()
}

func (d *dbIter) Close() error {
	if d.iter == nil {
		return nil
	}
	err := d.iter.Close()
	d.iter = nil
	return err
}

func (d *dbIter) setErr(err error) {
	d.valid = false
	if d.err == nil {
		d.err = err
	}
}

func (d *dbIter) parseKey() (*ParsedInternalKey, bool) {
	ikey, err := ParseInternalKey(d.iter.Key())
	if err != nil {
		d.setErr(err)
		return nil, false
	}
	return ikey, true
}

func (d *dbIter) SeekToFirst() {
	d.dir = directionForward
	d.savedKey = d.savedKey[:0]
	d.savedValue = d.savedValue[:0]
	d.iter.SeekToFirst()
	if d.iter.Valid() {
		d.findNextUserEntry(false)
	} else {
		d.valid = false
	}
}

func (d *dbIter) SeekToLast() {
	d.dir = directionReverse
	d.savedKey = d.savedKey[:0]
	d.savedValue = d.savedValue[:0]
	d.iter.SeekToLast()
	d.findPrevUserEntry()
}

func (d *dbIter) Seek(target []byte) {
	d.dir = directionForward
	d.savedKey = d.savedKey[:0]
	d.savedValue = d.savedValue[:0]

	var lookup LookupKey
	lookup.Set(target, d.seq)
	d.iter.Seek(lookup.Key())
	if d.iter.Valid() {
		d.findNextUserEntry(false)
	} else {
		d.valid = false
	}
}

func (d *dbIter) Next() {
	if !d.valid {
		return
	}

	if d.dir == directionReverse {
		// Switching forward: land back on iter just past the current user
		// key by skipping every entry sharing it.
		d.dir = directionForward
		if !d.iter.Valid() {
			d.iter.SeekToFirst()
		} else {
			d.iter.Next()
		}
		if !d.iter.Valid() {
			d.valid = false
			return
		}
	} else {
		d.saveCurrentKey()
		d.iter.Next()
	}

	if !d.iter.Valid() {
		d.valid = false
		return
	}
	d.findNextUserEntry(true)
}

// saveCurrentKey preserves the current user key into savedKey so Next can
// tell it apart from the next entry's key while skipping forward.
func (d *dbIter) saveCurrentKey() {
	ikey, ok := d.parseKey()
	if !ok {
		return
	}
	d.savedKey = append(d.savedKey[:0], ikey.UserKey...)
}

// findNextUserEntry scans iter forward (which must already be positioned
// at a valid entry) until it lands on a live, non-deleted entry for a user
// key not equal to savedKey (when skipping).
func (d *dbIter) findNextUserEntry(skipping bool) {
	for d.iter.Valid() {
		ikey, ok := d.parseKey()
		if !ok {
			return
		}

		if ikey.Sequence <= d.seq {
			switch ikey.Type {
			case TypeDeletion:
				d.savedKey = append(d.savedKey[:0], ikey.UserKey...)
				skipping = true
			case TypeValue:
				if skipping && d.ucmp.Compare(ikey.UserKey, d.savedKey) <= 0 {
					// Hidden behind the deletion/value we're skipping past.
				} else {
					d.valid = true
					d.savedKey = append(d.savedKey[:0], ikey.UserKey...)
					d.savedValue = append(d.savedValue[:0], d.iter.Value()...)
					return
				}
			}
		}
		d.iter.Next()
	}
	d.valid = false
}

func (d *dbIter) findPrevUserEntry() {
	valueType := TypeDeletion

	if d.iter.Valid() {
		for {
			ikey, ok := d.parseKey()
			if !ok {
				return
			}

			if ikey.Sequence <= d.seq {
				if valueType != TypeDeletion && d.ucmp.Compare(ikey.UserKey, d.savedKey) < 0 {
					break
				}
				valueType = ikey.Type
				if valueType == TypeDeletion {
					d.savedKey = d.savedKey[:0]
					d.savedValue = d.savedValue[:0]
				} else {
					d.savedKey = append(d.savedKey[:0], ikey.UserKey...)
					d.savedValue = append(d.savedValue[:0], d.iter.Value()...)
				}
			}

			d.iter.Prev()
			if !d.iter.Valid() {
				break
			}
		}
	}

	if valueType == TypeDeletion {
		d.valid = false
		d.savedKey = d.savedKey[:0]
		d.savedValue = d.savedValue[:0]
		d.dir = directionForward
	} else {
		d.valid = true
	}
}

func (d *dbIter) Prev() {
	if !d.valid {
		return
	}

	if d.dir == directionForward {
		// Switching backward: skip every entry sharing savedKey, including
		// the current one, then look for the first live version below it.
		d.saveCurrentKey()
		for {
			d.iter.Prev()
			if !d.iter.Valid() {
				d.valid = false
				d.savedKey = d.savedKey[:0]
				d.savedValue = d.savedValue[:0]
				d.dir = directionReverse
				return
			}
			ikey, ok := d.parseKey()
			if !ok {
				return
			}
			if d.ucmp.Compare(ikey.UserKey, d.savedKey) < 0 {
				break
			}
		}
		d.dir = directionReverse
	}

	d.findPrevUserEntry()
}
