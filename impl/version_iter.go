package impl

import (
	"encoding/binary"
	"sort"

	"github.com/augurdb/augur/db"
	"github.com/augurdb/augur/util"
)

// lowerBoundFiles returns the index of the first file whose largest key is
// >= target, the same rule Version.Get uses to find the sole
// candidate file for a key in a level with disjoint ranges.
func lowerBoundFiles(icmp db.Comparator, files []*FileMetaData, target []byte) int {
	return sort.Search(len(files), func(i int) bool {
		return icmp.Compare(files[i].largest, target) >= 0
	})
}

type levelFileNumIterator struct {
	icmp     db.Comparator
	files    []*FileMetaData
	idx      int
	valueBuf [16]byte
}

func newLevelFileNumIterator(icmp db.Comparator, files []*FileMetaData) db.Iterator {
	return &levelFileNumIterator{
		icmp:  icmp,
		files: files,
	}
}

func (it *levelFileNumIterator) Close() error {
	return nil
}

func (it *levelFileNumIterator) Error() error {
	return nil
}

// Key returns the largest key of the current file, so seeking this index
// for a target key lands on the first file whose range could contain it.
func (it *levelFileNumIterator) Key() []byte {
	util.Assert(it.Valid())
	return it.files[it.idx].largest
}

func (it *levelFileNumIterator) Next() {
	util.Assert(it.Valid())
	it.idx++
}

func (it *levelFileNumIterator) Prev() {
	util.Assert(it.Valid())
	it.idx--
}

func (it *levelFileNumIterator) Seek(target []byte) {
	it.idx = lowerBoundFiles(it.icmp, it.files, target)
}

func (it *levelFileNumIterator) SeekToFirst() {
	it.idx = 0
}

func (it *levelFileNumIterator) SeekToLast() {
	it.idx = len(it.files) - 1
}

func (it *levelFileNumIterator) Valid() bool {
	return it.idx < len(it.files) && it.idx >= 0
}

func (it *levelFileNumIterator) Value() []byte {
	binary.LittleEndian.PutUint64(it.valueBuf[0:], it.files[it.idx].number)
	binary.LittleEndian.PutUint64(it.valueBuf[8:], it.files[it.idx].size)
	return it.valueBuf[:]
}

// addIterators appends one internal-key iterator per sstable across every
// level to iters, for a caller to merge alongside the active memtables.
func (v *Version) addIterators(tc *TableCache, verifyChecksum bool, iters *[]db.Iterator) error {
	for level := 0; level < NumLevels; level++ {
		for _, f := range v.files[level] {
			it, err := tc.NewIterator(f.number, f.size, verifyChecksum)
			if err != nil {
				return err
			}
			*iters = append(*iters, it)
		}
	}
	return nil
}
