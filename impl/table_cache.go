package impl

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/augurdb/augur/db"
	"github.com/augurdb/augur/table"
	"github.com/augurdb/augur/util"
	"golang.org/x/sync/singleflight"
)

type tableAndFile struct {
	file  db.RandomAccessFile
	table *table.Table
}

type TableCache struct {
	dbname         string
	env            db.Env
	cmp            db.Comparator
	filter         db.FilterPolicy
	paranoidChecks bool

	lru *util.LRUCache[tableAndFile]

	bcache  *table.BlockCache
	cacheID atomic.Uint64

	openGroup singleflight.Group
}

func NewTableCache(dbname string, env db.Env, size int, cmp db.Comparator, filter db.FilterPolicy,
	bcache *table.BlockCache, paranoidChecks bool) *TableCache {
	lru := util.NewLRUCache[tableAndFile](size)
	lru.SetOnEvict(func(_ []byte, v *tableAndFile) {
		v.table.Close()
		v.file.Close()
	})

	return &TableCache{
		dbname:         dbname,
		env:            env,
		cmp:            cmp,
		filter:         filter,
		paranoidChecks: paranoidChecks,
		lru:            lru,
		bcache:         bcache,
	}
}

func (tc *TableCache) Get(num FileNumber, size uint64, key []byte, handleFn func(k, v []byte), verifyChecksum, fillCache bool) error {
	handle, err := tc.findTable(num, size)
	if err != nil {
		return err
	}
	defer tc.lru.Release(handle)

	tbl := handle.Value().table
	return tbl.InternalGet(key, handleFn, verifyChecksum, fillCache)
}

func (tc *TableCache) NewIterator(num FileNumber, size uint64, verifyChecksum bool) (db.Iterator, error) {
	handle, err := tc.findTable(num, size)
	if err != nil {
		return nil, err
	}
	tbl := handle.Value().table
	iter := tbl.NewIterator(verifyChecksum, true)
	return newCleanupIterator(iter, func() {
		tc.lru.Release(handle)
	}), nil
}

func (tc *TableCache) Close() {
	tc.lru.Close()
}

func (tc *TableCache) Hits() uint64 {
	return tc.lru.Hits()
}

func (tc *TableCache) Misses() uint64 {
	return tc.lru.Misses()
}

func (tc *TableCache) Evict(num FileNumber) {
	key := make([]byte, 8)
	binary.LittleEndian.PutUint64(key, uint64(num))
	tc.lru.Erase(key)
}

func (tc *TableCache) findTable(num FileNumber, size uint64) (*util.LRUHandle[tableAndFile], error) {
	key := make([]byte, 8)
	binary.LittleEndian.PutUint64(key, uint64(num))

	if h := tc.lru.Lookup(key); h != nil {
		return h, nil
	}

	// Concurrent lookups for the same file number that both miss the cache
	// share a single open instead of racing to open the same sstable twice.
	groupKey := string(key)
	_, err, _ := tc.openGroup.Do(groupKey, func() (interface{}, error) {
		if h := tc.lru.Lookup(key); h != nil {
			tc.lru.Release(h)
			return nil, nil
		}

		fname := TableFileName(tc.dbname, num)
		f, openErr := tc.env.NewRandomAccessFile(fname)
		if openErr != nil {
			oldFname := SSTTableFileName(tc.dbname, num)
			f, openErr = tc.env.NewRandomAccessFile(oldFname)
			if openErr != nil {
				return nil, openErr
			}
		}

		cacheID := tc.cacheID.Add(1)
		tbl, openErr := table.OpenTable(f, size, tc.cmp, tc.filter, tc.bcache, cacheID, tc.paranoidChecks)
		if openErr != nil {
			_ = f.Close()
			return nil, openErr
		}

		h := tc.lru.Insert(key, tableAndFile{
			file:  f,
			table: tbl,
		}, 1)
		tc.lru.Release(h)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	if h := tc.lru.Lookup(key); h != nil {
		return h, nil
	}
	return nil, db.ErrNotFound
}
