package impl

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/augurdb/augur/db"
	"github.com/augurdb/augur/env"
	"github.com/augurdb/augur/log"
	"github.com/augurdb/augur/table"
	"github.com/augurdb/augur/util"
)

type dbImpl struct {
	dbname         string
	options        db.Options
	icmp           *InternalKeyComparator
	versions       *VersionSet
	snapshots      *SnapshotList
	pendingOutputs map[uint64]struct{}
	mem            *MemTable
	imm            *MemTable
	mu             sync.Mutex
	env            db.Env
	log            *log.Writer
	logfile        db.WritableFile
	logfileNum     uint64
	logger         db.Logger

	tableCache *TableCache
	bcache     *table.BlockCache

	bgWork   *bgWork
	bgErr    error
	closed   bool
	metrics  *Metrics
	dblock   db.FileLock

	ws *writeSerializer

	wmu sync.Mutex
}

func (d *dbImpl) RegisterPendingOutput(fnum FileNumber) {
	util.AssertMutexHeld(&d.mu)
	d.pendingOutputs[fnum] = struct{}{}
}

func (d *dbImpl) UnregisterPendingOutput(fnum FileNumber) {
	util.AssertMutexHeld(&d.mu)
	delete(d.pendingOutputs, fnum)
}

func (d *dbImpl) RecordBackgroundError(err error) {
	util.AssertMutexHeld(&d.mu)
	if d.bgErr == nil {
		d.bgErr = err
		d.logger.Printf("Background error: %v", err)
	}
}

func (d *dbImpl) GetBackgroundError() error {
	util.AssertMutexHeld(&d.mu)
	return d.bgErr
}

// maxTableCacheSize reserves 10 of the open-file budget for files other
// than tables and gives the rest, but never fewer than 20, to the table
// cache.
func maxTableCacheSize(maxOpenFiles int) int {
	size := maxOpenFiles - 10
	if size < 20 {
		size = 20
	}
	return size
}

func Open(options *db.Options, dbname string) (db.DB, error) {
	userCmp := options.Comparator
	if userCmp == nil {
		userCmp = util.BytewiseComparator
	}

	icmp := &InternalKeyComparator{
		userCmp: userCmp,
	}

	filterPolicy := options.FilterPolicy
	if filterPolicy == nil && options.BloomBitsPerKey > 0 {
		filterPolicy = util.NewBloomFilterPolicy(options.BloomBitsPerKey)
	}
	options.FilterPolicy = filterPolicy

	var bcache *table.BlockCache
	if options.BlockCacheCapacity > 0 {
		bcache = table.NewBlockCache(options.BlockCacheCapacity)
	}

	genv := env.DefaultEnv()
	tableCache := NewTableCache(dbname, genv, maxTableCacheSize(options.MaxOpenFiles), icmp, filterPolicy, bcache, options.ParanoidChecks)
	vset := NewVersionSet(dbname, icmp, genv, tableCache, options.ParanoidChecks)
	snapshots := NewSnapshotList()

	userLogger := options.Logger
	if userLogger == nil {
		userLogger = db.DefaultLogger{}
	}

	db := &dbImpl{
		dbname:         dbname,
		options:        *options,
		icmp:           icmp,
		versions:       vset,
		snapshots:      snapshots,
		pendingOutputs: make(map[uint64]struct{}),
		mem:            nil,
		env:            genv,
		logger:         userLogger,
		tableCache:     tableCache,
		bcache:         bcache,
		metrics:        newMetrics(),
	}
	db.bgWork = db.newBgWork()
	db.ws = db.newWriteSerializer()

	db.mu.Lock()
	defer db.mu.Unlock()

	edit := VersionEdit{}
	err := db.recover(&edit)
	if err != nil {
		return nil, err
	}

	if db.mem == nil {
		newLogNumber := db.versions.NewFileNumber()
		fname := LogFileName(db.dbname, newLogNumber)
		f, err := db.env.NewWritableFile(fname)
		if err != nil {
			return nil, err
		}
		edit.SetLogNumber(newLogNumber)
		db.logfile = f
		db.logfileNum = newLogNumber
		db.log = log.NewWriter(f)
		db.mem = NewMemTable(db.icmp)
	}

	edit.SetPrevLogNumber(0)
	edit.SetLogNumber(db.logfileNum)
	err = db.versions.LogAndApply(&edit, &db.mu)
	if err != nil {
		return nil, err
	}

	db.CleanupObsoleteFiles()
	db.bgWork.Run()
	db.ws.Run()
	db.maybeScheduleCompaction()

	return db, nil
}

// DestroyDB removes every file belonging to the database at dbname. It
// refuses to run against a database another process still holds open,
// since it would otherwise delete files out from under a live writer.
func DestroyDB(dbname string, options *db.Options) error {
	genv := env.DefaultEnv()

	if genv.FileExists(LockFileName(dbname)) {
		lock, err := genv.LockFile(LockFileName(dbname))
		if err != nil {
			return fmt.Errorf("%w: %s is in use", db.ErrIO, dbname)
		}
		defer genv.UnlockFile(lock)
	}

	filenames, err := genv.GetChildren(dbname)
	if err != nil {
		// Nothing to destroy.
		return nil
	}

	for _, name := range filenames {
		if _, _, ok := ParseFileName(name); ok {
			if rerr := genv.RemoveFile(filepath.Join(dbname, name)); rerr != nil && err == nil {
				err = rerr
			}
		}
	}
	if err != nil {
		return err
	}

	genv.RemoveDir(dbname)
	return nil
}

func (d *dbImpl) maybeScheduleCompaction() {
	util.AssertMutexHeld(&d.mu)
	if d.imm != nil {
		d.scheduleFlush()
	}
	if d.versions.NeedsCompaction() {
		d.scheduleCompaction()
	}
}

func (d *dbImpl) recover(edit *VersionEdit) error {
	util.AssertMutexHeld(&d.mu)

	d.env.CreateDir(d.dbname)

	lock, err := d.env.LockFile(LockFileName(d.dbname))
	if err != nil {
		return fmt.Errorf("%w: could not acquire lock on %s: %v", db.ErrIO, d.dbname, err)
	}
	d.dblock = lock

	dbExists := d.env.FileExists(CurrentFileName(d.dbname))

	if !dbExists {
		if !d.options.CreateIfMissing {
			return fmt.Errorf("%w: %s does not exist (create_if_missing is false)", db.ErrInvalidArgument, d.dbname)
		}
		err := d.newDB()
		if err != nil {
			return err
		}
	} else if d.options.ErrorIfExists {
		return fmt.Errorf("%w: %s exists (error_if_exists is true)", db.ErrInvalidArgument, d.dbname)
	}

	err = d.versions.Recover()
	if err != nil {
		return err
	}

	maxSequence := uint64(0)

	minLog := d.versions.logNumber
	prevLog := d.versions.prevLogNumber

	filenames, err := d.env.GetChildren(d.dbname)
	if err != nil {
		return err
	}

	expected := d.versions.LiveFiles()
	logs := []uint64{}

	for _, fname := range filenames {
		if ftype, num, ok := ParseFileName(fname); ok {
			delete(expected, num)
			if ftype == FileTypeLog && ((num >= minLog) || (num == prevLog)) {
				logs = append(logs, num)
			}
		}
	}

	if len(expected) > 0 {
		return fmt.Errorf("%w: %d missing files", db.ErrCorruption, len(expected))
	}

	sort.Slice(logs, func(i, j int) bool {
		return logs[i] < logs[j]
	})

	for i, logNum := range logs {
		err := d.RecoverLogFile(logNum, i == len(logs)-1, edit, &maxSequence)
		if err != nil {
			return err
		}

		d.versions.MakeFileNumberUsed(logNum)
	}

	if d.versions.GetLastSequence() < maxSequence {
		d.versions.SetLastSequence(maxSequence)
	}

	return nil
}

func (d *dbImpl) RecoverLogFile(logNum uint64, last bool, edit *VersionEdit, maxSeq *uint64) error {
	util.AssertMutexHeld(&d.mu)

	fname := LogFileName(d.dbname, logNum)
	f, err := d.env.NewSequentialFile(fname)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := log.NewReader(f)
	compactions := 0
	var mem *MemTable
	var recoverErr error
	// TODO ignore corruption option
	for {
		record, err := reader.ReadRecord()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			recoverErr = err
			break
		}

		if len(record) < 12 {
			recoverErr = fmt.Errorf("%w: log record too small", db.ErrCorruption)
			break
		}

		batch := WriteBatchFromContents(record)

		if mem == nil {
			mem = NewMemTable(d.icmp)
		}
		err = batch.InsertIntoMemTable(mem)
		if err != nil {
			recoverErr = err
			break
		}

		lastSeq := batch.sequence() + uint64(batch.count()) - 1
		if lastSeq > *maxSeq {
			*maxSeq = lastSeq
		}

		if mem.ApproximateMemoryUsage() > d.options.WriteBufferSize {
			compactions++
			fnum := d.versions.NewFileNumber()
			err := d.WriteLevel0Table(mem, edit, fnum)
			mem = nil
			if err != nil {
				recoverErr = err
				break
			}
		}
	}

	if recoverErr != nil {
		return recoverErr
	}

	// TODO reuse log

	if mem != nil {
		fnum := d.versions.NewFileNumber()
		err := d.WriteLevel0Table(mem, edit, fnum)
		if err != nil {
			return err
		}
	}

	return nil
}

func (d *dbImpl) newDB() error {
	edit := VersionEdit{}
	edit.SetComparator(d.icmp.userCmp.Name())
	edit.SetLogNumber(0)
	edit.SetNextFileNumber(2)
	edit.SetLastSequence(0)

	manifest := DescriptorFileName(d.dbname, 1)
	f, err := d.env.NewWritableFile(manifest)
	if err != nil {
		return err
	}

	defer func() {
		if f != nil {
			f.Close()
		}
		if err != nil {
			d.env.RemoveFile(manifest)
		}
	}()

	writer := log.NewWriter(f)
	record := edit.Append(nil)
	err = writer.AddRecord(record)
	if err != nil {
		return err
	}

	err = f.Sync()
	if err != nil {
		return err
	}
	err = f.Close()
	if err != nil {
		return err
	}
	f = nil

	return SetCurrentFile(d.env, d.dbname, 1)
}

func (d *dbImpl) WriteLevel0Table(mem *MemTable, edit *VersionEdit, fnum FileNumber) error {
	util.AssertMutexHeld(&d.mu)

	meta := FileMetaData{
		number: fnum,
	}

	iter := mem.Iterator()

	d.mu.Unlock()
	err := BuildTable(d.dbname, d.env, iter, d.icmp, &d.options, &meta)
	d.mu.Lock()

	if err != nil {
		return err
	}

	if meta.size <= 0 {
		return nil
	}

	level := d.versions.PickLevelForMemTableOutput(ExtractUserKey(meta.smallest), ExtractUserKey(meta.largest))
	edit.AddFile(level, meta.number, meta.size, meta.smallest, meta.largest)

	return nil
}

func (d *dbImpl) Get(key []byte, options *db.ReadOptions) ([]byte, error) {
	d.mu.Lock()

	var seq uint64
	if options != nil && options.Snapshot != nil {
		seq = options.Snapshot.(*Snapshot).seq
	} else {
		seq = d.versions.GetLastSequence()
	}

	verifyChecksum := options != nil && options.VerifyChecksum
	fillCache := options == nil || options.FillCache

	var lookupKey LookupKey
	lookupKey.Set(key, seq)

	mem := d.mem
	imm := d.imm
	current := d.versions.current
	d.mu.Unlock()

	if value, deleted, exist := mem.Get(&lookupKey); exist {
		if deleted {
			return nil, db.ErrNotFound
		}
		return value, nil
	}

	if imm != nil {
		if value, deleted, exist := imm.Get(&lookupKey); exist {
			if deleted {
				return nil, db.ErrNotFound
			}
			return value, nil
		}
	}

	return current.Get(&lookupKey, verifyChecksum, fillCache)
}

func (d *dbImpl) Put(key []byte, value []byte, options *db.WriteOptions) error {
	batch := NewWriteBatch()
	batch.Put(key, value)
	return d.Write(batch, options)
}

func (d *dbImpl) Delete(key []byte, options *db.WriteOptions) error {
	batch := NewWriteBatch()
	batch.Delete(key)
	return d.Write(batch, options)
}

func (d *dbImpl) Write(updates db.WriteBatch, options *db.WriteOptions) error {
	var opts db.WriteOptions
	if options != nil {
		opts = *options
	}
	return d.ws.Write(updates, opts)
}

func (d *dbImpl) NewIterator(options *db.ReadOptions) (db.Iterator, error) {
	var seq SequenceNumber
	var verifyChecksum bool
	if options != nil && options.Snapshot != nil {
		seq = options.Snapshot.(*Snapshot).seq
	} else {
		seq = d.versions.GetLastSequence()
	}
	if options != nil {
		verifyChecksum = options.VerifyChecksum
	}

	d.mu.Lock()
	children := []db.Iterator{d.mem.Iterator()}
	if d.imm != nil {
		children = append(children, d.imm.Iterator())
	}
	err := d.versions.current.addIterators(d.tableCache, verifyChecksum, &children)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	merged := newMergingIterator(d.icmp, children)
	return newDBIter(merged, d.icmp.userCmp, seq), nil
}

func (d *dbImpl) GetSnapshot() db.Snapshot {
	seq := d.versions.GetLastSequence()
	return d.snapshots.NewSnapshot(seq)
}

func (d *dbImpl) Close() error {
	d.wmu.Lock()
	defer d.wmu.Unlock()

	if d.closed {
		return nil
	}

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	if d.bgWork != nil {
		d.bgWork.Close()
	}
	if d.ws != nil {
		d.ws.Close()
	}

	d.logfile.Sync()
	d.logfile.Close()
	d.tableCache.Close()

	if d.dblock != nil {
		d.env.UnlockFile(d.dblock)
	}
	return nil
}

func SetCurrentFile(env db.Env, dbname string, num uint64) error {
	manifest := DescriptorFileName(dbname, num)
	contents := strings.TrimPrefix(manifest, dbname)

	tmp := TempFileName(dbname, num)
	f, err := env.NewWritableFile(tmp)
	if err != nil {
		return err
	}

	_, err = io.WriteString(f, contents+"\n")
	if err != nil {
		env.RemoveFile(tmp)
		return err
	}
	err = f.Sync()
	if err != nil {
		env.RemoveFile(tmp)
		return err
	}
	err = f.Close()
	if err != nil {
		env.RemoveFile(tmp)
		return err
	}

	err = env.RenameFile(tmp, CurrentFileName(dbname))
	if err != nil {
		env.RemoveFile(tmp)
		return err
	}

	return nil
}
