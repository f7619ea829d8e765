package db

import "io"

// Env is the operating-system boundary this engine goes through for every
// file and directory operation. Production code runs against a single
// concrete implementation backed by the real filesystem; tests that need a
// different story (truncated files, renames that fail partway through,
// latency injection) implement Env themselves instead of the engine
// special-casing anything OS-specific.
type Env interface {
	NewSequentialFile(name string) (SequentialFile, error)
	NewRandomAccessFile(name string) (RandomAccessFile, error)
	NewWritableFile(name string) (WritableFile, error)
	NewAppendableFile(name string) (WritableFile, error)
	RemoveFile(name string) error
	RenameFile(src, target string) error
	FileExists(name string) bool
	GetFileSize(name string) (uint64, error)

	GetChildren(path string) ([]string, error)
	CreateDir(name string) error
	RemoveDir(name string) error

	// LockFile and UnlockFile take and release an advisory, process-wide
	// lock on name, used to stop two opens of the same database directory
	// from running concurrently.
	LockFile(name string) (FileLock, error)
	UnlockFile(lock FileLock) error
}

// SequentialFile is read front-to-back, once, with no seeking — the shape
// the WAL and sstable scans need.
type SequentialFile interface {
	io.Reader
	io.Closer
}

// RandomAccessFile supports reads at arbitrary offsets, for looking up a
// single block inside an already-open sstable.
type RandomAccessFile interface {
	io.ReaderAt
	io.Closer
}

// WritableFile is append-only: every write lands after the previous one,
// there is no way to rewrite earlier bytes.
type WritableFile interface {
	io.Writer
	io.Closer
	Flush() error
	Sync() error
}

// FileLock is an opaque handle returned by Env.LockFile; callers pass it
// back to UnlockFile unchanged.
type FileLock interface{}
