// Package env provides the default, OS-backed implementation of db.Env.
package env

import (
	"os"

	"github.com/augurdb/augur/db"
	"github.com/augurdb/augur/util"
)

type GenericEnv struct{}

var globalEnv *GenericEnv

func init() {
	globalEnv = &GenericEnv{}
}

func DefaultEnv() *GenericEnv {
	return globalEnv
}

// osWritableFile adapts *os.File to db.WritableFile. Writes through os.File
// are unbuffered, so Flush is a no-op kept only to satisfy the interface.
type osWritableFile struct {
	*os.File
}

func (osWritableFile) Flush() error {
	return nil
}

func (e *GenericEnv) NewSequentialFile(name string) (db.SequentialFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (e *GenericEnv) NewRandomAccessFile(name string) (db.RandomAccessFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (e *GenericEnv) NewWritableFile(name string) (db.WritableFile, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return osWritableFile{f}, nil
}

func (e *GenericEnv) NewAppendableFile(name string) (db.WritableFile, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return osWritableFile{f}, nil
}

func (e *GenericEnv) RemoveFile(name string) error {
	return os.Remove(name)
}

func (e *GenericEnv) RenameFile(src, target string) error {
	return os.Rename(src, target)
}

func (e *GenericEnv) FileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func (e *GenericEnv) GetFileSize(name string) (uint64, error) {
	stat, err := os.Stat(name)
	if err != nil {
		return 0, err
	}
	return uint64(stat.Size()), nil
}

func (e *GenericEnv) GetChildren(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dents, err := f.ReadDir(0)
	if err != nil {
		return nil, err
	}

	children := make([]string, 0, len(dents))
	for _, e := range dents {
		children = append(children, e.Name())
	}
	return children, nil
}

func (e *GenericEnv) CreateDir(name string) error {
	return os.Mkdir(name, 0o755)
}

func (e *GenericEnv) RemoveDir(name string) error {
	return os.Remove(name)
}

// fileLock holds the open *os.File backing an advisory lock for the
// lifetime of the lock, so it isn't closed (and the lock dropped) until
// UnlockFile is called.
type fileLock struct {
	f *os.File
}

func (e *GenericEnv) LockFile(name string) (db.FileLock, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := util.LockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	return &fileLock{f: f}, nil
}

func (e *GenericEnv) UnlockFile(lock db.FileLock) error {
	fl, ok := lock.(*fileLock)
	if !ok {
		return nil
	}
	err := util.UnlockFile(fl.f)
	fl.f.Close()
	return err
}
