package impl

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// FileType classifies a file living inside a database directory.
type FileType uint8

const (
	FileTypeLog FileType = iota
	FileTypeLock
	FileTypeTable
	FileTypeDescriptor
	FileTypeCurrent
	FileTypeTemp
	FileTypeInfoLog
)

// fileExtensions maps the suffix a numbered file carries on disk to the
// FileType it names. ".ldb" and ".sst" both mean "sstable" — only
// TableFileName writes the former, but ParseFileName accepts either so a
// directory populated by an older build still recovers cleanly.
var fileExtensions = map[string]FileType{
	".log":   FileTypeLog,
	".ldb":   FileTypeTable,
	".sst":   FileTypeTable,
	".dbtmp": FileTypeTemp,
}

func CurrentFileName(dbname string) string {
	return filepath.Join(dbname, "CURRENT")
}

func LogFileName(dbname string, num FileNumber) string {
	return filepath.Join(dbname, fmt.Sprintf("%06d.log", num))
}

func TableFileName(dbname string, num FileNumber) string {
	return filepath.Join(dbname, fmt.Sprintf("%06d.ldb", num))
}

func SSTTableFileName(dbname string, num FileNumber) string {
	return filepath.Join(dbname, fmt.Sprintf("%06d.sst", num))
}

func TempFileName(dbname string, num FileNumber) string {
	return filepath.Join(dbname, fmt.Sprintf("%06d.dbtmp", num))
}

func DescriptorFileName(dbname string, num FileNumber) string {
	return filepath.Join(dbname, fmt.Sprintf("MANIFEST-%06d", num))
}

func LockFileName(dbname string) string {
	return filepath.Join(dbname, "LOCK")
}

func InfoLogFileName(dbname string) string {
	return filepath.Join(dbname, "LOG")
}

// ParseFileName recognizes every file name this database writes under its
// directory and reports its type and, for numbered files, the file number
// encoded in the name. It returns ok=false for anything it doesn't
// recognize (stray files left by another process, editor swap files, …) so
// callers like DestroyDB don't touch what they didn't create.
func ParseFileName(filename string) (fileType FileType, number FileNumber, ok bool) {
	switch filename {
	case "CURRENT":
		return FileTypeCurrent, 0, true
	case "LOCK":
		return FileTypeLock, 0, true
	case "LOG", "LOG.old":
		return FileTypeInfoLog, 0, true
	}

	if rest, found := strings.CutPrefix(filename, "MANIFEST-"); found {
		num, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		return FileTypeDescriptor, FileNumber(num), true
	}

	ext := filepath.Ext(filename)
	ft, recognized := fileExtensions[ext]
	if !recognized {
		return 0, 0, false
	}

	num, err := strconv.ParseUint(strings.TrimSuffix(filename, ext), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return ft, FileNumber(num), true
}
